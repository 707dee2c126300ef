package repository

import (
	"sort"
	"sync"

	"gt06gateway/internal/core/model"
)

type inMemoryDeviceRepository struct {
	devices map[string]*model.DeviceRecord
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.DeviceRecord),
	}
}

func (r *inMemoryDeviceRepository) Touch(s model.DeviceSighting) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, exists := r.devices[s.IMEI]
	if !exists {
		rec = &model.DeviceRecord{IMEI: s.IMEI, FirstSeen: s.At}
		r.devices[s.IMEI] = rec
	}
	rec.LastSeen = s.At
	rec.LastPeer = s.Peer
	rec.Frames++
	if s.Status != nil {
		st := *s.Status
		rec.Status = &st
	}
	if s.Position != nil {
		p := *s.Position
		rec.Position = &p
	}
	return nil
}

func (r *inMemoryDeviceRepository) FindByIMEI(imei string) (*model.DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if rec, exists := r.devices[imei]; exists {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindAll() ([]*model.DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	recs := make([]*model.DeviceRecord, 0, len(r.devices))
	for _, rec := range r.devices {
		c := *rec
		recs = append(recs, &c)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].IMEI < recs[j].IMEI })
	return recs, nil
}
