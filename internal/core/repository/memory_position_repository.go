package repository

import (
	"sort"
	"sync"

	"gt06gateway/internal/core/model"
)

// DefaultPositionsPerDevice bounds the in-memory history of one device.
const DefaultPositionsPerDevice = 500

type inMemoryPositionRepository struct {
	positions map[string][]*model.Position
	capacity  int
	mutex     sync.RWMutex
}

// NewInMemoryPositionRepository keeps at most capacity positions per device, dropping the oldest.
func NewInMemoryPositionRepository(capacity int) PositionRepository {
	if capacity <= 0 {
		capacity = DefaultPositionsPerDevice
	}
	return &inMemoryPositionRepository{
		positions: make(map[string][]*model.Position),
		capacity:  capacity,
	}
}

func (r *inMemoryPositionRepository) Create(position *model.Position) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p := *position
	list := append(r.positions[p.IMEI], &p)
	// keep newest last
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	if len(list) > r.capacity {
		list = list[len(list)-r.capacity:]
	}
	r.positions[p.IMEI] = list
	return nil
}

func (r *inMemoryPositionRepository) FindByIMEI(imei string, limit int) ([]*model.Position, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := r.positions[imei]
	n := len(list)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]*model.Position, 0, n)
	for i := len(list) - 1; i >= 0 && len(result) < n; i-- {
		p := *list[i]
		result = append(result, &p)
	}
	return result, nil
}

func (r *inMemoryPositionRepository) FindLatestByIMEI(imei string) (*model.Position, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := r.positions[imei]
	if len(list) == 0 {
		return nil, nil
	}
	p := *list[len(list)-1]
	return &p, nil
}
