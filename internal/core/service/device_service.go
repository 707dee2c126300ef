package service

import (
	"context"
	"errors"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/repository"
	"gt06gateway/internal/core/util"
)

var ErrDeviceNotFound = errors.New("device not found")

// Gateway is the connection engine as seen from outside its event loop.
type Gateway interface {
	Devices(ctx context.Context) ([]model.Device, error)
	Submit(ctx context.Context, req model.CommandRequest) (*model.PendingCommand, error)
}

type DeviceService interface {
	GetDevices(ctx context.Context) ([]model.Device, error)
	GetDevice(ctx context.Context, imei string) (*model.Device, error)
	SendCommand(ctx context.Context, imei, token, source string) (*model.PendingCommand, error)
	GetKnownDevices() ([]*model.DeviceRecord, error)
	GetKnownDevice(imei string) (*model.DeviceRecord, error)
}

type deviceService struct {
	gateway    Gateway
	deviceRepo repository.DeviceRepository
}

func NewDeviceService(gateway Gateway, deviceRepo repository.DeviceRepository) DeviceService {
	return &deviceService{
		gateway:    gateway,
		deviceRepo: deviceRepo,
	}
}

func (s *deviceService) GetDevices(ctx context.Context) ([]model.Device, error) {
	return s.gateway.Devices(ctx)
}

// GetDevice returns the newest live connection of a logged-in device.
func (s *deviceService) GetDevice(ctx context.Context, imei string) (*model.Device, error) {
	if imei == "" {
		return nil, ErrMissingIMEI
	}
	devices, err := s.gateway.Devices(ctx)
	if err != nil {
		return nil, err
	}
	// devices are ordered by connection id; the newest login wins
	var found *model.Device
	for i := range devices {
		if devices[i].IMEI == imei {
			found = &devices[i]
		}
	}
	if found == nil {
		return nil, ErrDeviceNotFound
	}
	return found, nil
}

func (s *deviceService) SendCommand(ctx context.Context, imei, token, source string) (*model.PendingCommand, error) {
	if imei == "" {
		return nil, ErrMissingIMEI
	}
	if _, err := model.ParseCommandKind(token); err != nil {
		return nil, err
	}
	return s.gateway.Submit(ctx, model.CommandRequest{
		IMEI:   imei,
		Token:  token,
		Ref:    util.GenerateID(),
		Source: source,
	})
}

// GetKnownDevices lists every device that has logged in, connected or not.
func (s *deviceService) GetKnownDevices() ([]*model.DeviceRecord, error) {
	recs, err := s.deviceRepo.FindAll()
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*model.DeviceRecord{}
	}
	return recs, nil
}

func (s *deviceService) GetKnownDevice(imei string) (*model.DeviceRecord, error) {
	if imei == "" {
		return nil, ErrMissingIMEI
	}
	rec, err := s.deviceRepo.FindByIMEI(imei)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrDeviceNotFound
	}
	return rec, nil
}
