package recorder

import (
	"context"
	"errors"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/repository"
	"gt06gateway/internal/core/service"
)

// StoreSink keeps the device directory and position history up to date.
type StoreSink struct {
	devices   repository.DeviceRepository
	positions service.PositionService
}

func NewStoreSink(devices repository.DeviceRepository, positions service.PositionService) *StoreSink {
	return &StoreSink{devices: devices, positions: positions}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(_ context.Context, rec model.FrameRecord) error {
	imei := rec.DeviceIMEI()
	if imei == "" || rec.Kind == "invalid" {
		return nil
	}
	err := s.devices.Touch(model.DeviceSighting{
		IMEI:     imei,
		Peer:     rec.Peer,
		At:       rec.ReceivedAt,
		Status:   rec.Status,
		Position: rec.Position,
	})
	if rec.Position != nil {
		err = errors.Join(err, s.positions.AddPosition(rec.Position))
	}
	return err
}
