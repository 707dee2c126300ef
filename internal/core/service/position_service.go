package service

import (
	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/repository"
)

// MaxHistory caps a single history query.
const MaxHistory = 1000

type PositionService interface {
	AddPosition(position *model.Position) error
	GetDevicePositions(imei string, limit int) ([]*model.Position, error)
	GetLatestPosition(imei string) (*model.Position, error)
}

type positionService struct {
	positionRepo repository.PositionRepository
}

func NewPositionService(positionRepo repository.PositionRepository) PositionService {
	return &positionService{
		positionRepo: positionRepo,
	}
}

// AddPosition stores a fix reported by a logged-in device. Fixes without an IMEI are rejected.
func (s *positionService) AddPosition(position *model.Position) error {
	if position == nil || position.IMEI == "" {
		return ErrMissingIMEI
	}
	return s.positionRepo.Create(position)
}

func (s *positionService) GetDevicePositions(imei string, limit int) ([]*model.Position, error) {
	if imei == "" {
		return nil, ErrMissingIMEI
	}
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	positions, err := s.positionRepo.FindByIMEI(imei, limit)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []*model.Position{}
	}
	return positions, nil
}

func (s *positionService) GetLatestPosition(imei string) (*model.Position, error) {
	if imei == "" {
		return nil, ErrMissingIMEI
	}
	position, err := s.positionRepo.FindLatestByIMEI(imei)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrDeviceNotFound
	}
	return position, nil
}
