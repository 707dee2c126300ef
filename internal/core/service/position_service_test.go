package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/repository"
)

func TestPositionService(t *testing.T) {
	svc := NewPositionService(repository.NewInMemoryPositionRepository(0))

	assert.ErrorIs(t, svc.AddPosition(&model.Position{}), ErrMissingIMEI)

	now := time.Now().UTC()
	require.NoError(t, svc.AddPosition(&model.Position{IMEI: "86713450902015", Timestamp: now, Latitude: -25.5}))

	latest, err := svc.GetLatestPosition("86713450902015")
	require.NoError(t, err)
	assert.Equal(t, -25.5, latest.Latitude)

	_, err = svc.GetLatestPosition("358899051025384")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	history, err := svc.GetDevicePositions("358899051025384", 10)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}
