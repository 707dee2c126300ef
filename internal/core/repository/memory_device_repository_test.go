package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
)

func TestInMemoryDeviceRepositoryTouch(t *testing.T) {
	repo := NewInMemoryDeviceRepository()
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Touch(model.DeviceSighting{IMEI: "86713450902015", Peer: "10.0.0.1:5000", At: first}))
	status := model.UnknownStatus()
	status.Known = true
	status.RelayCut = true
	require.NoError(t, repo.Touch(model.DeviceSighting{
		IMEI:   "86713450902015",
		Peer:   "10.0.0.2:5001",
		At:     first.Add(time.Minute),
		Status: &status,
	}))

	rec, err := repo.FindByIMEI("86713450902015")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, first, rec.FirstSeen)
	assert.Equal(t, first.Add(time.Minute), rec.LastSeen)
	assert.Equal(t, "10.0.0.2:5001", rec.LastPeer)
	assert.EqualValues(t, 2, rec.Frames)
	require.NotNil(t, rec.Status)
	assert.True(t, rec.Status.RelayCut)
	assert.Nil(t, rec.Position)

	all, err := repo.FindAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
