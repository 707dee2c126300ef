package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
)

func TestInMemoryCommandRepository(t *testing.T) {
	repo := NewInMemoryCommandRepository()

	cmd := &model.PendingCommand{IMEI: "358899051025384", Kind: model.CommandLock, Serial: 1, SentAt: time.Now()}
	require.NoError(t, repo.Save(cmd))

	got, err := repo.FindByIMEI(cmd.IMEI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.CommandLock, got.Kind)

	// replaces, never accumulates
	require.NoError(t, repo.Save(&model.PendingCommand{IMEI: cmd.IMEI, Kind: model.CommandUnlock, Serial: 2}))
	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.CommandUnlock, all[0].Kind)

	got.Kind = model.CommandBatteryCheck
	again, _ := repo.FindByIMEI(cmd.IMEI)
	assert.Equal(t, model.CommandUnlock, again.Kind, "returned records must be copies")

	require.NoError(t, repo.Delete(cmd.IMEI))
	got, err = repo.FindByIMEI(cmd.IMEI)
	require.NoError(t, err)
	assert.Nil(t, got)
}
