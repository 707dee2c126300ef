package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7095", cfg.Server.Addr())
	assert.Equal(t, 2048, cfg.Server.ReadBufferSize)
	assert.True(t, cfg.Protocol.VerifyChecksum)
	assert.Equal(t, 15*time.Second, cfg.Command.BatteryLockDelay)
	assert.Equal(t, "comandos/arquivos", cfg.Command.Dir)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 20, cfg.Log.MaxSizeMB)
	assert.Equal(t, "America/Sao_Paulo", cfg.Log.Timezone)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yaml := `
server:
  port: 9000
  writeTimeout: 3s
command:
  batteryLockDelay: 500ms
protocol:
  verifyChecksum: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("GT06_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 3*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Command.BatteryLockDelay)
	assert.False(t, cfg.Protocol.VerifyChecksum)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Store.Backend = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg.Store.Backend = StoreMongo
	cfg.MongoDB.URI = ""
	assert.Error(t, cfg.Validate())

	cfg.MongoDB.URI = "mongodb://localhost:27017"
	assert.NoError(t, cfg.Validate())

	cfg.Server.ReadBufferSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
