package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lockConfig "github.com/iurnickita/vending/internal/lock/config"
)

func TestGetConfigDefaults(t *testing.T) {
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Handler.ServerAddr)
	assert.Equal(t, DefaultMachineID, cfg.Service.MachineID)
	assert.Equal(t, DefaultMachineID, cfg.Store.MachineID)
	assert.Equal(t, 5, cfg.Service.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Service.RetryBase)
	assert.Equal(t, []int64{1, 5, 10, 20, 50, 100, 500, 1000}, cfg.Service.Denominations)
	assert.Empty(t, cfg.Store.DBDsn)
	assert.Equal(t, lockConfig.ProviderMemory, cfg.Lock.Provider)
	assert.Equal(t, 5*time.Second, cfg.Lock.TTL)
	assert.Empty(t, cfg.Bus.NatsURL)
	assert.Equal(t, "info", cfg.Logger.LogLevel)
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("VENDING_ADDR", ":9090")
	t.Setenv("VENDING_MACHINE_ID", "11111111-1111-1111-1111-111111111111")
	t.Setenv("VENDING_MAX_ATTEMPTS", "2")
	t.Setenv("VENDING_RETRY_BASE", "50ms")
	t.Setenv("VENDING_DENOMINATIONS", "")
	t.Setenv("VENDING_LOCK_PROVIDER", "redis")
	t.Setenv("VENDING_NATS_URL", "nats://localhost:4222")

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Handler.ServerAddr)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", cfg.Store.MachineID)
	assert.Equal(t, 2, cfg.Service.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Service.RetryBase)
	assert.Empty(t, cfg.Service.Denominations)
	assert.Equal(t, lockConfig.ProviderRedis, cfg.Lock.Provider)
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.NatsURL)
}

func TestGetConfigRejectsBadValues(t *testing.T) {
	t.Setenv("VENDING_MAX_ATTEMPTS", "many")
	_, err := GetConfig()
	require.Error(t, err)
}

func TestParseDenominations(t *testing.T) {
	ds, err := ParseDenominations(" 1, 5 ,10,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 10}, ds)

	_, err = ParseDenominations("1,-5")
	require.Error(t, err)
	_, err = ParseDenominations("1,x")
	require.Error(t, err)
}
