package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	busConfig "github.com/iurnickita/vending/internal/bus/config"
	handlerConfig "github.com/iurnickita/vending/internal/handler/config"
	lockConfig "github.com/iurnickita/vending/internal/lock/config"
	loggerConfig "github.com/iurnickita/vending/internal/logger/config"
	serviceConfig "github.com/iurnickita/vending/internal/service/config"
	storeConfig "github.com/iurnickita/vending/internal/store/config"
)

const DefaultMachineID = "00000000-0000-0000-0000-000000000001"

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Store   storeConfig.Config
	Logger  loggerConfig.Config
	Lock    lockConfig.Config
	Bus     busConfig.Config
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParseDenominations читает список номиналов через запятую. Пустая строка -
// принимается любой положительный номинал.
func ParseDenominations(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("denomination %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("denomination %d must be positive", d)
		}
		out = append(out, d)
	}
	return out, nil
}

// GetConfig reads .env when present, then VENDING_* environment variables.
func GetConfig() (Config, error) {
	_ = godotenv.Load()

	maxAttempts, err := getInt("VENDING_MAX_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}
	retryBase, err := getDuration("VENDING_RETRY_BASE", 10*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := getDuration("VENDING_LOCK_TTL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	denominations, err := ParseDenominations(getEnv("VENDING_DENOMINATIONS", "1,5,10,20,50,100,500,1000"))
	if err != nil {
		return Config{}, fmt.Errorf("VENDING_DENOMINATIONS: %w", err)
	}
	machineID := getEnv("VENDING_MACHINE_ID", DefaultMachineID)

	return Config{
		Handler: handlerConfig.Config{
			ServerAddr: getEnv("VENDING_ADDR", ":8080"),
		},
		Service: serviceConfig.Config{
			MachineID:     machineID,
			MaxAttempts:   maxAttempts,
			RetryBase:     retryBase,
			Denominations: denominations,
		},
		Store: storeConfig.Config{
			DBDsn:     getEnv("VENDING_DATABASE_DSN", ""),
			MachineID: machineID,
		},
		Logger: loggerConfig.Config{
			LogLevel: getEnv("VENDING_LOG_LEVEL", "info"),
		},
		Lock: lockConfig.Config{
			Provider:  getEnv("VENDING_LOCK_PROVIDER", lockConfig.ProviderMemory),
			RedisAddr: getEnv("VENDING_REDIS_ADDR", "localhost:6379"),
			TTL:       lockTTL,
		},
		Bus: busConfig.Config{
			NatsURL: getEnv("VENDING_NATS_URL", ""),
			Subject: getEnv("VENDING_NATS_SUBJECT", "transactions.created"),
		},
	}, nil
}
