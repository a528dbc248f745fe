package config

import "time"

const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
)

type Config struct {
	Provider  string
	RedisAddr string
	TTL       time.Duration
}
