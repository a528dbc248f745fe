package config

import "time"

type Config struct {
	MachineID     string
	MaxAttempts   int
	RetryBase     time.Duration
	Denominations []int64
}
