package config

type Config struct {
	// NatsURL пустая строка - события не публикуются
	NatsURL string
	Subject string
}
