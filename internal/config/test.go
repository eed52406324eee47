package config

import "github.com/caarlos0/env/v11"

type TestConfig struct {
	TestPostgresDSN string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// TestBrokerConfig points integration tests at live Redis/NATS; empty fields skip them.
type TestBrokerConfig struct {
	RedisAddr string `env:"TEST_REDIS_ADDR"`
	NATSURL   string `env:"TEST_NATS_URL"`
}

func LoadTestBrokers() (TestBrokerConfig, error) {
	var cfg TestBrokerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
