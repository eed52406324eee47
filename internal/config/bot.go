package config

import "github.com/caarlos0/env/v11"

type BotConfig struct {
	WSURL     string `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	SessionID string `env:"SESSION_ID"`
	APIKey    string `env:"API_KEY" envDefault:""`
	MaxPrice  int64  `env:"BOT_MAX_PRICE" envDefault:"0"`
	Step      int64  `env:"BOT_STEP" envDefault:"0"`
}

func LoadBot() (BotConfig, error) {
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
