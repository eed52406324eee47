package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	ItemDurationSecs   int   `env:"AUCTION_ITEM_DURATION_SECONDS" envDefault:"60"`
	BidIncrement       int64 `env:"AUCTION_BID_INCREMENT" envDefault:"0"`
	MinRegisterBudget  int64 `env:"AUCTION_MIN_BUDGET" envDefault:"0"`
	MaxRoster          int   `env:"AUCTION_MAX_ROSTER" envDefault:"0"`
	MinRoster          int   `env:"AUCTION_MIN_ROSTER" envDefault:"0"`
	ReservePrice       int64 `env:"AUCTION_RESERVE_PRICE" envDefault:"0"`
	AutoAdvanceMS      int   `env:"AUCTION_AUTO_ADVANCE_MS" envDefault:"0"`
	ClockTickMS        int   `env:"AUCTION_CLOCK_TICK_MS" envDefault:"1000"`
	EventBufferSize    int   `env:"AUCTION_EVENT_BUFFER" envDefault:"500"`
	SessionRetainMins  int   `env:"AUCTION_SESSION_RETAIN_MINUTES" envDefault:"30"`
	WSAllowAnonymous   bool  `env:"WS_ALLOW_ANONYMOUS" envDefault:"true"`
	RequestIDCacheSize int   `env:"AUCTION_REQUEST_ID_CACHE" envDefault:"1024"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	NATSURL       string `env:"NATS_URL"`

	ResultPushEnabled        bool   `env:"RESULT_PUSH_ENABLED" envDefault:"false"`
	ResultPushConfigPath     string `env:"RESULT_PUSH_CONFIG_PATH"`
	ResultPushConfigJSON     string `env:"RESULT_PUSH_CONFIG_JSON"`
	ResultPushConfigReloadMS int    `env:"RESULT_PUSH_CONFIG_RELOAD_MS" envDefault:"1000"`
	ResultPushWorkers        int    `env:"RESULT_PUSH_WORKERS" envDefault:"2"`
	ResultPushRetryMax       int    `env:"RESULT_PUSH_RETRY_MAX" envDefault:"3"`
	ResultPushRetryBaseMS    int    `env:"RESULT_PUSH_RETRY_BASE_MS" envDefault:"500"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
