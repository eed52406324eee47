package config

import (
	"errors"
	"fmt"
	"time"
)

type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	if err := serverCfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Log:    logCfg,
	}, nil
}

var errInvalidAuctionConfig = errors.New("invalid auction config")

// Validate rejects auction knobs that would make every bid unacceptable.
func (c ServerConfig) Validate() error {
	if c.ItemDurationSecs <= 0 {
		return fmt.Errorf("%w: AUCTION_ITEM_DURATION_SECONDS must be > 0", errInvalidAuctionConfig)
	}
	if c.BidIncrement < 0 || c.MinRegisterBudget < 0 || c.ReservePrice < 0 {
		return fmt.Errorf("%w: money values must be >= 0", errInvalidAuctionConfig)
	}
	if c.MaxRoster > 0 && c.MinRoster > c.MaxRoster {
		return fmt.Errorf("%w: AUCTION_MIN_ROSTER %d exceeds AUCTION_MAX_ROSTER %d", errInvalidAuctionConfig, c.MinRoster, c.MaxRoster)
	}
	return nil
}

func (c ServerConfig) ItemDuration() time.Duration {
	return time.Duration(c.ItemDurationSecs) * time.Second
}

func (c ServerConfig) AutoAdvance() time.Duration {
	return time.Duration(c.AutoAdvanceMS) * time.Millisecond
}

func (c ServerConfig) ClockTick() time.Duration {
	return time.Duration(c.ClockTickMS) * time.Millisecond
}

func (c ServerConfig) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetainMins) * time.Minute
}
