package main

import (
	"testing"
	"time"

	"cricket-auction/internal/config"
)

func TestRuntimeOptionsFromConfig(t *testing.T) {
	opts := runtimeOptions(config.ServerConfig{
		ItemDurationSecs:   45,
		BidIncrement:       25,
		MinRegisterBudget:  500,
		MaxRoster:          11,
		MinRoster:          3,
		AutoAdvanceMS:      1500,
		ClockTickMS:        250,
		EventBufferSize:    64,
		SessionRetainMins:  5,
		RequestIDCacheSize: 32,
	})
	if opts.DefaultRules.ItemDuration != 45*time.Second || opts.DefaultRules.BidIncrement != 25 {
		t.Fatalf("unexpected rules: %+v", opts.DefaultRules)
	}
	if opts.DefaultRules.MaxRoster != 11 || opts.DefaultRules.MinRoster != 3 || opts.DefaultRules.MinRegisterBudget != 500 {
		t.Fatalf("unexpected roster rules: %+v", opts.DefaultRules)
	}
	if opts.AutoAdvance != 1500*time.Millisecond || opts.ClockTick != 250*time.Millisecond {
		t.Fatalf("unexpected timers: %+v", opts)
	}
	if opts.BufferSize != 64 || opts.RequestCacheSize != 32 || opts.Retention != 5*time.Minute {
		t.Fatalf("unexpected sizes: %+v", opts)
	}
}
