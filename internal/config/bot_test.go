package config

import "testing"

func TestLoadBotDefaults(t *testing.T) {
	cfg, err := LoadBot()
	if err != nil {
		t.Fatalf("LoadBot() error = %v", err)
	}
	if cfg.WSURL != "ws://localhost:8080/ws" {
		t.Fatalf("WSURL = %q, want ws://localhost:8080/ws", cfg.WSURL)
	}
	if cfg.MaxPrice != 0 {
		t.Fatalf("MaxPrice = %d, want 0", cfg.MaxPrice)
	}
}

func TestLoadBotOverrides(t *testing.T) {
	t.Setenv("WS_URL", "ws://127.0.0.1:9000/ws")
	t.Setenv("SESSION_ID", "ipl-2026")
	t.Setenv("API_KEY", "key-a")
	t.Setenv("BOT_MAX_PRICE", "500000")

	cfg, err := LoadBot()
	if err != nil {
		t.Fatalf("LoadBot() error = %v", err)
	}
	if cfg.WSURL != "ws://127.0.0.1:9000/ws" {
		t.Fatalf("WSURL = %q", cfg.WSURL)
	}
	if cfg.SessionID != "ipl-2026" || cfg.APIKey != "key-a" || cfg.MaxPrice != 500000 {
		t.Fatalf("unexpected bot config: %+v", cfg)
	}
}
