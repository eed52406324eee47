package resultpush

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cricket-auction/internal/config"
)

func ConfigFromServer(cfg config.ServerConfig) (Config, error) {
	out := Config{
		Enabled:             cfg.ResultPushEnabled,
		ConfigPath:          strings.TrimSpace(cfg.ResultPushConfigPath),
		ConfigReload:        time.Duration(cfg.ResultPushConfigReloadMS) * time.Millisecond,
		Workers:             cfg.ResultPushWorkers,
		RetryMax:            cfg.ResultPushRetryMax,
		RetryBase:           time.Duration(cfg.ResultPushRetryBaseMS) * time.Millisecond,
		PanelUpdateInterval: 2 * time.Second,
		PanelRecentBids:     5,
		FailureThreshold:    3,
		CircuitOpenDuration: 30 * time.Second,
		RequestTimeout:      5 * time.Second,
		DispatchBuffer:      1024,
	}
	if !out.Enabled {
		return out, nil
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.RetryMax < 0 {
		out.RetryMax = 0
	}
	if out.RetryBase <= 0 {
		out.RetryBase = 500 * time.Millisecond
	}
	if out.ConfigReload <= 0 {
		out.ConfigReload = time.Second
	}

	raw, err := loadTargetsConfigJSON(cfg)
	if err != nil {
		return Config{}, err
	}
	if raw == "" {
		return out, nil
	}
	targets, err := parseTargetsJSON(raw)
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

// loadTargetsConfigJSON prefers the file so targets can be edited live.
func loadTargetsConfigJSON(cfg config.ServerConfig) (string, error) {
	path := strings.TrimSpace(cfg.ResultPushConfigPath)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read result push config path %q: %w", path, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return strings.TrimSpace(cfg.ResultPushConfigJSON), nil
}

// parseTargetsJSON drops disabled targets and ones with an unknown scope.
// Scope is "session" (ScopeValue is the session id) or "all".
func parseTargetsJSON(raw string) ([]PushTarget, error) {
	var targets []PushTarget
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("parse result push targets: %w", err)
	}
	filtered := make([]PushTarget, 0, len(targets))
	for _, target := range targets {
		target.Platform = strings.ToLower(strings.TrimSpace(target.Platform))
		target.ScopeType = strings.ToLower(strings.TrimSpace(target.ScopeType))
		if target.ScopeType == "" {
			target.ScopeType = "all"
		}
		if target.ScopeType != "session" && target.ScopeType != "all" {
			continue
		}
		if target.ScopeType == "session" && strings.TrimSpace(target.ScopeValue) == "" {
			continue
		}
		target.Endpoint = strings.TrimSpace(target.Endpoint)
		if target.Endpoint == "" || !target.Enabled {
			continue
		}
		for i := range target.EventAllowlist {
			target.EventAllowlist[i] = strings.TrimSpace(strings.ToLower(target.EventAllowlist[i]))
		}
		filtered = append(filtered, target)
	}
	return filtered, nil
}
