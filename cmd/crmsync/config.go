package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/goliatone/go-config/cfgx"

	crmsync "github.com/goliatone/go-crm-sync"
)

const envPrefix = "CRM_SYNC_"

// Leaves decoded as something other than a string. Everything else stays
// verbatim so numeric client ids and secrets survive.
var (
	durationLeaves = map[string]bool{
		"state_ttl":         true,
		"lead_window":       true,
		"lock_ttl":          true,
		"schedule_interval": true,
		"initial_backoff":   true,
		"max_backoff":       true,
		"ping_timeout":      true,
		"cache_ttl":         true,
		"burst_window":      true,
	}
	intLeaves = map[string]bool{
		"workers":         true,
		"max_attempts":    true,
		"max_inflight":    true,
		"app_key_version": true,
	}
	boolLeaves = map[string]bool{
		"debug": true,
	}
	listLeaves = map[string]bool{
		"scopes": true,
	}
	// Top level sections owned by the binary rather than the service.
	appSections = []string{
		"database", "providers", "webhooks",
		"app_key", "app_key_version", "previous_app_key", "previous_app_key_expires",
		"cache_ttl", "debug",
	}
)

type DatabaseConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

// WebhookConfig drives the serve command. Secret signs the channel tokens
// handed to provider subscriptions.
type WebhookConfig struct {
	Addr        string        `koanf:"addr" mapstructure:"addr"`
	Secret      string        `koanf:"secret" mapstructure:"secret"`
	BurstWindow time.Duration `koanf:"burst_window" mapstructure:"burst_window"`
	MaxInflight int           `koanf:"max_inflight" mapstructure:"max_inflight"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type AppConfig struct {
	Database  DatabaseConfig          `koanf:"database" mapstructure:"database"`
	Providers crmsync.ProvidersConfig `koanf:"providers" mapstructure:"providers"`
	Webhooks  WebhookConfig           `koanf:"webhooks" mapstructure:"webhooks"`
	AppKey    string                  `koanf:"app_key" mapstructure:"app_key"`
	// AppKeyVersion is bumped on rotation. PreviousAppKey keeps opening
	// tokens sealed under version-1 until PreviousAppKeyExpires (RFC 3339).
	AppKeyVersion         int           `koanf:"app_key_version" mapstructure:"app_key_version"`
	PreviousAppKey        string        `koanf:"previous_app_key" mapstructure:"previous_app_key"`
	PreviousAppKeyExpires string        `koanf:"previous_app_key_expires" mapstructure:"previous_app_key_expires"`
	CacheTTL              time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	Debug                 bool          `koanf:"debug" mapstructure:"debug"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         defaultSQLitePath(),
			PingTimeout: 5 * time.Second,
		},
		Webhooks: WebhookConfig{
			Addr:        ":8080",
			BurstWindow: 30 * time.Second,
			MaxInflight: 4,
			MaxAttempts: 8,
		},
		AppKeyVersion: 1,
		CacheTTL:      time.Minute,
	}
}

func defaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, "crm-sync", "crm-sync.db")
}

// envLoader turns CRM_SYNC_ prefixed variables into a nested raw map.
// A double underscore separates levels: CRM_SYNC_SYNC__WORKERS=8 becomes
// {"sync": {"workers": 8}}.
type envLoader struct {
	environ []string
	exclude []string
}

func (l envLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	for _, entry := range l.environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, envPrefix)), "__")
		if path[0] == "" || l.excluded(path[0]) {
			continue
		}
		decoded, err := decodeLeaf(path[len(path)-1], value)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
		if err := setPath(raw, path, decoded); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return raw, nil
}

func (l envLoader) excluded(section string) bool {
	for _, candidate := range l.exclude {
		if candidate == section {
			return true
		}
	}
	return false
}

func decodeLeaf(leaf string, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch {
	case durationLeaves[leaf]:
		return time.ParseDuration(value)
	case intLeaves[leaf]:
		return strconv.Atoi(value)
	case boolLeaves[leaf]:
		return strconv.ParseBool(value)
	case listLeaves[leaf]:
		items := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}

func setPath(root map[string]any, path []string, value any) error {
	node := root
	for _, key := range path[:len(path)-1] {
		next, ok := node[key]
		if !ok {
			child := map[string]any{}
			node[key] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%q is both a value and a section", key)
		}
		node = child
	}
	leaf := path[len(path)-1]
	if _, ok := node[leaf].(map[string]any); ok {
		return fmt.Errorf("%q is both a value and a section", leaf)
	}
	node[leaf] = value
	return nil
}

// loadAppConfig decodes the binary's own sections, leaving service sections
// to the service config provider.
func loadAppConfig(ctx context.Context, environ []string) (AppConfig, error) {
	raw, err := envLoader{environ: environ}.LoadRaw(ctx)
	if err != nil {
		return AppConfig{}, err
	}
	own := map[string]any{}
	for _, section := range appSections {
		if value, ok := raw[section]; ok {
			own[section] = value
		}
	}
	cfg, err := cfgx.Build[AppConfig](own, cfgx.WithDefaults(defaultAppConfig()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return cfg, nil
}

// serviceConfigLoader feeds the service every section the binary does not own.
func serviceConfigLoader(environ []string) envLoader {
	return envLoader{environ: environ, exclude: appSections}
}
