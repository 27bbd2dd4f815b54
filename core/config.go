package core

import (
	"fmt"
	"strings"
	"time"
)

type OAuthConfig struct {
	StateSigningKey string        `koanf:"state_signing_key" mapstructure:"state_signing_key"`
	StateTTL        time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	RedirectURL     string        `koanf:"redirect_url" mapstructure:"redirect_url"`
}

type RefreshConfig struct {
	LeadWindow time.Duration `koanf:"lead_window" mapstructure:"lead_window"`
}

type SyncConfig struct {
	Workers          int           `koanf:"workers" mapstructure:"workers"`
	LockTTL          time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	ScheduleInterval time.Duration `koanf:"schedule_interval" mapstructure:"schedule_interval"`
}

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
	Refresh     RefreshConfig `koanf:"refresh" mapstructure:"refresh"`
	Sync        SyncConfig    `koanf:"sync" mapstructure:"sync"`
	Retry       RetryConfig   `koanf:"retry" mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "crm-sync",
		OAuth: OAuthConfig{
			StateTTL: defaultOAuthStateTTL,
		},
		Refresh: RefreshConfig{
			LeadWindow: defaultRefreshLeadWindow,
		},
		Sync: SyncConfig{
			Workers:          defaultSyncWorkers,
			LockTTL:          defaultSyncLockTTL,
			ScheduleInterval: 15 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:    defaultRetryMaxAttempts,
			InitialBackoff: defaultRetryInitialBackoff,
			MaxBackoff:     defaultRetryMaxBackoff,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("core: sync.workers must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	if c.OAuth.StateTTL < 0 {
		return fmt.Errorf("core: oauth.state_ttl must not be negative")
	}
	return nil
}
