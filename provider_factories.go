package crmsync

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/google"
	"github.com/goliatone/go-crm-sync/providers/microsoft"
)

// ProviderCredentials holds the OAuth application registered with one
// provider. Empty credentials leave the provider unregistered.
type ProviderCredentials struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	Tenant       string   `koanf:"tenant" mapstructure:"tenant"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

func (c ProviderCredentials) configured() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

type ProvidersConfig struct {
	Google    ProviderCredentials `koanf:"google" mapstructure:"google"`
	Microsoft ProviderCredentials `koanf:"microsoft" mapstructure:"microsoft"`
}

func GoogleProvider(cfg google.Config) (core.ProviderClient, error) {
	return google.New(cfg)
}

func MicrosoftProvider(cfg microsoft.Config) (core.ProviderClient, error) {
	return microsoft.New(cfg)
}

// ProviderClients builds a client for every provider with credentials.
func ProviderClients(cfg ProvidersConfig) ([]core.ProviderClient, error) {
	clients := []core.ProviderClient{}
	if cfg.Google.configured() {
		client, err := GoogleProvider(google.Config{
			ClientID:     strings.TrimSpace(cfg.Google.ClientID),
			ClientSecret: strings.TrimSpace(cfg.Google.ClientSecret),
			Scopes:       cfg.Google.Scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("crmsync: google provider: %w", err)
		}
		clients = append(clients, client)
	}
	if cfg.Microsoft.configured() {
		client, err := MicrosoftProvider(microsoft.Config{
			ClientID:     strings.TrimSpace(cfg.Microsoft.ClientID),
			ClientSecret: strings.TrimSpace(cfg.Microsoft.ClientSecret),
			Tenant:       strings.TrimSpace(cfg.Microsoft.Tenant),
			Scopes:       cfg.Microsoft.Scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("crmsync: microsoft provider: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, nil
}
