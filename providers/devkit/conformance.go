package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// ValidateProviderClientConformance exercises the read side of a provider
// client against a live or fake backend.
func ValidateProviderClientConformance(
	ctx context.Context,
	client core.ProviderClient,
	session core.ProviderSession,
	since time.Time,
) error {
	if client == nil {
		return fmt.Errorf("devkit: provider client is required")
	}
	if strings.TrimSpace(string(client.Provider())) == "" {
		return fmt.Errorf("devkit: provider client must report a provider")
	}
	authURL := client.AuthorizationURL("state-1", "https://crm.example.test/callback")
	if !strings.Contains(authURL, "state-1") {
		return fmt.Errorf("devkit: authorization url must carry the state parameter")
	}

	events, err := client.FetchChangedCalendarEvents(ctx, session, since)
	if err != nil {
		return fmt.Errorf("devkit: fetch calendar events: %w", err)
	}
	seen := map[string]struct{}{}
	for _, event := range events {
		if strings.TrimSpace(event.ExternalID) == "" {
			return fmt.Errorf("devkit: remote event without external id")
		}
		if _, dup := seen[event.ExternalID]; dup {
			return fmt.Errorf("devkit: duplicate remote event %s in one page set", event.ExternalID)
		}
		seen[event.ExternalID] = struct{}{}
	}

	emails, err := client.FetchChangedEmails(ctx, session, since)
	if err != nil {
		return fmt.Errorf("devkit: fetch emails: %w", err)
	}
	for _, email := range emails {
		if strings.TrimSpace(email.ExternalID) == "" {
			return fmt.Errorf("devkit: remote email without external id")
		}
	}
	return nil
}
