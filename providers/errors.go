package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/goliatone/go-crm-sync/core"
)

// ClassifyHTTPStatus maps a provider API status onto the error taxonomy.
// Revoked credentials, rate limit exhaustion and server outages abort the
// whole pass; anything else is scoped to the item that produced it.
func ClassifyHTTPStatus(provider core.Provider, status int, message string, source error) error {
	if message == "" {
		message = http.StatusText(status)
	}
	message = fmt.Sprintf("%s (status %d)", message, status)
	switch {
	case status == http.StatusUnauthorized:
		return core.NewAuthenticationFailedError(message, source)
	case status == http.StatusForbidden:
		return core.NewProviderCatastrophicError(provider, message, source)
	case status == http.StatusTooManyRequests:
		return core.NewProviderCatastrophicError(provider, message, source)
	case status >= http.StatusInternalServerError:
		return core.NewProviderCatastrophicError(provider, message, source)
	default:
		return core.NewProviderTransientError(provider, message, source)
	}
}

// ClassifyTransportError handles failures that never produced a response.
func ClassifyTransportError(provider core.Provider, action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.NewProviderTransientError(provider, action+" timed out", err)
	}
	return core.NewProviderTransientError(provider, action+" failed", err)
}
