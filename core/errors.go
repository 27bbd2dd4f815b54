package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput              = "CRM_SYNC_BAD_INPUT"
	ErrorUnsupportedProvider   = "CRM_SYNC_UNSUPPORTED_PROVIDER"
	ErrorAuthenticationFailed  = "CRM_SYNC_AUTHENTICATION_FAILED"
	ErrorIntegrationNotActive  = "CRM_SYNC_INTEGRATION_NOT_ACTIVE"
	ErrorNotFound              = "CRM_SYNC_NOT_FOUND"
	ErrorSyncAlreadyInProgress = "CRM_SYNC_ALREADY_IN_PROGRESS"
	ErrorProviderTransient     = "CRM_SYNC_PROVIDER_TRANSIENT"
	ErrorProviderCatastrophic  = "CRM_SYNC_PROVIDER_CATASTROPHIC"
	ErrorInternal              = "CRM_SYNC_INTERNAL"
)

// ErrNotFound is returned by stores when a row does not exist for the user.
var ErrNotFound = errors.New("core: record not found")

func NewUnsupportedProviderError(provider Provider) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("provider %q is not supported", provider), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorUnsupportedProvider).
		WithMetadata(map[string]any{"provider": string(provider)})
}

func NewAuthenticationFailedError(message string, source error) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "authentication failed"
	}
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryAuth)
	}
	return err.WithCode(http.StatusUnauthorized).WithTextCode(ErrorAuthenticationFailed)
}

func NewIntegrationNotActiveError(conn Connection) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("integration %s is not active (status %s)", conn.Provider, conn.Status),
		goerrors.CategoryConflict,
	).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorIntegrationNotActive).
		WithMetadata(map[string]any{
			"provider": string(conn.Provider),
			"status":   string(conn.Status),
		})
}

func NewNotFoundError(kind string, id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s %q not found", kind, id), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound).
		WithMetadata(map[string]any{"kind": kind, "id": id})
}

func NewSyncAlreadyInProgressError(userID string, provider Provider) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("sync already in progress for %s", provider), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorSyncAlreadyInProgress).
		WithMetadata(map[string]any{"user_id": userID, "provider": string(provider)})
}

// NewProviderTransientError marks a failure that affects a single item or a
// single request and may succeed on retry.
func NewProviderTransientError(provider Provider, message string, source error) *goerrors.Error {
	return providerError(provider, message, source, ErrorProviderTransient)
}

// NewProviderCatastrophicError marks a failure that invalidates the rest of a
// sync run: revoked auth, exhausted rate limits, provider outage.
func NewProviderCatastrophicError(provider Provider, message string, source error) *goerrors.Error {
	return providerError(provider, message, source, ErrorProviderCatastrophic)
}

func providerError(provider Provider, message string, source error, code string) *goerrors.Error {
	if strings.TrimSpace(message) == "" && source != nil {
		message = source.Error()
	}
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	return err.WithCode(http.StatusBadGateway).
		WithTextCode(code).
		WithMetadata(map[string]any{"provider": string(provider)})
}

func newValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// IsErrorCode reports whether err carries the given text code.
func IsErrorCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func IsProviderCatastrophic(err error) bool {
	return IsErrorCode(err, ErrorProviderCatastrophic) || IsErrorCode(err, ErrorAuthenticationFailed)
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case errors.Is(err, ErrInvalidConnectionStatusTransition), errors.Is(err, ErrSyncLogClosed):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ErrorIntegrationNotActive)
	case errors.Is(err, ErrInvalidSyncScope), errors.Is(err, ErrInvalidSyncDirection):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	case errors.Is(err, ErrStateInvalid), errors.Is(err, ErrStateExpired):
		return newServiceError(err.Error(), goerrors.CategoryAuth, ErrorAuthenticationFailed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ErrorProviderCatastrophic)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if mapped != nil && strings.TrimSpace(mapped.TextCode) == "" {
		mapped.TextCode = ErrorInternal
	}
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthenticationFailed
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return ErrorProviderCatastrophic
	default:
		return ErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
