package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ProviderSession is what a provider client needs to act on behalf of a
// connection.
type ProviderSession struct {
	ConnectionID string
	UserID       string
	Provider     Provider
	AccessToken  string
	Settings     Settings
}

// ProviderClient is the port to a remote mailbox/calendar backend.
type ProviderClient interface {
	Provider() Provider
	AuthorizationURL(state string, redirectURI string) string
	ExchangeCode(ctx context.Context, code string, redirectURI string) (TokenGrant, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error)
	FetchChangedCalendarEvents(ctx context.Context, session ProviderSession, since time.Time) ([]RemoteEvent, error)
	FetchChangedEmails(ctx context.Context, session ProviderSession, since time.Time) ([]RemoteEmail, error)
	PushEvent(ctx context.Context, session ProviderSession, draft EventDraft) (string, error)
	PushEmail(ctx context.Context, session ProviderSession, draft EmailDraft) (string, error)
	DeleteEvent(ctx context.Context, session ProviderSession, externalID string) error
}

type Registry interface {
	Register(client ProviderClient) error
	Get(provider Provider) (ProviderClient, bool)
	List() []Provider
}

type ConnectionStore interface {
	Get(ctx context.Context, userID string, provider Provider) (Connection, error)
	GetByID(ctx context.Context, id string) (Connection, error)
	ListByUser(ctx context.Context, userID string) ([]Connection, error)
	ListByStatus(ctx context.Context, status ConnectionStatus) ([]Connection, error)
	// Upsert inserts or replaces the connection for (user, provider).
	Upsert(ctx context.Context, conn Connection) (Connection, error)
	Update(ctx context.Context, conn Connection) (Connection, error)
}

// UpsertOutcome reports what a mirror upsert did.
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
	UpsertDeleted UpsertOutcome = "deleted"
	UpsertNoop    UpsertOutcome = "noop"
)

// MirrorMerge decides how an incoming mirror combines with an existing one.
// It returns the row to store and the outcome; a noop outcome writes nothing.
// It runs inside the store's atomic section and must not call back into it.
type MirrorMerge[T any] func(existing *T, incoming T) (T, UpsertOutcome)

// MirrorMutation edits the stored row in place and reports whether it
// changed anything; an unchanged row is not written. It runs inside the
// store's atomic section against the current row, so it must only touch the
// fields it owns and must not call back into the store.
type MirrorMutation[T any] func(current *T) (bool, error)

type CalendarEventFilter struct {
	UserID         string
	Provider       Provider
	From           *time.Time
	To             *time.Time
	HouseholdID    string
	PersonID       string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type CalendarEventStore interface {
	Get(ctx context.Context, userID string, id string) (SyncedCalendarEvent, error)
	GetByExternalID(ctx context.Context, userID string, externalID string) (SyncedCalendarEvent, error)
	Upsert(ctx context.Context, event SyncedCalendarEvent, merge MirrorMerge[SyncedCalendarEvent]) (SyncedCalendarEvent, UpsertOutcome, error)
	// Modify applies mutate to the user's event with the given id and returns
	// the stored row.
	Modify(ctx context.Context, userID string, id string, mutate MirrorMutation[SyncedCalendarEvent]) (SyncedCalendarEvent, error)
	List(ctx context.Context, filter CalendarEventFilter) ([]SyncedCalendarEvent, int, error)
	// Count excludes deleted events. A non-nil upcomingAfter restricts the
	// count to events starting after it.
	Count(ctx context.Context, userID string, upcomingAfter *time.Time) (int, error)
}

type EmailFilter struct {
	UserID         string
	Provider       Provider
	FolderID       string
	ConversationID string
	HouseholdID    string
	PersonID       string
	Archived       *bool
	ClientOnly     bool
	UnreadOnly     bool
	UnlinkedOnly   bool
	Limit          int
	Offset         int
}

type EmailCounts struct {
	Total  int
	Unread int
	Client int
}

type EmailStore interface {
	Get(ctx context.Context, userID string, id string) (SyncedEmail, error)
	GetByExternalID(ctx context.Context, userID string, externalID string) (SyncedEmail, error)
	Upsert(ctx context.Context, email SyncedEmail, merge MirrorMerge[SyncedEmail]) (SyncedEmail, UpsertOutcome, error)
	Modify(ctx context.Context, userID string, id string, mutate MirrorMutation[SyncedEmail]) (SyncedEmail, error)
	List(ctx context.Context, filter EmailFilter) ([]SyncedEmail, int, error)
	// Archive flags the user's emails among ids and returns how many changed.
	Archive(ctx context.Context, userID string, ids []string) (int, error)
	Counts(ctx context.Context, userID string) (EmailCounts, error)
}

type ThreadFilter struct {
	Provider   Provider
	UnreadOnly bool
	Limit      int
	Offset     int
}

type ThreadStore interface {
	Get(ctx context.Context, userID string, id string) (EmailThread, error)
	// Upsert writes the aggregate for (user, conversation), keeping the id and
	// creation time of an existing row.
	Upsert(ctx context.Context, thread EmailThread) (EmailThread, error)
	List(ctx context.Context, userID string, filter ThreadFilter) ([]EmailThread, int, error)
}

type SyncLogStore interface {
	Create(ctx context.Context, log SyncLog) (SyncLog, error)
	// Close persists the final state of a started log. Closed logs are immutable.
	Close(ctx context.Context, log SyncLog) (SyncLog, error)
	Get(ctx context.Context, userID string, id string) (SyncLog, error)
	List(ctx context.Context, userID string, provider *Provider) ([]SyncLog, error)
}

// PersonDirectory exposes the CRM's person records for address matching.
type PersonDirectory interface {
	ListPersons(ctx context.Context, userID string) ([]PersonRecord, error)
}

type StoreProvider interface {
	ConnectionStore() ConnectionStore
	CalendarEventStore() CalendarEventStore
	EmailStore() EmailStore
	ThreadStore() ThreadStore
	SyncLogStore() SyncLogStore
}

type SyncLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
