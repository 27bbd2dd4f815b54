package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:crm_connections,alias:cc"`

	ID                    string        `bun:"id,pk"`
	UserID                string        `bun:"user_id,notnull"`
	Provider              string        `bun:"provider,notnull"`
	Status                string        `bun:"status,notnull"`
	StatusReason          string        `bun:"status_reason,notnull"`
	AccessTokenEncrypted  string        `bun:"access_token_encrypted,notnull"`
	RefreshTokenEncrypted string        `bun:"refresh_token_encrypted,notnull"`
	TokenExpiresAt        *time.Time    `bun:"token_expires_at,nullzero"`
	Scopes                []string      `bun:"scopes,type:jsonb,notnull"`
	Settings              core.Settings `bun:"settings,type:jsonb,notnull"`
	LastSyncAt            *time.Time    `bun:"last_sync_at,nullzero"`
	LastSyncError         string        `bun:"last_sync_error,notnull"`
	CreatedAt             time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type calendarEventRecord struct {
	bun.BaseModel `bun:"table:crm_calendar_events,alias:ce"`

	ID                string          `bun:"id,pk"`
	UserID            string          `bun:"user_id,notnull"`
	Provider          string          `bun:"provider,notnull"`
	ExternalID        string          `bun:"external_id,notnull"`
	Subject           string          `bun:"subject,notnull"`
	Body              string          `bun:"body,notnull"`
	Location          string          `bun:"location,notnull"`
	StartAt           time.Time       `bun:"start_at,notnull"`
	EndAt             time.Time       `bun:"end_at"`
	AllDay            bool            `bun:"all_day,notnull"`
	Organizer         string          `bun:"organizer,notnull"`
	Attendees         []core.Attendee `bun:"attendees,type:jsonb,notnull"`
	SyncDirection     string          `bun:"sync_direction,notnull"`
	State             string          `bun:"state,notnull"`
	RemoteUpdatedAt   time.Time       `bun:"remote_updated_at,notnull"`
	LastSyncedAt      time.Time       `bun:"last_synced_at,notnull"`
	RawData           []byte          `bun:"raw_data"`
	LinkedHouseholdID *string         `bun:"linked_household_id"`
	LinkedPersonID    *string         `bun:"linked_person_id"`
	CreatedAt         time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type emailRecord struct {
	bun.BaseModel `bun:"table:crm_emails,alias:em"`

	ID                    string              `bun:"id,pk"`
	UserID                string              `bun:"user_id,notnull"`
	Provider              string              `bun:"provider,notnull"`
	ExternalID            string              `bun:"external_id,notnull"`
	ConversationID        string              `bun:"conversation_id,notnull"`
	Subject               string              `bun:"subject,notnull"`
	Body                  string              `bun:"body,notnull"`
	BodyPreview           string              `bun:"body_preview,notnull"`
	FromAddress           string              `bun:"from_address,notnull"`
	FromName              string              `bun:"from_name,notnull"`
	To                    []core.EmailAddress `bun:"to_addresses,type:jsonb,notnull"`
	Cc                    []core.EmailAddress `bun:"cc_addresses,type:jsonb,notnull"`
	FolderID              string              `bun:"folder_id,notnull"`
	SentAt                *time.Time          `bun:"sent_at,nullzero"`
	ReceivedAt            *time.Time          `bun:"received_at,nullzero"`
	IsRead                bool                `bun:"is_read,notnull"`
	HasAttachments        bool                `bun:"has_attachments,notnull"`
	Attachments           []core.Attachment   `bun:"attachments,type:jsonb,notnull"`
	SyncDirection         string              `bun:"sync_direction,notnull"`
	IsArchived            bool                `bun:"is_archived,notnull"`
	IsClientCommunication bool                `bun:"is_client_communication,notnull"`
	InternalNotes         string              `bun:"internal_notes,notnull"`
	RemoteUpdatedAt       time.Time           `bun:"remote_updated_at,notnull"`
	LastSyncedAt          time.Time           `bun:"last_synced_at,notnull"`
	RawData               []byte              `bun:"raw_data"`
	LinkedHouseholdID     *string             `bun:"linked_household_id"`
	LinkedPersonID        *string             `bun:"linked_person_id"`
	CreatedAt             time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type threadRecord struct {
	bun.BaseModel `bun:"table:crm_email_threads,alias:et"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	Provider       string    `bun:"provider,notnull"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Subject        string    `bun:"subject,notnull"`
	Participants   []string  `bun:"participants,type:jsonb,notnull"`
	MessageCount   int       `bun:"message_count,notnull"`
	LastMessageAt  time.Time `bun:"last_message_at,notnull"`
	HasUnread      bool      `bun:"has_unread,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncLogRecord struct {
	bun.BaseModel `bun:"table:crm_sync_logs,alias:sl"`

	ID             string              `bun:"id,pk"`
	UserID         string              `bun:"user_id,notnull"`
	Provider       string              `bun:"provider,notnull"`
	SyncType       string              `bun:"sync_type,notnull"`
	Trigger        string              `bun:"trigger_source,notnull"`
	Status         string              `bun:"status,notnull"`
	StartedAt      time.Time           `bun:"started_at,notnull"`
	CompletedAt    *time.Time          `bun:"completed_at,nullzero"`
	ItemsProcessed int                 `bun:"items_processed,notnull"`
	ItemsCreated   int                 `bun:"items_created,notnull"`
	ItemsUpdated   int                 `bun:"items_updated,notnull"`
	ItemsDeleted   int                 `bun:"items_deleted,notnull"`
	ErrorCount     int                 `bun:"error_count,notnull"`
	Errors         []core.SyncLogError `bun:"errors,type:jsonb,notnull"`
	FailureMessage string              `bun:"failure_message,notnull"`
}

type personEmailRecord struct {
	bun.BaseModel `bun:"table:crm_person_emails,alias:pe"`

	ID          string  `bun:"id,pk"`
	UserID      string  `bun:"user_id,notnull"`
	PersonID    string  `bun:"person_id,notnull"`
	HouseholdID *string `bun:"household_id"`
	Email       string  `bun:"email,notnull"`
}
