package core

import (
	"encoding/json"
	"strings"
	"time"
)

type EventState string

const (
	EventStateActive  EventState = "ACTIVE"
	EventStateDeleted EventState = "DELETED"
)

type Attendee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Response string `json:"response,omitempty"`
}

type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type SyncedCalendarEvent struct {
	ID                string
	UserID            string
	Provider          Provider
	ExternalID        string
	Subject           string
	Body              string
	Location          string
	StartAt           time.Time
	EndAt             time.Time
	AllDay            bool
	Organizer         string
	Attendees         []Attendee
	SyncDirection     SyncDirection
	State             EventState
	RemoteUpdatedAt   time.Time
	LastSyncedAt      time.Time
	RawData           json.RawMessage
	LinkedHouseholdID *string
	LinkedPersonID    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (e SyncedCalendarEvent) Clone() SyncedCalendarEvent {
	cloned := e
	cloned.Attendees = append([]Attendee(nil), e.Attendees...)
	cloned.RawData = append(json.RawMessage(nil), e.RawData...)
	cloned.LinkedHouseholdID = cloneString(e.LinkedHouseholdID)
	cloned.LinkedPersonID = cloneString(e.LinkedPersonID)
	return cloned
}

type SyncedEmail struct {
	ID                    string
	UserID                string
	Provider              Provider
	ExternalID            string
	ConversationID        string
	Subject               string
	Body                  string
	BodyPreview           string
	From                  EmailAddress
	To                    []EmailAddress
	Cc                    []EmailAddress
	FolderID              string
	SentAt                *time.Time
	ReceivedAt            *time.Time
	IsRead                bool
	HasAttachments        bool
	Attachments           []Attachment
	SyncDirection         SyncDirection
	IsArchived            bool
	IsClientCommunication bool
	InternalNotes         string
	RemoteUpdatedAt       time.Time
	LastSyncedAt          time.Time
	RawData               json.RawMessage
	LinkedHouseholdID     *string
	LinkedPersonID        *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (e SyncedEmail) Clone() SyncedEmail {
	cloned := e
	cloned.To = append([]EmailAddress(nil), e.To...)
	cloned.Cc = append([]EmailAddress(nil), e.Cc...)
	cloned.Attachments = append([]Attachment(nil), e.Attachments...)
	cloned.RawData = append(json.RawMessage(nil), e.RawData...)
	cloned.SentAt = cloneTime(e.SentAt)
	cloned.ReceivedAt = cloneTime(e.ReceivedAt)
	cloned.LinkedHouseholdID = cloneString(e.LinkedHouseholdID)
	cloned.LinkedPersonID = cloneString(e.LinkedPersonID)
	return cloned
}

// MessageTime is the instant used to order an email inside its thread.
func (e SyncedEmail) MessageTime() time.Time {
	switch {
	case e.ReceivedAt != nil:
		return e.ReceivedAt.UTC()
	case e.SentAt != nil:
		return e.SentAt.UTC()
	default:
		return e.CreatedAt.UTC()
	}
}

// Addresses returns sender first, then To and Cc recipients.
func (e SyncedEmail) Addresses() []string {
	out := make([]string, 0, 1+len(e.To)+len(e.Cc))
	if addr := normalizeEmail(e.From.Address); addr != "" {
		out = append(out, addr)
	}
	for _, list := range [][]EmailAddress{e.To, e.Cc} {
		for _, recipient := range list {
			if addr := normalizeEmail(recipient.Address); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

type EmailThread struct {
	ID             string
	UserID         string
	Provider       Provider
	ConversationID string
	Subject        string
	Participants   []string
	MessageCount   int
	LastMessageAt  time.Time
	HasUnread      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t EmailThread) Clone() EmailThread {
	cloned := t
	cloned.Participants = append([]string(nil), t.Participants...)
	return cloned
}

type RemoteEvent struct {
	ExternalID string
	Subject    string
	Body       string
	Location   string
	StartAt    time.Time
	EndAt      time.Time
	AllDay     bool
	Organizer  string
	Attendees  []Attendee
	UpdatedAt  time.Time
	Deleted    bool
	Raw        json.RawMessage
}

type RemoteEmail struct {
	ExternalID     string
	ConversationID string
	Subject        string
	Body           string
	BodyPreview    string
	From           EmailAddress
	To             []EmailAddress
	Cc             []EmailAddress
	FolderID       string
	SentAt         *time.Time
	ReceivedAt     *time.Time
	IsRead         bool
	Attachments    []Attachment
	UpdatedAt      time.Time
	Raw            json.RawMessage
}

type EventDraft struct {
	Subject    string
	Body       string
	Location   string
	StartAt    time.Time
	EndAt      time.Time
	AllDay     bool
	Attendees  []Attendee
	CalendarID string
	ExternalID string
}

func (d EventDraft) Validate() error {
	if strings.TrimSpace(d.Subject) == "" {
		return newValidationError("subject", "subject is required")
	}
	if d.StartAt.IsZero() || d.EndAt.IsZero() {
		return newValidationError("start_at", "start and end times are required")
	}
	if d.EndAt.Before(d.StartAt) {
		return newValidationError("end_at", "end time must not precede start time")
	}
	return nil
}

type EmailDraft struct {
	Subject        string
	Body           string
	To             []EmailAddress
	Cc             []EmailAddress
	Bcc            []EmailAddress
	ConversationID string
	FolderID       string
}

func (d EmailDraft) Validate() error {
	if len(d.To) == 0 {
		return newValidationError("to", "at least one recipient is required")
	}
	for _, recipient := range append(append([]EmailAddress{}, d.To...), d.Cc...) {
		if !strings.Contains(recipient.Address, "@") {
			return newValidationError("to", "recipient address is invalid: "+recipient.Address)
		}
	}
	if strings.TrimSpace(d.Subject) == "" && strings.TrimSpace(d.Body) == "" {
		return newValidationError("subject", "subject or body is required")
	}
	return nil
}

type PersonRecord struct {
	ID          string
	HouseholdID *string
	Emails      []string
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
