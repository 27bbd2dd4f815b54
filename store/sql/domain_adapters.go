package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

func newCalendarEventRecord(event core.SyncedCalendarEvent) *calendarEventRecord {
	return &calendarEventRecord{
		ID:                event.ID,
		UserID:            event.UserID,
		Provider:          string(event.Provider),
		ExternalID:        event.ExternalID,
		Subject:           event.Subject,
		Body:              event.Body,
		Location:          event.Location,
		StartAt:           event.StartAt.UTC(),
		EndAt:             event.EndAt.UTC(),
		AllDay:            event.AllDay,
		Organizer:         event.Organizer,
		Attendees:         nonNil(event.Attendees),
		SyncDirection:     string(event.SyncDirection),
		State:             string(event.State),
		RemoteUpdatedAt:   event.RemoteUpdatedAt.UTC(),
		LastSyncedAt:      event.LastSyncedAt.UTC(),
		RawData:           append([]byte(nil), event.RawData...),
		LinkedHouseholdID: cloneString(event.LinkedHouseholdID),
		LinkedPersonID:    cloneString(event.LinkedPersonID),
		CreatedAt:         event.CreatedAt.UTC(),
		UpdatedAt:         event.UpdatedAt.UTC(),
	}
}

func (r *calendarEventRecord) toDomain() core.SyncedCalendarEvent {
	if r == nil {
		return core.SyncedCalendarEvent{}
	}
	return core.SyncedCalendarEvent{
		ID:                r.ID,
		UserID:            r.UserID,
		Provider:          core.Provider(r.Provider),
		ExternalID:        r.ExternalID,
		Subject:           r.Subject,
		Body:              r.Body,
		Location:          r.Location,
		StartAt:           r.StartAt.UTC(),
		EndAt:             r.EndAt.UTC(),
		AllDay:            r.AllDay,
		Organizer:         r.Organizer,
		Attendees:         append([]core.Attendee(nil), r.Attendees...),
		SyncDirection:     core.SyncDirection(r.SyncDirection),
		State:             core.EventState(r.State),
		RemoteUpdatedAt:   r.RemoteUpdatedAt.UTC(),
		LastSyncedAt:      r.LastSyncedAt.UTC(),
		RawData:           rawJSON(r.RawData),
		LinkedHouseholdID: cloneString(r.LinkedHouseholdID),
		LinkedPersonID:    cloneString(r.LinkedPersonID),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newEmailRecord(email core.SyncedEmail) *emailRecord {
	return &emailRecord{
		ID:                    email.ID,
		UserID:                email.UserID,
		Provider:              string(email.Provider),
		ExternalID:            email.ExternalID,
		ConversationID:        email.ConversationID,
		Subject:               email.Subject,
		Body:                  email.Body,
		BodyPreview:           email.BodyPreview,
		FromAddress:           email.From.Address,
		FromName:              email.From.Name,
		To:                    nonNil(email.To),
		Cc:                    nonNil(email.Cc),
		FolderID:              email.FolderID,
		SentAt:                cloneTime(email.SentAt),
		ReceivedAt:            cloneTime(email.ReceivedAt),
		IsRead:                email.IsRead,
		HasAttachments:        email.HasAttachments,
		Attachments:           nonNil(email.Attachments),
		SyncDirection:         string(email.SyncDirection),
		IsArchived:            email.IsArchived,
		IsClientCommunication: email.IsClientCommunication,
		InternalNotes:         email.InternalNotes,
		RemoteUpdatedAt:       email.RemoteUpdatedAt.UTC(),
		LastSyncedAt:          email.LastSyncedAt.UTC(),
		RawData:               append([]byte(nil), email.RawData...),
		LinkedHouseholdID:     cloneString(email.LinkedHouseholdID),
		LinkedPersonID:        cloneString(email.LinkedPersonID),
		CreatedAt:             email.CreatedAt.UTC(),
		UpdatedAt:             email.UpdatedAt.UTC(),
	}
}

func (r *emailRecord) toDomain() core.SyncedEmail {
	if r == nil {
		return core.SyncedEmail{}
	}
	return core.SyncedEmail{
		ID:                    r.ID,
		UserID:                r.UserID,
		Provider:              core.Provider(r.Provider),
		ExternalID:            r.ExternalID,
		ConversationID:        r.ConversationID,
		Subject:               r.Subject,
		Body:                  r.Body,
		BodyPreview:           r.BodyPreview,
		From:                  core.EmailAddress{Address: r.FromAddress, Name: r.FromName},
		To:                    append([]core.EmailAddress(nil), r.To...),
		Cc:                    append([]core.EmailAddress(nil), r.Cc...),
		FolderID:              r.FolderID,
		SentAt:                cloneTime(r.SentAt),
		ReceivedAt:            cloneTime(r.ReceivedAt),
		IsRead:                r.IsRead,
		HasAttachments:        r.HasAttachments,
		Attachments:           append([]core.Attachment(nil), r.Attachments...),
		SyncDirection:         core.SyncDirection(r.SyncDirection),
		IsArchived:            r.IsArchived,
		IsClientCommunication: r.IsClientCommunication,
		InternalNotes:         r.InternalNotes,
		RemoteUpdatedAt:       r.RemoteUpdatedAt.UTC(),
		LastSyncedAt:          r.LastSyncedAt.UTC(),
		RawData:               rawJSON(r.RawData),
		LinkedHouseholdID:     cloneString(r.LinkedHouseholdID),
		LinkedPersonID:        cloneString(r.LinkedPersonID),
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func newThreadRecord(thread core.EmailThread) *threadRecord {
	return &threadRecord{
		ID:             thread.ID,
		UserID:         thread.UserID,
		Provider:       string(thread.Provider),
		ConversationID: thread.ConversationID,
		Subject:        thread.Subject,
		Participants:   nonNil(thread.Participants),
		MessageCount:   thread.MessageCount,
		LastMessageAt:  thread.LastMessageAt.UTC(),
		HasUnread:      thread.HasUnread,
		CreatedAt:      thread.CreatedAt.UTC(),
		UpdatedAt:      thread.UpdatedAt.UTC(),
	}
}

func (r *threadRecord) toDomain() core.EmailThread {
	if r == nil {
		return core.EmailThread{}
	}
	return core.EmailThread{
		ID:             r.ID,
		UserID:         r.UserID,
		Provider:       core.Provider(r.Provider),
		ConversationID: r.ConversationID,
		Subject:        r.Subject,
		Participants:   append([]string(nil), r.Participants...),
		MessageCount:   r.MessageCount,
		LastMessageAt:  r.LastMessageAt.UTC(),
		HasUnread:      r.HasUnread,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newSyncLogRecord(log core.SyncLog) *syncLogRecord {
	return &syncLogRecord{
		ID:             log.ID,
		UserID:         log.UserID,
		Provider:       string(log.Provider),
		SyncType:       string(log.SyncType),
		Trigger:        log.Trigger,
		Status:         string(log.Status),
		StartedAt:      log.StartedAt.UTC(),
		CompletedAt:    cloneTime(log.CompletedAt),
		ItemsProcessed: log.ItemsProcessed,
		ItemsCreated:   log.ItemsCreated,
		ItemsUpdated:   log.ItemsUpdated,
		ItemsDeleted:   log.ItemsDeleted,
		ErrorCount:     log.ErrorCount,
		Errors:         nonNil(log.Errors),
		FailureMessage: log.FailureMessage,
	}
}

func (r *syncLogRecord) toDomain() core.SyncLog {
	if r == nil {
		return core.SyncLog{}
	}
	return core.SyncLog{
		ID:             r.ID,
		UserID:         r.UserID,
		Provider:       core.Provider(r.Provider),
		SyncType:       core.SyncScope(r.SyncType),
		Trigger:        r.Trigger,
		Status:         core.SyncLogStatus(r.Status),
		StartedAt:      r.StartedAt.UTC(),
		CompletedAt:    cloneTime(r.CompletedAt),
		ItemsProcessed: r.ItemsProcessed,
		ItemsCreated:   r.ItemsCreated,
		ItemsUpdated:   r.ItemsUpdated,
		ItemsDeleted:   r.ItemsDeleted,
		ErrorCount:     r.ErrorCount,
		Errors:         append([]core.SyncLogError(nil), r.Errors...),
		FailureMessage: r.FailureMessage,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return append([]T(nil), items...)
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}

func cloneString(in *string) *string {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func cloneTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}
