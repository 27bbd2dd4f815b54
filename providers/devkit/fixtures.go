package devkit

import (
	"fmt"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// RemoteEventFixture returns a one hour event starting at start.
func RemoteEventFixture(externalID string, start time.Time, updatedAt time.Time) core.RemoteEvent {
	start = start.UTC()
	return core.RemoteEvent{
		ExternalID: externalID,
		Subject:    "Review " + externalID,
		Location:   "Office",
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		Organizer:  "advisor@example.test",
		Attendees:  []core.Attendee{{Email: "client@example.test", Name: "Client"}},
		UpdatedAt:  updatedAt.UTC(),
		Raw:        []byte(fmt.Sprintf(`{"id":%q}`, externalID)),
	}
}

// RemoteEmailFixture returns an unread inbound email from sender.
func RemoteEmailFixture(externalID string, conversationID string, sender string, receivedAt time.Time) core.RemoteEmail {
	received := receivedAt.UTC()
	return core.RemoteEmail{
		ExternalID:     externalID,
		ConversationID: conversationID,
		Subject:        "Portfolio update " + conversationID,
		Body:           "Hello",
		BodyPreview:    "Hello",
		From:           core.EmailAddress{Address: sender},
		To:             []core.EmailAddress{{Address: "advisor@example.test"}},
		FolderID:       "inbox",
		ReceivedAt:     &received,
		UpdatedAt:      received,
		Raw:            []byte(fmt.Sprintf(`{"id":%q}`, externalID)),
	}
}
