package google

import (
	"encoding/base64"
	"encoding/json"
	"net/mail"
	"slices"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/goliatone/go-crm-sync/core"
)

const (
	statusCancelled = "cancelled"
	labelUnread     = "UNREAD"
	allDayLayout    = "2006-01-02"
	previewLength   = 255
)

func remoteEventFromCalendar(item *calendar.Event) core.RemoteEvent {
	raw, _ := json.Marshal(item)
	event := core.RemoteEvent{
		ExternalID: item.Id,
		Subject:    item.Summary,
		Body:       item.Description,
		Location:   item.Location,
		Deleted:    item.Status == statusCancelled,
		UpdatedAt:  parseRFC3339(item.Updated),
		Raw:        raw,
	}
	event.StartAt, event.AllDay = parseEventDateTime(item.Start)
	event.EndAt, _ = parseEventDateTime(item.End)
	if item.Organizer != nil {
		event.Organizer = item.Organizer.Email
	}
	for _, attendee := range item.Attendees {
		if attendee == nil {
			continue
		}
		event.Attendees = append(event.Attendees, core.Attendee{
			Email:    attendee.Email,
			Name:     attendee.DisplayName,
			Response: attendee.ResponseStatus,
		})
	}
	return event
}

func parseEventDateTime(value *calendar.EventDateTime) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	if value.DateTime != "" {
		return parseRFC3339(value.DateTime), false
	}
	if value.Date != "" {
		parsed, err := time.Parse(allDayLayout, value.Date)
		if err != nil {
			return time.Time{}, true
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

func parseRFC3339(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func calendarEventFromDraft(draft core.EventDraft) *calendar.Event {
	event := &calendar.Event{
		Summary:     draft.Subject,
		Description: draft.Body,
		Location:    draft.Location,
	}
	if draft.AllDay {
		event.Start = &calendar.EventDateTime{Date: draft.StartAt.UTC().Format(allDayLayout)}
		event.End = &calendar.EventDateTime{Date: draft.EndAt.UTC().Format(allDayLayout)}
	} else {
		event.Start = &calendar.EventDateTime{DateTime: draft.StartAt.UTC().Format(time.RFC3339), TimeZone: "UTC"}
		event.End = &calendar.EventDateTime{DateTime: draft.EndAt.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	}
	for _, attendee := range draft.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{
			Email:       attendee.Email,
			DisplayName: attendee.Name,
		})
	}
	return event
}

// remoteEmailFromGmail maps a full-format message. Gmail exposes no
// modification time, so the internal date stands in for it.
func remoteEmailFromGmail(message *gmail.Message) core.RemoteEmail {
	raw, _ := json.Marshal(message)
	email := core.RemoteEmail{
		ExternalID:     message.Id,
		ConversationID: message.ThreadId,
		IsRead:         !slices.Contains(message.LabelIds, labelUnread),
		FolderID:       folderFromLabels(message.LabelIds),
		Raw:            raw,
	}
	if message.InternalDate > 0 {
		at := time.UnixMilli(message.InternalDate).UTC()
		email.UpdatedAt = at
		if email.FolderID == "sent" {
			email.SentAt = &at
		} else {
			email.ReceivedAt = &at
		}
	}
	if message.Payload == nil {
		email.BodyPreview = message.Snippet
		return email
	}
	headers := message.Payload.Headers
	email.Subject = header(headers, "Subject")
	if from := parseAddressList(header(headers, "From")); len(from) > 0 {
		email.From = from[0]
	}
	email.To = parseAddressList(header(headers, "To"))
	email.Cc = parseAddressList(header(headers, "Cc"))
	email.Body = messageBody(message.Payload)
	email.BodyPreview = preview(message.Snippet, email.Body)
	email.Attachments = attachments(message.Payload)
	return email
}

func folderFromLabels(labels []string) string {
	switch {
	case slices.Contains(labels, "SENT"):
		return "sent"
	case slices.Contains(labels, "DRAFT"):
		return "drafts"
	case slices.Contains(labels, "INBOX"):
		return "inbox"
	case slices.Contains(labels, "TRASH"):
		return "trash"
	default:
		return "archive"
	}
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func parseAddressList(value string) []core.EmailAddress {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		return []core.EmailAddress{{Address: value}}
	}
	out := make([]core.EmailAddress, 0, len(parsed))
	for _, address := range parsed {
		out = append(out, core.EmailAddress{Address: address.Address, Name: address.Name})
	}
	return out
}

// messageBody prefers the plain text part, falling back to HTML.
func messageBody(payload *gmail.MessagePart) string {
	var plain, html string
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				switch {
				case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
					plain = string(data)
				case strings.HasPrefix(part.MimeType, "text/html") && html == "":
					html = string(data)
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	if plain != "" {
		return plain
	}
	return html
}

func attachments(payload *gmail.MessagePart) []core.Attachment {
	var out []core.Attachment
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			out = append(out, core.Attachment{
				Name:        part.Filename,
				ContentType: part.MimeType,
				Size:        part.Body.Size,
			})
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return out
}

func preview(snippet string, body string) string {
	text := snippet
	if strings.TrimSpace(text) == "" {
		text = body
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > previewLength {
		text = text[:previewLength]
	}
	return text
}
