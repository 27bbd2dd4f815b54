package microsoft

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// graphDateTimeLayout matches Graph's dateTimeTimeZone values, which carry up
// to seven fractional digits and no offset.
const (
	graphDateTimeLayout = "2006-01-02T15:04:05.9999999"
	previewLength       = 255
)

type graphEmailAddress struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

type graphDateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphAttendee struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
	Type         string            `json:"type,omitempty"`
	Status       *struct {
		Response string `json:"response"`
	} `json:"status,omitempty"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID                   string             `json:"id,omitempty"`
	Subject              string             `json:"subject"`
	Body                 *graphItemBody     `json:"body,omitempty"`
	Location             *graphLocation     `json:"location,omitempty"`
	Start                *graphDateTimeZone `json:"start,omitempty"`
	End                  *graphDateTimeZone `json:"end,omitempty"`
	IsAllDay             bool               `json:"isAllDay"`
	IsCancelled          bool               `json:"isCancelled,omitempty"`
	Organizer            *graphRecipient    `json:"organizer,omitempty"`
	Attendees            []graphAttendee    `json:"attendees,omitempty"`
	LastModifiedDateTime string             `json:"lastModifiedDateTime,omitempty"`
	Removed              *struct {
		Reason string `json:"reason"`
	} `json:"@removed,omitempty"`
}

type graphAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type graphMessage struct {
	ID                   string            `json:"id,omitempty"`
	ConversationID       string            `json:"conversationId,omitempty"`
	Subject              string            `json:"subject"`
	Body                 *graphItemBody    `json:"body,omitempty"`
	BodyPreview          string            `json:"bodyPreview,omitempty"`
	From                 *graphRecipient   `json:"from,omitempty"`
	ToRecipients         []graphRecipient  `json:"toRecipients,omitempty"`
	CcRecipients         []graphRecipient  `json:"ccRecipients,omitempty"`
	BccRecipients        []graphRecipient  `json:"bccRecipients,omitempty"`
	ParentFolderID       string            `json:"parentFolderId,omitempty"`
	SentDateTime         string            `json:"sentDateTime,omitempty"`
	ReceivedDateTime     string            `json:"receivedDateTime,omitempty"`
	IsRead               bool              `json:"isRead,omitempty"`
	HasAttachments       bool              `json:"hasAttachments,omitempty"`
	Attachments          []graphAttachment `json:"attachments,omitempty"`
	LastModifiedDateTime string            `json:"lastModifiedDateTime,omitempty"`
}

func remoteEventFromGraph(item graphEvent) core.RemoteEvent {
	raw, _ := json.Marshal(item)
	event := core.RemoteEvent{
		ExternalID: item.ID,
		Subject:    item.Subject,
		StartAt:    parseGraphDateTime(item.Start),
		EndAt:      parseGraphDateTime(item.End),
		AllDay:     item.IsAllDay,
		Deleted:    item.IsCancelled || item.Removed != nil,
		UpdatedAt:  parseTimestamp(item.LastModifiedDateTime),
		Raw:        raw,
	}
	if item.Body != nil {
		event.Body = item.Body.Content
	}
	if item.Location != nil {
		event.Location = item.Location.DisplayName
	}
	if item.Organizer != nil {
		event.Organizer = item.Organizer.EmailAddress.Address
	}
	for _, attendee := range item.Attendees {
		converted := core.Attendee{Email: attendee.EmailAddress.Address, Name: attendee.EmailAddress.Name}
		if attendee.Status != nil {
			converted.Response = attendee.Status.Response
		}
		event.Attendees = append(event.Attendees, converted)
	}
	return event
}

func remoteEmailFromGraph(item graphMessage) core.RemoteEmail {
	raw, _ := json.Marshal(item)
	email := core.RemoteEmail{
		ExternalID:     item.ID,
		ConversationID: item.ConversationID,
		Subject:        item.Subject,
		BodyPreview:    truncate(item.BodyPreview, previewLength),
		To:             addresses(item.ToRecipients),
		Cc:             addresses(item.CcRecipients),
		FolderID:       item.ParentFolderID,
		SentAt:         optionalTimestamp(item.SentDateTime),
		ReceivedAt:     optionalTimestamp(item.ReceivedDateTime),
		IsRead:         item.IsRead,
		UpdatedAt:      parseTimestamp(item.LastModifiedDateTime),
		Raw:            raw,
	}
	if item.Body != nil {
		email.Body = item.Body.Content
	}
	if item.From != nil {
		email.From = core.EmailAddress{Address: item.From.EmailAddress.Address, Name: item.From.EmailAddress.Name}
	}
	for _, attachment := range item.Attachments {
		email.Attachments = append(email.Attachments, core.Attachment{
			Name:        attachment.Name,
			ContentType: attachment.ContentType,
			Size:        attachment.Size,
		})
	}
	return email
}

func graphEventFromDraft(draft core.EventDraft) graphEvent {
	event := graphEvent{
		Subject:  draft.Subject,
		Body:     &graphItemBody{ContentType: "text", Content: draft.Body},
		Location: &graphLocation{DisplayName: draft.Location},
		Start:    formatGraphDateTime(draft.StartAt, draft.AllDay),
		End:      formatGraphDateTime(draft.EndAt, draft.AllDay),
		IsAllDay: draft.AllDay,
	}
	for _, attendee := range draft.Attendees {
		event.Attendees = append(event.Attendees, graphAttendee{
			EmailAddress: graphEmailAddress{Address: attendee.Email, Name: attendee.Name},
			Type:         "required",
		})
	}
	return event
}

func graphMessageFromDraft(draft core.EmailDraft) graphMessage {
	return graphMessage{
		Subject:       draft.Subject,
		Body:          &graphItemBody{ContentType: "text", Content: draft.Body},
		ToRecipients:  recipients(draft.To),
		CcRecipients:  recipients(draft.Cc),
		BccRecipients: recipients(draft.Bcc),
	}
}

// formatGraphDateTime renders a UTC instant. All-day events must start and
// end at midnight.
func formatGraphDateTime(value time.Time, allDay bool) *graphDateTimeZone {
	value = value.UTC()
	if allDay {
		value = time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &graphDateTimeZone{DateTime: value.Format("2006-01-02T15:04:05"), TimeZone: "UTC"}
}

func parseGraphDateTime(value *graphDateTimeZone) time.Time {
	if value == nil || strings.TrimSpace(value.DateTime) == "" {
		return time.Time{}
	}
	location := time.UTC
	if zone := strings.TrimSpace(value.TimeZone); zone != "" && !strings.EqualFold(zone, "UTC") {
		if loaded, err := time.LoadLocation(zone); err == nil {
			location = loaded
		}
	}
	parsed, err := time.ParseInLocation(graphDateTimeLayout, value.DateTime, location)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseTimestamp(value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func optionalTimestamp(value string) *time.Time {
	parsed := parseTimestamp(value)
	if parsed.IsZero() {
		return nil
	}
	return &parsed
}

func addresses(values []graphRecipient) []core.EmailAddress {
	if len(values) == 0 {
		return nil
	}
	out := make([]core.EmailAddress, 0, len(values))
	for _, value := range values {
		out = append(out, core.EmailAddress{Address: value.EmailAddress.Address, Name: value.EmailAddress.Name})
	}
	return out
}

func recipients(values []core.EmailAddress) []graphRecipient {
	if len(values) == 0 {
		return nil
	}
	out := make([]graphRecipient, 0, len(values))
	for _, value := range values {
		out = append(out, graphRecipient{EmailAddress: graphEmailAddress{
			Address: strings.TrimSpace(value.Address),
			Name:    value.Name,
		}})
	}
	return out
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
