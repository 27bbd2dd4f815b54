package core

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// recomputeThread rebuilds the thread aggregate for a conversation from its
// member emails. The thread store keeps the existing id for (user, conversation).
func (s *Service) recomputeThread(ctx context.Context, userID string, provider Provider, conversationID string) (EmailThread, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return EmailThread{}, newValidationError("conversation_id", "conversation id is required")
	}
	members, _, err := s.emails.List(ctx, EmailFilter{
		UserID:         userID,
		Provider:       provider,
		ConversationID: conversationID,
	})
	if err != nil {
		return EmailThread{}, err
	}
	thread, ok := buildThread(userID, provider, conversationID, members)
	if !ok {
		return EmailThread{}, NewNotFoundError("email thread", conversationID)
	}
	now := s.clock()
	thread.ID = uuid.NewString()
	thread.CreatedAt = now
	thread.UpdatedAt = now
	return s.threads.Upsert(ctx, thread)
}

func buildThread(userID string, provider Provider, conversationID string, members []SyncedEmail) (EmailThread, bool) {
	if len(members) == 0 {
		return EmailThread{}, false
	}
	ordered := append([]SyncedEmail(nil), members...)
	sortByMessageTime(ordered)

	thread := EmailThread{
		UserID:         userID,
		Provider:       provider,
		ConversationID: conversationID,
		MessageCount:   len(ordered),
	}
	seen := map[string]struct{}{}
	for _, email := range ordered {
		if thread.Subject == "" {
			thread.Subject = strings.TrimSpace(email.Subject)
		}
		if !email.IsRead {
			thread.HasUnread = true
		}
		if at := email.MessageTime(); at.After(thread.LastMessageAt) {
			thread.LastMessageAt = at
		}
		for _, addr := range email.Addresses() {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			thread.Participants = append(thread.Participants, addr)
		}
	}
	return thread, true
}

func sortByMessageTime(emails []SyncedEmail) {
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].MessageTime().Before(emails[j].MessageTime())
	})
}
