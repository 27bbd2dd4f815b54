package core

import (
	"context"
	"time"
)

type AutoLinkResult struct {
	Scanned int
	Linked  int
}

// personMatcher indexes person records by normalized address. An address
// claimed by more than one person is ambiguous and never matches.
type personMatcher struct {
	byEmail map[string]*PersonRecord
}

func newPersonMatcher(persons []PersonRecord) *personMatcher {
	m := &personMatcher{byEmail: make(map[string]*PersonRecord)}
	for i := range persons {
		person := &persons[i]
		for _, raw := range person.Emails {
			addr := normalizeEmail(raw)
			if addr == "" {
				continue
			}
			existing, ok := m.byEmail[addr]
			switch {
			case !ok:
				m.byEmail[addr] = person
			case existing != nil && existing.ID != person.ID:
				m.byEmail[addr] = nil
			}
		}
	}
	return m
}

func (m *personMatcher) match(email SyncedEmail) (PersonRecord, bool) {
	if m == nil {
		return PersonRecord{}, false
	}
	for _, addr := range email.Addresses() {
		if person := m.byEmail[addr]; person != nil {
			return *person, true
		}
	}
	return PersonRecord{}, false
}

// link sets the person and household on an unlinked email. It reports false
// when the email already carries a link or nothing matches.
func (m *personMatcher) link(email *SyncedEmail) bool {
	if email.LinkedPersonID != nil || email.LinkedHouseholdID != nil {
		return false
	}
	person, ok := m.match(*email)
	if !ok {
		return false
	}
	personID := person.ID
	email.LinkedPersonID = &personID
	email.LinkedHouseholdID = cloneString(person.HouseholdID)
	email.IsClientCommunication = true
	return true
}

func (s *Service) AutoLinkEmails(ctx context.Context, userID string) (result AutoLinkResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID}
	defer func() {
		fields["scanned"] = result.Scanned
		fields["linked"] = result.Linked
		s.observeOperation(ctx, startedAt, "auto_link_emails", err, fields)
	}()

	if err = requireUser(userID); err != nil {
		return AutoLinkResult{}, err
	}
	if s.persons == nil {
		return AutoLinkResult{}, nil
	}
	persons, err := s.persons.ListPersons(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return AutoLinkResult{}, err
	}
	matcher := newPersonMatcher(persons)

	candidates, _, err := s.emails.List(ctx, EmailFilter{UserID: userID, UnlinkedOnly: true})
	if err != nil {
		err = s.mapError(err)
		return AutoLinkResult{}, err
	}
	now := s.clock()
	for _, candidate := range candidates {
		result.Scanned++
		linked := false
		_, err = s.emails.Modify(ctx, userID, candidate.ID, func(current *SyncedEmail) (bool, error) {
			// A manual link made since the scan wins.
			linked = matcher.link(current)
			if linked {
				current.UpdatedAt = now
			}
			return linked, nil
		})
		if err != nil {
			if isNotFound(err) {
				err = nil
				continue
			}
			err = s.mapError(err)
			return result, err
		}
		if linked {
			result.Linked++
		}
	}
	return result, nil
}

// applyInboundEmailPolicies links and archives emails created by a sync pass.
// Only the link and archive fields of the current row are touched, so content
// reconciled after creation is kept. Failures are logged; they never fail the
// pass.
func (s *Service) applyInboundEmailPolicies(ctx context.Context, conn Connection, created []SyncedEmail) {
	if len(created) == 0 {
		return
	}
	var matcher *personMatcher
	if s.persons != nil {
		persons, err := s.persons.ListPersons(ctx, conn.UserID)
		if err != nil {
			s.logError(ctx, "list persons for auto link failed", map[string]any{
				"user_id": conn.UserID,
				"error":   err.Error(),
			})
		} else {
			matcher = newPersonMatcher(persons)
		}
	}

	now := s.clock()
	for _, email := range created {
		_, err := s.emails.Modify(ctx, conn.UserID, email.ID, func(current *SyncedEmail) (bool, error) {
			changed := matcher != nil && matcher.link(current)
			if archiveOnIngest(conn.Settings, *current) {
				current.IsArchived = true
				changed = true
			}
			if changed {
				current.UpdatedAt = now
			}
			return changed, nil
		})
		if err != nil {
			s.logError(ctx, "apply inbound email policy failed", map[string]any{
				"user_id":  conn.UserID,
				"email_id": email.ID,
				"error":    err.Error(),
			})
		}
	}
}

// archiveOnIngest applies the connection's archive toggles. ClientOnlyArchive
// restricts archiving to client communication.
func archiveOnIngest(settings Settings, email SyncedEmail) bool {
	if email.IsArchived {
		return false
	}
	if settings.ClientOnlyArchive {
		return email.IsClientCommunication
	}
	return settings.AutoArchive
}
