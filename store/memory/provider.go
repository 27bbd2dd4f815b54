package memory

import (
	"context"
	"sync"

	"github.com/goliatone/go-crm-sync/core"
)

// Stores bundles one of each store and satisfies core.StoreProvider.
type Stores struct {
	Connections *ConnectionStore
	Events      *CalendarEventStore
	Emails      *EmailStore
	Threads     *ThreadStore
	SyncLogs    *SyncLogStore
}

func NewStores() *Stores {
	return &Stores{
		Connections: NewConnectionStore(),
		Events:      NewCalendarEventStore(),
		Emails:      NewEmailStore(),
		Threads:     NewThreadStore(),
		SyncLogs:    NewSyncLogStore(),
	}
}

func (s *Stores) ConnectionStore() core.ConnectionStore       { return s.Connections }
func (s *Stores) CalendarEventStore() core.CalendarEventStore { return s.Events }
func (s *Stores) EmailStore() core.EmailStore                 { return s.Emails }
func (s *Stores) ThreadStore() core.ThreadStore               { return s.Threads }
func (s *Stores) SyncLogStore() core.SyncLogStore             { return s.SyncLogs }

var _ core.StoreProvider = (*Stores)(nil)

// PersonDirectory serves person records registered with Put.
type PersonDirectory struct {
	mu      sync.RWMutex
	persons map[string][]core.PersonRecord
	calls   int
}

func NewPersonDirectory() *PersonDirectory {
	return &PersonDirectory{persons: map[string][]core.PersonRecord{}}
}

func (d *PersonDirectory) Put(userID string, persons ...core.PersonRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.persons[userID] = append(d.persons[userID], persons...)
}

func (d *PersonDirectory) ListPersons(_ context.Context, userID string) ([]core.PersonRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return append([]core.PersonRecord(nil), d.persons[userID]...), nil
}

// Calls reports how many times ListPersons ran.
func (d *PersonDirectory) Calls() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calls
}
