package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/security"
)

type RepositoryFactory struct {
	db      *bun.DB
	secrets security.SecretProvider

	connectionStore    *ConnectionStore
	calendarEventStore *CalendarEventStore
	emailStore         *EmailStore
	threadStore        *ThreadStore
	syncLogStore       *SyncLogStore
	personDirectory    *PersonDirectory
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider seals connection tokens at rest.
func WithSecretProvider(secrets security.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.connectionStore != nil && f.syncLogStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ConnectionStore() core.ConnectionStore {
	if f == nil {
		return nil
	}
	return f.connectionStore
}

func (f *RepositoryFactory) CalendarEventStore() core.CalendarEventStore {
	if f == nil {
		return nil
	}
	return f.calendarEventStore
}

func (f *RepositoryFactory) EmailStore() core.EmailStore {
	if f == nil {
		return nil
	}
	return f.emailStore
}

func (f *RepositoryFactory) ThreadStore() core.ThreadStore {
	if f == nil {
		return nil
	}
	return f.threadStore
}

func (f *RepositoryFactory) SyncLogStore() core.SyncLogStore {
	if f == nil {
		return nil
	}
	return f.syncLogStore
}

func (f *RepositoryFactory) PersonDirectory() *PersonDirectory {
	if f == nil {
		return nil
	}
	return f.personDirectory
}

func (f *RepositoryFactory) initStores() error {
	connectionStore, err := NewConnectionStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	f.connectionStore = connectionStore
	calendarEventStore, err := NewCalendarEventStore(f.db)
	if err != nil {
		return err
	}
	f.calendarEventStore = calendarEventStore
	emailStore, err := NewEmailStore(f.db)
	if err != nil {
		return err
	}
	f.emailStore = emailStore
	threadStore, err := NewThreadStore(f.db)
	if err != nil {
		return err
	}
	f.threadStore = threadStore
	syncLogStore, err := NewSyncLogStore(f.db)
	if err != nil {
		return err
	}
	f.syncLogStore = syncLogStore
	personDirectory, err := NewPersonDirectory(f.db)
	if err != nil {
		return err
	}
	f.personDirectory = personDirectory
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
