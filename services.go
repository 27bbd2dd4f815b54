package crmsync

import "github.com/goliatone/go-crm-sync/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type StoreProvider = core.StoreProvider
type ConnectionStore = core.ConnectionStore
type CalendarEventStore = core.CalendarEventStore
type EmailStore = core.EmailStore
type ThreadStore = core.ThreadStore
type SyncLogStore = core.SyncLogStore
type PersonDirectory = core.PersonDirectory
type SyncLocker = core.SyncLocker
type ProviderClient = core.ProviderClient

type Provider = core.Provider
type Connection = core.Connection
type Settings = core.Settings
type SettingsPatch = core.SettingsPatch

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest

type RunSyncRequest = core.RunSyncRequest
type SyncLog = core.SyncLog

type Stats = core.Stats

const (
	ProviderGoogle    = core.ProviderGoogle
	ProviderMicrosoft = core.ProviderMicrosoft
)

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithRegistry              = core.WithRegistry
	WithProviderClients       = core.WithProviderClients
	WithStateCodec            = core.WithStateCodec
	WithSyncLocker            = core.WithSyncLocker
	WithRetryBackoffScheduler = core.WithRetryBackoffScheduler
	WithStoreProvider         = core.WithStoreProvider
	WithConnectionStore       = core.WithConnectionStore
	WithCalendarEventStore    = core.WithCalendarEventStore
	WithEmailStore            = core.WithEmailStore
	WithThreadStore           = core.WithThreadStore
	WithSyncLogStore          = core.WithSyncLogStore
	WithPersonDirectory       = core.WithPersonDirectory
	WithClock                 = core.WithClock
)

type RawConfigLoader = core.RawConfigLoader
type CfgxConfigProvider = core.CfgxConfigProvider

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return core.NewCfgxConfigProvider(loader)
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
