package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	registry        Registry
	stateCodec      *StateCodec
	syncLocker      SyncLocker
	retryScheduler  BackoffScheduler
	connections     ConnectionStore
	events          CalendarEventStore
	emails          EmailStore
	threads         ThreadStore
	syncLogs        SyncLogStore
	persons         PersonDirectory
	refreshGroup    singleflight.Group
	now             func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	Registry        Registry
	SyncLocker      SyncLocker
	ConnectionStore ConnectionStore
	EventStore      CalendarEventStore
	EmailStore      EmailStore
	ThreadStore     ThreadStore
	SyncLogStore    SyncLogStore
	PersonDirectory PersonDirectory
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("crm-sync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("crm-sync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.syncLocker == nil {
		builder.syncLocker = NewMemorySyncLocker()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.retryScheduler == nil {
		builder.retryScheduler = ExponentialBackoffScheduler{
			Initial: finalConfig.Retry.InitialBackoff,
			Max:     finalConfig.Retry.MaxBackoff,
		}
	}
	if builder.stateCodec == nil {
		codec, codecErr := NewStateCodec([]byte(finalConfig.OAuth.StateSigningKey), finalConfig.OAuth.StateTTL)
		if codecErr != nil {
			return nil, mapBuildError(builder.errorMapper, codecErr)
		}
		builder.stateCodec = codec
	}

	if builder.storeProvider != nil {
		if builder.connections == nil {
			builder.connections = builder.storeProvider.ConnectionStore()
		}
		if builder.events == nil {
			builder.events = builder.storeProvider.CalendarEventStore()
		}
		if builder.emails == nil {
			builder.emails = builder.storeProvider.EmailStore()
		}
		if builder.threads == nil {
			builder.threads = builder.storeProvider.ThreadStore()
		}
		if builder.syncLogs == nil {
			builder.syncLogs = builder.storeProvider.SyncLogStore()
		}
	}
	if builder.connections == nil || builder.events == nil || builder.emails == nil ||
		builder.threads == nil || builder.syncLogs == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: connection, event, email, thread and sync log stores are required"))
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		registry:        builder.registry,
		stateCodec:      builder.stateCodec,
		syncLocker:      builder.syncLocker,
		retryScheduler:  builder.retryScheduler,
		connections:     builder.connections,
		events:          builder.events,
		emails:          builder.emails,
		threads:         builder.threads,
		syncLogs:        builder.syncLogs,
		persons:         builder.persons,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		Registry:        s.registry,
		SyncLocker:      s.syncLocker,
		ConnectionStore: s.connections,
		EventStore:      s.events,
		EmailStore:      s.emails,
		ThreadStore:     s.threads,
		SyncLogStore:    s.syncLogs,
		PersonDirectory: s.persons,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) resolveClient(provider Provider) (ProviderClient, error) {
	provider = ParseProvider(string(provider))
	if provider == "" {
		return nil, newValidationError("provider", "provider is required")
	}
	client, ok := s.registry.Get(provider)
	if !ok || client == nil {
		return nil, NewUnsupportedProviderError(provider)
	}
	return client, nil
}

func (s *Service) loadConnection(ctx context.Context, userID string, provider Provider) (Connection, error) {
	conn, err := s.connections.Get(ctx, userID, ParseProvider(string(provider)))
	if err != nil {
		if isNotFound(err) {
			return Connection{}, NewNotFoundError("connection", string(provider))
		}
		return Connection{}, err
	}
	return conn, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return newValidationError("user_id", "user id is required")
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if IsErrorCode(err, ErrorNotFound) {
		return true
	}
	return errors.Is(err, ErrNotFound)
}
