package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-crm-sync/adapters/gologger"
	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/webhooks"
)

// backgroundTrigger runs webhook syncs off the request path so providers get
// their acknowledgement within the delivery timeout. When every slot is busy
// the delivery fails and the provider redelivers it later.
type backgroundTrigger struct {
	ctx    context.Context
	runner webhooks.SyncRunner
	group  *errgroup.Group
	logger core.Logger
}

func newBackgroundTrigger(ctx context.Context, runner webhooks.SyncRunner, limit int, logger core.Logger) *backgroundTrigger {
	group, groupCtx := errgroup.WithContext(ctx)
	if limit <= 0 {
		limit = 1
	}
	group.SetLimit(limit)
	return &backgroundTrigger{ctx: groupCtx, runner: runner, group: group, logger: logger}
}

func (t *backgroundTrigger) EnqueueSync(_ context.Context, req core.RunSyncRequest) error {
	started := t.group.TryGo(func() error {
		if _, err := t.runner.RunSync(t.ctx, req); err != nil && !core.IsErrorCode(err, core.ErrorSyncAlreadyInProgress) {
			t.logger.Warn("webhook sync failed",
				"user_id", req.UserID,
				"provider", string(req.Provider),
				"scope", string(req.Scope),
				"error", err,
			)
		}
		// Sync failures are recorded in the sync log; they never stop the server.
		return nil
	})
	if !started {
		return fmt.Errorf("webhook sync capacity exhausted")
	}
	return nil
}

func (t *backgroundTrigger) Wait() error {
	return t.group.Wait()
}

func newWebhookMux(processor *webhooks.Processor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/webhooks/microsoft", webhooks.GraphHandler(processor))
	mux.Handle("/webhooks/google", webhooks.GoogleChannelHandler(processor))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

func serveCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", rt.app.Webhooks.Addr, "Listen address for provider notifications")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := rt.app.Webhooks
	if cfg.Secret == "" {
		return fmt.Errorf("webhooks secret is required (CRM_SYNC_WEBHOOKS__SECRET)")
	}

	serviceName := rt.service.Config().ServiceName
	logger := gologger.Component(rt.loggers, serviceName, "webhooks")
	trigger := newBackgroundTrigger(ctx, rt.service, cfg.MaxInflight, logger)

	processor := webhooks.NewProcessor(
		webhooks.ChannelTokens{Secret: cfg.Secret},
		webhooks.NewMemoryLedger(),
		rt.factory.ConnectionStore(),
		trigger,
	)
	processor.Logger = logger
	processor.MaxAttempts = cfg.MaxAttempts
	processor.Burst = webhooks.NewBurstController(webhooks.BurstOptions{
		Mode:   webhooks.BurstModeCoalesce,
		Window: cfg.BurstWindow,
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           newWebhookMux(processor),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(out, "listening on %s\n", *addr)
	logger.Info("webhook server started", "addr", *addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("webhook server shutdown failed", "error", err)
		}
	}
	return trigger.Wait()
}

func channelTokenCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("channel-token", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	provider := fs.String("provider", "", "google or microsoft (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if rt.app.Webhooks.Secret == "" {
		return fmt.Errorf("webhooks secret is required (CRM_SYNC_WEBHOOKS__SECRET)")
	}
	conn, err := rt.service.GetConnection(ctx, *user, core.ParseProvider(*provider))
	if err != nil {
		return err
	}
	token, err := webhooks.ChannelTokens{Secret: rt.app.Webhooks.Secret}.Sign(conn.ID)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{
		"connection_id": conn.ID,
		"channel_token": token,
	})
}
