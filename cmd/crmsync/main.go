package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/goliatone/go-crm-sync/adapters/gologger"
	"github.com/goliatone/go-crm-sync/core"
	crmscheduler "github.com/goliatone/go-crm-sync/sync"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "SQLite database path (default: $XDG_DATA_HOME/crm-sync/crm-sync.db)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("crm-sync version %s\n", version)
		return
	}

	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	environ := os.Environ()
	if *dbPath != "" {
		environ = append(environ, envPrefix+"DATABASE__DSN="+*dbPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args[0], args[1:], environ, os.Stdout); err != nil {
		log.Fatalf("crm-sync %s: %v", args[0], err)
	}
}

func run(ctx context.Context, command string, args []string, environ []string, out io.Writer) error {
	switch command {
	case "migrate":
		rt, err := newRuntime(ctx, environ, true)
		if err != nil {
			return err
		}
		defer rt.Close()
		fmt.Fprintln(out, "database migrated")
		return nil
	case "connect":
		return withRuntime(ctx, environ, func(rt *runtime) error { return connectCommand(ctx, rt, args, out) })
	case "complete":
		return withRuntime(ctx, environ, func(rt *runtime) error { return completeCommand(ctx, rt, args, out) })
	case "connections":
		return withRuntime(ctx, environ, func(rt *runtime) error { return connectionsCommand(ctx, rt, args, out) })
	case "sync":
		return withRuntime(ctx, environ, func(rt *runtime) error { return syncCommand(ctx, rt, args, out) })
	case "schedule":
		return withRuntime(ctx, environ, func(rt *runtime) error { return scheduleCommand(ctx, rt, args, out) })
	case "link":
		return withRuntime(ctx, environ, func(rt *runtime) error { return autoLinkCommand(ctx, rt, args, out) })
	case "stats":
		return withRuntime(ctx, environ, func(rt *runtime) error { return statsCommand(ctx, rt, args, out) })
	case "logs":
		return withRuntime(ctx, environ, func(rt *runtime) error { return logsCommand(ctx, rt, args, out) })
	case "serve":
		return withRuntime(ctx, environ, func(rt *runtime) error { return serveCommand(ctx, rt, args, out) })
	case "channel-token":
		return withRuntime(ctx, environ, func(rt *runtime) error { return channelTokenCommand(ctx, rt, args, out) })
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func withRuntime(ctx context.Context, environ []string, fn func(rt *runtime) error) error {
	rt, err := newRuntime(ctx, environ, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func connectCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	provider := fs.String("provider", "", "google or microsoft (required)")
	redirect := fs.String("redirect", "", "OAuth redirect URI override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := rt.service.BeginAuthorization(ctx, core.BeginAuthorizationRequest{
		UserID:      *user,
		Provider:    core.ParseProvider(*provider),
		RedirectURI: *redirect,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

func completeCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	state := fs.String("state", "", "State returned by connect (required)")
	code := fs.String("code", "", "Authorization code from the provider callback (required)")
	redirect := fs.String("redirect", "", "OAuth redirect URI override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conn, err := rt.service.CompleteAuthorization(ctx, core.CompleteAuthorizationRequest{
		Code:        *code,
		State:       *state,
		RedirectURI: *redirect,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, redactConnection(conn))
}

func connectionsCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("connections", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conns, err := rt.service.ListConnections(ctx, *user)
	if err != nil {
		return err
	}
	for i := range conns {
		conns[i] = redactConnection(conns[i])
	}
	return writeJSON(out, conns)
}

func syncCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	provider := fs.String("provider", "", "google or microsoft (required)")
	scope := fs.String("scope", string(core.SyncScopeFull), "calendar, email, contacts or full")
	since := fs.Duration("since", 0, "Only pull changes newer than this window, e.g. 72h")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := core.RunSyncRequest{
		UserID:   *user,
		Provider: core.ParseProvider(*provider),
		Scope:    core.SyncScope(*scope),
		Trigger:  core.SyncTriggerManual,
	}
	if *since > 0 {
		from := time.Now().UTC().Add(-*since)
		req.Since = &from
	}
	syncLog, err := rt.service.RunSync(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(out, syncLog)
}

func scheduleCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	once := fs.Bool("once", false, "Run a single pass and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := rt.service.Config()
	scheduler := crmscheduler.NewScheduler(rt.factory.ConnectionStore(), rt.service, cfg.Sync)
	scheduler.Logger = gologger.Component(rt.loggers, cfg.ServiceName, "scheduler")
	if *once {
		result, err := scheduler.Tick(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	}
	if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func autoLinkCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := rt.service.AutoLinkEmails(ctx, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func statsCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stats, err := rt.service.GetStats(ctx, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, stats)
}

func logsCommand(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	user := fs.String("user", "", "User id (required)")
	provider := fs.String("provider", "", "Restrict to one provider")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var filter *core.Provider
	if *provider != "" {
		parsed := core.ParseProvider(*provider)
		filter = &parsed
	}
	logs, err := rt.service.ListSyncLogs(ctx, *user, filter)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []core.SyncLog{}
	}
	return writeJSON(out, logs)
}

// redactConnection drops tokens before a connection is printed.
func redactConnection(conn core.Connection) core.Connection {
	conn.AccessToken = ""
	conn.RefreshToken = ""
	return conn
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `crm-sync %s

Usage:
  crm-sync [-db-path PATH] <command> [flags]

Commands:
  migrate       Apply database migrations
  connect       Start OAuth for -user and -provider, prints the consent URL
  complete      Finish OAuth with -state and -code
  connections   List connections for -user
  sync          Run a manual sync for -user and -provider
  schedule      Run scheduled syncs for due connections (-once for one pass)
  link          Auto-link unlinked emails for -user
  stats         Show dashboard counters for -user
  logs          List sync logs for -user
  serve         Receive Graph and Google Calendar change notifications (-addr)
  channel-token Print the subscription channel token for -user and -provider

Configuration is read from CRM_SYNC_* variables and an optional .env file,
e.g. CRM_SYNC_OAUTH__STATE_SIGNING_KEY, CRM_SYNC_PROVIDERS__GOOGLE__CLIENT_ID,
CRM_SYNC_DATABASE__DRIVER=postgres with CRM_SYNC_DATABASE__DSN,
CRM_SYNC_WEBHOOKS__SECRET for serve and channel-token.
`, version)
}
