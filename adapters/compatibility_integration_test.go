package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-crm-sync/adapters/gocommand"
	"github.com/goliatone/go-crm-sync/adapters/gojob"
	"github.com/goliatone/go-crm-sync/adapters/gologger"
	"github.com/goliatone/go-crm-sync/core"
	crmsync "github.com/goliatone/go-crm-sync/sync"
)

func TestRuntimeCompatibility_SchedulerQueueWorker(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("crm-sync", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	memQueue := &compatQueue{}
	scheduler := crmsync.NewScheduler(&compatLister{conns: []core.Connection{
		{ID: "conn_1", UserID: "usr_1", Provider: core.ProviderGoogle, Status: core.ConnectionStatusActive, Settings: core.DefaultSettings()},
		{ID: "conn_2", UserID: "usr_2", Provider: core.ProviderMicrosoft, Status: core.ConnectionStatusActive, Settings: core.DefaultSettings()},
	}}, nil, core.SyncConfig{ScheduleInterval: 15 * time.Minute, Workers: 1})
	scheduler.Enqueuer = gojob.NewEnqueuerAdapter(memQueue, 15*time.Minute)
	scheduler.Logger = gologger.Component(provider, "", "scheduler")

	result, err := scheduler.Tick(ctx)
	if err != nil {
		t.Fatalf("scheduler tick: %v", err)
	}
	if result.Dispatched != 2 || len(memQueue.pending) != 2 {
		t.Fatalf("expected two queued syncs, got %#v", result)
	}

	runner := &compatRunner{}
	handler := gojob.NewSyncJobHandler(runner, gojob.DefaultRetryPolicy(), gologger.Component(provider, "", "worker"))
	for {
		processed, err := handler.ProcessNext(ctx, memQueue, 1)
		if err != nil {
			t.Fatalf("process queued sync: %v", err)
		}
		if !processed {
			break
		}
	}
	if len(runner.reqs) != 2 || runner.reqs[1].Provider != core.ProviderMicrosoft {
		t.Fatalf("expected both queued syncs to run, got %#v", runner.reqs)
	}
	if memQueue.acked != 2 {
		t.Fatalf("expected both deliveries acked, got %d", memQueue.acked)
	}
}

func TestRuntimeCompatibility_CommandQueueResolver(t *testing.T) {
	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.MirrorToQueue(queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	if err := commandAdapter.Register(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("crm_sync.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "crm_sync.compat.command" }

type compatLister struct {
	conns []core.Connection
}

func (l *compatLister) ListByStatus(context.Context, core.ConnectionStatus) ([]core.Connection, error) {
	return l.conns, nil
}

type compatRunner struct {
	reqs []core.RunSyncRequest
}

func (r *compatRunner) RunSync(_ context.Context, req core.RunSyncRequest) (core.SyncLog, error) {
	r.reqs = append(r.reqs, req)
	return core.SyncLog{ID: "log_" + req.UserID, Status: core.SyncLogStatusCompleted}, nil
}

// compatQueue is a FIFO that satisfies both go-job queue sides.
type compatQueue struct {
	pending []*job.ExecutionMessage
	acked   int
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.pending = append(q.pending, msg)
	return nil
}

func (q *compatQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if len(q.pending) == 0 {
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return &compatDelivery{queue: q, msg: msg}, nil
}

type compatDelivery struct {
	queue *compatQueue
	msg   *job.ExecutionMessage
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.queue.acked++
	return nil
}

func (d *compatDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
