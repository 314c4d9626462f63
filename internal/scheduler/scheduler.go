// Package scheduler implements the cron-driven synthetic event producer: a
// static job list fanned per tenant and warehouse, enqueuing through the
// outbox, using robfig/cron/v3 for expression parsing and next-tick
// scheduling.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

// internalJobPrefix marks a job as handled in-process with no envelope
// produced (a job with event_type prefixed "internal:" is handled
// in-process with no envelope minted).
const internalJobPrefix = "internal:"

// outboxGCRetention is the default outbox_gc_days window: PUBLISHED
// rows older than this are deleted by the outbox-cleanup job.
const outboxGCRetention = 7 * 24 * time.Hour

// Job is one entry in the static cron job list.
type Job struct {
	Name            string
	CronExpr        string // UTC, standard 5-field cron syntax
	EventType       string
	PayloadSkeleton map[string]interface{}
	TenantScope     string // empty means "every active tenant"
}

// DefaultJobs returns the default job set. Names and cron
// expressions are part of the contract — do not rename without updating
// every operator runbook that references them.
func DefaultJobs() []Job {
	return []Job{
		{Name: "lot-expiry-check", CronExpr: "0 0 * * *", EventType: "Scheduled.ExpiryCheck"},
		{Name: "abc-xyz-analysis", CronExpr: "0 2 1 * *", EventType: "Scheduled.AbcXyzAnalysis"},
		{Name: "safety-stock-recalc", CronExpr: "0 3 * * 0", EventType: "Scheduled.SafetyStockRecalc"},
		{Name: "demand-forecast", CronExpr: "0 4 * * 0", EventType: "Scheduled.DemandForecast"},
		{Name: "outbox-cleanup", CronExpr: "0 5 * * *", EventType: internalJobPrefix + "outbox-cleanup"},
	}
}

// Enumerator lists the active tenants and warehouses a job fans out over.
type Enumerator interface {
	ListActiveTenants(ctx context.Context) ([]string, error)
	ListActiveWarehouses(ctx context.Context, tenantID string) ([]store.Warehouse, error)
}

// EventRecorder appends a synthetic envelope to the durable event store
// before it is enqueued.
type EventRecorder interface {
	AppendEvent(ctx context.Context, env envelope.Envelope) error
}

// Enqueuer durably records envelopes for the dispatcher to publish.
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, envs []envelope.Envelope) error
}

// OutboxGC is the internal:outbox-cleanup job's target: it never produces
// an envelope, it just runs in-process.
type OutboxGC interface {
	GC(ctx context.Context, publishedBefore time.Time) (int64, error)
}

// Scheduler drives DefaultJobs (or a caller-supplied job list) on a
// robfig/cron/v3 schedule, all ticks evaluated in UTC.
type Scheduler struct {
	cron     *cron.Cron
	jobs     []Job
	enum     Enumerator
	recorder EventRecorder
	enqueuer Enqueuer
	gc       OutboxGC
	logger   *slog.Logger
}

// New builds a Scheduler over jobs (pass DefaultJobs() for the production
// job list; tests may pass a shorter list for determinism).
func New(jobs []Job, enum Enumerator, recorder EventRecorder, enqueuer Enqueuer, gc OutboxGC, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		jobs:     jobs,
		enum:     enum,
		recorder: recorder,
		enqueuer: enqueuer,
		gc:       gc,
		logger:   logger,
	}
}

// Start registers every job's cron expression and begins ticking. It
// returns an error immediately if any expression fails to parse — a
// misconfigured job list should fail process startup, not run short.
func (s *Scheduler) Start() error {
	for _, job := range s.jobs {
		job := job
		_, err := s.cron.AddFunc(job.CronExpr, func() {
			s.runJob(context.Background(), job)
		})
		if err != nil {
			return fmt.Errorf("schedule job %q (%q): %w", job.Name, job.CronExpr, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler and blocks until any in-flight job run
// completes, matching the consumer and dispatcher's drain-on-shutdown
// behavior.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runJob executes one tick of job: internal jobs run in-process, domain
// jobs fan out per tenant and warehouse, each producing one envelope that
// is appended to the event store and then enqueued through the outbox.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	logger := s.logger.With(slog.String("job", job.Name))

	if strings.HasPrefix(job.EventType, internalJobPrefix) {
		s.runInternalJob(ctx, job, logger)
		return
	}

	tenants, err := s.tenantsFor(ctx, job)
	if err != nil {
		logger.Error("enumerate tenants", slog.Any("error", err))
		return
	}

	var envs []envelope.Envelope
	for _, tenantID := range tenants {
		warehouses, err := s.enum.ListActiveWarehouses(ctx, tenantID)
		if err != nil {
			logger.Error("enumerate warehouses", slog.String("tenant_id", tenantID), slog.Any("error", err))
			continue
		}
		for _, wh := range warehouses {
			env, err := envelope.New(job.EventType, mergePayload(job.PayloadSkeleton, wh.ID, job.Name), envelope.Context{
				CorrelationID: uuid.New().String(),
				Actor:         envelope.Actor{Type: envelope.ActorSystem, ID: "scheduler"},
				TenantID:      tenantID,
				WarehouseID:   wh.ID,
			})
			if err != nil {
				logger.Error("mint scheduled envelope", slog.String("tenant_id", tenantID), slog.String("warehouse_id", wh.ID), slog.Any("error", err))
				continue
			}
			if err := s.recorder.AppendEvent(ctx, env); err != nil {
				logger.Error("append scheduled event", slog.String("event_id", env.EventID), slog.Any("error", err))
				continue
			}
			envs = append(envs, env)
		}
	}

	if len(envs) == 0 {
		return
	}
	if err := s.enqueuer.EnqueueBatch(ctx, envs); err != nil {
		logger.Error("enqueue scheduled events", slog.Any("error", err))
		return
	}
	logger.Info("scheduled job fanned out", slog.Int("envelope_count", len(envs)))
}

func (s *Scheduler) runInternalJob(ctx context.Context, job Job, logger *slog.Logger) {
	switch job.Name {
	case "outbox-cleanup":
		n, err := s.gc.GC(ctx, time.Now().UTC().Add(-outboxGCRetention))
		if err != nil {
			logger.Error("outbox gc", slog.Any("error", err))
			return
		}
		logger.Info("outbox gc complete", slog.Int64("rows_deleted", n))
	default:
		logger.Warn("unknown internal job, skipping")
	}
}

func (s *Scheduler) tenantsFor(ctx context.Context, job Job) ([]string, error) {
	if job.TenantScope != "" {
		return []string{job.TenantScope}, nil
	}
	return s.enum.ListActiveTenants(ctx)
}

// mergePayload copies skeleton (never mutating the job's static map, which
// is shared across every tick and every tenant/warehouse) and layers in the
// fields every scheduled envelope requires.
func mergePayload(skeleton map[string]interface{}, warehouseID, jobName string) map[string]interface{} {
	out := make(map[string]interface{}, len(skeleton)+3)
	for k, v := range skeleton {
		out[k] = v
	}
	out["warehouse_id"] = warehouseID
	out["triggered_by"] = "scheduler"
	out["job_name"] = jobName
	return out
}
