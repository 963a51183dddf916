package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/auditcontext"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/events"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	obsmetrics "github.com/karsada/fleetcore/internal/observability/metrics"
	"github.com/karsada/fleetcore/internal/ratelimit"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

const (
	jobIdempotencyPurge = "idempotency_purge"
	jobInvoiceOverdue   = "invoice_overdue"
	jobOutboxDrain      = "outbox_drain"

	// Revoked refresh tokens stay around briefly so token reuse can still
	// be tied to its family before the row disappears.
	revokedTokenRetention = 24 * time.Hour

	jobLockGrace = 5 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Dispatcher *events.Dispatcher

	AuditSvc auditdomain.Service    `optional:"true"`
	Limiter  *ratelimit.Limiter     `optional:"true"`
	Metrics  *telemetry.Metrics     `optional:"true"`
	Tunables *config.TunablesHolder `optional:"true"`
	Config   Config                 `optional:"true"`
}

// Scheduler runs the recurring housekeeping jobs: purging expired
// idempotency keys and refresh tokens, flipping overdue invoices, and
// draining the event outbox.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	dispatcher *events.Dispatcher
	auditSvc   auditdomain.Service
	limiter    *ratelimit.Limiter
	metrics    *telemetry.Metrics
	tunables   *config.TunablesHolder
}

type auditEvent struct {
	Action     string
	TargetType string
	TargetID   string
	InvoiceID  string
	Metadata   map[string]any
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
		tunables:   p.Tunables,
	}, nil
}

func (s *Scheduler) housekeeping() config.HousekeepingTunables {
	hk := config.DefaultTunables().Housekeeping
	if s.tunables != nil {
		hk = s.tunables.Get().Housekeeping
	}
	defaults := config.DefaultTunables().Housekeeping
	if hk.PurgeInterval <= 0 {
		hk.PurgeInterval = defaults.PurgeInterval
	}
	if hk.OverdueInterval <= 0 {
		hk.OverdueInterval = defaults.OverdueInterval
	}
	if hk.OutboxInterval <= 0 {
		hk.OutboxInterval = defaults.OutboxInterval
	}
	if hk.OutboxBatchSize <= 0 {
		hk.OutboxBatchSize = defaults.OutboxBatchSize
	}
	if hk.OutboxMaxAttempts <= 0 {
		hk.OutboxMaxAttempts = defaults.OutboxMaxAttempts
	}
	if hk.JobTimeout <= 0 {
		hk.JobTimeout = defaults.JobTimeout
	}
	return hk
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	schedMetrics := obsmetrics.Scheduler()

	if s.limiter.Enabled() {
		token, ok, lockErr := s.limiter.TryLockJob(ctx, name, timeout+jobLockGrace)
		switch {
		case lockErr != nil:
			// Redis trouble must not stop housekeeping; run unguarded.
			s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(lockErr))
		case !ok:
			schedMetrics.IncBatchDeferred(name, "lock_held")
			return nil
		default:
			defer func() {
				releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer releaseCancel()
				_ = s.limiter.ReleaseJob(releaseCtx, name, token)
			}()
		}
	}

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

type jobSpec struct {
	Name     string
	Interval time.Duration
	Enabled  bool
	Run      func(context.Context) error
}

func (s *Scheduler) jobs() []jobSpec {
	hk := s.housekeeping()
	return []jobSpec{
		{jobIdempotencyPurge, hk.PurgeInterval, s.isJobEnabled(jobIdempotencyPurge), func(ctx context.Context) error {
			return s.runJob(ctx, jobIdempotencyPurge, s.cfg.BatchSize, hk.JobTimeout, s.IdempotencyPurgeJob)
		}},
		{jobInvoiceOverdue, hk.OverdueInterval, s.isJobEnabled(jobInvoiceOverdue), func(ctx context.Context) error {
			return s.runJob(ctx, jobInvoiceOverdue, s.cfg.BatchSize, hk.JobTimeout, s.InvoiceOverdueJob)
		}},
		{jobOutboxDrain, hk.OutboxInterval, s.isJobEnabled(jobOutboxDrain), func(ctx context.Context) error {
			return s.runJob(ctx, jobOutboxDrain, hk.OutboxBatchSize, hk.JobTimeout, s.OutboxDrainJob)
		}},
	}
}

// RunOnce runs every enabled job a single time, ignoring cadence. Tests
// and the one-shot CLI path use this.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, job := range s.jobs() {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

// RunForever ticks until ctx is cancelled, starting each job when its
// own interval elapses.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	schedMetrics := obsmetrics.Scheduler()
	nextDue := make(map[string]time.Time)

	for {
		now := s.clock.Now()
		for _, job := range s.jobs() {
			if !job.Enabled {
				continue
			}
			due, seen := nextDue[job.Name]
			if seen && now.Before(due) {
				continue
			}
			if seen {
				schedMetrics.ObserveRunLoopLag(now.Sub(due))
			}
			if err := job.Run(ctx); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", job.Name), zap.Error(err))
			}
			nextDue[job.Name] = now.Add(job.Interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means all jobs run (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// IdempotencyPurgeJob deletes idempotency keys past their expiry and
// refresh tokens that are expired or long since revoked.
func (s *Scheduler) IdempotencyPurgeJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobIdempotencyPurge, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	purged, err := s.purgeBatched(ctx, run,
		`DELETE FROM idempotency_keys WHERE id IN (
			SELECT id FROM idempotency_keys WHERE expires_at <= ? LIMIT ?)`,
		now)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.purge.failed", jobIdempotencyPurge, err,
			zap.String("resource", "idempotency_keys"))
		return err
	}
	schedMetrics.AddBatchProcessed(jobIdempotencyPurge, "idempotency_keys", purged)

	cutoff := now.Add(-revokedTokenRetention)
	tokens, err := s.purgeBatched(ctx, run,
		`DELETE FROM refresh_tokens WHERE id IN (
			SELECT id FROM refresh_tokens
			WHERE expires_at <= ? OR (revoked_at IS NOT NULL AND revoked_at <= ?)
			LIMIT ?)`,
		now, cutoff)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.purge.failed", jobIdempotencyPurge, err,
			zap.String("resource", "refresh_tokens"))
		return err
	}
	schedMetrics.AddBatchProcessed(jobIdempotencyPurge, "refresh_tokens", tokens)

	return nil
}

func (s *Scheduler) purgeBatched(ctx context.Context, run *jobRun, query string, args ...any) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res := s.db.WithContext(ctx).Exec(query, append(args, s.cfg.BatchSize)...)
		if res.Error != nil {
			return total, res.Error
		}
		if res.RowsAffected == 0 {
			return total, nil
		}
		total += int(res.RowsAffected)
		run.AddProcessed(int(res.RowsAffected))
	}
}

type overdueInvoice struct {
	ID            uuid.UUID
	InvoiceNumber string
	CustomerID    uuid.UUID
	DueDate       time.Time
	Total         int64
}

// InvoiceOverdueJob flips ISSUED invoices past their due date to OVERDUE.
func (s *Scheduler) InvoiceOverdueJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobInvoiceOverdue, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		var marked []overdueInvoice
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoices, err := s.fetchOverdueInvoices(ctx, tx, now, s.cfg.BatchSize)
			if err != nil {
				return err
			}
			for _, invoice := range invoices {
				res := tx.WithContext(ctx).Exec(
					`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
					invoicedomain.StatusOverdue, now, invoice.ID, invoicedomain.StatusIssued,
				)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected > 0 {
					marked = append(marked, invoice)
				}
			}
			return nil
		})
		if txErr != nil {
			jobErr = errors.Join(jobErr, txErr)
			s.logSchedulerError(ctx, run, "scheduler.invoice.overdue.failed", jobInvoiceOverdue, txErr)
			return jobErr
		}
		if len(marked) == 0 {
			return jobErr
		}

		// Audit outside the transaction so a slow audit sink cannot hold
		// invoice row locks.
		for _, invoice := range marked {
			run.AddProcessed(1)
			s.emitAuditEvent(ctx, auditEvent{
				Action:     "invoice.overdue",
				TargetType: "invoice",
				TargetID:   invoice.ID.String(),
				InvoiceID:  invoice.ID.String(),
				Metadata: map[string]any{
					"invoice_number": invoice.InvoiceNumber,
					"customer_id":    invoice.CustomerID.String(),
					"due_date":       invoice.DueDate.Format(time.RFC3339),
					"total":          invoice.Total,
				},
			})
		}
		schedMetrics.AddBatchProcessed(jobInvoiceOverdue, "invoices", len(marked))
	}
}

func (s *Scheduler) fetchOverdueInvoices(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]overdueInvoice, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	var invoices []overdueInvoice
	err := tx.WithContext(ctx).Raw(
		`SELECT id, invoice_number, customer_id, due_date, total
		 FROM invoices
		 WHERE status = ? AND due_date < ?
		 ORDER BY due_date ASC, id ASC
		 FOR UPDATE SKIP LOCKED
		 LIMIT ?`,
		invoicedomain.StatusIssued,
		now,
		limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// OutboxDrainJob hands pending outbox events to the publisher and keeps
// the backlog gauge honest.
func (s *Scheduler) OutboxDrainJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobOutboxDrain, s.housekeeping().OutboxBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	hk := s.housekeeping()
	schedMetrics := obsmetrics.Scheduler()
	start := s.clock.Now()

	result, err := s.dispatcher.DispatchPending(ctx, hk.OutboxBatchSize, hk.OutboxMaxAttempts)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordOutboxBatch("error", elapsed)
		s.logSchedulerError(ctx, run, "scheduler.outbox.drain.failed", jobOutboxDrain, err)
		return err
	}
	s.metrics.RecordOutboxBatch("ok", elapsed)

	run.AddProcessed(result.Published)
	schedMetrics.AddBatchProcessed(jobOutboxDrain, "events", result.Published)
	if result.Failed > 0 {
		run.IncError()
		s.logger(ctx).Warn("outbox publish failures",
			zap.Int("failed", result.Failed),
			zap.Int("published", result.Published),
		)
	}
	if result.DeadLettered > 0 {
		s.logger(ctx).Warn("outbox events dead-lettered",
			zap.Int("dead_lettered", result.DeadLettered),
		)
	}

	backlog, err := s.dispatcher.CountPending(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.outbox.backlog.failed", jobOutboxDrain, err)
		return err
	}
	s.metrics.SetOutboxBacklog(float64(backlog))

	return nil
}

func (s *Scheduler) emitAuditEvent(ctx context.Context, event auditEvent) {
	if s.auditSvc == nil {
		return
	}
	ctx = s.withLogContext(ctx)
	if event.InvoiceID != "" {
		ctx = auditcontext.WithInvoiceID(ctx, event.InvoiceID)
	}
	actorID := "scheduler"
	targetID := event.TargetID
	_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), &actorID, event.Action, event.TargetType, &targetID, event.Metadata)
}
