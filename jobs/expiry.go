package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
)

// ExpiryReminderArgs identifies one entitlement approaching its expiry.
type ExpiryReminderArgs struct {
	EntitlementID string            `json:"entitlement_id"`
	SubjectID     string            `json:"subject_id"`
	ProductID     catalog.ProductID `json:"product_id"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

func (ExpiryReminderArgs) Kind() string { return "membership_expiry_reminder" }

// Notifier delivers an expiry reminder. The embedding app supplies email or
// push delivery; nil falls back to logging.
type Notifier interface {
	NotifyExpiring(ctx context.Context, args ExpiryReminderArgs) error
}

// ExpiryReminderWorker delivers queued reminders.
type ExpiryReminderWorker struct {
	river.WorkerDefaults[ExpiryReminderArgs]
	notifier Notifier
	log      logrus.FieldLogger
}

func NewExpiryReminderWorker(notifier Notifier, log logrus.FieldLogger) *ExpiryReminderWorker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExpiryReminderWorker{notifier: notifier, log: log}
}

func (w *ExpiryReminderWorker) Work(ctx context.Context, job *river.Job[ExpiryReminderArgs]) error {
	if w.notifier == nil {
		w.log.WithFields(logrus.Fields{
			"subject_id": job.Args.SubjectID,
			"product_id": job.Args.ProductID,
			"expires_at": job.Args.ExpiresAt,
		}).Info("entitlement expiring soon")
		return nil
	}
	return w.notifier.NotifyExpiring(ctx, job.Args)
}

// ExpiringStore reads entitlements whose expiry falls inside the reminder
// window. Reading is all the sweep does: "expired" remains a read-side
// interpretation and is never written back.
type ExpiringStore interface {
	ExpiringEntitlements(ctx context.Context, before time.Time) ([]capabilities.Entitlement, error)
}

// ReminderEnqueuer inserts reminder jobs. RiverReminderEnqueuer is the
// production implementation.
type ReminderEnqueuer interface {
	EnqueueExpiryReminder(ctx context.Context, args ExpiryReminderArgs) error
}

// RiverReminderEnqueuer enqueues reminders through a river client.
type RiverReminderEnqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewRiverReminderEnqueuer(client *river.Client[pgx.Tx]) *RiverReminderEnqueuer {
	return &RiverReminderEnqueuer{client: client}
}

func (e *RiverReminderEnqueuer) EnqueueExpiryReminder(ctx context.Context, args ExpiryReminderArgs) error {
	_, err := e.client.Insert(ctx, args, nil)
	return err
}

// SchedulerConfig configures the expiry sweep.
type SchedulerConfig struct {
	Store    ExpiringStore
	Enqueuer ReminderEnqueuer
	Logger   logrus.FieldLogger
	// CronSpec defaults to a daily 07:00 sweep.
	CronSpec string
	// Window is how far ahead the sweep looks; defaults to 7 days.
	Window time.Duration
}

// Scheduler runs the expiry sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	store    ExpiringStore
	enqueuer ReminderEnqueuer
	log      logrus.FieldLogger
	spec     string
	window   time.Duration
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("jobs: SchedulerConfig.Store is required")
	}
	if cfg.Enqueuer == nil {
		return nil, fmt.Errorf("jobs: SchedulerConfig.Enqueuer is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	spec := cfg.CronSpec
	if spec == "" {
		spec = "0 7 * * *"
	}
	window := cfg.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Scheduler{
		cron:     cron.New(),
		store:    cfg.Store,
		enqueuer: cfg.Enqueuer,
		log:      log,
		spec:     spec,
		window:   window,
	}, nil
}

// Start registers the cron entry and begins running sweeps.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.WithError(err).Warn("expiry sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop; running sweeps finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Sweep enqueues one reminder per entitlement expiring within the window.
// Enqueue failures are isolated per row.
func (s *Scheduler) Sweep(ctx context.Context) error {
	ents, err := s.store.ExpiringEntitlements(ctx, time.Now().Add(s.window))
	if err != nil {
		return fmt.Errorf("expiring entitlements: %w", err)
	}
	for _, ent := range ents {
		if ent.ExpiresAt == nil {
			continue
		}
		args := ExpiryReminderArgs{
			EntitlementID: ent.ID,
			SubjectID:     ent.SubjectID,
			ProductID:     ent.ProductID,
			ExpiresAt:     *ent.ExpiresAt,
		}
		if err := s.enqueuer.EnqueueExpiryReminder(ctx, args); err != nil {
			s.log.WithError(err).WithField("entitlement_id", ent.ID).Warn("reminder enqueue failed")
		}
	}
	return nil
}

// AddWorkers registers the kit's workers on a river worker registry.
func AddWorkers(workers *river.Workers, store AuditStore, notifier Notifier, log logrus.FieldLogger) {
	river.AddWorker(workers, NewPurchaseAuditWorker(store, log))
	river.AddWorker(workers, NewExpiryReminderWorker(notifier, log))
}
