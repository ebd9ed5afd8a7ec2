// Package jobs holds the kit's background work: the river-backed purchase
// audit sink and the entitlement expiry-reminder sweep.
package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"

	"github.com/powlax/memberkit/purchases"
)

// PurchaseAuditArgs carries one audit entry through the job queue.
type PurchaseAuditArgs struct {
	Entry purchases.AuditEntry `json:"entry"`
}

func (PurchaseAuditArgs) Kind() string { return "membership_purchase_audit" }

// AuditStore persists audit rows. storage/postgres and storage/memory both
// satisfy it.
type AuditStore interface {
	InsertAuditLogEntry(ctx context.Context, entry purchases.AuditEntry) error
}

// PurchaseAuditWorker writes queued audit entries to the store.
type PurchaseAuditWorker struct {
	river.WorkerDefaults[PurchaseAuditArgs]
	store AuditStore
	log   logrus.FieldLogger
}

func NewPurchaseAuditWorker(store AuditStore, log logrus.FieldLogger) *PurchaseAuditWorker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PurchaseAuditWorker{store: store, log: log}
}

func (w *PurchaseAuditWorker) Work(ctx context.Context, job *river.Job[PurchaseAuditArgs]) error {
	if err := w.store.InsertAuditLogEntry(ctx, job.Args.Entry); err != nil {
		w.log.WithError(err).WithField("audit_id", job.Args.Entry.ID).Warn("audit insert failed, river will retry")
		return err
	}
	return nil
}

// RiverAuditLogger satisfies purchases.AuditLogger by enqueueing the entry
// instead of writing it inline. River's retries then narrow the audit-loss
// window to a failed enqueue.
type RiverAuditLogger struct {
	client *river.Client[pgx.Tx]
}

func NewRiverAuditLogger(client *river.Client[pgx.Tx]) *RiverAuditLogger {
	return &RiverAuditLogger{client: client}
}

func (l *RiverAuditLogger) LogPurchaseEvent(ctx context.Context, entry purchases.AuditEntry) error {
	_, err := l.client.Insert(ctx, PurchaseAuditArgs{Entry: entry}, nil)
	return err
}
