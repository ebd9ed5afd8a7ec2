package purchases

import (
	"context"
	"time"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
)

// Store is the persistence surface the purchase manager needs. It is a
// superset of what the capability engine reads: the manager also writes
// entitlements.
type Store interface {
	// Relationship returns the parent→child relationship, or nil when the
	// accounts are not linked.
	Relationship(ctx context.Context, parentUserID, childUserID string) (*capabilities.ParentChildRelationship, error)

	// ChildRelationshipsByParent returns every relationship where the user
	// is the parent, joined with the child's display name.
	ChildRelationshipsByParent(ctx context.Context, parentUserID string) ([]capabilities.ParentChildRelationship, error)

	ActiveEntitlementsByUser(ctx context.Context, userID string) ([]capabilities.Entitlement, error)

	// EntitlementBySubjectAndProduct returns the row for (subject, product)
	// regardless of status, or nil when none exists.
	EntitlementBySubjectAndProduct(ctx context.Context, subjectID string, productID catalog.ProductID) (*capabilities.Entitlement, error)

	// UpsertEntitlement creates or reactivates the (subject, product) row
	// and returns its id. Idempotent: repeated purchases reuse the same row.
	UpsertEntitlement(ctx context.Context, up EntitlementUpsert) (string, error)

	// CancelEntitlement marks the (subject, product) row cancelled, scoped
	// to rows purchased by purchasedBy. Returns false when no row matched.
	CancelEntitlement(ctx context.Context, subjectID string, productID catalog.ProductID, purchasedBy string) (bool, error)

	// EntitlementsPurchasedBy returns every entitlement the parent bought
	// for others, newest first.
	EntitlementsPurchasedBy(ctx context.Context, parentUserID string) ([]capabilities.Entitlement, error)
}

// EntitlementUpsert is the write shape for UpsertEntitlement.
type EntitlementUpsert struct {
	SubjectID   string
	ProductID   catalog.ProductID
	Status      capabilities.EntitlementStatus
	PurchasedBy string
	ExpiresAt   *time.Time
}

// AuditAction names a recorded purchase event.
type AuditAction string

const (
	ActionPurchaseProcessed AuditAction = "purchase_processed"
	ActionPurchaseCancelled AuditAction = "purchase_cancelled"
)

// AuditEntry is one purchase audit record.
type AuditEntry struct {
	ID           string            `json:"id"`
	Action       AuditAction       `json:"action"`
	ParentUserID string            `json:"parent_user_id"`
	ChildUserID  string            `json:"child_user_id"`
	ProductID    catalog.ProductID `json:"product_id"`
	Receipt      string            `json:"receipt,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// AuditLogger records purchase events to an external sink. Implementations
// should be fast and best-effort; the manager logs and swallows their
// failures rather than rolling back the purchase.
type AuditLogger interface {
	LogPurchaseEvent(ctx context.Context, entry AuditEntry) error
}

// CacheInvalidator evicts a user's cached capability resolution after a
// write. The capability engine satisfies it.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// ValidationResult is the outcome of ValidatePurchase. Warnings never block.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PurchaseRequest asks for one parent→child product grant.
type PurchaseRequest struct {
	ParentUserID string            `json:"parent_user_id"`
	ChildUserID  string            `json:"child_user_id"`
	ProductID    catalog.ProductID `json:"product_id"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
}

// PurchaseResult reports one processed purchase.
type PurchaseResult struct {
	Success    bool   `json:"success"`
	PurchaseID string `json:"purchase_id,omitempty"`
	Receipt    string `json:"receipt,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CancelResult reports one cancellation.
type CancelResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ChildAccount is one child's view inside a family account.
type ChildAccount struct {
	UserID           string                     `json:"user_id"`
	Name             string                     `json:"name,omitempty"`
	RelationshipType string                     `json:"relationship_type,omitempty"`
	// Granted holds the entitlements this parent purchased for the child,
	// any status.
	Granted []capabilities.Entitlement `json:"granted"`
	// Products is the child's own active product list.
	Products []catalog.ProductID `json:"products"`
}

// FamilyAccount aggregates a parent's children and their grants.
type FamilyAccount struct {
	ParentUserID   string              `json:"parent_user_id"`
	ParentProducts []catalog.ProductID `json:"parent_products"`
	Children       []ChildAccount      `json:"children"`
}

// ParentPurchase is one row of a parent's purchase history.
type ParentPurchase struct {
	EntitlementID string                         `json:"entitlement_id"`
	ChildUserID   string                         `json:"child_user_id"`
	ChildName     string                         `json:"child_name,omitempty"`
	ProductID     catalog.ProductID              `json:"product_id"`
	Status        capabilities.EntitlementStatus `json:"status"`
	CreatedAt     time.Time                      `json:"created_at"`
	ExpiresAt     *time.Time                     `json:"expires_at,omitempty"`
}

// BulkOutcome reports a bulk purchase: which children succeeded and which
// failed, each child isolated from the others.
type BulkOutcome struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// BulkFailure is one child's failure inside a bulk purchase.
type BulkFailure struct {
	ChildUserID string `json:"child_user_id"`
	Error       string `json:"error"`
}
