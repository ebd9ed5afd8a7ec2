// Package purchases validates and records parent→child product grants and
// serves family-account views. Only individual skills-academy products may
// flow through the parent channel; the capability engine later reads what
// this package writes.
package purchases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
)

const defaultBulkConcurrency = 4

// Config configures a Manager. Store and Catalog are required.
type Config struct {
	Store   Store
	Catalog *catalog.Catalog
	// Audit is optional. Failures are logged and swallowed; a purchase never
	// rolls back because its audit write failed.
	Audit AuditLogger
	// Invalidator is optional; when set, the child's cached capability
	// resolution is evicted after every successful write.
	Invalidator CacheInvalidator
	Logger      logrus.FieldLogger
	// BulkConcurrency bounds the per-child fan-out in BulkPurchase.
	BulkConcurrency int
}

// Manager handles parent purchase flows. Safe for concurrent use.
type Manager struct {
	store       Store
	catalog     *catalog.Catalog
	audit       AuditLogger
	invalidator CacheInvalidator
	log         logrus.FieldLogger
	bulkPar     int
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("purchases: Config.Store is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("purchases: Config.Catalog is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	bulkPar := cfg.BulkConcurrency
	if bulkPar <= 0 {
		bulkPar = defaultBulkConcurrency
	}
	return &Manager{
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		audit:       cfg.Audit,
		invalidator: cfg.Invalidator,
		log:         log,
		bulkPar:     bulkPar,
	}, nil
}

// ValidateRelationship reports whether parent and child accounts are linked.
func (m *Manager) ValidateRelationship(ctx context.Context, parentUserID, childUserID string) (bool, error) {
	rel, err := m.store.Relationship(ctx, parentUserID, childUserID)
	if err != nil {
		return false, fmt.Errorf("relationship lookup: %w", err)
	}
	return rel != nil, nil
}

// ValidatePurchase runs the purchase preconditions without mutating state.
// Checks run in order: relationship, product shareability, prior grant
// (warning only), and the parent's own purchasing eligibility.
func (m *Manager) ValidatePurchase(ctx context.Context, parentUserID, childUserID string, productID catalog.ProductID) (ValidationResult, error) {
	var res ValidationResult

	rel, err := m.store.Relationship(ctx, parentUserID, childUserID)
	if err != nil {
		return res, fmt.Errorf("relationship lookup: %w", err)
	}
	if rel == nil {
		res.Errors = append(res.Errors, fmt.Sprintf("no parent-child relationship between %s and %s", parentUserID, childUserID))
	}

	if _, ok := m.catalog.Product(productID); !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown product %q", productID))
	} else if !m.catalog.ChildShareable(productID) {
		res.Errors = append(res.Errors, fmt.Sprintf("product %q cannot be purchased for a child account", productID))
	}

	existing, err := m.store.EntitlementBySubjectAndProduct(ctx, childUserID, productID)
	if err != nil {
		return res, fmt.Errorf("existing entitlement lookup: %w", err)
	}
	if existing != nil {
		if existing.Status == capabilities.StatusActive {
			res.Warnings = append(res.Warnings, fmt.Sprintf("child already has an active %q entitlement", productID))
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("child previously held %q; purchase will reactivate it", productID))
		}
	}

	parentEnts, err := m.store.ActiveEntitlementsByUser(ctx, parentUserID)
	if err != nil {
		return res, fmt.Errorf("parent entitlements lookup: %w", err)
	}
	if len(parentEnts) == 0 {
		res.Errors = append(res.Errors, "parent holds no active entitlement and is not eligible to purchase")
	}

	res.Valid = len(res.Errors) == 0
	return res, nil
}

// ProcessPurchase revalidates and records one grant. The entitlement upsert
// is keyed on (child, product), so re-purchasing reactivates the existing
// row instead of duplicating it. The audit write is best-effort.
func (m *Manager) ProcessPurchase(ctx context.Context, req PurchaseRequest) PurchaseResult {
	validation, err := m.ValidatePurchase(ctx, req.ParentUserID, req.ChildUserID, req.ProductID)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"parent_user_id": req.ParentUserID,
			"child_user_id":  req.ChildUserID,
			"product_id":     req.ProductID,
		}).Error("purchase validation lookup failed")
		return PurchaseResult{Error: "failed to validate purchase"}
	}
	if !validation.Valid {
		return PurchaseResult{Error: validation.Errors[0]}
	}

	entID, err := m.store.UpsertEntitlement(ctx, EntitlementUpsert{
		SubjectID:   req.ChildUserID,
		ProductID:   req.ProductID,
		Status:      capabilities.StatusActive,
		PurchasedBy: req.ParentUserID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"child_user_id": req.ChildUserID,
			"product_id":    req.ProductID,
		}).Error("entitlement upsert failed")
		return PurchaseResult{Error: "failed to record purchase"}
	}

	receipt := NewReceipt()
	m.logAudit(ctx, AuditEntry{
		ID:           uuid.NewString(),
		Action:       ActionPurchaseProcessed,
		ParentUserID: req.ParentUserID,
		ChildUserID:  req.ChildUserID,
		ProductID:    req.ProductID,
		Receipt:      receipt,
		OccurredAt:   time.Now().UTC(),
	})
	m.invalidate(ctx, req.ChildUserID)

	return PurchaseResult{Success: true, PurchaseID: entID, Receipt: receipt}
}

// CancelPurchase cancels a grant this parent made. Grants made by a
// different purchaser never match.
func (m *Manager) CancelPurchase(ctx context.Context, parentUserID, childUserID string, productID catalog.ProductID) CancelResult {
	found, err := m.store.CancelEntitlement(ctx, childUserID, productID, parentUserID)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"parent_user_id": parentUserID,
			"child_user_id":  childUserID,
			"product_id":     productID,
		}).Error("entitlement cancel failed")
		return CancelResult{Error: "failed to cancel purchase"}
	}
	if !found {
		return CancelResult{Error: "no matching purchase"}
	}

	m.logAudit(ctx, AuditEntry{
		ID:           uuid.NewString(),
		Action:       ActionPurchaseCancelled,
		ParentUserID: parentUserID,
		ChildUserID:  childUserID,
		ProductID:    productID,
		OccurredAt:   time.Now().UTC(),
	})
	m.invalidate(ctx, childUserID)

	return CancelResult{Success: true}
}

// FamilyAccount aggregates the parent's children, each child's granted
// entitlements and active products, and the parent's own products. A parent
// with zero linked children still gets an account with an empty child list.
func (m *Manager) FamilyAccount(ctx context.Context, parentUserID string) (*FamilyAccount, error) {
	rels, err := m.store.ChildRelationshipsByParent(ctx, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("child relationships: %w", err)
	}
	parentEnts, err := m.store.ActiveEntitlementsByUser(ctx, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("parent entitlements: %w", err)
	}

	account := &FamilyAccount{
		ParentUserID:   parentUserID,
		ParentProducts: productIDs(parentEnts),
		Children:       make([]ChildAccount, len(rels)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.bulkPar)
	for i, rel := range rels {
		g.Go(func() error {
			child, err := m.childAccount(gctx, parentUserID, rel)
			if err != nil {
				return err
			}
			account.Children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return account, nil
}

func (m *Manager) childAccount(ctx context.Context, parentUserID string, rel capabilities.ParentChildRelationship) (ChildAccount, error) {
	active, err := m.store.ActiveEntitlementsByUser(ctx, rel.ChildUserID)
	if err != nil {
		return ChildAccount{}, fmt.Errorf("child %s entitlements: %w", rel.ChildUserID, err)
	}
	granted := make([]capabilities.Entitlement, 0)
	for _, ent := range active {
		if ent.PurchasedBy == parentUserID {
			granted = append(granted, ent)
		}
	}
	return ChildAccount{
		UserID:           rel.ChildUserID,
		Name:             rel.ChildName,
		RelationshipType: rel.RelationshipType,
		Granted:          granted,
		Products:         productIDs(active),
	}, nil
}

// PurchaseHistory lists every grant the parent made, newest first, with
// child names joined in from the relationship table.
func (m *Manager) PurchaseHistory(ctx context.Context, parentUserID string) ([]ParentPurchase, error) {
	ents, err := m.store.EntitlementsPurchasedBy(ctx, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("purchase history: %w", err)
	}
	rels, err := m.store.ChildRelationshipsByParent(ctx, parentUserID)
	if err != nil {
		return nil, fmt.Errorf("child relationships: %w", err)
	}
	names := make(map[string]string, len(rels))
	for _, rel := range rels {
		names[rel.ChildUserID] = rel.ChildName
	}

	history := make([]ParentPurchase, 0, len(ents))
	for _, ent := range ents {
		history = append(history, ParentPurchase{
			EntitlementID: ent.ID,
			ChildUserID:   ent.SubjectID,
			ChildName:     names[ent.SubjectID],
			ProductID:     ent.ProductID,
			Status:        ent.Status,
			CreatedAt:     ent.CreatedAt,
			ExpiresAt:     ent.ExpiresAt,
		})
	}
	return history, nil
}

// EligibleChildren returns the parent's children who do not yet hold
// full-tier academy access, the upsell targets.
func (m *Manager) EligibleChildren(ctx context.Context, parentUserID string) ([]ChildAccount, error) {
	account, err := m.FamilyAccount(ctx, parentUserID)
	if err != nil {
		return nil, err
	}
	eligible := make([]ChildAccount, 0, len(account.Children))
	for _, child := range account.Children {
		if m.catalog.AcademyTier(child.Products) != catalog.TierFull {
			eligible = append(eligible, child)
		}
	}
	return eligible, nil
}

// BulkPurchase grants the same product to many children with bounded
// concurrency. Each child is isolated: one failure never aborts the rest.
func (m *Manager) BulkPurchase(ctx context.Context, parentUserID string, childUserIDs []string, productID catalog.ProductID) BulkOutcome {
	type itemResult struct {
		childID string
		result  PurchaseResult
	}
	results := make([]itemResult, len(childUserIDs))

	g := new(errgroup.Group)
	g.SetLimit(m.bulkPar)
	for i, childID := range childUserIDs {
		g.Go(func() error {
			res := m.ProcessPurchase(ctx, PurchaseRequest{
				ParentUserID: parentUserID,
				ChildUserID:  childID,
				ProductID:    productID,
			})
			results[i] = itemResult{childID: childID, result: res}
			return nil
		})
	}
	_ = g.Wait()

	var out BulkOutcome
	for _, r := range results {
		if r.result.Success {
			out.Successful = append(out.Successful, r.childID)
		} else {
			out.Failed = append(out.Failed, BulkFailure{ChildUserID: r.childID, Error: r.result.Error})
		}
	}
	return out
}

func (m *Manager) logAudit(ctx context.Context, entry AuditEntry) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogPurchaseEvent(ctx, entry); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"action":        entry.Action,
			"child_user_id": entry.ChildUserID,
			"product_id":    entry.ProductID,
		}).Warn("purchase audit write failed")
	}
}

func (m *Manager) invalidate(ctx context.Context, userID string) {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.InvalidateUser(ctx, userID); err != nil {
		m.log.WithField("user_id", userID).WithError(err).Warn("capability cache invalidation failed")
	}
}

func productIDs(ents []capabilities.Entitlement) []catalog.ProductID {
	out := make([]catalog.ProductID, 0, len(ents))
	for _, ent := range ents {
		out = append(out, ent.ProductID)
	}
	return out
}
