package purchases_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/powlax/memberkit/capabilities"
	"github.com/powlax/memberkit/catalog"
	"github.com/powlax/memberkit/purchases"
	memorystore "github.com/powlax/memberkit/storage/memory"
)

// newFamily seeds parent1 (holding an active academy product, so eligible to
// purchase) with two linked children.
func newFamily(t *testing.T) *memorystore.Store {
	t.Helper()
	store := memorystore.New()
	store.AddUser("parent1", "Pat Parent")
	store.AddUser("child1", "Casey Child")
	store.AddUser("child2", "Riley Child")
	store.AddRelationship("parent1", "child1", "parent")
	store.AddRelationship("parent1", "child2", "parent")
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "parent1",
		ProductID: catalog.SkillsAcademyMonthly,
		Status:    capabilities.StatusActive,
	})
	return store
}

func newManager(t *testing.T, cfg purchases.Config) *purchases.Manager {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	mgr, err := purchases.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

type captureAudit struct {
	mu      sync.Mutex
	entries []purchases.AuditEntry
}

func (c *captureAudit) LogPurchaseEvent(ctx context.Context, entry purchases.AuditEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

type failingAudit struct{}

func (failingAudit) LogPurchaseEvent(ctx context.Context, entry purchases.AuditEntry) error {
	return errors.New("audit sink down")
}

type captureInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureInvalidator) InvalidateUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, userID)
	return nil
}

func TestValidatePurchaseHappyPath(t *testing.T) {
	mgr := newManager(t, purchases.Config{Store: newFamily(t)})

	res, err := mgr.ValidatePurchase(context.Background(), "parent1", "child1", catalog.SkillsAcademyBasic)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if !res.Valid || len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestValidatePurchaseNoRelationship(t *testing.T) {
	mgr := newManager(t, purchases.Config{Store: newFamily(t)})

	res, err := mgr.ValidatePurchase(context.Background(), "parent1", "stranger", catalog.SkillsAcademyBasic)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if res.Valid {
		t.Fatalf("unlinked child should not validate")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "no parent-child relationship") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidatePurchaseProductRules(t *testing.T) {
	mgr := newManager(t, purchases.Config{Store: newFamily(t)})
	ctx := context.Background()

	res, err := mgr.ValidatePurchase(ctx, "parent1", "child1", "no_such_product")
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if res.Valid || !strings.Contains(res.Errors[0], "unknown product") {
		t.Fatalf("unknown product result = %+v", res)
	}

	res, err = mgr.ValidatePurchase(ctx, "parent1", "child1", catalog.CoachEssentialsKit)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if res.Valid || !strings.Contains(res.Errors[0], "cannot be purchased for a child") {
		t.Fatalf("non-shareable result = %+v", res)
	}
}

func TestValidatePurchaseWarnings(t *testing.T) {
	store := newFamily(t)
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "child1",
		ProductID: catalog.SkillsAcademyBasic,
		Status:    capabilities.StatusActive,
	})
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "child2",
		ProductID: catalog.SkillsAcademyBasic,
		Status:    capabilities.StatusCancelled,
	})
	mgr := newManager(t, purchases.Config{Store: store})
	ctx := context.Background()

	res, err := mgr.ValidatePurchase(ctx, "parent1", "child1", catalog.SkillsAcademyBasic)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if !res.Valid {
		t.Fatalf("warnings must not block: %+v", res)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "already has an active") {
		t.Fatalf("warnings = %v", res.Warnings)
	}

	res, err = mgr.ValidatePurchase(ctx, "parent1", "child2", catalog.SkillsAcademyBasic)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if !res.Valid || len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "reactivate") {
		t.Fatalf("reactivation result = %+v", res)
	}
}

func TestValidatePurchaseParentIneligible(t *testing.T) {
	store := memorystore.New()
	store.AddUser("parent1", "Pat Parent")
	store.AddUser("child1", "Casey Child")
	store.AddRelationship("parent1", "child1", "parent")
	mgr := newManager(t, purchases.Config{Store: store})

	res, err := mgr.ValidatePurchase(context.Background(), "parent1", "child1", catalog.SkillsAcademyBasic)
	if err != nil {
		t.Fatalf("ValidatePurchase: %v", err)
	}
	if res.Valid || !strings.Contains(res.Errors[0], "not eligible to purchase") {
		t.Fatalf("result = %+v", res)
	}
}

func TestProcessPurchase(t *testing.T) {
	store := newFamily(t)
	audit := &captureAudit{}
	inval := &captureInvalidator{}
	mgr := newManager(t, purchases.Config{Store: store, Audit: audit, Invalidator: inval})
	ctx := context.Background()

	res := mgr.ProcessPurchase(ctx, purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "child1",
		ProductID:    catalog.SkillsAcademyBasic,
	})
	if !res.Success || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	if res.PurchaseID == "" || !strings.HasPrefix(res.Receipt, "po_") {
		t.Fatalf("purchase id %q, receipt %q", res.PurchaseID, res.Receipt)
	}

	ent, err := store.EntitlementBySubjectAndProduct(ctx, "child1", catalog.SkillsAcademyBasic)
	if err != nil || ent == nil {
		t.Fatalf("entitlement row: %+v, %v", ent, err)
	}
	if ent.Status != capabilities.StatusActive || ent.PurchasedBy != "parent1" {
		t.Fatalf("entitlement = %+v", ent)
	}

	if len(audit.entries) != 1 || audit.entries[0].Action != purchases.ActionPurchaseProcessed {
		t.Fatalf("audit = %+v", audit.entries)
	}
	if audit.entries[0].Receipt != res.Receipt {
		t.Fatalf("audit receipt %q != %q", audit.entries[0].Receipt, res.Receipt)
	}
	if len(inval.ids) != 1 || inval.ids[0] != "child1" {
		t.Fatalf("invalidations = %v", inval.ids)
	}
}

func TestProcessPurchaseIdempotent(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store})
	ctx := context.Background()
	req := purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "child1",
		ProductID:    catalog.SkillsAcademyBasic,
	}

	first := mgr.ProcessPurchase(ctx, req)
	second := mgr.ProcessPurchase(ctx, req)
	if !first.Success || !second.Success {
		t.Fatalf("results = %+v, %+v", first, second)
	}
	if first.PurchaseID != second.PurchaseID {
		t.Fatalf("repurchase created a new row: %q vs %q", first.PurchaseID, second.PurchaseID)
	}
	if n := store.EntitlementCount("child1", catalog.SkillsAcademyBasic); n != 1 {
		t.Fatalf("entitlement rows = %d", n)
	}
	if first.Receipt == second.Receipt {
		t.Fatalf("each purchase should issue its own receipt")
	}
}

func TestProcessPurchaseInvalidRequest(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store})

	res := mgr.ProcessPurchase(context.Background(), purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "stranger",
		ProductID:    catalog.SkillsAcademyBasic,
	})
	if res.Success || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
	if ent, _ := store.EntitlementBySubjectAndProduct(context.Background(), "stranger", catalog.SkillsAcademyBasic); ent != nil {
		t.Fatalf("invalid purchase wrote a row: %+v", ent)
	}
}

func TestProcessPurchaseSurvivesAuditFailure(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store, Audit: failingAudit{}})

	res := mgr.ProcessPurchase(context.Background(), purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "child1",
		ProductID:    catalog.SkillsAcademyBasic,
	})
	if !res.Success {
		t.Fatalf("audit failure must not fail the purchase: %+v", res)
	}
	if ent, _ := store.EntitlementBySubjectAndProduct(context.Background(), "child1", catalog.SkillsAcademyBasic); ent == nil {
		t.Fatalf("entitlement row missing")
	}
}

func TestCancelPurchase(t *testing.T) {
	store := newFamily(t)
	audit := &captureAudit{}
	mgr := newManager(t, purchases.Config{Store: store, Audit: audit})
	ctx := context.Background()

	if res := mgr.ProcessPurchase(ctx, purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "child1",
		ProductID:    catalog.SkillsAcademyBasic,
	}); !res.Success {
		t.Fatalf("setup purchase failed: %+v", res)
	}

	// A different purchaser never matches.
	other := mgr.CancelPurchase(ctx, "parent2", "child1", catalog.SkillsAcademyBasic)
	if other.Success || other.Error != "no matching purchase" {
		t.Fatalf("foreign cancel = %+v", other)
	}

	res := mgr.CancelPurchase(ctx, "parent1", "child1", catalog.SkillsAcademyBasic)
	if !res.Success {
		t.Fatalf("cancel = %+v", res)
	}
	ent, _ := store.EntitlementBySubjectAndProduct(ctx, "child1", catalog.SkillsAcademyBasic)
	if ent == nil || ent.Status != capabilities.StatusCancelled {
		t.Fatalf("entitlement after cancel = %+v", ent)
	}
	if len(audit.entries) != 2 || audit.entries[1].Action != purchases.ActionPurchaseCancelled {
		t.Fatalf("audit = %+v", audit.entries)
	}
}

func TestCancelPurchaseNothingToCancel(t *testing.T) {
	mgr := newManager(t, purchases.Config{Store: newFamily(t)})

	res := mgr.CancelPurchase(context.Background(), "parent1", "child1", catalog.SkillsAcademyBasic)
	if res.Success || res.Error != "no matching purchase" {
		t.Fatalf("result = %+v", res)
	}
}

func TestFamilyAccount(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store})
	ctx := context.Background()

	// child1: one grant from parent1 and one self-owned product.
	if res := mgr.ProcessPurchase(ctx, purchases.PurchaseRequest{
		ParentUserID: "parent1",
		ChildUserID:  "child1",
		ProductID:    catalog.SkillsAcademyBasic,
	}); !res.Success {
		t.Fatalf("setup purchase failed: %+v", res)
	}
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "child1",
		ProductID: catalog.SkillsAcademyStarter,
		Status:    capabilities.StatusActive,
	})

	account, err := mgr.FamilyAccount(ctx, "parent1")
	if err != nil {
		t.Fatalf("FamilyAccount: %v", err)
	}
	if account.ParentUserID != "parent1" || len(account.ParentProducts) != 1 {
		t.Fatalf("account = %+v", account)
	}
	if len(account.Children) != 2 {
		t.Fatalf("children = %d", len(account.Children))
	}

	byID := map[string]purchases.ChildAccount{}
	for _, c := range account.Children {
		byID[c.UserID] = c
	}
	c1 := byID["child1"]
	if c1.Name != "Casey Child" || len(c1.Granted) != 1 || len(c1.Products) != 2 {
		t.Fatalf("child1 = %+v", c1)
	}
	if c1.Granted[0].ProductID != catalog.SkillsAcademyBasic {
		t.Fatalf("granted = %+v", c1.Granted)
	}
	c2 := byID["child2"]
	if len(c2.Granted) != 0 || len(c2.Products) != 0 {
		t.Fatalf("child2 = %+v", c2)
	}
}

func TestFamilyAccountNoChildren(t *testing.T) {
	store := memorystore.New()
	store.AddUser("solo", "Solo Parent")
	mgr := newManager(t, purchases.Config{Store: store})

	account, err := mgr.FamilyAccount(context.Background(), "solo")
	if err != nil {
		t.Fatalf("FamilyAccount: %v", err)
	}
	if account == nil || len(account.Children) != 0 {
		t.Fatalf("account = %+v", account)
	}
}

func TestPurchaseHistory(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store})
	ctx := context.Background()

	for _, childID := range []string{"child1", "child2"} {
		if res := mgr.ProcessPurchase(ctx, purchases.PurchaseRequest{
			ParentUserID: "parent1",
			ChildUserID:  childID,
			ProductID:    catalog.SkillsAcademyBasic,
		}); !res.Success {
			t.Fatalf("setup purchase for %s failed: %+v", childID, res)
		}
	}

	history, err := mgr.PurchaseHistory(ctx, "parent1")
	if err != nil {
		t.Fatalf("PurchaseHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	// Newest first.
	if history[0].ChildUserID != "child2" || history[1].ChildUserID != "child1" {
		t.Fatalf("order = %s, %s", history[0].ChildUserID, history[1].ChildUserID)
	}
	if history[0].ChildName != "Riley Child" {
		t.Fatalf("child name = %q", history[0].ChildName)
	}
}

func TestEligibleChildren(t *testing.T) {
	store := newFamily(t)
	// child1 already holds full academy, child2 holds nothing.
	store.SeedEntitlement(capabilities.Entitlement{
		SubjectID: "child1",
		ProductID: catalog.SkillsAcademyMonthly,
		Status:    capabilities.StatusActive,
	})
	mgr := newManager(t, purchases.Config{Store: store})

	eligible, err := mgr.EligibleChildren(context.Background(), "parent1")
	if err != nil {
		t.Fatalf("EligibleChildren: %v", err)
	}
	if len(eligible) != 1 || eligible[0].UserID != "child2" {
		t.Fatalf("eligible = %+v", eligible)
	}
}

func TestBulkPurchaseIsolation(t *testing.T) {
	store := newFamily(t)
	mgr := newManager(t, purchases.Config{Store: store})

	outcome := mgr.BulkPurchase(context.Background(), "parent1",
		[]string{"child1", "stranger", "child2"}, catalog.SkillsAcademyBasic)
	if len(outcome.Successful) != 2 {
		t.Fatalf("successful = %v", outcome.Successful)
	}
	if len(outcome.Failed) != 1 || outcome.Failed[0].ChildUserID != "stranger" {
		t.Fatalf("failed = %+v", outcome.Failed)
	}
	if outcome.Failed[0].Error == "" {
		t.Fatalf("failure should carry the validation error")
	}
	for _, childID := range []string{"child1", "child2"} {
		if n := store.EntitlementCount(childID, catalog.SkillsAcademyBasic); n != 1 {
			t.Fatalf("%s rows = %d", childID, n)
		}
	}
}
