package inventory

import (
	"context"
	"io"
	"testing"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

type fixture struct {
	service *Service
	store   *store.Memory
	auditor *Auditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemory(nil)
	aud := NewAuditor(m, func() time.Time { return time.Unix(1700000000, 0) })
	svc, err := NewService(ServiceParams{
		Store:   m,
		Logger:  logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard}),
		Auditor: aud,
		Now:     func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{service: svc, store: m, auditor: aud}
}

func (f *fixture) seedSupplier(t *testing.T, id, name string) {
	t.Helper()
	if err := f.store.Transact(context.Background(), []store.Mutation{
		store.Create(store.KindSuppliers, id, map[string]any{"name": name}),
	}); err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
}

func (f *fixture) seedAttribute(t *testing.T, id, title string) {
	t.Helper()
	if err := f.store.Transact(context.Background(), []store.Mutation{
		store.Create(store.KindAttributeItem, id, map[string]any{"title": title}),
	}); err != nil {
		t.Fatalf("seed attribute: %v", err)
	}
}

func (f *fixture) auditRecords(t *testing.T) []store.Record {
	t.Helper()
	result, err := f.store.Query(context.Background(), store.Query{
		store.KindInventoryAudits: {},
	})
	if err != nil {
		t.Fatalf("query audits: %v", err)
	}
	return result[store.KindInventoryAudits]
}

func TestCreateLinksSupplierAndAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSupplier(t, "sup-1", "Acme Wholesale")
	f.seedAttribute(t, "attr-1", "Red")
	f.seedAttribute(t, "attr-2", "Large")

	item, err := f.service.Create(ctx, CreateInput{
		Name:         "Widget",
		Quantity:     10,
		CostPrice:    2.5,
		SupplierID:   "sup-1",
		AttributeIDs: []string{"attr-1", "attr-2"},
		UserID:       "user-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := item.Num("quantity"); got != 10 {
		t.Fatalf("quantity = %v, want 10", got)
	}
	if item.Num("lastStockedAt") == 0 {
		t.Fatal("lastStockedAt not set")
	}
	supplier := item.Related(store.LabelSupplier)
	if len(supplier) != 1 || supplier[0].ID() != "sup-1" {
		t.Fatalf("supplier = %v, want sup-1", supplier)
	}
	if got := len(item.Related(store.LabelAttributes)); got != 2 {
		t.Fatalf("attributes = %d, want 2", got)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), CreateInput{Quantity: -1})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeValidation {
		t.Fatalf("code = %v, want VALIDATION", code)
	}
}

func TestCreateWritesAuditRecord(t *testing.T) {
	f := newFixture(t)
	item, err := f.service.Create(context.Background(), CreateInput{
		Name:     "Widget",
		Quantity: 5,
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	audits := f.auditRecords(t)
	if len(audits) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audits))
	}
	if got := audits[0].Str("action"); got != ActionCreateInventory {
		t.Fatalf("action = %q, want %q", got, ActionCreateInventory)
	}
	if got := audits[0].Str("inventoryItemId"); got != item.ID() {
		t.Fatalf("inventoryItemId = %q, want %q", got, item.ID())
	}
	if got := audits[0].Num("quantityAfter"); got != 5 {
		t.Fatalf("quantityAfter = %v, want 5", got)
	}
}

func TestUpdateIsStrictlyPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, CreateInput{Name: "Widget", Quantity: 10, CostPrice: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newPrice := 3.5
	updated, err := f.service.Update(ctx, created.ID(), UpdateInput{CostPrice: &newPrice})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := updated.Num("quantity"); got != 10 {
		t.Fatalf("quantity = %v, want untouched 10", got)
	}
	if got := updated.Num("costPrice"); got != 3.5 {
		t.Fatalf("costPrice = %v, want 3.5", got)
	}
}

func TestUpdateReplacesAttributeSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedAttribute(t, "attr-1", "Red")
	f.seedAttribute(t, "attr-2", "Large")
	f.seedAttribute(t, "attr-3", "Cotton")

	created, err := f.service.Create(ctx, CreateInput{
		Name:         "Widget",
		Quantity:     1,
		AttributeIDs: []string{"attr-1", "attr-2"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := f.service.Update(ctx, created.ID(), UpdateInput{
		AttributeIDs: []string{"attr-3"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	attrs := updated.Related(store.LabelAttributes)
	if len(attrs) != 1 || attrs[0].ID() != "attr-3" {
		t.Fatalf("attributes = %v, want only attr-3", attrs)
	}
}

func TestUpdateUnknownItemFails(t *testing.T) {
	f := newFixture(t)
	q := 1.0
	_, err := f.service.Update(context.Background(), "missing", UpdateInput{Quantity: &q})
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeNotFound {
		t.Fatalf("code = %v, want NOT_FOUND", code)
	}
}

func TestDecrementReducesQuantityAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, CreateInput{Name: "Widget", Quantity: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.service.Decrement(ctx, created.ID(), 3, "user-1"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	item, err := f.service.FindOne(ctx, created.ID())
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got := item.Num("quantity"); got != 7 {
		t.Fatalf("quantity = %v, want 7", got)
	}

	audits := f.auditRecords(t)
	var found bool
	for _, rec := range audits {
		if rec.Str("action") == OriginUpdateOrder+">"+ActionUpdateInventory {
			found = true
			if rec.Num("quantityBefore") != 10 || rec.Num("quantityAfter") != 7 {
				t.Fatalf("audit quantities = %v/%v, want 10/7",
					rec.Num("quantityBefore"), rec.Num("quantityAfter"))
			}
		}
	}
	if !found {
		t.Fatalf("no %s audit record found", OriginUpdateOrder+">"+ActionUpdateInventory)
	}
}

func TestDeleteRemovesItemAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, CreateInput{Name: "Widget", Quantity: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.service.Delete(ctx, created.ID(), "user-1", OriginDeleteOrder); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.service.FindOne(ctx, created.ID()); pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}

	audits := f.auditRecords(t)
	var found bool
	for _, rec := range audits {
		if rec.Str("action") == OriginDeleteOrder+">"+ActionDeleteInventory {
			found = true
			if rec.Num("quantityBefore") != 4 {
				t.Fatalf("quantityBefore = %v, want 4", rec.Num("quantityBefore"))
			}
		}
	}
	if !found {
		t.Fatal("delete audit record not written")
	}
}

// failingAuditor always errors; the mutation must still succeed.
type failingAuditor struct{}

func (failingAuditor) Record(context.Context, AuditEntry) error {
	return pkgerrors.New(pkgerrors.CodeDependency, "audit store down")
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	m := store.NewMemory(nil)
	svc, err := NewService(ServiceParams{
		Store:   m,
		Logger:  logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard}),
		Auditor: failingAuditor{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	item, err := svc.Create(context.Background(), CreateInput{Name: "Widget", Quantity: 2})
	if err != nil {
		t.Fatalf("Create should survive audit failure: %v", err)
	}
	if item.Num("quantity") != 2 {
		t.Fatalf("quantity = %v, want 2", item.Num("quantity"))
	}
}
