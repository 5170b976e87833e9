package store

import (
	"context"
	"testing"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
)

func TestCreateAndQueryByID(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	err := m.Transact(ctx, []Mutation{
		Create(KindCustomers, "c1", map[string]any{"fullName": "Ada Lovelace", "email": "ada@example.com"}),
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	res, err := m.Query(ctx, Query{KindCustomers: {Where: map[string]any{"id": "c1"}}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res[KindCustomers]) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(res[KindCustomers]))
	}
	if got := res[KindCustomers][0].Str("fullName"); got != "Ada Lovelace" {
		t.Fatalf("fullName = %q", got)
	}
}

func TestCreateDuplicateIDConflicts(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	if err := m.Transact(ctx, []Mutation{Create(KindSuppliers, "s1", map[string]any{"name": "Acme"})}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	err := m.Transact(ctx, []Mutation{Create(KindSuppliers, "s1", map[string]any{"name": "Other"})})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestUpdateIsStrictPartialMerge(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	mustTransact(t, m, Create(KindInventoryItems, "i1", map[string]any{"quantity": float64(10), "costPrice": float64(4)}))
	mustTransact(t, m, Update(KindInventoryItems, "i1", map[string]any{"quantity": float64(7)}))

	rec := mustFindOne(t, m, KindInventoryItems, "i1")
	if rec.Num("quantity") != 7 {
		t.Fatalf("quantity = %v", rec.Num("quantity"))
	}
	if rec.Num("costPrice") != 4 {
		t.Fatalf("costPrice was not preserved: %v", rec.Num("costPrice"))
	}

	err := m.Transact(ctx, []Mutation{Update(KindInventoryItems, "missing", map[string]any{"quantity": float64(1)})})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for missing record, got %v", err)
	}
}

func TestUpsertCreatesThenMerges(t *testing.T) {
	m := NewMemory(nil)

	mustTransact(t, m, Upsert(KindUsers, "u1", map[string]any{"fullName": "Sam", "role": "pos"}))
	mustTransact(t, m, Upsert(KindUsers, "u1", map[string]any{"role": "admin"}))

	rec := mustFindOne(t, m, KindUsers, "u1")
	if rec.Str("fullName") != "Sam" || rec.Str("role") != "admin" {
		t.Fatalf("unexpected record after upserts: %v", rec)
	}
}

func TestTransactIsAtomic(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	err := m.Transact(ctx, []Mutation{
		Create(KindCustomers, "c1", map[string]any{"fullName": "A"}),
		Update(KindCustomers, "nope", map[string]any{"fullName": "B"}),
	})
	if err == nil {
		t.Fatal("expected batch to fail")
	}
	res, err := m.Query(ctx, Query{KindCustomers: {}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res[KindCustomers]) != 0 {
		t.Fatalf("failed batch must not leave partial writes, got %d records", len(res[KindCustomers]))
	}
}

func TestLinkAndRelatedFetch(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	mustTransact(t, m,
		Create(KindCustomers, "c1", map[string]any{"fullName": "A"}),
		Create(KindOrders, "o1", map[string]any{"orderNumber": "1001"}),
		Link(KindOrders, "o1", LabelCustomer, "c1"),
	)

	res, err := m.Query(ctx, Query{
		KindOrders: {Where: map[string]any{"id": "o1"}, With: map[string]Selection{LabelCustomer: {}}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	related := res[KindOrders][0].Related(LabelCustomer)
	if len(related) != 1 || related[0].ID() != "c1" {
		t.Fatalf("customer relation = %v", related)
	}

	// Reverse label resolves the same edge.
	res, err = m.Query(ctx, Query{
		KindCustomers: {Where: map[string]any{"id": "c1"}, With: map[string]Selection{LabelOrders: {}}},
	})
	if err != nil {
		t.Fatalf("reverse query: %v", err)
	}
	orders := res[KindCustomers][0].Related(LabelOrders)
	if len(orders) != 1 || orders[0].ID() != "o1" {
		t.Fatalf("orders relation = %v", orders)
	}
}

func TestLinkHasOneReplacesExistingEdge(t *testing.T) {
	m := NewMemory(nil)

	mustTransact(t, m,
		Create(KindCustomers, "c1", map[string]any{"fullName": "A"}),
		Create(KindCustomers, "c2", map[string]any{"fullName": "B"}),
		Create(KindOrders, "o1", map[string]any{"orderNumber": "1001"}),
		Link(KindOrders, "o1", LabelCustomer, "c1"),
	)
	mustTransact(t, m, Link(KindOrders, "o1", LabelCustomer, "c2"))

	rec := mustFindOneWith(t, m, KindOrders, "o1", LabelCustomer)
	related := rec.Related(LabelCustomer)
	if len(related) != 1 || related[0].ID() != "c2" {
		t.Fatalf("has-one link must replace the prior edge, got %v", related)
	}
	if got := m.EdgeCount(EdgeCustomerOrder); got != 1 {
		t.Fatalf("edge count = %d", got)
	}
}

func TestLinkIsIdempotent(t *testing.T) {
	m := NewMemory(nil)

	mustTransact(t, m,
		Create(KindInventoryItems, "i1", map[string]any{"quantity": float64(1)}),
		Create(KindAttributeItem, "a1", map[string]any{"name": "red"}),
		Link(KindInventoryItems, "i1", LabelAttributes, "a1"),
	)
	mustTransact(t, m, Link(KindInventoryItems, "i1", LabelAttributes, "a1"))

	if got := m.EdgeCount(EdgeInventoryItemAttribute); got != 1 {
		t.Fatalf("re-linking must be a no-op, edge count = %d", got)
	}
}

func TestDeleteDetachesEdges(t *testing.T) {
	m := NewMemory(nil)

	mustTransact(t, m,
		Create(KindSuppliers, "s1", map[string]any{"name": "Acme"}),
		Create(KindInventoryItems, "i1", map[string]any{"quantity": float64(5)}),
		Link(KindInventoryItems, "i1", LabelSupplier, "s1"),
	)
	mustTransact(t, m, Delete(KindInventoryItems, "i1"))

	if got := m.EdgeCount(EdgeInventoryItemSupplier); got != 0 {
		t.Fatalf("deleting a record must drop its edges, count = %d", got)
	}
}

func TestQueryGreaterThanCondition(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	mustTransact(t, m,
		Create(KindOrders, "o1", map[string]any{"createdAt": float64(100)}),
		Create(KindOrders, "o2", map[string]any{"createdAt": float64(200)}),
	)

	res, err := m.Query(ctx, Query{
		KindOrders: {Where: map[string]any{"createdAt": GreaterThan(150)}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res[KindOrders]) != 1 || res[KindOrders][0].ID() != "o2" {
		t.Fatalf("gt filter returned %v", res[KindOrders])
	}
}

func mustTransact(t *testing.T, m *Memory, muts ...Mutation) {
	t.Helper()
	if err := m.Transact(context.Background(), muts); err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func mustFindOne(t *testing.T, m *Memory, kind, id string) Record {
	t.Helper()
	res, err := m.Query(context.Background(), Query{kind: {Where: map[string]any{"id": id}}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res[kind]) != 1 {
		t.Fatalf("expected one %s record, got %d", kind, len(res[kind]))
	}
	return res[kind][0]
}

func mustFindOneWith(t *testing.T, m *Memory, kind, id, label string) Record {
	t.Helper()
	res, err := m.Query(context.Background(), Query{
		kind: {Where: map[string]any{"id": id}, With: map[string]Selection{label: {}}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res[kind]) != 1 {
		t.Fatalf("expected one %s record, got %d", kind, len(res[kind]))
	}
	return res[kind][0]
}
