// Package inventory manages stock records, their supplier/attribute links,
// and the audit trail documenting every change.
package inventory

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// auditor is the audit surface the service depends on.
type auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// CreateInput carries the fields for a new inventory item.
type CreateInput struct {
	Name         string   `json:"name" validate:"required"`
	Quantity     float64  `json:"quantity" validate:"gte=0"`
	CostPrice    float64  `json:"costPrice" validate:"gte=0"`
	SupplierID   string   `json:"supplierId"`
	AttributeIDs []string `json:"attributeIds"`
	UserID       string   `json:"userId"`
	Origin       string   `json:"origin"`
}

// UpdateInput carries a partial inventory update. Nil pointers leave the
// field untouched; a non-nil AttributeIDs replaces the attribute set.
type UpdateInput struct {
	Quantity     *float64 `json:"quantity"`
	CostPrice    *float64 `json:"costPrice"`
	SupplierID   string   `json:"supplierId"`
	AttributeIDs []string `json:"attributeIds"`
	UserID       string   `json:"userId"`
	Origin       string   `json:"origin"`
}

// ServiceParams configure the inventory service.
type ServiceParams struct {
	Store   store.Client
	Logger  *logger.Logger
	Auditor auditor
	Now     func() time.Time
}

// Service manages inventory items.
type Service struct {
	store store.Client
	logg  *logger.Logger
	audit auditor
	now   func() time.Time
}

// NewService validates dependencies and builds the inventory service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("auditor required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: params.Store,
		logg:  params.Logger,
		audit: params.Auditor,
		now:   now,
	}, nil
}

// FindOne fetches an item with its supplier and attributes attached.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindInventoryItems: {
			Where: map[string]any{"id": id},
			With: map[string]store.Selection{
				store.LabelSupplier:   {},
				store.LabelAttributes: {},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindInventoryItems]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "inventory item %q not found", id)
	}
	return records[0], nil
}

// List fetches every inventory item.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindInventoryItems: {
			With: map[string]store.Selection{
				store.LabelSupplier:   {},
				store.LabelAttributes: {},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return result[store.KindInventoryItems], nil
}

// Create adds an item with optional supplier and attribute links.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	newID := s.store.NewID()
	muts := []store.Mutation{
		store.Create(store.KindInventoryItems, newID, map[string]any{
			"name":          input.Name,
			"quantity":      input.Quantity,
			"costPrice":     input.CostPrice,
			"lastStockedAt": s.now().UnixMilli(),
		}),
	}
	if input.SupplierID != "" {
		muts = append(muts, store.Link(store.KindInventoryItems, newID, store.LabelSupplier, input.SupplierID))
	}
	if len(input.AttributeIDs) > 0 {
		muts = append(muts, store.Link(store.KindInventoryItems, newID, store.LabelAttributes, input.AttributeIDs...))
	}
	if err := s.store.Transact(ctx, muts); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, AuditEntry{
		ItemID:        newID,
		Action:        ActionCreateInventory,
		Origin:        input.Origin,
		UserID:        input.UserID,
		QuantityAfter: ptr(input.Quantity),
		Details:       map[string]any{"costPrice": input.CostPrice, "supplierId": input.SupplierID},
	})

	return s.FindOne(ctx, newID)
}

// Update applies a strictly partial field merge, optionally replacing the
// supplier and attribute links.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (store.Record, error) {
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	quantityBefore := existing.Num("quantity")

	fields := map[string]any{}
	if input.Quantity != nil {
		fields["quantity"] = *input.Quantity
	}
	if input.CostPrice != nil {
		fields["costPrice"] = *input.CostPrice
	}

	var muts []store.Mutation
	if len(fields) > 0 {
		muts = append(muts, store.Update(store.KindInventoryItems, id, fields))
	}
	if input.SupplierID != "" {
		muts = append(muts, store.Link(store.KindInventoryItems, id, store.LabelSupplier, input.SupplierID))
	}
	if input.AttributeIDs != nil {
		for _, attr := range existing.Related(store.LabelAttributes) {
			muts = append(muts, store.Unlink(store.KindInventoryItems, id, store.LabelAttributes, attr.ID()))
		}
		if len(input.AttributeIDs) > 0 {
			muts = append(muts, store.Link(store.KindInventoryItems, id, store.LabelAttributes, input.AttributeIDs...))
		}
	}
	if len(muts) > 0 {
		if err := s.store.Transact(ctx, muts); err != nil {
			return nil, err
		}
	}

	quantityAfter := quantityBefore
	if input.Quantity != nil {
		quantityAfter = *input.Quantity
	}
	s.recordAudit(ctx, AuditEntry{
		ItemID:         id,
		Action:         ActionUpdateInventory,
		Origin:         input.Origin,
		UserID:         input.UserID,
		QuantityBefore: ptr(quantityBefore),
		QuantityAfter:  ptr(quantityAfter),
		Details:        fields,
	})

	return s.FindOne(ctx, id)
}

// Decrement reduces an item's quantity by the ordered amount. It is the
// fulfillment side effect of completing an order.
func (s *Service) Decrement(ctx context.Context, itemID string, quantity float64, actorID string) error {
	existing, err := s.FindOne(ctx, itemID)
	if err != nil {
		return err
	}
	before := existing.Num("quantity")
	after := before - quantity

	if err := s.store.Transact(ctx, []store.Mutation{
		store.Update(store.KindInventoryItems, itemID, map[string]any{"quantity": after}),
	}); err != nil {
		return err
	}

	s.recordAudit(ctx, AuditEntry{
		ItemID:         itemID,
		Action:         ActionUpdateInventory,
		Origin:         OriginUpdateOrder,
		UserID:         actorID,
		QuantityBefore: ptr(before),
		QuantityAfter:  ptr(after),
	})
	return nil
}

// Delete removes an item, auditing what was removed.
func (s *Service) Delete(ctx context.Context, id, userID, origin string) error {
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	quantityBefore := existing.Num("quantity")

	if err := s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindInventoryItems, id),
	}); err != nil {
		return err
	}

	s.recordAudit(ctx, AuditEntry{
		ItemID:         id,
		Action:         ActionDeleteInventory,
		Origin:         origin,
		UserID:         userID,
		QuantityBefore: ptr(quantityBefore),
	})
	return nil
}

// recordAudit is best-effort: failure is logged, never propagated.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "item_id", entry.ItemID), "audit write failed", err)
	}
}
