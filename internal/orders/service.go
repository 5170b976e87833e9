// Package orders implements the order lifecycle: creation, guarded status
// transitions, history, and the one-time inventory decrement on fulfillment.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// fulfillmentAppliedField marks an order whose inventory decrement already
// ran, so a repeated COMPLETED transition cannot decrement twice.
const fulfillmentAppliedField = "fulfillmentApplied"

// protectedFields are keys an UpdateInput.Fields map can never write: status
// and history only move through the guarded transition path, the fulfillment
// marker only through a COMPLETED transition, and the rest are service-owned.
var protectedFields = map[string]bool{
	"id":                    true,
	"customerId":            true,
	"orderStatus":           true,
	"statusHistory":         true,
	fulfillmentAppliedField: true,
	"createdAt":             true,
	"updatedAt":             true,
}

// inventoryAdjuster decrements stock when an order is fulfilled.
type inventoryAdjuster interface {
	Decrement(ctx context.Context, itemID string, quantity float64, actorID string) error
}

// ServiceParams configure the order service.
type ServiceParams struct {
	Store     store.Client
	Logger    *logger.Logger
	Inventory inventoryAdjuster
	Now       func() time.Time
}

// Service manages orders.
type Service struct {
	store     store.Client
	logg      *logger.Logger
	inventory inventoryAdjuster
	now       func() time.Time
}

// NewService validates dependencies and builds the order service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     params.Store,
		logg:      params.Logger,
		inventory: params.Inventory,
		now:       now,
	}, nil
}

// FindOne fetches an order by id.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindOrders: {Where: map[string]any{"id": id}},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindOrders]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %q not found", id)
	}
	return records[0], nil
}

// List fetches every order.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{store.KindOrders: {}})
	if err != nil {
		return nil, err
	}
	return result[store.KindOrders], nil
}

// Create opens a new order with derived amounts, an initial history entry,
// and optional customer/operator links.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = StatusCreated
	}
	if !status.Valid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", status)
	}

	items, err := json.Marshal(input.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize line items")
	}
	nowMillis := s.now().UnixMilli()
	history, err := marshalHistory([]HistoryEntry{
		{User: input.POSOperatorID, Status: status, Timestamp: nowMillis},
	})
	if err != nil {
		return nil, err
	}

	discountType := "none"
	if input.Discount > 0 {
		discountType = "fixed"
	}

	newID := s.store.NewID()
	muts := []store.Mutation{
		store.Create(store.KindOrders, newID, map[string]any{
			"orderNumber":    input.OrderNumber,
			"items":          string(items),
			"amount":         input.TotalAmount - (input.VAT + input.Discount + input.DeliveryCharge),
			"vatRate":        input.VATRate,
			"vatAmount":      input.VAT,
			"discountType":   discountType,
			"discountValue":  input.Discount,
			"discountAmount": input.Discount,
			"deliveryCharge": input.DeliveryCharge,
			"totalAmount":    input.TotalAmount,
			"orderStatus":    string(status),
			"paymentStatus":  "PENDING",
			"deliveryMethod": input.OrderType,
			"statusHistory":  history,
			"notes":          input.Notes,
			"createdAt":      nowMillis,
			"updatedAt":      nowMillis,
		}),
	}
	if input.CustomerID != "" {
		muts = append(muts, store.Link(store.KindOrders, newID, store.LabelCustomer, input.CustomerID))
	}
	if input.POSOperatorID != "" {
		muts = append(muts, store.Link(store.KindOrders, newID, store.LabelPosOperator, input.POSOperatorID))
	}
	if err := s.store.Transact(ctx, muts); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, newID), "order created")
	return s.FindOne(ctx, newID)
}

// Update applies a guarded status change plus field updates. Every update
// appends one history entry, whether or not the status changed.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	order, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	current := Status(order.Str("orderStatus"))

	if input.Status != "" {
		if !input.Status.Valid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Status)
		}
		if err := checkTransition(current, input.Status); err != nil {
			return nil, err
		}
	}

	if input.CustomerChanged && input.CustomerID != "" {
		if err := s.relinkCustomer(ctx, id, input.CustomerID); err != nil {
			return nil, err
		}
	}

	resulting := current
	if input.Status != "" {
		resulting = input.Status
	}
	history, err := appendHistory(order.Str("statusHistory"), HistoryEntry{
		User:      input.UserID,
		Status:    resulting,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"statusHistory": history,
		"updatedAt":     s.now().UnixMilli(),
	}
	for k, v := range input.Fields {
		if protectedFields[k] {
			continue
		}
		fields[k] = v
	}
	if input.Status != "" {
		fields["orderStatus"] = string(input.Status)
	}

	fulfill := input.Status == StatusCompleted && !order.Bool(fulfillmentAppliedField)
	if fulfill {
		fields[fulfillmentAppliedField] = true
	}

	if err := s.store.Transact(ctx, []store.Mutation{
		store.Update(store.KindOrders, id, fields),
	}); err != nil {
		return nil, err
	}

	if fulfill {
		if err := s.applyFulfillment(ctx, id, order, input.UserID); err != nil {
			return nil, err
		}
	}

	return s.FindOne(ctx, id)
}

// Delete removes an order.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.FindOne(ctx, id); err != nil {
		return err
	}
	return s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindOrders, id),
	})
}

// relinkCustomer swaps the order's customer edge for an intentional change.
func (s *Service) relinkCustomer(ctx context.Context, id, customerID string) error {
	result, err := s.store.Query(ctx, store.Query{
		store.KindOrders: {
			Where: map[string]any{"id": id},
			With:  map[string]store.Selection{store.LabelCustomer: {}},
		},
	})
	if err != nil {
		return err
	}
	var muts []store.Mutation
	if records := result[store.KindOrders]; len(records) > 0 {
		if existing := records[0].Related(store.LabelCustomer); len(existing) > 0 {
			muts = append(muts, store.Unlink(store.KindOrders, id, store.LabelCustomer, existing[0].ID()))
		}
	}
	muts = append(muts, store.Link(store.KindOrders, id, store.LabelCustomer, customerID))
	return s.store.Transact(ctx, muts)
}

// applyFulfillment decrements inventory for every line item exactly once.
func (s *Service) applyFulfillment(ctx context.Context, id string, order store.Record, actorID string) error {
	items, err := parseLineItems(order.Str("items"))
	if err != nil {
		return err
	}
	orderCtx := s.logg.WithOrderID(ctx, id)
	for i, item := range items {
		if err := s.inventory.Decrement(ctx, item.ID, item.Quantity, actorID); err != nil {
			// The fulfillment marker is already committed, so these items
			// need manual reconciliation.
			unfulfilled := make([]string, 0, len(items)-i)
			for _, rest := range items[i:] {
				unfulfilled = append(unfulfilled, rest.ID)
			}
			s.logg.Error(s.logg.WithField(orderCtx, "unfulfilled_items", unfulfilled),
				"inventory decrement failed, stock needs reconciliation", err)
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
				fmt.Sprintf("decrement inventory %q", item.ID))
		}
	}
	s.logg.Info(orderCtx, "order fulfilled, inventory decremented")
	return nil
}

// checkTransition enforces the lifecycle guard.
func checkTransition(from, to Status) error {
	if earlyStatuses[from] && postCompletionStatuses[to] {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"order must be COMPLETED before changing status to DISPATCHED, DELIVERED, CANCELLED, or RETURNED")
	}
	if advancedStatuses[from] && earlyStatuses[to] {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"order already completed, cannot change status back to CREATED or IN_PROGRESS")
	}
	return nil
}

func parseLineItems(raw string) ([]LineItem, error) {
	if raw == "" {
		return nil, nil
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse order line items")
	}
	return items, nil
}

func appendHistory(raw string, entry HistoryEntry) (string, error) {
	var history []HistoryEntry
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse status history")
		}
	}
	return marshalHistory(append(history, entry))
}

func marshalHistory(history []HistoryEntry) (string, error) {
	raw, err := json.Marshal(history)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize status history")
	}
	return string(raw), nil
}
