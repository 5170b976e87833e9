package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/store"
)

// Audit actions and origins. An origin prefixes the action as
// "ORIGIN>ACTION" so the trail shows which flow triggered the change.
const (
	ActionCreateInventory = "CREATE_INVENTORY"
	ActionUpdateInventory = "UPDATE_INVENTORY"
	ActionDeleteInventory = "DELETE_INVENTORY"

	OriginUpdateOrder = "UPDATE_ORDER"
	OriginDeleteOrder = "DELETE_ORDER"
)

// AuditEntry describes one inventory change for the audit trail.
type AuditEntry struct {
	ItemID         string
	Action         string
	Origin         string
	UserID         string
	QuantityBefore *float64
	QuantityAfter  *float64
	Details        any
}

// Auditor writes best-effort audit records. Failures must never abort the
// mutation being documented; callers log and move on.
type Auditor struct {
	store store.Client
	now   func() time.Time
}

// NewAuditor builds the audit writer.
func NewAuditor(client store.Client, now func() time.Time) *Auditor {
	if now == nil {
		now = time.Now
	}
	return &Auditor{store: client, now: now}
}

// Record writes one audit record, resolving the acting user's full name when
// possible.
func (a *Auditor) Record(ctx context.Context, entry AuditEntry) error {
	action := entry.Action
	if entry.Origin != "" {
		action = entry.Origin + ">" + entry.Action
	}

	fields := map[string]any{
		"inventoryItemId": entry.ItemID,
		"action":          action,
		"userId":          entry.UserID,
		"userFullname":    nil,
		"createdAt":       a.now().UnixMilli(),
	}
	if entry.QuantityBefore != nil {
		fields["quantityBefore"] = *entry.QuantityBefore
	}
	if entry.QuantityAfter != nil {
		fields["quantityAfter"] = *entry.QuantityAfter
	}
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err == nil {
			fields["details"] = string(raw)
		}
	}

	if entry.UserID != "" {
		if name := a.lookupUserName(ctx, entry.UserID); name != "" {
			fields["userFullname"] = name
		}
	}

	return a.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindInventoryAudits, a.store.NewID(), fields),
	})
}

// lookupUserName is best-effort; a failed lookup leaves the name empty.
func (a *Auditor) lookupUserName(ctx context.Context, userID string) string {
	result, err := a.store.Query(ctx, store.Query{
		store.KindUsers: {Where: map[string]any{"id": userID}},
	})
	if err != nil {
		return ""
	}
	users := result[store.KindUsers]
	if len(users) == 0 {
		return ""
	}
	return users[0].Str("fullName")
}

func ptr(v float64) *float64 {
	return &v
}
