// Package suppliers manages supplier records.
package suppliers

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// CreateInput carries the fields of a new supplier.
type CreateInput struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contactPerson"`
	Email         string `json:"email" validate:"omitempty,email"`
	PhoneNumber   string `json:"phoneNumber"`
	Address       string `json:"address"`
}

// ServiceParams configure the supplier service.
type ServiceParams struct {
	Store  store.Client
	Logger *logger.Logger
	Now    func() time.Time
}

// Service manages suppliers.
type Service struct {
	store store.Client
	logg  *logger.Logger
	now   func() time.Time
}

// NewService validates dependencies and builds the supplier service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: params.Store, logg: params.Logger, now: now}, nil
}

// FindOne fetches a supplier with its linked inventory items.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindSuppliers: {
			Where: map[string]any{"id": id},
			With:  map[string]store.Selection{store.LabelInventoryItems: {}},
		},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindSuppliers]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "supplier %q not found", id)
	}
	return records[0], nil
}

// List fetches every supplier.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{store.KindSuppliers: {}})
	if err != nil {
		return nil, err
	}
	return result[store.KindSuppliers], nil
}

// Create adds a supplier.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	newID := s.store.NewID()
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindSuppliers, newID, map[string]any{
			"name":          input.Name,
			"contactPerson": input.ContactPerson,
			"email":         input.Email,
			"phoneNumber":   input.PhoneNumber,
			"address":       input.Address,
			"createdAt":     s.now().UnixMilli(),
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindOne(ctx, newID)
}

// Update applies a strictly partial merge.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) (store.Record, error) {
	if _, err := s.FindOne(ctx, id); err != nil {
		return nil, err
	}

	filtered := map[string]any{}
	for key, value := range fields {
		if key == "id" || key == "createdAt" {
			continue
		}
		filtered[key] = value
	}
	if len(filtered) > 0 {
		if err := s.store.Transact(ctx, []store.Mutation{
			store.Update(store.KindSuppliers, id, filtered),
		}); err != nil {
			return nil, err
		}
	}
	return s.FindOne(ctx, id)
}

// Delete removes a supplier. Suppliers with linked inventory items cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	if len(existing.Related(store.LabelInventoryItems)) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "supplier %q has inventory items and cannot be deleted", id)
	}
	return s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindSuppliers, id),
	})
}
