// Package customers manages customer records and their delivery addresses.
package customers

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// AddressInput describes a new delivery address.
type AddressInput struct {
	Address   string `json:"address" validate:"required"`
	IsPrimary bool   `json:"isPrimary"`
}

// CreateInput carries the fields of a new customer plus an optional first
// address.
type CreateInput struct {
	FullName    string        `json:"fullName" validate:"required"`
	Email       string        `json:"email" validate:"omitempty,email"`
	PhoneNumber string        `json:"phoneNumber"`
	HeadSize    string        `json:"headSize"`
	NewAddress  *AddressInput `json:"newAddress"`
}

// UpdateInput carries a partial customer update. Fields holds only the keys
// to change; NewAddress appends an address, demoting the current primary
// when the new one is primary.
type UpdateInput struct {
	Fields     map[string]any `json:"fields"`
	NewAddress *AddressInput  `json:"newAddress"`
}

// ServiceParams configure the customer service.
type ServiceParams struct {
	Store  store.Client
	Logger *logger.Logger
	Now    func() time.Time
}

// Service manages customers.
type Service struct {
	store store.Client
	logg  *logger.Logger
	now   func() time.Time
}

// NewService validates dependencies and builds the customer service.
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

// FindOne fetches a customer with orders and addresses attached.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindCustomers: {
			Where: map[string]any{"id": id},
			With: map[string]store.Selection{
				store.LabelOrders:    {},
				store.LabelAddresses: {},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindCustomers]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "customer %q not found", id)
	}
	return records[0], nil
}

// List fetches every customer with addresses attached.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindCustomers: {
			With: map[string]store.Selection{store.LabelAddresses: {}},
		},
	})
	if err != nil {
		return nil, err
	}
	return result[store.KindCustomers], nil
}

// Create adds a customer and, when given, its first address.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	newID := s.store.NewID()
	muts := []store.Mutation{
		store.Create(store.KindCustomers, newID, map[string]any{
			"fullName":    input.FullName,
			"email":       input.Email,
			"phoneNumber": input.PhoneNumber,
			"headSize":    input.HeadSize,
			"createdAt":   s.now().UnixMilli(),
		}),
	}
	if input.NewAddress != nil {
		addressID := s.store.NewID()
		muts = append(muts,
			store.Create(store.KindCustomerAddress, addressID, map[string]any{
				"address":   input.NewAddress.Address,
				"isPrimary": input.NewAddress.IsPrimary,
				"createdAt": s.now().UnixMilli(),
			}),
			store.Link(store.KindCustomers, newID, store.LabelAddresses, addressID),
		)
	}
	if err := s.store.Transact(ctx, muts); err != nil {
		return nil, err
	}
	return s.FindOne(ctx, newID)
}

// Update applies a strictly partial merge and optionally appends an address.
// When the new address is primary, the current primary address is demoted in
// the same transaction.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (store.Record, error) {
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	var muts []store.Mutation
	fields := filterFields(input.Fields)
	if len(fields) > 0 {
		muts = append(muts, store.Update(store.KindCustomers, id, fields))
	}

	if input.NewAddress != nil {
		if err := validate.Struct(*input.NewAddress); err != nil {
			return nil, err
		}
		if input.NewAddress.IsPrimary {
			for _, addr := range existing.Related(store.LabelAddresses) {
				if addr.Bool("isPrimary") {
					muts = append(muts, store.Update(store.KindCustomerAddress, addr.ID(), map[string]any{
						"isPrimary": false,
					}))
				}
			}
		}
		addressID := s.store.NewID()
		muts = append(muts,
			store.Create(store.KindCustomerAddress, addressID, map[string]any{
				"address":   input.NewAddress.Address,
				"isPrimary": input.NewAddress.IsPrimary,
				"createdAt": s.now().UnixMilli(),
			}),
			store.Link(store.KindCustomers, id, store.LabelAddresses, addressID),
		)
	}

	if len(muts) > 0 {
		if err := s.store.Transact(ctx, muts); err != nil {
			return nil, err
		}
	}
	return s.FindOne(ctx, id)
}

// Delete removes a customer and its addresses. Customers with orders cannot
// be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	if len(existing.Related(store.LabelOrders)) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "customer %q has orders and cannot be deleted", id)
	}

	muts := []store.Mutation{store.Delete(store.KindCustomers, id)}
	for _, addr := range existing.Related(store.LabelAddresses) {
		muts = append(muts, store.Delete(store.KindCustomerAddress, addr.ID()))
	}
	return s.store.Transact(ctx, muts)
}

// filterFields drops keys callers must not write directly.
func filterFields(fields map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range fields {
		if key == "id" || key == "createdAt" {
			continue
		}
		out[key] = value
	}
	return out
}
