// Package appsettings manages the application settings records.
package appsettings

import (
	"context"
	"fmt"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
)

// ServiceParams configure the settings service.
type ServiceParams struct {
	Store  store.Client
	Logger *logger.Logger
}

// Service manages settings records. The store usually holds a single record
// that the frontend treats as the active settings document.
type Service struct {
	store store.Client
	logg  *logger.Logger
}

// NewService validates dependencies and builds the settings service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{store: params.Store, logg: params.Logger}, nil
}

// FindOne fetches a settings record by id.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindAppSettings: {Where: map[string]any{"id": id}},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindAppSettings]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "app settings %q not found", id)
	}
	return records[0], nil
}

// Current returns the first settings record, if any exists.
func (s *Service) Current(ctx context.Context) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{store.KindAppSettings: {}})
	if err != nil {
		return nil, err
	}
	records := result[store.KindAppSettings]
	if len(records) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no app settings configured")
	}
	return records[0], nil
}

// Create adds a settings record.
func (s *Service) Create(ctx context.Context, settings string) (store.Record, error) {
	newID := s.store.NewID()
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindAppSettings, newID, map[string]any{
			"settings": settings,
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindOne(ctx, newID)
}

// Update replaces the settings payload of an existing record.
func (s *Service) Update(ctx context.Context, id, settings string) (store.Record, error) {
	if _, err := s.FindOne(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Update(store.KindAppSettings, id, map[string]any{
			"settings": settings,
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindOne(ctx, id)
}
