// Package attributes manages attribute categories and their items, the
// option sets inventory items are tagged with.
package attributes

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// CategoryInput carries the fields of a new attribute category.
type CategoryInput struct {
	Title string `json:"title" validate:"required"`
}

// ItemInput carries the fields of a new or renamed attribute item.
type ItemInput struct {
	Name string `json:"name" validate:"required"`
}

// ServiceParams configure the attribute service.
type ServiceParams struct {
	Store  store.Client
	Logger *logger.Logger
	Now    func() time.Time
}

// Service manages attribute categories and items.
type Service struct {
	store store.Client
	logg  *logger.Logger
	now   func() time.Time
}

// NewService validates dependencies and builds the attribute service.
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

// ListCategories fetches every category with its items attached.
func (s *Service) ListCategories(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindAttributeCategory: {
			With: map[string]store.Selection{store.LabelItems: {}},
		},
	})
	if err != nil {
		return nil, err
	}
	return result[store.KindAttributeCategory], nil
}

// FindCategory fetches one category with its items attached.
func (s *Service) FindCategory(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindAttributeCategory: {
			Where: map[string]any{"id": id},
			With:  map[string]store.Selection{store.LabelItems: {}},
		},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindAttributeCategory]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "attribute category %q not found", id)
	}
	return records[0], nil
}

// CreateCategory adds a category. Titles must be unique.
func (s *Service) CreateCategory(ctx context.Context, input CategoryInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	existing, err := s.store.Query(ctx, store.Query{
		store.KindAttributeCategory: {Where: map[string]any{"title": input.Title}},
	})
	if err != nil {
		return nil, err
	}
	if len(existing[store.KindAttributeCategory]) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "attribute category %q already exists", input.Title)
	}

	newID := s.store.NewID()
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindAttributeCategory, newID, map[string]any{
			"title":     input.Title,
			"createdAt": s.now().UnixMilli(),
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindCategory(ctx, newID)
}

// DeleteCategory removes a category. Categories with items cannot be
// deleted.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	existing, err := s.FindCategory(ctx, id)
	if err != nil {
		return err
	}
	if len(existing.Related(store.LabelItems)) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "attribute category %q has items and cannot be deleted", id)
	}
	return s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindAttributeCategory, id),
	})
}

// FindItem fetches one attribute item with its category attached.
func (s *Service) FindItem(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindAttributeItem: {
			Where: map[string]any{"id": id},
			With:  map[string]store.Selection{store.LabelCategory: {}},
		},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindAttributeItem]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "attribute item %q not found", id)
	}
	return records[0], nil
}

// CreateItem adds an item linked to its category.
func (s *Service) CreateItem(ctx context.Context, categoryID string, input ItemInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := s.FindCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	newID := s.store.NewID()
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindAttributeItem, newID, map[string]any{
			"name":      input.Name,
			"createdAt": s.now().UnixMilli(),
		}),
		store.Link(store.KindAttributeItem, newID, store.LabelCategory, categoryID),
	}); err != nil {
		return nil, err
	}
	return s.FindItem(ctx, newID)
}

// UpdateItem renames an item.
func (s *Service) UpdateItem(ctx context.Context, id string, input ItemInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := s.FindItem(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Update(store.KindAttributeItem, id, map[string]any{
			"name":      input.Name,
			"updatedAt": s.now().UnixMilli(),
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindItem(ctx, id)
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.FindItem(ctx, id); err != nil {
		return err
	}
	return s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindAttributeItem, id),
	})
}
