// Package users manages operator accounts and their credentials.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/config"
	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
	"github.com/davidalonso/posstack-backend/pkg/logger"
	"github.com/davidalonso/posstack-backend/pkg/security"
	"github.com/davidalonso/posstack-backend/pkg/store"
	"github.com/davidalonso/posstack-backend/pkg/validate"
)

// Roles an account can hold.
const (
	RoleAdmin = "admin"
	RolePOS   = "pos"
)

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"fullName" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin pos"`
}

// UpdateInput carries a partial account update. A non-empty Password is
// re-hashed; other keys in Fields are merged as-is.
type UpdateInput struct {
	Password string         `json:"password" validate:"omitempty,min=8"`
	Fields   map[string]any `json:"fields"`
}

// ServiceParams configure the user service.
type ServiceParams struct {
	Store    store.Client
	Logger   *logger.Logger
	Password config.PasswordConfig
	Now      func() time.Time
}

// Service manages user accounts.
type Service struct {
	store    store.Client
	logg     *logger.Logger
	password config.PasswordConfig
	now      func() time.Time
}

// NewService validates dependencies and builds the user service.
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
	return &Service{
		store:    params.Store,
		logg:     params.Logger,
		password: params.Password,
		now:      now,
	}, nil
}

// FindOne fetches an account by id.
func (s *Service) FindOne(ctx context.Context, id string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindUsers: {Where: map[string]any{"id": id}},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindUsers]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "user %q not found", id)
	}
	return records[0], nil
}

// FindByUsername fetches an account by its username.
func (s *Service) FindByUsername(ctx context.Context, username string) (store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{
		store.KindUsers: {Where: map[string]any{"username": username}},
	})
	if err != nil {
		return nil, err
	}
	records := result[store.KindUsers]
	if len(records) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "user %q not found", username)
	}
	return records[0], nil
}

// List fetches every account.
func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	result, err := s.store.Query(ctx, store.Query{store.KindUsers: {}})
	if err != nil {
		return nil, err
	}
	return result[store.KindUsers], nil
}

// Create adds an account with a hashed password. Usernames and emails must
// be unique.
func (s *Service) Create(ctx context.Context, input CreateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, "username", input.Username); err != nil {
		return nil, err
	}
	if input.Email != "" {
		if err := s.checkUnique(ctx, "email", input.Email); err != nil {
			return nil, err
		}
	}

	hash, err := security.HashPassword(input.Password, s.password)
	if err != nil {
		return nil, err
	}

	newID := s.store.NewID()
	if err := s.store.Transact(ctx, []store.Mutation{
		store.Create(store.KindUsers, newID, map[string]any{
			"username":     input.Username,
			"email":        input.Email,
			"fullName":     input.FullName,
			"passwordHash": hash,
			"role":         input.Role,
			"createdAt":    s.now().UnixMilli(),
		}),
	}); err != nil {
		return nil, err
	}
	return s.FindOne(ctx, newID)
}

// Update applies a strictly partial merge. A new password is hashed before
// it is stored; the hash itself can never be written directly.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (store.Record, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	existing, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	for key, value := range input.Fields {
		switch key {
		case "id", "createdAt", "passwordHash":
			continue
		}
		fields[key] = value
	}
	if username, ok := fields["username"].(string); ok && username != existing.Str("username") {
		if err := s.checkUnique(ctx, "username", username); err != nil {
			return nil, err
		}
	}
	if email, ok := fields["email"].(string); ok && email != "" && email != existing.Str("email") {
		if err := s.checkUnique(ctx, "email", email); err != nil {
			return nil, err
		}
	}
	if input.Password != "" {
		hash, err := security.HashPassword(input.Password, s.password)
		if err != nil {
			return nil, err
		}
		fields["passwordHash"] = hash
	}

	if len(fields) > 0 {
		if err := s.store.Transact(ctx, []store.Mutation{
			store.Update(store.KindUsers, id, fields),
		}); err != nil {
			return nil, err
		}
	}
	return s.FindOne(ctx, id)
}

// Authenticate verifies a username/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.Record, error) {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	ok, err := security.VerifyPassword(password, user.Str("passwordHash"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credentials")
	}
	return user, nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.FindOne(ctx, id); err != nil {
		return err
	}
	return s.store.Transact(ctx, []store.Mutation{
		store.Delete(store.KindUsers, id),
	})
}

func (s *Service) checkUnique(ctx context.Context, field, value string) error {
	result, err := s.store.Query(ctx, store.Query{
		store.KindUsers: {Where: map[string]any{field: value}},
	})
	if err != nil {
		return err
	}
	if len(result[store.KindUsers]) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "user with %s %q already exists", field, value)
	}
	return nil
}
