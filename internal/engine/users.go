package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/engine/access"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// CreateUser provisions a directory entry. Credentials live outside this
// system; the entry is what tokens resolve against. Admin only.
func (e Engine) CreateUser(ctx context.Context, p domain.Principal, name, email string, role domain.Role) (domain.User, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.User{}, err
	}
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return domain.User{}, BusinessRulef("name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, BusinessRulef("a valid email is required")
	}
	if !role.Valid() {
		return domain.User{}, BusinessRulef("unknown role %q", role)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, Conflictf("a user with email %s already exists", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	now := e.nowRFC3339()
	u := domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUserTx(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, p.ID,
		events.EventPayload{"email": u.Email, "role": string(u.Role)}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ListUsers returns the directory. Admin only.
func (e Engine) ListUsers(ctx context.Context, p domain.Principal) ([]domain.User, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}

// UserUpdateOptions partially updates a directory entry. Deactivation cuts
// authentication without unreferencing the user as a head.
type UserUpdateOptions struct {
	Name   *string
	Email  *string
	Role   *domain.Role
	Active *bool
}

// UpdateUser edits a directory entry. Admin only.
func (e Engine) UpdateUser(ctx context.Context, p domain.Principal, id string, opts UserUpdateOptions) (domain.User, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, NotFoundf("user %s not found", id)
	}
	if err != nil {
		return domain.User{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.User{}, BusinessRulef("name must not be empty")
		}
		u.Name = strings.TrimSpace(*opts.Name)
	}
	if opts.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*opts.Email))
		if email == "" || !strings.Contains(email, "@") {
			return domain.User{}, BusinessRulef("a valid email is required")
		}
		if other, err := e.Repo.GetUserByEmail(ctx, email); err == nil && other.ID != u.ID {
			return domain.User{}, Conflictf("a user with email %s already exists", email)
		} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, err
		}
		u.Email = email
	}
	if opts.Role != nil {
		if !opts.Role.Valid() {
			return domain.User{}, BusinessRulef("unknown role %q", *opts.Role)
		}
		u.Role = *opts.Role
	}
	if opts.Active != nil {
		u.Active = *opts.Active
	}
	u.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUserTx(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "", "user", u.ID, p.ID,
		events.EventPayload{"active": u.Active}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// TailEvents returns the newest audit entries, optionally scoped to one
// project. Admin only.
func (e Engine) TailEvents(ctx context.Context, p domain.Principal, projectID string, limit int) ([]domain.Event, error) {
	if err := access.RequireAdmin(p); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, projectID, limit)
}
