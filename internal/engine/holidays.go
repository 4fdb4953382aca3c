package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/engine/access"
	"stageline/internal/events"
	"stageline/internal/repo"
)

const dayKeyLayout = "2006-01-02"

func parseDayKey(date string) (string, error) {
	t, err := time.ParseInLocation(dayKeyLayout, date, time.UTC)
	if err != nil {
		return "", BusinessRulef("date must be YYYY-MM-DD, got %q", date)
	}
	return t.Format(dayKeyLayout), nil
}

// AddHoliday declares a non-working day. Dates are unique calendar days;
// redeclaring one is Conflict. Admin only.
func (e Engine) AddHoliday(ctx context.Context, p domain.Principal, date, name string, category domain.HolidayCategory) (domain.Holiday, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.Holiday{}, err
	}
	date, err := parseDayKey(date)
	if err != nil {
		return domain.Holiday{}, err
	}
	if name == "" {
		return domain.Holiday{}, BusinessRulef("name is required")
	}
	if !category.Valid() {
		return domain.Holiday{}, BusinessRulef("unknown holiday category %q", category)
	}
	if _, err := e.Repo.HolidayByDate(ctx, date); err == nil {
		return domain.Holiday{}, Conflictf("a holiday already exists on %s", date)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Holiday{}, err
	}

	h := domain.Holiday{
		ID:        uuid.NewString(),
		Date:      date,
		Name:      name,
		Category:  category,
		Active:    true,
		CreatedAt: e.nowRFC3339(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Holiday{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertHolidayTx(ctx, tx, h); err != nil {
		return domain.Holiday{}, err
	}
	if err := e.Events.Append(ctx, tx, "holiday.added", "", "holiday", h.ID, p.ID,
		events.EventPayload{"date": h.Date, "name": h.Name}); err != nil {
		return domain.Holiday{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Holiday{}, err
	}
	return h, nil
}

// ListHolidays is open to every authenticated principal; heads plan around
// the same calendar admins maintain. Disabled entries only show with all.
func (e Engine) ListHolidays(ctx context.Context, p domain.Principal, all bool) ([]domain.Holiday, error) {
	return e.Repo.ListHolidays(ctx, !all)
}

// HolidayUpdateOptions partially updates a holiday. The date itself is
// immutable; disable the entry and declare a new one instead.
type HolidayUpdateOptions struct {
	Name     *string
	Category *domain.HolidayCategory
	Active   *bool
}

// UpdateHoliday renames, recategorizes or soft-disables a holiday. Admin
// only. Hour calculations pick the change up on their next snapshot.
func (e Engine) UpdateHoliday(ctx context.Context, p domain.Principal, id string, opts HolidayUpdateOptions) (domain.Holiday, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.Holiday{}, err
	}
	h, err := e.Repo.GetHoliday(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Holiday{}, NotFoundf("holiday %s not found", id)
	}
	if err != nil {
		return domain.Holiday{}, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return domain.Holiday{}, BusinessRulef("name must not be empty")
		}
		h.Name = *opts.Name
	}
	if opts.Category != nil {
		if !opts.Category.Valid() {
			return domain.Holiday{}, BusinessRulef("unknown holiday category %q", *opts.Category)
		}
		h.Category = *opts.Category
	}
	if opts.Active != nil {
		h.Active = *opts.Active
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Holiday{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateHolidayTx(ctx, tx, h); err != nil {
		return domain.Holiday{}, err
	}
	if err := e.Events.Append(ctx, tx, "holiday.updated", "", "holiday", h.ID, p.ID,
		events.EventPayload{"active": h.Active}); err != nil {
		return domain.Holiday{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Holiday{}, err
	}
	return h, nil
}
