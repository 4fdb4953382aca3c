package repo

import (
	"context"
	"database/sql"

	"stageline/internal/domain"
)

const holidayColumns = `id,date,name,category,active,created_at`

func scanHoliday(scan func(...any) error) (domain.Holiday, error) {
	var h domain.Holiday
	err := scan(&h.ID, &h.Date, &h.Name, &h.Category, &h.Active, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	return h, err
}

func (r Repo) GetHoliday(ctx context.Context, id string) (domain.Holiday, error) {
	return scanHoliday(r.DB.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE id=?`, id).Scan)
}

func (r Repo) HolidayByDate(ctx context.Context, date string) (domain.Holiday, error) {
	return scanHoliday(r.DB.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE date=?`, date).Scan)
}

// ListHolidays returns holidays ordered by date. When activeOnly is set,
// soft-disabled entries are filtered out.
func (r Repo) ListHolidays(ctx context.Context, activeOnly bool) ([]domain.Holiday, error) {
	query := `SELECT ` + holidayColumns + ` FROM holidays`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY date ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holidays []domain.Holiday
	for rows.Next() {
		h, err := scanHoliday(rows.Scan)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// ActiveHolidayDates is the calendar snapshot the hour math runs against.
func (r Repo) ActiveHolidayDates(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT date FROM holidays WHERE active=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (r Repo) InsertHolidayTx(ctx context.Context, tx *sql.Tx, h domain.Holiday) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO holidays(id,date,name,category,active,created_at) VALUES (?,?,?,?,?,?)`,
		h.ID, h.Date, h.Name, h.Category, h.Active, h.CreatedAt)
	return err
}

func (r Repo) UpdateHolidayTx(ctx context.Context, tx *sql.Tx, h domain.Holiday) error {
	res, err := tx.ExecContext(ctx, `UPDATE holidays SET date=?, name=?, category=?, active=? WHERE id=?`,
		h.Date, h.Name, h.Category, h.Active, h.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
