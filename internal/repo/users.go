package repo

import (
	"context"
	"database/sql"
	"strings"

	"stageline/internal/domain"
)

const userColumns = `id,name,email,role,active,created_at,updated_at`

func scanUser(scan func(...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id).Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(email)).Scan)
}

// GetUserByRef accepts an id or an email, which is what the CLI passes.
func (r Repo) GetUserByRef(ctx context.Context, ref string) (domain.User, error) {
	if strings.Contains(ref, "@") {
		return r.GetUserByEmail(ctx, ref)
	}
	return r.GetUser(ctx, ref)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r Repo) InsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,role,active,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Name, strings.ToLower(u.Email), u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) UpdateUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET name=?, email=?, role=?, active=?, updated_at=? WHERE id=?`,
		u.Name, strings.ToLower(u.Email), u.Role, u.Active, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserExists reports whether an id resolves to a directory entry, active
// or not.
func (r Repo) UserExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
