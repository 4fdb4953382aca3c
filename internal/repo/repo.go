package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stageline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict means the aggregate changed between load and save.
	ErrVersionConflict = errors.New("version conflict")
)

const projectColumns = `id,title,COALESCE(description,'') AS description,created_by,status,current_team,version,created_at,updated_at`

func scanProjectRow(scan func(...any) error) (domain.Project, error) {
	var p domain.Project
	var currentTeam sql.NullString
	err := scan(&p.ID, &p.Title, &p.Description, &p.CreatedBy, &p.Status, &currentTeam, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if currentTeam.Valid {
		t := domain.Team(currentTeam.String)
		p.CurrentTeam = &t
	}
	return p, nil
}

// GetProject loads the full aggregate: project row, its three stages and
// every stage's note thread.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProjectRow(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id).Scan)
	if err != nil {
		return p, err
	}
	if err := r.loadStages(ctx, &p); err != nil {
		return p, err
	}
	if err := r.loadNotes(ctx, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) loadStages(ctx context.Context, p *domain.Project) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT team,head_id,expected_start,expected_hours,admin_expected_start,admin_expected_hours,actual_start,actual_end,status FROM stages WHERE project_id=?`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		var s domain.Stage
		var expStart, admStart, actStart, actEnd sql.NullString
		var expHours, admHours sql.NullFloat64
		if err := rows.Scan(&s.Team, &s.HeadID, &expStart, &expHours, &admStart, &admHours, &actStart, &actEnd, &s.Status); err != nil {
			return err
		}
		s.Expected = domain.Estimate{Start: parseTimePtr(expStart), Hours: floatPtr(expHours)}
		s.AdminExpected = domain.Estimate{Start: parseTimePtr(admStart), Hours: floatPtr(admHours)}
		s.Actual = domain.Interval{Start: parseTimePtr(actStart), End: parseTimePtr(actEnd)}
		for i, t := range domain.Teams {
			if t == s.Team {
				p.Stages[i] = s
				found++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found != len(domain.Teams) {
		return fmt.Errorf("project %s has %d stages, want %d", p.ID, found, len(domain.Teams))
	}
	return nil
}

func (r Repo) loadNotes(ctx context.Context, p *domain.Project) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,team,author_id,text,created_at,updated_at FROM notes WHERE project_id=? ORDER BY created_at ASC, id ASC`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var n domain.Note
		var team domain.Team
		if err := rows.Scan(&n.ID, &team, &n.AuthorID, &n.Text, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return err
		}
		if s := p.Stage(team); s != nil {
			s.Notes = append(s.Notes, n)
		}
	}
	return rows.Err()
}

// InsertProjectTx writes a new aggregate: the project row plus its three
// stage rows.
func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,title,description,created_by,status,current_team,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.CreatedBy, p.Status, teamPtr(p.CurrentTeam), p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	for _, s := range p.Stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stages(project_id,team,head_id,expected_start,expected_hours,admin_expected_start,admin_expected_hours,actual_start,actual_end,status,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			p.ID, s.Team, s.HeadID, timePtr(s.Expected.Start), floatVal(s.Expected.Hours), timePtr(s.AdminExpected.Start), floatVal(s.AdminExpected.Hours),
			timePtr(s.Actual.Start), timePtr(s.Actual.End), s.Status, p.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// SaveProjectTx persists a mutated aggregate. The project row is updated
// only when its stored version still matches p.Version; otherwise the
// caller raced another writer and gets ErrVersionConflict. On success the
// in-memory version is bumped to match the store.
func (r Repo) SaveProjectTx(ctx context.Context, tx *sql.Tx, p *domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?, description=?, status=?, current_team=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		p.Title, nullable(p.Description), p.Status, teamPtr(p.CurrentTeam), p.UpdatedAt, p.ID, p.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	for _, s := range p.Stages {
		if _, err := tx.ExecContext(ctx, `UPDATE stages SET head_id=?, expected_start=?, expected_hours=?, admin_expected_start=?, admin_expected_hours=?, actual_start=?, actual_end=?, status=?, updated_at=? WHERE project_id=? AND team=?`,
			s.HeadID, timePtr(s.Expected.Start), floatVal(s.Expected.Hours), timePtr(s.AdminExpected.Start), floatVal(s.AdminExpected.Hours),
			timePtr(s.Actual.Start), timePtr(s.Actual.End), s.Status, p.UpdatedAt, p.ID, s.Team); err != nil {
			return err
		}
	}
	p.Version++
	return nil
}

// DeleteProjectTx removes the aggregate; stages and notes cascade.
func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectExists reports bare row existence, used to distinguish a hidden
// project from a missing one.
func (r Repo) ProjectExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ProjectFilters narrows and paginates project listings. UserID restricts
// to projects the user created or heads a stage of.
type ProjectFilters struct {
	Status domain.ProjectStatus
	UserID string
	Page   int
	Limit  int
}

// ProjectPage is one page of a listing plus its pagination envelope.
type ProjectPage struct {
	Items      []domain.Project
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

const maxPageLimit = 100

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// ListProjects returns newest-first pages. Stage rows are loaded per item;
// note threads are not (they belong to the single-aggregate read path).
func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) (ProjectPage, error) {
	page, limit := normalizePage(f.Page, f.Limit)
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.UserID != "" {
		clauses = append(clauses, "(created_by=? OR EXISTS (SELECT 1 FROM stages WHERE stages.project_id=projects.id AND stages.head_id=?))")
		args = append(args, f.UserID, f.UserID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM projects `+where, args...).Scan(&total); err != nil {
		return ProjectPage{}, err
	}

	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return ProjectPage{}, err
	}
	defer rows.Close()
	var items []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return ProjectPage{}, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return ProjectPage{}, err
	}
	for i := range items {
		if err := r.loadStages(ctx, &items[i]); err != nil {
			return ProjectPage{}, err
		}
	}
	totalPages := (total + limit - 1) / limit
	return ProjectPage{Items: items, Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

// Note statements run inside the same transaction as the aggregate save so
// thread edits share the version guard.

func (r Repo) InsertNoteTx(ctx context.Context, tx *sql.Tx, projectID string, team domain.Team, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,project_id,team,author_id,text,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, projectID, team, n.AuthorID, n.Text, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r Repo) UpdateNoteTx(ctx context.Context, tx *sql.Tx, noteID, text, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notes SET text=?, updated_at=? WHERE id=?`, text, updatedAt, noteID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteNoteTx(ctx context.Context, tx *sql.Tx, noteID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=?`, noteID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scan/bind helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func teamPtr(t *domain.Team) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func floatVal(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
