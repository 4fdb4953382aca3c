package repo

import (
	"context"
	"database/sql"

	"stageline/internal/domain"
)

func scanEvent(scan func(...any) error) (domain.Event, error) {
	var e domain.Event
	var projectID, entityID sql.NullString
	err := scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	e.ProjectID = projectID.String
	e.EntityID = entityID.String
	return e, err
}

// LatestEvents returns the newest events first, optionally scoped to one
// project.
func (r Repo) LatestEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	query := `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
