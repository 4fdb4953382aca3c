package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/engine/access"
	"stageline/internal/events"
	"stageline/internal/repo"
)

func (e Engine) noteMaxLength() int {
	if e.Config != nil && e.Config.Notes.MaxLength > 0 {
		return e.Config.Notes.MaxLength
	}
	return 2000
}

func (e Engine) validNoteText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", BusinessRulef("note text must not be empty")
	}
	if len(text) > e.noteMaxLength() {
		return "", BusinessRulef("note text exceeds %d characters", e.noteMaxLength())
	}
	return text, nil
}

func findNote(stage *domain.Stage, noteID string) *domain.Note {
	for i := range stage.Notes {
		if stage.Notes[i].ID == noteID {
			return &stage.Notes[i]
		}
	}
	return nil
}

// ListNotes returns a stage's thread in ascending creation order, under the
// project read gate.
func (e Engine) ListNotes(ctx context.Context, p domain.Principal, projectID string, team domain.Team) ([]domain.Note, error) {
	if err := requireTeam(team); err != nil {
		return nil, err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := access.CanReadNotes(p, &proj); err != nil {
		return nil, err
	}
	return proj.Stage(team).Notes, nil
}

// AddNote appends to a stage's thread. Once the stage is done its thread is
// read-only for everyone, admins included.
func (e Engine) AddNote(ctx context.Context, p domain.Principal, projectID string, team domain.Team, text string) (domain.Note, error) {
	if err := requireTeam(team); err != nil {
		return domain.Note{}, err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Note{}, err
	}
	if err := access.CanAddNote(p, &proj, team); err != nil {
		return domain.Note{}, err
	}
	if proj.Stage(team).Status == domain.StageDone {
		return domain.Note{}, InvalidStatef("the %s stage is done; its notes are read-only", team)
	}
	text, err = e.validNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}

	now := e.nowRFC3339()
	note := domain.Note{
		ID:        uuid.NewString(),
		AuthorID:  p.ID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	proj.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertNoteTx(ctx, tx, proj.ID, team, note); err != nil {
		return domain.Note{}, err
	}
	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Note{}, err
	}
	if err := e.Events.Append(ctx, tx, "note.added", proj.ID, "note", note.ID, p.ID,
		events.EventPayload{"team": string(team)}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

// UpdateNote rewrites a note's text. Only the author or an admin may edit,
// and never once the stage is done.
func (e Engine) UpdateNote(ctx context.Context, p domain.Principal, projectID string, team domain.Team, noteID, text string) (domain.Note, error) {
	if err := requireTeam(team); err != nil {
		return domain.Note{}, err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Note{}, err
	}
	stage := proj.Stage(team)
	note := findNote(stage, noteID)
	if note == nil {
		return domain.Note{}, NotFoundf("note %s not found", noteID)
	}
	if err := access.CanEditNote(p, *note); err != nil {
		return domain.Note{}, err
	}
	if stage.Status == domain.StageDone {
		return domain.Note{}, InvalidStatef("the %s stage is done; its notes are read-only", team)
	}
	text, err = e.validNoteText(text)
	if err != nil {
		return domain.Note{}, err
	}

	now := e.nowRFC3339()
	note.Text = text
	note.UpdatedAt = now
	proj.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateNoteTx(ctx, tx, note.ID, note.Text, note.UpdatedAt); err != nil {
		return domain.Note{}, err
	}
	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Note{}, err
	}
	if err := e.Events.Append(ctx, tx, "note.updated", proj.ID, "note", note.ID, p.ID,
		events.EventPayload{"team": string(team)}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return *note, nil
}

// DeleteNote removes a note permanently. Author, stage head or admin, and
// never once the stage is done.
func (e Engine) DeleteNote(ctx context.Context, p domain.Principal, projectID string, team domain.Team, noteID string) error {
	if err := requireTeam(team); err != nil {
		return err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	stage := proj.Stage(team)
	note := findNote(stage, noteID)
	if note == nil {
		return NotFoundf("note %s not found", noteID)
	}
	if err := access.CanDeleteNote(p, &proj, team, *note); err != nil {
		return err
	}
	if stage.Status == domain.StageDone {
		return InvalidStatef("the %s stage is done; its notes are read-only", team)
	}
	proj.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteNoteTx(ctx, tx, note.ID); err != nil {
		if err == repo.ErrNotFound {
			return NotFoundf("note %s not found", noteID)
		}
		return err
	}
	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "note.deleted", proj.ID, "note", note.ID, p.ID,
		events.EventPayload{"team": string(team)}); err != nil {
		return err
	}
	return tx.Commit()
}
