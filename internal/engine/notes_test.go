package engine_test

import (
	"strings"
	"testing"

	"stageline/internal/domain"
	"stageline/internal/engine"
)

func TestNoteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t)

	first, err := env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, "  raw extract looks off  ")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if first.Text != "raw extract looks off" {
		t.Fatalf("text = %q, want trimmed", first.Text)
	}
	second, err := env.Engine.AddNote(env.Ctx, env.Admin, p.ID, domain.TeamData, "checked, schema drift")
	if err != nil {
		t.Fatalf("admin add note: %v", err)
	}

	notes, err := env.Engine.ListNotes(env.Ctx, env.Data, p.ID, domain.TeamData)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0].ID != first.ID || notes[1].ID != second.ID {
		t.Fatalf("notes out of order: %+v", notes)
	}

	edited, err := env.Engine.UpdateNote(env.Ctx, env.Data, p.ID, domain.TeamData, first.ID, "resolved")
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Text != "resolved" {
		t.Fatalf("text = %q", edited.Text)
	}

	if err := env.Engine.DeleteNote(env.Ctx, env.Data, p.ID, domain.TeamData, second.ID); err != nil {
		t.Fatalf("stage head delete: %v", err)
	}
	notes, err = env.Engine.ListNotes(env.Ctx, env.Data, p.ID, domain.TeamData)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1 after delete", len(notes))
	}
}

func TestNoteAccessRules(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t)

	// Only the stage head or an admin may post to a stage.
	_, err := env.Engine.AddNote(env.Ctx, env.Design, p.ID, domain.TeamData, "drive-by")
	wantForbidden(t, err)

	n, err := env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, "mine")
	if err != nil {
		t.Fatal(err)
	}

	// The design head also heads a stage of this project, so they can read
	// the thread but not touch someone else's note.
	if _, err := env.Engine.ListNotes(env.Ctx, env.Design, p.ID, domain.TeamData); err != nil {
		t.Fatalf("member read: %v", err)
	}
	_, err = env.Engine.UpdateNote(env.Ctx, env.Design, p.ID, domain.TeamData, n.ID, "hijack")
	wantForbidden(t, err)
	err = env.Engine.DeleteNote(env.Ctx, env.Design, p.ID, domain.TeamData, n.ID)
	wantForbidden(t, err)

	// An admin can edit anyone's note.
	if _, err := env.Engine.UpdateNote(env.Ctx, env.Admin, p.ID, domain.TeamData, n.ID, "moderated"); err != nil {
		t.Fatalf("admin edit: %v", err)
	}

	outsiderUser, err := env.Engine.CreateUser(env.Ctx, env.Admin, "Olly Out", "olly@example.com", domain.RoleDevHead)
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ListNotes(env.Ctx, outsiderUser.Principal(), p.ID, domain.TeamData)
	wantForbidden(t, err)
}

func TestNoteValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t)

	_, err := env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, "   ")
	wantKind(t, err, engine.KindBusinessRule)

	_, err = env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, strings.Repeat("x", 2001))
	wantKind(t, err, engine.KindBusinessRule)

	_, err = env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, strings.Repeat("x", 2000))
	if err != nil {
		t.Fatalf("max-length note: %v", err)
	}
}

func TestNotesReadOnlyAfterStageDone(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t)

	n, err := env.Engine.AddNote(env.Ctx, env.Data, p.ID, domain.TeamData, "before completion")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetEstimate(env.Ctx, env.Data, p.ID, domain.TeamData, engine.EstimateOptions{Hours: 8}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteStage(env.Ctx, env.Data, p.ID, domain.TeamData,
		at("2026-03-02", 9), at("2026-03-03", 9)); err != nil {
		t.Fatal(err)
	}

	// The thread freezes for everyone once the stage is done, admins too.
	_, err = env.Engine.AddNote(env.Ctx, env.Admin, p.ID, domain.TeamData, "late")
	wantKind(t, err, engine.KindInvalidState)
	_, err = env.Engine.UpdateNote(env.Ctx, env.Admin, p.ID, domain.TeamData, n.ID, "late edit")
	wantKind(t, err, engine.KindInvalidState)
	err = env.Engine.DeleteNote(env.Ctx, env.Admin, p.ID, domain.TeamData, n.ID)
	wantKind(t, err, engine.KindInvalidState)

	// Reading stays open.
	notes, err := env.Engine.ListNotes(env.Ctx, env.Data, p.ID, domain.TeamData)
	if err != nil || len(notes) != 1 {
		t.Fatalf("read after done: %v, %d notes", err, len(notes))
	}

	// The next stage's thread is unaffected.
	if _, err := env.Engine.AddNote(env.Ctx, env.Design, p.ID, domain.TeamDesign, "design kickoff"); err != nil {
		t.Fatalf("next stage note: %v", err)
	}
}
