package access_test

import (
	"testing"

	"stageline/internal/domain"
	"stageline/internal/engine/access"
)

var (
	admin    = domain.Principal{ID: "u-admin", Role: domain.RoleAdmin, Active: true}
	creator  = domain.Principal{ID: "u-creator", Role: domain.RoleDataHead, Active: true}
	dataHead = domain.Principal{ID: "u-data", Role: domain.RoleDataHead, Active: true}
	devHead  = domain.Principal{ID: "u-dev", Role: domain.RoleDevHead, Active: true}
	outsider = domain.Principal{ID: "u-out", Role: domain.RoleDesignHead, Active: true}
)

func fixtureProject() *domain.Project {
	return &domain.Project{
		ID:        "p1",
		CreatedBy: creator.ID,
		Stages: [3]domain.Stage{
			{Team: domain.TeamData, HeadID: dataHead.ID},
			{Team: domain.TeamDesign, HeadID: "u-design"},
			{Team: domain.TeamDev, HeadID: devHead.ID},
		},
	}
}

func TestCanReadProject(t *testing.T) {
	p := fixtureProject()
	for _, allowed := range []domain.Principal{admin, creator, dataHead, devHead} {
		if err := access.CanReadProject(allowed, p); err != nil {
			t.Fatalf("%s should read: %v", allowed.ID, err)
		}
	}
	if err := access.CanReadProject(outsider, p); err == nil {
		t.Fatal("outsider should not read")
	}
}

func TestCanWriteStage(t *testing.T) {
	p := fixtureProject()
	if err := access.CanWriteStage(admin, p, domain.TeamData); err != nil {
		t.Fatalf("admin write: %v", err)
	}
	if err := access.CanWriteStage(dataHead, p, domain.TeamData); err != nil {
		t.Fatalf("data head write own stage: %v", err)
	}
	// Heading another stage of the same project is not enough.
	if err := access.CanWriteStage(devHead, p, domain.TeamData); err == nil {
		t.Fatal("dev head should not write the data stage")
	}
	// Creating the project grants reads, not stage writes.
	if err := access.CanWriteStage(creator, p, domain.TeamData); err == nil {
		t.Fatal("creator should not write a stage they do not head")
	}
}

func TestNoteCapabilities(t *testing.T) {
	p := fixtureProject()
	note := domain.Note{ID: "n1", AuthorID: dataHead.ID}

	if err := access.CanAddNote(devHead, p, domain.TeamData); err == nil {
		t.Fatal("non-head should not add a note")
	}
	if err := access.CanAddNote(dataHead, p, domain.TeamData); err != nil {
		t.Fatalf("stage head add: %v", err)
	}

	if err := access.CanEditNote(admin, note); err != nil {
		t.Fatalf("admin edit: %v", err)
	}
	if err := access.CanEditNote(dataHead, note); err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if err := access.CanEditNote(devHead, note); err == nil {
		t.Fatal("another head should not edit someone else's note")
	}

	otherNote := domain.Note{ID: "n2", AuthorID: admin.ID}
	if err := access.CanDeleteNote(dataHead, p, domain.TeamData, otherNote); err != nil {
		t.Fatalf("stage head delete: %v", err)
	}
	if err := access.CanDeleteNote(devHead, p, domain.TeamData, otherNote); err == nil {
		t.Fatal("unrelated head should not delete")
	}
	if err := access.CanDeleteNote(dataHead, p, domain.TeamDev, note); err != nil {
		t.Fatalf("author delete on foreign stage: %v", err)
	}
}

func TestForbiddenErrorMessage(t *testing.T) {
	err := access.RequireAdmin(outsider)
	if err == nil {
		t.Fatal("expected error")
	}
	var fe *access.ForbiddenError
	if !asForbidden(err, &fe) {
		t.Fatalf("want *access.ForbiddenError, got %T", err)
	}
}

func asForbidden(err error, target **access.ForbiddenError) bool {
	fe, ok := err.(*access.ForbiddenError)
	if ok {
		*target = fe
	}
	return ok
}
