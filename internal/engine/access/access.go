// Package access is the capability gate: pure checks over an authenticated
// principal and a loaded project aggregate. It holds no state and touches
// no storage, so every rule is testable in isolation.
package access

import "stageline/internal/domain"

// ForbiddenError means the principal is authenticated but not entitled.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

func forbidden(reason string) *ForbiddenError { return &ForbiddenError{Reason: reason} }

// RequireAdmin gates admin-only operations.
func RequireAdmin(p domain.Principal) error {
	if p.IsAdmin() {
		return nil
	}
	return forbidden("admin role required")
}

// CanReadProject allows admins, the creator, and any stage head.
func CanReadProject(p domain.Principal, proj *domain.Project) error {
	if p.IsAdmin() || proj.CreatedBy == p.ID || proj.IsHead(p.ID) {
		return nil
	}
	return forbidden("not a member of this project")
}

// CanWriteStage allows admins and the head of that specific stage. Heading
// another stage of the same project is not enough.
func CanWriteStage(p domain.Principal, proj *domain.Project, team domain.Team) error {
	if p.IsAdmin() {
		return nil
	}
	if s := proj.Stage(team); s != nil && s.HeadID == p.ID {
		return nil
	}
	return forbidden("not the head of the " + string(team) + " stage")
}

// CanReadNotes follows the project read rule.
func CanReadNotes(p domain.Principal, proj *domain.Project) error {
	return CanReadProject(p, proj)
}

// CanAddNote follows the stage write rule.
func CanAddNote(p domain.Principal, proj *domain.Project, team domain.Team) error {
	return CanWriteStage(p, proj, team)
}

// CanEditNote allows admins and the note's author. Other heads cannot edit
// someone else's words.
func CanEditNote(p domain.Principal, n domain.Note) error {
	if p.IsAdmin() || n.AuthorID == p.ID {
		return nil
	}
	return forbidden("only the author or an admin may edit a note")
}

// CanDeleteNote allows admins, the stage's current head, and the author.
func CanDeleteNote(p domain.Principal, proj *domain.Project, team domain.Team, n domain.Note) error {
	if p.IsAdmin() || n.AuthorID == p.ID {
		return nil
	}
	if s := proj.Stage(team); s != nil && s.HeadID == p.ID {
		return nil
	}
	return forbidden("only the author, the stage head or an admin may delete a note")
}
