// Package engine is the pipeline state machine. Every mutation is one
// read-modify-write pass over a project aggregate inside a single SQL
// transaction, guarded by the aggregate version and recorded in the event
// log before commit.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"stageline/internal/calendar"
	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/engine/access"
	"stageline/internal/events"
	"stageline/internal/repo"
	"stageline/internal/workhours"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// loadProject translates the repo sentinel into a domain NotFound.
func (e Engine) loadProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, NotFoundf("project %s not found", id)
	}
	return p, err
}

// saveProjectTx persists the aggregate, translating a lost version race
// into Conflict for the caller to retry or surface.
func (e Engine) saveProjectTx(ctx context.Context, tx *sql.Tx, p *domain.Project) error {
	err := e.Repo.SaveProjectTx(ctx, tx, p)
	if errors.Is(err, repo.ErrVersionConflict) {
		return Conflictf("project %s was modified concurrently", p.ID)
	}
	return err
}

// resolveUser accepts a user id or email and fails with UnknownReference
// when neither matches.
func (e Engine) resolveUser(ctx context.Context, ref string) (domain.User, error) {
	u, err := e.Repo.GetUserByRef(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return u, UnknownReff("user %q not found", ref)
	}
	return u, err
}

func requireTeam(team domain.Team) error {
	if !team.Valid() {
		return BusinessRulef("unknown team %q", team)
	}
	return nil
}

// CreateProjectOptions carries the admin's project intake: a title and one
// accountable head per pipeline stage, each referenced by id or email.
type CreateProjectOptions struct {
	Title       string
	Description string
	Heads       map[domain.Team]string
}

// CreateProject opens the pipeline at the data stage with all three stages
// pending. Admin only.
func (e Engine) CreateProject(ctx context.Context, p domain.Principal, opts CreateProjectOptions) (domain.Project, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.Project{}, err
	}
	if opts.Title == "" {
		return domain.Project{}, BusinessRulef("title is required")
	}

	now := e.nowRFC3339()
	first := domain.Teams[0]
	proj := domain.Project{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		CreatedBy:   p.ID,
		Status:      domain.StatusForTeam(first),
		CurrentTeam: &first,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, team := range domain.Teams {
		ref, ok := opts.Heads[team]
		if !ok || ref == "" {
			return domain.Project{}, BusinessRulef("a head is required for the %s stage", team)
		}
		head, err := e.resolveUser(ctx, ref)
		if err != nil {
			return domain.Project{}, err
		}
		proj.Stages[i] = domain.Stage{Team: team, HeadID: head.ID, Status: domain.StagePending}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, proj); err != nil {
		return domain.Project{}, err
	}
	heads := events.EventPayload{}
	for _, s := range proj.Stages {
		heads[string(s.Team)] = s.HeadID
	}
	if err := e.Events.Append(ctx, tx, "project.created", proj.ID, "project", proj.ID, p.ID,
		events.EventPayload{"title": proj.Title, "heads": heads}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}

// EstimateOptions is a stage head's own plan. Start defaults to now.
type EstimateOptions struct {
	Start *time.Time
	Hours float64
}

// SetEstimate records the head's estimate for the active stage and moves a
// pending stage to in_progress. Re-estimating an in_progress stage is
// allowed; a done stage is closed.
func (e Engine) SetEstimate(ctx context.Context, p domain.Principal, projectID string, team domain.Team, opts EstimateOptions) (domain.Project, error) {
	if err := requireTeam(team); err != nil {
		return domain.Project{}, err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := access.CanWriteStage(p, &proj, team); err != nil {
		return domain.Project{}, err
	}
	if opts.Hours <= 0 {
		return domain.Project{}, BusinessRulef("estimate hours must be positive")
	}
	if proj.CurrentTeam == nil || *proj.CurrentTeam != team {
		return domain.Project{}, InvalidStatef("the %s stage is not active", team)
	}
	stage := proj.Stage(team)
	if stage.Status == domain.StageDone {
		return domain.Project{}, InvalidStatef("the %s stage is already done", team)
	}

	start := e.now().UTC()
	if opts.Start != nil {
		start = opts.Start.UTC()
	}
	hours := opts.Hours
	stage.Expected = domain.Estimate{Start: &start, Hours: &hours}
	stage.Status = domain.StageInProgress
	proj.Status = domain.StatusForTeam(team)
	proj.CurrentTeam = &team
	proj.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.estimated", proj.ID, "stage", string(team), p.ID,
		events.EventPayload{"start": start.Format(time.RFC3339), "hours": hours}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}

// StageReport is the completion accounting returned alongside the project.
// It is derived at completion time from stored state and a fresh holiday
// snapshot, never persisted.
type StageReport struct {
	ActualHours   float64
	ActualParts   workhours.Parts
	ExpectedHours float64
	ExpectedParts workhours.Parts
	PenaltyHours  float64
}

// CompleteStage records the actual interval, closes the stage and advances
// the pipeline. Completing the dev stage finishes the project. Completion
// is deliberately not idempotent: a second call hits Conflict.
func (e Engine) CompleteStage(ctx context.Context, p domain.Principal, projectID string, team domain.Team, start, end time.Time) (domain.Project, StageReport, error) {
	if err := requireTeam(team); err != nil {
		return domain.Project{}, StageReport{}, err
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, StageReport{}, err
	}
	if err := access.CanWriteStage(p, &proj, team); err != nil {
		return domain.Project{}, StageReport{}, err
	}
	stage := proj.Stage(team)
	if stage.Status == domain.StageDone {
		return domain.Project{}, StageReport{}, Conflictf("the %s stage is already done", team)
	}
	if proj.CurrentTeam == nil || *proj.CurrentTeam != team {
		return domain.Project{}, StageReport{}, InvalidStatef("the %s stage is not active", team)
	}
	if !stage.HasEstimate() {
		return domain.Project{}, StageReport{}, BusinessRulef("the %s stage has no estimate to complete against", team)
	}
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		return domain.Project{}, StageReport{}, BusinessRulef("end must be after start")
	}

	stage.Actual = domain.Interval{Start: &start, End: &end}
	stage.Status = domain.StageDone
	if next, ok := team.Next(); ok {
		proj.CurrentTeam = &next
		proj.Status = domain.StatusForTeam(next)
	} else {
		proj.CurrentTeam = nil
		proj.Status = domain.StatusDone
	}
	proj.UpdatedAt = e.nowRFC3339()

	report, err := e.stageReport(ctx, *stage, start, end)
	if err != nil {
		return domain.Project{}, StageReport{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, StageReport{}, err
	}
	defer tx.Rollback()

	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Project{}, StageReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.completed", proj.ID, "stage", string(team), p.ID, events.EventPayload{
		"start":         start.Format(time.RFC3339),
		"end":           end.Format(time.RFC3339),
		"actual_hours":  report.ActualHours,
		"penalty_hours": report.PenaltyHours,
		"status":        string(proj.Status),
	}); err != nil {
		return domain.Project{}, StageReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, StageReport{}, err
	}
	return proj, report, nil
}

func (e Engine) stageReport(ctx context.Context, stage domain.Stage, start, end time.Time) (StageReport, error) {
	dates, err := e.Repo.ActiveHolidayDates(ctx)
	if err != nil {
		return StageReport{}, err
	}
	hs := calendar.NewSet(dates)
	actual := workhours.Between(start, end, hs)
	expected := *stage.Expected.Hours
	penalty := workhours.Round2(actual - expected)
	if penalty < 0 {
		penalty = 0
	}
	return StageReport{
		ActualHours:   actual,
		ActualParts:   workhours.ToParts(actual),
		ExpectedHours: expected,
		ExpectedParts: workhours.ToParts(expected),
		PenaltyHours:  penalty,
	}, nil
}

// AdminExpectedOptions partially updates the admin overlay. Absent fields
// keep their stored values; Days and Hours merge against the stored total's
// decomposition.
type AdminExpectedOptions struct {
	Start *time.Time
	Days  *int
	Hours *float64
}

// UpdateAdminExpected sets the administrator's informational schedule for a
// stage. It never moves the pipeline and is allowed at any stage status.
func (e Engine) UpdateAdminExpected(ctx context.Context, p domain.Principal, projectID string, team domain.Team, opts AdminExpectedOptions) (domain.Project, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.Project{}, err
	}
	if err := requireTeam(team); err != nil {
		return domain.Project{}, err
	}
	if opts.Days != nil && *opts.Days < 0 {
		return domain.Project{}, BusinessRulef("days must not be negative")
	}
	if opts.Hours != nil && *opts.Hours < 0 {
		return domain.Project{}, BusinessRulef("hours must not be negative")
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	stage := proj.Stage(team)

	stored := workhours.Parts{}
	if stage.AdminExpected.Hours != nil {
		stored = workhours.ToParts(*stage.AdminExpected.Hours)
	}
	days := stored.Days
	hours := stored.Hours
	if opts.Days != nil {
		days = *opts.Days
	}
	if opts.Hours != nil {
		hours = *opts.Hours
	}
	total := workhours.Round2(float64(days)*24 + hours)
	stage.AdminExpected.Hours = &total
	if opts.Start != nil {
		start := opts.Start.UTC()
		stage.AdminExpected.Start = &start
	}
	proj.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.admin_expected", proj.ID, "stage", string(team), p.ID,
		events.EventPayload{"hours": total}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}

// UpdateHeads reassigns any subset of stage heads. Reassignment carries no
// retroactive effect on recorded estimates or actuals, and a done stage's
// head may still be swapped for the record.
func (e Engine) UpdateHeads(ctx context.Context, p domain.Principal, projectID string, heads map[domain.Team]string) (domain.Project, error) {
	if err := access.RequireAdmin(p); err != nil {
		return domain.Project{}, err
	}
	if len(heads) == 0 {
		return domain.Project{}, BusinessRulef("no heads to update")
	}
	for team := range heads {
		if err := requireTeam(team); err != nil {
			return domain.Project{}, err
		}
	}
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	changed := events.EventPayload{}
	for team, ref := range heads {
		head, err := e.resolveUser(ctx, ref)
		if err != nil {
			return domain.Project{}, err
		}
		proj.Stage(team).HeadID = head.ID
		changed[string(team)] = head.ID
	}
	proj.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.saveProjectTx(ctx, tx, &proj); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.heads_updated", proj.ID, "project", proj.ID, p.ID,
		events.EventPayload{"heads": changed}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}

// DeleteProject removes the aggregate permanently; stages and notes cascade.
func (e Engine) DeleteProject(ctx context.Context, p domain.Principal, projectID string) error {
	if err := access.RequireAdmin(p); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProjectTx(ctx, tx, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NotFoundf("project %s not found", projectID)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", projectID, "project", projectID, p.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) pageSizeCap() int {
	if e.Config != nil && e.Config.Listing.PageSizeCap > 0 {
		return e.Config.Listing.PageSizeCap
	}
	return 100
}

func (e Engine) capLimit(limit int) int {
	if cap := e.pageSizeCap(); limit > cap {
		return cap
	}
	return limit
}

// ListAll pages through every project, newest first. Admin only.
func (e Engine) ListAll(ctx context.Context, p domain.Principal, status domain.ProjectStatus, page, limit int) (repo.ProjectPage, error) {
	if err := access.RequireAdmin(p); err != nil {
		return repo.ProjectPage{}, err
	}
	return e.Repo.ListProjects(ctx, repo.ProjectFilters{Status: status, Page: page, Limit: e.capLimit(limit)})
}

// ListMine pages through the projects the principal created or heads a
// stage of. Admins see everything.
func (e Engine) ListMine(ctx context.Context, p domain.Principal, page, limit int) (repo.ProjectPage, error) {
	f := repo.ProjectFilters{Page: page, Limit: e.capLimit(limit)}
	if !p.IsAdmin() {
		f.UserID = p.ID
	}
	return e.Repo.ListProjects(ctx, f)
}

// GetByIDWithAccess loads one aggregate under the read gate. A missing id
// is NotFound for everyone; an existing but unrelated project is Forbidden,
// so a non-member who guessed the id learns it exists but nothing more.
func (e Engine) GetByIDWithAccess(ctx context.Context, p domain.Principal, projectID string) (domain.Project, error) {
	proj, err := e.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := access.CanReadProject(p, &proj); err != nil {
		return domain.Project{}, err
	}
	return proj, nil
}
