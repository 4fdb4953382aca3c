package domain

import "time"

// Team identifies one of the three fixed pipeline stages. The pipeline is
// closed by design: data, design and dev, in that order, never reordered.
type Team string

const (
	TeamData   Team = "data"
	TeamDesign Team = "design"
	TeamDev    Team = "dev"
)

// Teams is the fixed pipeline order.
var Teams = [3]Team{TeamData, TeamDesign, TeamDev}

// Valid reports whether t is one of the three known teams.
func (t Team) Valid() bool {
	switch t {
	case TeamData, TeamDesign, TeamDev:
		return true
	}
	return false
}

// Next returns the team that follows t in the pipeline, or false when t is
// the final stage.
func (t Team) Next() (Team, bool) {
	switch t {
	case TeamData:
		return TeamDesign, true
	case TeamDesign:
		return TeamDev, true
	default:
		return "", false
	}
}

// StageStatus is the per-stage sub-state. Transitions are monotonic:
// pending -> in_progress -> done.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageDone       StageStatus = "done"
)

// ProjectStatus mirrors the currently active stage.
type ProjectStatus string

const (
	StatusQueued   ProjectStatus = "queued"
	StatusInData   ProjectStatus = "in_data"
	StatusInDesign ProjectStatus = "in_design"
	StatusInDev    ProjectStatus = "in_dev"
	StatusDone     ProjectStatus = "done"
)

// StatusForTeam returns the project status corresponding to a team being
// the active stage.
func StatusForTeam(t Team) ProjectStatus {
	switch t {
	case TeamData:
		return StatusInData
	case TeamDesign:
		return StatusInDesign
	default:
		return StatusInDev
	}
}

// Role is a principal's fixed role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDataHead   Role = "data_head"
	RoleDesignHead Role = "design_head"
	RoleDevHead    Role = "dev_head"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDataHead, RoleDesignHead, RoleDevHead:
		return true
	}
	return false
}

// Principal is an authenticated caller, resolved by the auth boundary.
type Principal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

// IsAdmin is a convenience for the most common gate.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// User is a directory entry; Principal is its authenticated projection.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Principal returns the authenticated projection of u.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Active: u.Active}
}

// Estimate is a planned interval: a start instant plus a duration in hours.
type Estimate struct {
	Start *time.Time `json:"start,omitempty"`
	Hours *float64   `json:"hours,omitempty"`
}

// Interval is a recorded actual start/end pair, set once at completion.
type Interval struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Note is one entry in a stage's discussion thread.
type Note struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Stage is one team's unit of work inside a project aggregate.
type Stage struct {
	Team          Team        `json:"team"`
	HeadID        string      `json:"head_id"`
	Expected      Estimate    `json:"expected"`
	AdminExpected Estimate    `json:"admin_expected"`
	Actual        Interval    `json:"actual"`
	Status        StageStatus `json:"status" enum:"pending,in_progress,done"`
	Notes         []Note      `json:"notes"`
}

// HasEstimate reports whether the stage head has recorded an estimate.
func (s Stage) HasEstimate() bool { return s.Expected.Hours != nil }

// Project is the aggregate root: one row plus exactly three stages and
// their note threads. Version guards concurrent writers.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	CreatedBy   string        `json:"created_by"`
	Status      ProjectStatus `json:"status" enum:"queued,in_data,in_design,in_dev,done"`
	CurrentTeam *Team         `json:"current_team,omitempty"`
	Stages      [3]Stage      `json:"stages"`
	Version     int64         `json:"version"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

// Stage returns the stage for a team. The aggregate always carries all
// three, so the lookup cannot miss for a valid team.
func (p *Project) Stage(t Team) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Team == t {
			return &p.Stages[i]
		}
	}
	return nil
}

// IsHead reports whether userID heads any stage of the project.
func (p *Project) IsHead(userID string) bool {
	for i := range p.Stages {
		if p.Stages[i].HeadID == userID {
			return true
		}
	}
	return false
}

// HolidayCategory distinguishes company closures from national holidays.
type HolidayCategory string

const (
	HolidayCompany  HolidayCategory = "company"
	HolidayNational HolidayCategory = "national"
)

func (c HolidayCategory) Valid() bool {
	return c == HolidayCompany || c == HolidayNational
}

// Holiday is an administrator-declared non-working day. Date is a calendar
// day key (YYYY-MM-DD, UTC); Active soft-disables without losing history.
type Holiday struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	Name      string          `json:"name"`
	Category  HolidayCategory `json:"category" enum:"company,national"`
	Active    bool            `json:"active"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

// Event is one audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
