package server

import (
	"time"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
	"stageline/internal/workhours"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Heads       map[string]string `json:"heads"`
}

type EstimateRequest struct {
	Start *time.Time `json:"start,omitempty" format:"date-time"`
	Hours float64    `json:"hours"`
}

type CompleteStageRequest struct {
	Start time.Time `json:"start" format:"date-time"`
	End   time.Time `json:"end" format:"date-time"`
}

type AdminExpectedRequest struct {
	Start *time.Time `json:"start,omitempty" format:"date-time"`
	Days  *int       `json:"days,omitempty"`
	Hours *float64   `json:"hours,omitempty"`
}

type UpdateHeadsRequest struct {
	Heads map[string]string `json:"heads"`
}

type NoteRequest struct {
	Text string `json:"text"`
}

type CreateHolidayRequest struct {
	Date     string `json:"date" example:"2026-12-25"`
	Name     string `json:"name"`
	Category string `json:"category" enum:"company,national"`
}

type UpdateHolidayRequest struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty" enum:"company,national"`
	Active   *bool   `json:"active,omitempty"`
}

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
	Role  string `json:"role" enum:"admin,data_head,design_head,dev_head"`
}

type UpdateUserRequest struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty" format:"email"`
	Role   *string `json:"role,omitempty" enum:"admin,data_head,design_head,dev_head"`
	Active *bool   `json:"active,omitempty"`
}

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ProjectListResponse struct {
	Items      []domain.Project `json:"items"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

type StageReportResponse struct {
	ActualHours   float64         `json:"actual_hours"`
	ActualParts   workhours.Parts `json:"actual_parts"`
	ExpectedHours float64         `json:"expected_hours"`
	ExpectedParts workhours.Parts `json:"expected_parts"`
	PenaltyHours  float64         `json:"penalty_hours"`
}

type CompleteStageResponse struct {
	Project domain.Project      `json:"project"`
	Report  StageReportResponse `json:"report"`
}

type WhoAmIResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func projectListResponse(p repo.ProjectPage) ProjectListResponse {
	return ProjectListResponse{
		Items:      nonNilSlice(p.Items),
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

func stageReportResponse(r engine.StageReport) StageReportResponse {
	return StageReportResponse{
		ActualHours:   r.ActualHours,
		ActualParts:   r.ActualParts,
		ExpectedHours: r.ExpectedHours,
		ExpectedParts: r.ExpectedParts,
		PenaltyHours:  r.PenaltyHours,
	}
}

func headsByTeam(in map[string]string) map[domain.Team]string {
	out := make(map[domain.Team]string, len(in))
	for k, v := range in {
		out[domain.Team(k)] = v
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
