package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/engine/access"
	"stageline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"the design stage is not active"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the uniform error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Stageline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope shape.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Stageline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerMe(group)
	registerProjects(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerNotes(group, cfg.Engine)
	registerHolidays(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe *access.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var de *engine.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case engine.KindNotFound:
			return newAPIError(http.StatusNotFound, "not_found", de.Message, nil)
		case engine.KindForbidden:
			return newAPIError(http.StatusForbidden, "forbidden", de.Message, nil)
		case engine.KindInvalidState:
			return newAPIError(http.StatusUnprocessableEntity, "invalid_state", de.Message, nil)
		case engine.KindConflict:
			return newAPIError(http.StatusConflict, "conflict", de.Message, nil)
		case engine.KindBusinessRule:
			return newAPIError(http.StatusUnprocessableEntity, "business_rule", de.Message, nil)
		case engine.KindUnknownReference:
			return newAPIError(http.StatusBadRequest, "unknown_reference", de.Message, nil)
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Stageline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for an existing user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.DevLogin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "dev login is disabled", nil)
		}
		email := strings.TrimSpace(input.Body.Email)
		if email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		user, err := e.Repo.GetUserByEmail(ctx, email)
		if err != nil || !user.Active {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no active user with that email", nil)
		}
		token, err := signToken(authCfg.JWTSecret, user.ID)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ID:    principal.ID,
			Name:  principal.Name,
			Email: principal.Email,
			Role:  string(principal.Role),
		}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.CreateProject(ctx, principal, engine.CreateProjectOptions{
			Title:       input.Body.Title,
			Description: desc,
			Heads:       headsByTeam(input.Body.Heads),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List all projects (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"queued,in_data,in_design,in_dev,done" required:"false"`
		Page   int    `query:"page" required:"false"`
		Limit  int    `query:"limit" required:"false"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListAll(ctx, principal, domain.ProjectStatus(input.Status), input.Page, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: projectListResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-projects",
		Method:      http.MethodGet,
		Path:        "/projects/mine",
		Summary:     "List projects I created or head",
	}, func(ctx context.Context, input *struct {
		Page  int `query:"page" required:"false"`
		Limit int `query:"limit" required:"false"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListMine(ctx, principal, input.Page, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: projectListResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetByIDWithAccess(ctx, principal, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project (admin)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, principal, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

type StagePath struct {
	ProjectID string `path:"project_id"`
	Team      string `path:"team" enum:"data,design,dev"`
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-estimate",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{team}/estimate",
		Summary:     "Record the stage head's estimate",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		Body EstimateRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetEstimate(ctx, principal, input.ProjectID, domain.Team(input.Team), engine.EstimateOptions{
			Start: input.Body.Start,
			Hours: input.Body.Hours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-stage",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{team}/complete",
		Summary:     "Complete a stage and advance the pipeline",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		Body CompleteStageRequest `json:"body"`
	}) (*struct {
		Body CompleteStageResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, report, err := e.CompleteStage(ctx, principal, input.ProjectID, domain.Team(input.Team), input.Body.Start, input.Body.End)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompleteStageResponse `json:"body"`
		}{Body: CompleteStageResponse{Project: p, Report: stageReportResponse(report)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-admin-expected",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{team}/admin-expected",
		Summary:     "Set the admin schedule overlay (admin)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		Body AdminExpectedRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateAdminExpected(ctx, principal, input.ProjectID, domain.Team(input.Team), engine.AdminExpectedOptions{
			Start: input.Body.Start,
			Days:  input.Body.Days,
			Hours: input.Body.Hours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-heads",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/heads",
		Summary:     "Reassign stage heads (admin)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      UpdateHeadsRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateHeads(ctx, principal, input.ProjectID, headsByTeam(input.Body.Heads))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notes",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages/{team}/notes",
		Summary:     "List a stage's notes",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StagePath
	}) (*struct {
		Body []domain.Note `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		notes, err := e.ListNotes(ctx, principal, input.ProjectID, domain.Team(input.Team))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Note `json:"body"`
		}{Body: nonNilSlice(notes)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-note",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/stages/{team}/notes",
		Summary:       "Add a note to a stage",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		Body NoteRequest `json:"body"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		note, err := e.AddNote(ctx, principal, input.ProjectID, domain.Team(input.Team), input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: note}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-note",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{team}/notes/{note_id}",
		Summary:     "Edit a note",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		NoteID string      `path:"note_id"`
		Body   NoteRequest `json:"body"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		note, err := e.UpdateNote(ctx, principal, input.ProjectID, domain.Team(input.Team), input.NoteID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: note}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-note",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/stages/{team}/notes/{note_id}",
		Summary:     "Delete a note",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StagePath
		NoteID string `path:"note_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteNote(ctx, principal, input.ProjectID, domain.Team(input.Team), input.NoteID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerHolidays(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-holiday",
		Method:        http.MethodPost,
		Path:          "/holidays",
		Summary:       "Declare a holiday (admin)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateHolidayRequest `json:"body"`
	}) (*struct {
		Body domain.Holiday `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		h, err := e.AddHoliday(ctx, principal, input.Body.Date, input.Body.Name, domain.HolidayCategory(input.Body.Category))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Holiday `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-holidays",
		Method:      http.MethodGet,
		Path:        "/holidays",
		Summary:     "List holidays",
	}, func(ctx context.Context, input *struct {
		All bool `query:"all" required:"false"`
	}) (*struct {
		Body []domain.Holiday `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		holidays, err := e.ListHolidays(ctx, principal, input.All)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Holiday `json:"body"`
		}{Body: nonNilSlice(holidays)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-holiday",
		Method:      http.MethodPatch,
		Path:        "/holidays/{holiday_id}",
		Summary:     "Update a holiday (admin)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		HolidayID string               `path:"holiday_id"`
		Body      UpdateHolidayRequest `json:"body"`
	}) (*struct {
		Body domain.Holiday `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.HolidayUpdateOptions{
			Name:   input.Body.Name,
			Active: input.Body.Active,
		}
		if input.Body.Category != nil {
			c := domain.HolidayCategory(*input.Body.Category)
			opts.Category = &c
		}
		h, err := e.UpdateHoliday(ctx, principal, input.HolidayID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Holiday `json:"body"`
		}{Body: h}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user (admin)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, principal, input.Body.Name, input.Body.Email, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, principal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: nonNilSlice(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Update user (admin)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Body   UpdateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UserUpdateOptions{
			Name:   input.Body.Name,
			Email:  input.Body.Email,
			Active: input.Body.Active,
		}
		if input.Body.Role != nil {
			r := domain.Role(*input.Body.Role)
			opts.Role = &r
		}
		u, err := e.UpdateUser(ctx, principal, input.UserID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the audit log (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id" required:"false"`
		Limit     int    `query:"limit" required:"false"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		events, err := e.TailEvents(ctx, principal, input.ProjectID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: nonNilSlice(events)}, nil
	})
}
