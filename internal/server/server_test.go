package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	boot := domain.Principal{ID: "bootstrap", Role: domain.RoleAdmin, Active: true}
	ctx := context.Background()
	if _, err := e.CreateUser(ctx, boot, "Ada Admin", "ada@example.com", domain.RoleAdmin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	admin, err := e.Repo.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	for _, seed := range []struct {
		name, email string
		role        domain.Role
	}{
		{"Dana Data", "dana@example.com", domain.RoleDataHead},
		{"Des Design", "des@example.com", domain.RoleDesignHead},
		{"Devin Dev", "devin@example.com", domain.RoleDevHead},
	} {
		if _, err := e.CreateUser(ctx, admin.Principal(), seed.name, seed.email, seed.role); err != nil {
			t.Fatalf("seed %s: %v", seed.email, err)
		}
	}

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, DevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("%s %s: invalid json %q", method, path, data)
		}
	}
	return resp.StatusCode, decoded
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/v1/auth/dev/login", "", map[string]string{"email": email})
	if status != http.StatusOK {
		t.Fatalf("dev login %s: status %d (%v)", email, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("dev login %s: no token in %v", email, body)
	}
	return token
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	env, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error envelope in %v", body)
	}
	code, _ := env["code"].(string)
	return code
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/v1/health", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", status, body)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/v1/projects", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if code := errorCode(t, body); code != "unauthorized" {
		t.Fatalf("code = %q, want unauthorized", code)
	}

	status, _ = s.do(t, http.MethodGet, "/v1/projects", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", status)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminTok := s.login(t, "ada@example.com")
	dataTok := s.login(t, "dana@example.com")

	status, created := s.do(t, http.MethodPost, "/v1/projects", adminTok, map[string]any{
		"title": "Churn model",
		"heads": map[string]string{
			"data":   "dana@example.com",
			"design": "des@example.com",
			"dev":    "devin@example.com",
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("create = %d %v", status, created)
	}
	projectID, _ := created["id"].(string)
	if projectID == "" || created["status"] != "in_data" {
		t.Fatalf("created project = %v", created)
	}

	// The data head estimates, then completes Monday 09:00 to Tuesday 09:00.
	status, body := s.do(t, http.MethodPatch,
		fmt.Sprintf("/v1/projects/%s/stages/data/estimate", projectID), dataTok,
		map[string]any{"hours": 8, "start": "2026-03-02T09:00:00Z"})
	if status != http.StatusOK {
		t.Fatalf("estimate = %d %v", status, body)
	}

	status, body = s.do(t, http.MethodPatch,
		fmt.Sprintf("/v1/projects/%s/stages/data/complete", projectID), dataTok,
		map[string]any{"start": "2026-03-02T09:00:00Z", "end": "2026-03-03T09:00:00Z"})
	if status != http.StatusOK {
		t.Fatalf("complete = %d %v", status, body)
	}
	report, _ := body["report"].(map[string]any)
	if report["actual_hours"] != 24.0 || report["penalty_hours"] != 16.0 {
		t.Fatalf("report = %v", report)
	}
	project, _ := body["project"].(map[string]any)
	if project["status"] != "in_design" {
		t.Fatalf("project after completion = %v", project)
	}

	status, got := s.do(t, http.MethodGet, "/v1/projects/"+projectID, adminTok, nil)
	if status != http.StatusOK || got["status"] != "in_design" {
		t.Fatalf("get = %d %v", status, got)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	s := newTestServer(t)
	adminTok := s.login(t, "ada@example.com")
	dataTok := s.login(t, "dana@example.com")
	devTok := s.login(t, "devin@example.com")

	status, body := s.do(t, http.MethodPost, "/v1/projects", adminTok, map[string]any{
		"title": "Churn model",
		"heads": map[string]string{
			"data":   "dana@example.com",
			"design": "des@example.com",
			"dev":    "devin@example.com",
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("create = %d %v", status, body)
	}
	projectID, _ := body["id"].(string)

	// Completing a non-active stage is 422 invalid_state.
	status, body = s.do(t, http.MethodPatch,
		fmt.Sprintf("/v1/projects/%s/stages/dev/complete", projectID), devTok,
		map[string]any{"start": "2026-03-02T09:00:00Z", "end": "2026-03-03T09:00:00Z"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("inactive complete = %d %v", status, body)
	}
	if code := errorCode(t, body); code != "invalid_state" {
		t.Fatalf("code = %q, want invalid_state", code)
	}

	// Writing another head's stage is 403 forbidden.
	status, body = s.do(t, http.MethodPatch,
		fmt.Sprintf("/v1/projects/%s/stages/data/estimate", projectID), devTok,
		map[string]any{"hours": 8})
	if status != http.StatusForbidden {
		t.Fatalf("foreign estimate = %d %v", status, body)
	}
	if code := errorCode(t, body); code != "forbidden" {
		t.Fatalf("code = %q, want forbidden", code)
	}

	// Non-admin creating a project is 403.
	status, body = s.do(t, http.MethodPost, "/v1/projects", dataTok, map[string]any{
		"title": "nope",
		"heads": map[string]string{"data": "dana@example.com", "design": "des@example.com", "dev": "devin@example.com"},
	})
	if status != http.StatusForbidden {
		t.Fatalf("non-admin create = %d %v", status, body)
	}

	// Missing project is 404 not_found.
	status, body = s.do(t, http.MethodGet, "/v1/projects/missing", adminTok, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing project = %d %v", status, body)
	}
	if code := errorCode(t, body); code != "not_found" {
		t.Fatalf("code = %q, want not_found", code)
	}

	// Unknown head reference is 400 unknown_reference.
	status, body = s.do(t, http.MethodPatch,
		fmt.Sprintf("/v1/projects/%s/heads", projectID), adminTok,
		map[string]any{"heads": map[string]string{"dev": "ghost@example.com"}})
	if status != http.StatusBadRequest {
		t.Fatalf("unknown head = %d %v", status, body)
	}
	if code := errorCode(t, body); code != "unknown_reference" {
		t.Fatalf("code = %q, want unknown_reference", code)
	}
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	s := newTestServer(t)
	devTok := s.login(t, "devin@example.com")

	status, _ := s.do(t, http.MethodGet, "/v1/projects/mine", devTok, nil)
	if status != http.StatusOK {
		t.Fatalf("active user status = %d, want 200", status)
	}

	ctx := context.Background()
	dev, err := s.Engine.Repo.GetUserByEmail(ctx, "devin@example.com")
	if err != nil {
		t.Fatal(err)
	}
	off := false
	admin, err := s.Engine.Repo.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Engine.UpdateUser(ctx, admin.Principal(), dev.ID, engine.UserUpdateOptions{Active: &off}); err != nil {
		t.Fatal(err)
	}

	// The still-valid token no longer resolves to an active principal.
	status, _ = s.do(t, http.MethodGet, "/v1/projects/mine", devTok, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deactivated user status = %d, want 401", status)
	}
}
