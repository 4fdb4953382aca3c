package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stageline/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	if cfg.Server.Addr != ":8080" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Notes.MaxLength != 2000 || cfg.Listing.PageSizeCap != 100 {
		t.Fatalf("limit defaults = notes %d, listing %d", cfg.Notes.MaxLength, cfg.Listing.PageSizeCap)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Fatal("jwt secret must not have a default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	workspace := t.TempDir()
	yml := strings.Join([]string{
		"server:",
		"  addr: 127.0.0.1:9999",
		"auth:",
		"  jwt_secret: s3cret",
		"  dev_login: true",
		"notes:",
		"  max_length: 500",
	}, "\n")
	if err := os.WriteFile(filepath.Join(workspace, "stageline.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.JWTSecret != "s3cret" || !cfg.Auth.DevLogin {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if cfg.Notes.MaxLength != 500 {
		t.Fatalf("max_length = %d", cfg.Notes.MaxLength)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.BasePath != "/v1" || cfg.Listing.PageSizeCap != 100 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yml  string
	}{
		{"bad base path", "server:\n  base_path: v1\n"},
		{"zero note length", "notes:\n  max_length: 0\n"},
		{"zero page cap", "listing:\n  page_size_cap: 0\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(tc.yml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
