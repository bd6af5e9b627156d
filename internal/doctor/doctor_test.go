package doctor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/smoked-tofu/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.GitHub.Token = "ghp_test"
	cfg.Webhook.Secret = "0123456789abcdef0123"
	cfg.Command.Name = "make"
	cfg.Command.Args = []string{"test"}
	cfg.Command.Timeout = 10 * time.Minute
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	d.fsCheck = func(string) error { return nil }
	return d
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_ConfigErrorsSurface(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.GitHub.Token = ""

	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(r.Errors[0].Message, "github.token") {
		t.Fatalf("unexpected error: %v", r.Errors[0])
	}
}

func TestValidate_CommandNotFound(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig())
	d.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }

	r := d.Validate()
	if r.Valid || !hasIssue(r.Errors, "command.name") {
		t.Fatalf("expected command.name error, got %+v", r)
	}
}

func TestValidate_HistoryOnNetworkFilesystem(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.History.Path = "/mnt/nfs/history.db"
	d := newDoctor(cfg)
	d.fsCheck = func(string) error { return errors.New(`history path is on network filesystem "nfs"`) }

	r := d.Validate()
	if r.Valid || !hasIssue(r.Errors, "history.path") {
		t.Fatalf("expected history.path error, got %+v", r)
	}
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "short secret", mutate: func(c *config.Config) { c.Webhook.Secret = "abc" }, field: "webhook.secret"},
		{name: "no timeout", mutate: func(c *config.Config) { c.Command.Timeout = 0 }, field: "command.timeout"},
		{name: "huge output limit", mutate: func(c *config.Config) { c.Command.MaxOutputBytes = 1 << 20 }, field: "command.max_output_bytes"},
		{name: "plain http api", mutate: func(c *config.Config) { c.GitHub.APIURL = "http://ghe.example.com/api/v3" }, field: "github.api_url"},
		{
			name: "api without key",
			mutate: func(c *config.Config) {
				c.API.Enabled = true
			},
			field: "api.api_key",
		},
		{
			name: "api on all interfaces",
			mutate: func(c *config.Config) {
				c.API.Enabled = true
				c.API.APIKey = "k"
				c.API.Listen = "0.0.0.0:8080"
			},
			field: "api.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			r := newDoctor(cfg).Validate()
			if !r.Valid {
				t.Fatalf("warnings must not invalidate, got errors: %v", r.Errors)
			}
			if !hasIssue(r.Warnings, tt.field) {
				t.Fatalf("expected warning on %s, got %v", tt.field, r.Warnings)
			}
		})
	}
}

func TestValidate_LocalhostHTTPAllowed(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.GitHub.APIURL = "http://127.0.0.1:8080"
	r := newDoctor(cfg).Validate()
	if hasIssue(r.Warnings, "github.api_url") {
		t.Fatalf("loopback http should not warn: %v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	if got := FormatHuman(&Result{Valid: true}); got != "Configuration valid.\n" {
		t.Fatalf("unexpected output %q", got)
	}

	out := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "command", Field: "command.name", Message: "not found"}},
		Warnings: []Issue{{Category: "security", Message: "weak"}},
	})
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [command] command.name: not found",
		"WARN  [security] weak",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}
