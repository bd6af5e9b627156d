// Package doctor checks a smoked-tofu configuration beyond what config.Validate enforces:
// whether the command resolves, whether the history path is usable, and settings that
// are legal but likely mistakes.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strings"

	"github.com/mattjoyce/smoked-tofu/internal/checks"
	"github.com/mattjoyce/smoked-tofu/internal/config"
	"github.com/mattjoyce/smoked-tofu/internal/storage"
)

const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the local machine.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	fsCheck  func(string) error
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, fsCheck: storage.ValidateFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.validateCommand(r)
	d.validateHistory(r)
	d.warnWeakSecret(r)
	d.warnNoTimeout(r)
	d.warnOutputLimit(r)
	d.warnInsecureAPIURL(r)
	d.warnExposedAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateCommand checks that the configured command can be spawned.
func (d *Doctor) validateCommand(r *Result) {
	name := d.cfg.Command.Name
	if name == "" {
		return
	}
	if _, err := d.lookPath(name); err != nil {
		d.addError(r, "command", "command.name",
			fmt.Sprintf("command %q not found or not executable: %v", name, err))
	}
}

// validateHistory checks the history database can live where it is configured.
func (d *Doctor) validateHistory(r *Result) {
	if d.cfg.History.Path == "" {
		return
	}
	if err := d.fsCheck(d.cfg.History.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
}

func (d *Doctor) warnWeakSecret(r *Result) {
	if s := d.cfg.Webhook.Secret; s != "" && len(s) < minSecretLength {
		d.addWarning(r, "security", "webhook.secret",
			fmt.Sprintf("secret is %d bytes; use at least %d random bytes", len(s), minSecretLength))
	}
}

func (d *Doctor) warnNoTimeout(r *Result) {
	if d.cfg.Command.Timeout == 0 {
		d.addWarning(r, "command", "command.timeout",
			"no timeout set; a hung command keeps its check run in progress and holds the webhook request open")
	}
}

// warnOutputLimit flags limits where a single stream alone overflows the check run text.
func (d *Doctor) warnOutputLimit(r *Result) {
	if n := d.cfg.Command.MaxOutputBytes; n > checks.MaxOutputText {
		d.addWarning(r, "command", "command.max_output_bytes",
			fmt.Sprintf("max_output_bytes %d exceeds the %d characters a check run can show; the report will be truncated", n, checks.MaxOutputText))
	}
}

func (d *Doctor) warnInsecureAPIURL(r *Result) {
	u, err := url.Parse(d.cfg.GitHub.APIURL)
	if err != nil || u.Scheme == "https" {
		return
	}
	if isLoopback(u.Hostname()) {
		return
	}
	d.addWarning(r, "github", "github.api_url",
		fmt.Sprintf("api_url %q is not https; the token is sent in clear text", d.cfg.GitHub.APIURL))
}

func (d *Doctor) warnExposedAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key",
			"API enabled without api_key; every endpoint except /healthz will answer 401")
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err == nil && !isLoopback(host) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("ops API listens on %q, reachable beyond this host", d.cfg.API.Listen))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
