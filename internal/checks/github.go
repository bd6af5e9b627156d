package checks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v56/github"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"

	userAgent = "smoked-tofu"
)

// ErrAPI is the single error kind for any failed check-run call.
var ErrAPI = errors.New("check run API error")

// APIError describes a failed create or update call.
// StatusCode is 0 when no HTTP response was received.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s check run: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s check run: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s check run: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Is makes every APIError match ErrAPI.
func (e *APIError) Is(target error) bool { return target == ErrAPI }

// GitHub implements Client against the GitHub Checks REST API.
type GitHub struct {
	baseURL string
	http    *http.Client
	client  *github.Client
	initErr error
}

// GitHubOption configures a GitHub client.
type GitHubOption func(*GitHub)

// WithBaseURL points the client at GitHub Enterprise (".../api/v3") or a test server.
func WithBaseURL(baseURL string) GitHubOption {
	return func(g *GitHub) {
		if baseURL != "" {
			g.baseURL = baseURL
		}
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) {
		if c != nil {
			g.http = c
		}
	}
}

// NewGitHub creates a client authenticating with a bearer token.
// An unparsable base URL surfaces as an *APIError on the first call.
func NewGitHub(token string, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}

	g.client = github.NewClient(g.http).WithAuthToken(token)
	g.client.UserAgent = userAgent

	base, err := url.Parse(strings.TrimRight(g.baseURL, "/") + "/")
	if err != nil {
		g.initErr = fmt.Errorf("invalid base URL %q: %w", g.baseURL, err)
		return g
	}
	g.client.BaseURL = base
	return g
}

// Create posts a new check run for run.HeadSHA.
func (g *GitHub) Create(ctx context.Context, owner, repo string, run CheckRun) (Handle, error) {
	const op = "create"
	if err := g.precheck(op, run); err != nil {
		return Handle{}, err
	}

	created, resp, err := g.client.Checks.CreateCheckRun(ctx, owner, repo, github.CreateCheckRunOptions{
		Name:       run.Name,
		HeadSHA:    run.HeadSHA,
		Status:     github.String(string(run.Status)),
		Conclusion: conclusionString(run.Conclusion),
		Output:     toGitHubOutput(run.Output),
	})
	return toHandle(op, created, resp, err)
}

// Update patches the check run identified by h.
func (g *GitHub) Update(ctx context.Context, owner, repo string, h Handle, run CheckRun) (Handle, error) {
	const op = "update"
	if err := g.precheck(op, run); err != nil {
		return Handle{}, err
	}

	updated, resp, err := g.client.Checks.UpdateCheckRun(ctx, owner, repo, h.ID, github.UpdateCheckRunOptions{
		Name:       run.Name,
		Status:     github.String(string(run.Status)),
		Conclusion: conclusionString(run.Conclusion),
		Output:     toGitHubOutput(run.Output),
	})
	return toHandle(op, updated, resp, err)
}

func (g *GitHub) precheck(op string, run CheckRun) error {
	if g.initErr != nil {
		return &APIError{Op: op, Err: g.initErr}
	}
	if err := run.Validate(); err != nil {
		return &APIError{Op: op, Err: err}
	}
	return nil
}

// toHandle folds every go-github failure into a single *APIError.
func toHandle(op string, run *github.CheckRun, resp *github.Response, err error) (Handle, error) {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	if err != nil {
		apiErr := &APIError{Op: op, StatusCode: status, Err: err}
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) {
			apiErr.Body = ghErr.Message
		}
		return Handle{}, apiErr
	}
	if run == nil || run.GetID() == 0 {
		return Handle{}, &APIError{Op: op, StatusCode: status, Err: errors.New("response has no check run id")}
	}
	return Handle{
		ID:     run.GetID(),
		Name:   run.GetName(),
		Status: Status(run.GetStatus()),
	}, nil
}

func conclusionString(c *Conclusion) *string {
	if c == nil {
		return nil
	}
	return github.String(string(*c))
}

func toGitHubOutput(o *Output) *github.CheckRunOutput {
	if o == nil {
		return nil
	}
	return &github.CheckRunOutput{
		Title:   github.String(o.Title),
		Summary: github.String(o.Summary),
		Text:    o.Text,
	}
}
