package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/smoked-tofu/internal/api"
	"github.com/mattjoyce/smoked-tofu/internal/events"
)

// Client talks to the ops API of a running relay.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the ops API at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

// Health queries /healthz.
func (c *Client) Health(ctx context.Context) (*api.HealthzResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, "/healthz")
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("healthz: unexpected status %d", resp.StatusCode)
	}
	var h api.HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("healthz: %w", err)
	}
	return &h, nil
}

// Stream reads /events until the connection drops or ctx ends, calling fn for
// each event. Events up to lastID are not replayed. It returns the ID of the
// last event seen, which is lastID when nothing arrived.
func (c *Client) Stream(ctx context.Context, lastID int64, fn func(events.Event)) (int64, error) {
	req, err := c.newRequest(ctx, "/events")
	if err != nil {
		return lastID, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return lastID, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return lastID, fmt.Errorf("events: unexpected status %d", resp.StatusCode)
	}

	err = readStream(resp.Body, func(e events.Event) {
		if e.ID > lastID {
			lastID = e.ID
		}
		fn(e)
	})
	return lastID, err
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// readStream parses SSE frames whose data line is a JSON-encoded events.Event.
// Comment lines and frames with undecodable data are skipped.
func readStream(r io.Reader, fn func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		id   int64
		typ  string
		data string
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data != "" {
				var e events.Event
				if err := json.Unmarshal([]byte(data), &e); err == nil {
					if e.ID == 0 {
						e.ID = id
					}
					if e.Type == "" {
						e.Type = typ
					}
					fn(e)
				}
			}
			id, typ, data = 0, "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				id = n
			}
		case strings.HasPrefix(line, "event: "):
			typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	return scanner.Err()
}

// --- Messages ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// streamClosedMsg reports the end of one /events connection.
type streamClosedMsg struct {
	lastID int64
	err    error
}

type reconnectMsg struct{}

// --- Commands ---

// subscribe streams events into ch until the connection drops.
func subscribe(ctx context.Context, c *Client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		last, err := c.Stream(ctx, lastID, func(e events.Event) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		})
		return streamClosedMsg{lastID: last, err: err}
	}
}

// receiveNextEvent waits for the next streamed event.
func receiveNextEvent(ctx context.Context, ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-ch:
			return eventMsg(e)
		case <-ctx.Done():
			return nil
		}
	}
}

// fetchHealth queries /healthz.
func fetchHealth(ctx context.Context, c *Client) tea.Msg {
	h, err := c.Health(ctx)
	if err != nil {
		return errMsg{err}
	}
	return healthMsg(*h)
}
