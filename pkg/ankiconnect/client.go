// Package ankiconnect talks to the AnkiConnect add-on, the JSON RPC service
// that owns the notes being edited.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/japaniel/rtkstories/pkg/apperr"
	"github.com/japaniel/rtkstories/pkg/logging"
)

const (
	// DefaultEndpoint is where AnkiConnect listens unless configured otherwise.
	DefaultEndpoint = "http://127.0.0.1:8765"
	// Version is the AnkiConnect protocol version requested on every call.
	Version = 6

	maxResponseSize = 32 * 1024 * 1024
)

// NoteID identifies a note. Only AnkiConnect issues these.
type NoteID int64

// Field is one named field of a note.
type Field struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// Note is the current state of one note as returned by notesInfo.
type Note struct {
	ID        NoteID           `json:"noteId"`
	ModelName string           `json:"modelName"`
	Tags      []string         `json:"tags"`
	Fields    map[string]Field `json:"fields"`
}

// Value returns the value of the named field, or "" when the note lacks it.
func (n Note) Value(field string) string {
	return n.Fields[field].Value
}

// Client issues actions against an AnkiConnect endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "ankiconnect")
	}
}

// New creates a client for endpoint. An empty endpoint means DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.NewComponentLogger(nil, "ankiconnect"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Invoke runs action with params and decodes the envelope's result into
// result, which may be nil when the caller does not need it. A non-null
// error in the response envelope becomes an *apperr.UpstreamError; anything
// that prevents reading the envelope is an *apperr.TransportError.
func (c *Client) Invoke(ctx context.Context, action string, params any, result any) error {
	body, err := json.Marshal(request{Action: action, Version: Version, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperr.TransportError{Op: action, URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.TransportError{Op: action, URL: c.endpoint, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &apperr.TransportError{Op: action, URL: c.endpoint, Err: fmt.Errorf("read response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &apperr.TransportError{Op: action, URL: c.endpoint, Err: fmt.Errorf("decode envelope: %w", err)}
	}

	c.logger.DebugContext(ctx, "ankiconnect call",
		slog.String("action", action),
		slog.Duration("elapsed", time.Since(start)))

	if env.Error != nil {
		return &apperr.UpstreamError{Action: action, Message: *env.Error}
	}
	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return &apperr.TransportError{Op: action, URL: c.endpoint, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}
