// Package client walks the chunk protocol of a partload server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/partload/internal/jsonstream"
	"github.com/seantiz/partload/internal/model"
	"github.com/seantiz/partload/internal/source"
)

// ErrSessionLost is returned when the server no longer knows the session
// the client was walking, for instance after it expired.
var ErrSessionLost = errors.New("session lost")

// Terminal session states reported by the server.
const (
	StatePartial  = "Partial"
	StateFull     = "Full"
	StateCanceled = "Canceled"
	StateFaulted  = "Faulted"
)

// Unbounded disables a budget when used as Request.Paging or
// Request.Timeout.
const Unbounded = -1

// Request selects a source and the budgets of every call. Zero fields are
// left to the server defaults; a negative Timeout or Paging disables that
// bound.
type Request struct {
	Source  string
	Count   int
	Delay   time.Duration
	Timeout time.Duration
	Paging  int
}

func (r Request) query() string {
	q := url.Values{}
	if r.Count != 0 {
		q.Set("count", strconv.Itoa(r.Count))
	}
	if r.Delay > 0 {
		q.Set("delay", formatMillis(r.Delay))
	}
	switch {
	case r.Timeout < 0:
		q.Set("timeout", "0")
	case r.Timeout > 0:
		q.Set("timeout", formatMillis(r.Timeout))
	}
	switch {
	case r.Paging < 0:
		q.Set("paging", "0")
	case r.Paging > 0:
		q.Set("paging", strconv.Itoa(r.Paging))
	}
	return q.Encode()
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

// Chunk is the outcome of one call.
type Chunk struct {
	Seq       int
	State     string
	SessionID string
	Items     []json.RawMessage
	Duration  time.Duration
}

// Client talks to a partload server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-call debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sources lists the sources the server offers.
func (c *Client) Sources(ctx context.Context) ([]source.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sources", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var infos []source.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return infos, nil
}

// Walk calls the chunk route until the session leaves the Partial state,
// handing every chunk to fn. It returns the final state. When ctx ends or
// fn fails mid-walk the session is canceled on the server.
func (c *Client) Walk(ctx context.Context, r Request, fn func(Chunk) error) (string, error) {
	return c.walk(ctx, r, "chunks", fn)
}

// Stream is Walk over the streamed JSON route: fn receives each chunk once
// its stream is complete, and the final chunk is recognized by the stream
// terminator.
func (c *Client) Stream(ctx context.Context, r Request, fn func(Chunk) error) (string, error) {
	return c.walk(ctx, r, "json", fn)
}

func (c *Client) walk(ctx context.Context, r Request, route string, fn func(Chunk) error) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/sources/%s/%s?%s", c.baseURL, url.PathEscape(r.Source), route, r.query())
	var sessionID string

	for seq := 1; ; seq++ {
		chunk, err := c.call(ctx, endpoint, sessionID, route == "json")
		if err != nil {
			c.abandon(sessionID)
			return "", err
		}
		chunk.Seq = seq
		c.logger.Debug("chunk received",
			"seq", seq,
			"state", chunk.State,
			"size", len(chunk.Items),
			"duration_ms", chunk.Duration.Milliseconds(),
		)
		if err := fn(chunk); err != nil {
			if chunk.State == StatePartial {
				c.abandon(chunk.SessionID)
			}
			return chunk.State, err
		}
		if chunk.State != StatePartial {
			return chunk.State, nil
		}
		sessionID = chunk.SessionID
	}
}

func (c *Client) call(ctx context.Context, endpoint, sessionID string, streamed bool) (Chunk, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Chunk{}, err
	}
	if sessionID != "" {
		req.Header.Set(model.HeaderSession, sessionID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Chunk{}, fmt.Errorf("call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && sessionID != "" {
		return Chunk{}, fmt.Errorf("%w: %s", ErrSessionLost, sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return Chunk{}, statusError(resp)
	}

	var chunk Chunk
	if streamed {
		items, full, err := jsonstream.ReadAll[json.RawMessage](resp.Body)
		if err != nil {
			return Chunk{}, err
		}
		chunk.Items = items
		// Trailers are only populated once the body is drained.
		io.Copy(io.Discard, resp.Body)
		chunk.State = resp.Trailer.Get(model.HeaderState)
		chunk.SessionID = resp.Trailer.Get(model.HeaderSession)
		if full {
			chunk.State = StateFull
		}
		if chunk.State == StateFaulted {
			return Chunk{}, fmt.Errorf("source failed: %s", resp.Trailer.Get(model.HeaderError))
		}
	} else {
		if err := json.NewDecoder(resp.Body).Decode(&chunk.Items); err != nil {
			return Chunk{}, fmt.Errorf("decode chunk: %w", err)
		}
		chunk.State = resp.Header.Get(model.HeaderState)
		chunk.SessionID = resp.Header.Get(model.HeaderSession)
	}
	chunk.Duration = time.Since(start)

	if chunk.State == StatePartial && chunk.SessionID == "" {
		return Chunk{}, errors.New("partial chunk without session")
	}
	return chunk, nil
}

// Cancel cancels a live session.
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// abandon cancels a session the walk can no longer follow.
func (c *Client) abandon(sessionID string) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Cancel(ctx, sessionID); err != nil {
		c.logger.Debug("cancel abandoned session", "session_id", sessionID, "error", err)
	}
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
}
