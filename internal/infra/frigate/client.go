// Package frigate implements a minimal HTTP client for the Frigate NVR,
// narrow by design: it proxies camera snapshots and event thumbnails to
// the dashboard without JARVIS ever parsing Frigate's own data model
// (spec.md's Frigate NVR is an out-of-scope external collaborator,
// reached through this one client interface). Grounded on the same
// baseURL+http.Client shape as internal/infra/proxmox.
package frigate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one Frigate instance over plain HTTP on the LAN.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Config configures a Client.
type Config struct {
	BaseURL string // e.g. http://frigate.lan:5000
}

// New constructs a Client. An empty BaseURL is valid; every method
// then returns the unexported errNotConfigured error.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
	}
}

// Blob is a binary proxy response: raw bytes plus the upstream content type.
type Blob struct {
	ContentType string
	Data        []byte
}

var errNotConfigured = fmt.Errorf("frigate: no base URL configured")

func (c *Client) get(ctx context.Context, path string) (*Blob, error) {
	if c.baseURL == "" {
		return nil, errNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frigate: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("frigate: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("frigate: %s returned %d", path, resp.StatusCode)
	}
	return &Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// CameraSnapshot fetches the latest JPEG snapshot for a named camera.
func (c *Client) CameraSnapshot(ctx context.Context, camera string) (*Blob, error) {
	return c.get(ctx, "/api/"+camera+"/latest.jpg")
}

// EventThumbnail fetches a recorded event's thumbnail image.
func (c *Client) EventThumbnail(ctx context.Context, eventID string) (*Blob, error) {
	return c.get(ctx, "/api/events/"+eventID+"/thumbnail.jpg")
}

// EventSnapshot fetches a recorded event's full snapshot image.
func (c *Client) EventSnapshot(ctx context.Context, eventID string) (*Blob, error) {
	return c.get(ctx, "/api/events/"+eventID+"/snapshot.jpg")
}

// Event is the subset of Frigate's event JSON the dashboard consumes.
type Event struct {
	ID        string  `json:"id"`
	Camera    string  `json:"camera"`
	Label     string  `json:"label"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`
}

// ListEvents proxies Frigate's /api/events endpoint, forwarding query
// parameters verbatim (e.g. camera, label, limit).
func (c *Client) ListEvents(ctx context.Context, rawQuery string) ([]Event, error) {
	path := "/api/events"
	if rawQuery != "" {
		path += "?" + rawQuery
	}
	blob, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(blob.Data, &events); err != nil {
		return nil, fmt.Errorf("frigate: decode events: %w", err)
	}
	return events, nil
}
