// Package proxmox implements a minimal Proxmox VE REST client: token
// auth, envelope unwrapping, and a short TTL result cache in front of
// the hot telemetry/context-builder paths (spec.md §4.3).
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// CacheTTL is the result-cache lifetime for hot read paths.
const CacheTTL = 2 * time.Second

// Client talks to one or more Proxmox nodes over HTTPS using a
// per-node API token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenID    string
	tokenSecret string

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// Config configures a Client.
type Config struct {
	BaseURL     string // e.g. https://pve.lan:8006/api2/json
	TokenID     string // e.g. root@pam!jarvis
	TokenSecret string
	InsecureSkipVerify bool // private LAN, spec.md §4.3
}

// New constructs a Client.
func New(cfg Config) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport, Timeout: 15 * time.Second},
		baseURL:     cfg.BaseURL,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		cache:       make(map[string]cacheEntry),
	}
}

// envelope matches Proxmox's {data: T} response wrapping.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Error wraps a non-2xx Proxmox response with host/path/status detail
// for the Upstream error kind (spec.md §7).
type Error struct {
	Host   string
	Path   string
	Status int
}

func (e *Error) Error() string {
	return fmt.Sprintf("proxmox: %s%s returned status %d", e.Host, e.Path, e.Status)
}

// get issues an authenticated GET, consulting the TTL cache first when
// cacheable is true.
func (c *Client) get(ctx context.Context, path string, cacheable bool) ([]byte, error) {
	if cacheable {
		if body, ok := c.cached(path); ok {
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", c.tokenID, c.tokenSecret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxmox: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Host: c.baseURL, Path: path, Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("proxmox: decode envelope for %s: %w", path, err)
	}

	if cacheable {
		c.store(path, env.Data)
	}
	return env.Data, nil
}

func (c *Client) cached(path string) ([]byte, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.cache[path]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.body, true
}

func (c *Client) store(path string, body []byte) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[path] = cacheEntry{body: body, expires: time.Now().Add(CacheTTL)}
}

// ClusterResources returns /cluster/resources, TTL-cached.
func (c *Client) ClusterResources(ctx context.Context) ([]ClusterResource, error) {
	body, err := c.get(ctx, "/cluster/resources", true)
	if err != nil {
		return nil, err
	}
	var out []ClusterResource
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("proxmox: decode cluster/resources: %w", err)
	}
	return out, nil
}

// ClusterStatus returns /cluster/status, TTL-cached.
func (c *Client) ClusterStatus(ctx context.Context) ([]ClusterStatusEntry, error) {
	body, err := c.get(ctx, "/cluster/status", true)
	if err != nil {
		return nil, err
	}
	var out []ClusterStatusEntry
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("proxmox: decode cluster/status: %w", err)
	}
	return out, nil
}

// NodeStatus returns /nodes/<node>/status, uncached (lifecycle-action
// follow-up reads should observe fresh state).
func (c *Client) NodeStatus(ctx context.Context, node string) (NodeStatus, error) {
	body, err := c.get(ctx, "/nodes/"+node+"/status", false)
	if err != nil {
		return NodeStatus{}, err
	}
	var out NodeStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return NodeStatus{}, fmt.Errorf("proxmox: decode node status: %w", err)
	}
	return out, nil
}

// VMAction performs a lifecycle action (start/stop/shutdown/reboot) on
// a VM via POST, invalidating the cluster-resources cache entry so the
// next read reflects the change.
func (c *Client) VMAction(ctx context.Context, node string, vmid int, action string) error {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/%s", node, vmid, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", c.tokenID, c.tokenSecret))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proxmox: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Host: c.baseURL, Path: path, Status: resp.StatusCode}
	}
	c.invalidate("/cluster/resources")
	return nil
}

func (c *Client) invalidate(path string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	delete(c.cache, path)
}
