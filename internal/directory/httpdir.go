package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDirectory talks to a hosted directory service over its HTTP API. The
// service is interchangeable: any endpoint implementing the same three
// routes works, including cmd/directory from this repository.
type HTTPDirectory struct {
	base   string
	client *http.Client
}

// NewHTTP creates a directory client for the service at baseURL.
func NewHTTP(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Register announces the local peer, refreshing its lease if already known.
func (d *HTTPDirectory) Register(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("directory: marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.base+"/peers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("directory: register: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory: register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("directory: register: unexpected status %s", resp.Status)
	}
	return nil
}

// Deregister removes the local peer from the directory.
func (d *HTTPDirectory) Deregister(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.base+"/peers/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("directory: deregister: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory: deregister: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("directory: deregister: unexpected status %s", resp.Status)
	}
	return nil
}

// List returns every peer currently registered with the service.
func (d *HTTPDirectory) List(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/peers", nil)
	if err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: list: unexpected status %s", resp.Status)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("directory: decode list: %w", err)
	}
	return entries, nil
}
