// Package remote reads collections from a running photo wall server, so a
// wall can be driven from another machine.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const defaultTimeout = 15 * time.Second

// Client talks to the public endpoints of a server.
type Client struct {
	baseURL string
	http    *http.Client
	// Fallback is returned by RotationInterval when the collection has no
	// interval configured.
	Fallback time.Duration
}

var (
	_ ports.SnapshotLoader = (*Client)(nil)
	_ ports.ConfigSource   = (*Client)(nil)
)

func NewClient(baseURL string, fallback time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		Fallback: fallback,
	}
}

// PhotosResponse is the body of GET /c/{id}/photos.
type PhotosResponse struct {
	Data  []domain.Item `json:"data"`
	Empty bool          `json:"empty"`
}

func (c *Client) FetchSnapshot(ctx context.Context, collectionID string) ([]domain.Item, error) {
	var res PhotosResponse
	if err := c.get(ctx, "/c/"+url.PathEscape(collectionID)+"/photos", &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) Config(ctx context.Context, collectionID string) (domain.DisplayConfig, error) {
	var cfg domain.DisplayConfig
	err := c.get(ctx, "/c/"+url.PathEscape(collectionID)+"/config", &cfg)
	return cfg, err
}

// RotationInterval prefers the interval resolved by the server and falls
// back to Fallback when the server sent none.
func (c *Client) RotationInterval(ctx context.Context, collectionID string) (time.Duration, error) {
	cfg, err := c.Config(ctx, collectionID)
	if err != nil {
		return c.Fallback, err
	}
	return cfg.Interval(c.Fallback), nil
}

// Collection resolves a public slug.
func (c *Client) Collection(ctx context.Context, slug string) (*domain.Collection, error) {
	var col domain.Collection
	if err := c.get(ctx, "/g/"+url.PathEscape(slug), &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// Download streams the body of an absolute URL into w.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", rawURL, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
