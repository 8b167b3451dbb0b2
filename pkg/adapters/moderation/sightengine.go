// Package moderation screens uploaded images with the Sightengine API.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const (
	DefaultURL = "https://api.sightengine.com/1.0/check.json"
	models     = "nudity-2.1,weapon,gore-2.0"
)

type Config struct {
	URL       string
	APIUser   string
	APISecret string
	Timeout   time.Duration
}

type Sightengine struct {
	cfg  Config
	http *http.Client
}

var _ ports.Moderator = (*Sightengine)(nil)

func NewSightengine(cfg Config) (*Sightengine, error) {
	if cfg.APIUser == "" || cfg.APISecret == "" {
		return nil, errors.New("sightengine credentials not set")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sightengine{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type checkResponse struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	Nudity struct {
		SexualActivity float64 `json:"sexual_activity"`
		SexualDisplay  float64 `json:"sexual_display"`
		Erotica        float64 `json:"erotica"`
		VerySuggestive float64 `json:"very_suggestive"`
		Suggestive     float64 `json:"suggestive"`
	} `json:"nudity"`
	Weapon struct {
		Weapon float64 `json:"weapon"`
	} `json:"weapon"`
	Gore struct {
		Gore float64 `json:"gore"`
	} `json:"gore"`
}

func (r *checkResponse) nude() bool {
	n := r.Nudity
	return n.SexualActivity > 0.2 ||
		n.SexualDisplay > 0.5 ||
		n.Erotica > 0.85 ||
		n.VerySuggestive > 0.9 ||
		n.Suggestive > 0.9
}

func (r *checkResponse) violent() bool {
	return r.Weapon.Weapon > 0.5 || r.Gore.Gore > 0.5
}

// Approve reports whether imageURL passes the nudity, weapon and gore checks.
func (s *Sightengine) Approve(ctx context.Context, imageURL string) (bool, error) {
	q := url.Values{}
	q.Set("url", imageURL)
	q.Set("models", models)
	q.Set("api_user", s.cfg.APIUser)
	q.Set("api_secret", s.cfg.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("sightengine check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sightengine check: %s", resp.Status)
	}

	var res checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, fmt.Errorf("decode sightengine response: %w", err)
	}
	if res.Status == "failure" {
		msg := "unknown error"
		if res.Error != nil {
			msg = res.Error.Message
		}
		return false, fmt.Errorf("sightengine check failed: %s", msg)
	}
	return !res.nude() && !res.violent(), nil
}
