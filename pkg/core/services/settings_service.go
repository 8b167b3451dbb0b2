package services

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

// SettingsService resolves display settings from the stored collection config.
type SettingsService struct {
	repo     ports.CollectionRepository
	fallback time.Duration
}

var _ ports.ConfigSource = (*SettingsService)(nil)

func NewSettingsService(repo ports.CollectionRepository, fallback time.Duration) *SettingsService {
	return &SettingsService{repo: repo, fallback: fallback}
}

// RotationInterval returns the configured interval, or the fallback when the
// collection has none.
func (s *SettingsService) RotationInterval(ctx context.Context, collectionID string) (time.Duration, error) {
	cfg, err := s.repo.GetConfig(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	return cfg.RotationInterval(s.fallback), nil
}
