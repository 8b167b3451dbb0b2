package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/slug"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

const DefaultRaceRetries = 3

type CollectionOptions struct {
	// BaseURL prefixes the upload URL of every collection.
	BaseURL string
	// RaceRetries bounds how many times a slug is allocated again after
	// losing it to a concurrent writer.
	RaceRetries int
	Logger      *slog.Logger
}

type CollectionService struct {
	repo        ports.CollectionRepository
	alloc       *slug.Allocator
	baseURL     string
	raceRetries int
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.CollectionService = (*CollectionService)(nil)

func NewCollectionService(repo ports.CollectionRepository, alloc *slug.Allocator, opts CollectionOptions) *CollectionService {
	s := &CollectionService{
		repo:        repo,
		alloc:       alloc,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		raceRetries: opts.RaceRetries,
		logger:      observability.OrDefault(opts.Logger),
		now:         time.Now,
	}
	if s.raceRetries <= 0 {
		s.raceRetries = DefaultRaceRetries
	}
	return s
}

// UploadURL is where guests upload photos for the collection with the given slug.
func (s *CollectionService) UploadURL(slug string) string {
	return s.baseURL + "/upload/" + slug
}

func (s *CollectionService) CreateCollection(ctx context.Context, req ports.CreateCollectionRequest) (*domain.Collection, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidName)
	}
	if err := validateConfig(req.Config); err != nil {
		return nil, err
	}

	now := s.now()
	collection := &domain.Collection{
		ID:          uuid.NewString(),
		Name:        req.Name,
		EventDate:   req.EventDate,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.withSlug(ctx, collection, func(slug string) error {
		return s.repo.CreateCollection(ctx, collection)
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveConfig(ctx, collection.ID, req.Config); err != nil {
		if derr := s.repo.DeleteCollection(ctx, collection.ID); derr != nil {
			s.logger.Error("remove collection without config", "id", collection.ID, "err", derr)
		}
		return nil, fmt.Errorf("save config: %w", err)
	}
	collection.Config = req.Config
	s.logger.Info("collection created", "id", collection.ID, "slug", collection.Slug)
	return collection, nil
}

// withSlug allocates a slug for collection and runs write with it, starting
// over when the slug was lost to a concurrent writer.
func (s *CollectionService) withSlug(ctx context.Context, collection *domain.Collection, write func(slug string) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.raceRetries; attempt++ {
		slug, err := s.alloc.Allocate(ctx, collection.Name, collection.ID)
		if errors.Is(err, domain.ErrAllocationRace) {
			s.logger.Warn("slug lost to concurrent writer", "attempt", attempt, "err", err)
			lastErr = err
			continue
		}
		if err != nil {
			return err
		}

		collection.Slug = slug
		collection.UploadURL = s.UploadURL(slug)
		err = write(slug)
		if err == nil {
			return nil
		}
		if rerr := s.repo.ReleaseSlug(ctx, slug); rerr != nil {
			s.logger.Error("release slug", "slug", slug, "err", rerr)
		}
		if !errors.Is(err, domain.ErrSlugTaken) {
			return err
		}
		s.logger.Warn("slug taken on write", "slug", slug, "attempt", attempt)
		lastErr = err
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", domain.ErrAllocationRace, s.raceRetries, lastErr)
}

func (s *CollectionService) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	collection, err := s.repo.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withConfig(ctx, collection)
}

func (s *CollectionService) GetCollectionBySlug(ctx context.Context, slug string) (*domain.Collection, error) {
	collection, err := s.repo.GetCollectionBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.withConfig(ctx, collection)
}

func (s *CollectionService) withConfig(ctx context.Context, collection *domain.Collection) (*domain.Collection, error) {
	if collection == nil {
		return nil, domain.ErrNotFound
	}
	cfg, err := s.repo.GetConfig(ctx, collection.ID)
	if err != nil {
		return nil, err
	}
	collection.Config = cfg
	return collection, nil
}

// UpdateCollection updates the collection details. A name that normalizes to
// a different slug allocates a new slug; the old one stays reserved.
func (s *CollectionService) UpdateCollection(ctx context.Context, id string, req ports.UpdateCollectionRequest) (*domain.Collection, error) {
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	rename := req.Name != "" && slug.Normalize(req.Name) != slug.Normalize(collection.Name)
	if req.Name != "" {
		collection.Name = req.Name
	}
	collection.EventDate = req.EventDate
	collection.Description = req.Description
	collection.UpdatedAt = s.now()

	if !rename {
		if err := s.repo.UpdateCollection(ctx, collection); err != nil {
			return nil, err
		}
		return collection, nil
	}

	oldSlug := collection.Slug
	err = s.withSlug(ctx, collection, func(string) error {
		return s.repo.UpdateCollection(ctx, collection)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection renamed", "id", id, "from", oldSlug, "to", collection.Slug)
	return collection, nil
}

func (s *CollectionService) UpdateConfig(ctx context.Context, id string, cfg domain.CollectionConfig) (*domain.Collection, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveConfig(ctx, id, cfg); err != nil {
		return nil, err
	}
	collection.Config = cfg
	return collection, nil
}

func validateConfig(cfg domain.CollectionConfig) error {
	if cfg.RotationSeconds < 0 {
		return fmt.Errorf("%w: negative rotation interval", domain.ErrInvalidConfig)
	}
	return nil
}

func (s *CollectionService) DeleteCollection(ctx context.Context, id string) error {
	if _, err := s.GetCollection(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteCollection(ctx, id)
}

func (s *CollectionService) ListCollections(ctx context.Context, page, limit int, search string) ([]domain.Collection, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit
	filters := map[string]interface{}{}
	if search != "" {
		filters["search"] = search
	}

	collections, err := s.repo.ListCollections(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountCollections(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return collections, count, nil
}
