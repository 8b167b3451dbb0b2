package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

// PhotoService stores photos and publishes every change to the feed of
// their collection.
type PhotoService struct {
	collections ports.CollectionRepository
	photos      ports.PhotoRepository
	publisher   ports.ChangePublisher
	moderator   ports.Moderator
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.PhotoService = (*PhotoService)(nil)

// NewPhotoService returns a PhotoService. moderator may be nil, in which
// case collections with moderation enabled accept every photo.
func NewPhotoService(collections ports.CollectionRepository, photos ports.PhotoRepository, publisher ports.ChangePublisher, moderator ports.Moderator, logger *slog.Logger) *PhotoService {
	return &PhotoService{
		collections: collections,
		photos:      photos,
		publisher:   publisher,
		moderator:   moderator,
		logger:      observability.OrDefault(logger),
		now:         time.Now,
	}
}

// Upload adds a photo to the collection with the given slug. Photos rejected
// by moderation, or that could not be moderated, are stored hidden.
func (s *PhotoService) Upload(ctx context.Context, slug, imageURL string) (*domain.Item, error) {
	u, err := url.ParseRequestURI(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: image url %q", domain.ErrInvalidPhoto, imageURL)
	}
	collection, err := s.collections.GetCollectionBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, domain.ErrNotFound
	}
	cfg, err := s.collections.GetConfig(ctx, collection.ID)
	if err != nil {
		return nil, err
	}

	visible := true
	if cfg.Moderation && s.moderator != nil {
		ok, err := s.moderator.Approve(ctx, imageURL)
		if err != nil {
			s.logger.Warn("moderation failed, hiding photo", "collection", collection.ID, "err", err)
		}
		visible = ok && err == nil
	}

	item := &domain.Item{
		ID:           uuid.NewString(),
		CollectionID: collection.ID,
		ImageURL:     imageURL,
		Visible:      visible,
		CreatedAt:    s.now(),
	}
	if err := s.photos.CreatePhoto(ctx, item); err != nil {
		return nil, err
	}
	s.publisher.Publish(domain.Created(*item))
	return item, nil
}

func (s *PhotoService) SetVisibility(ctx context.Context, id string, visible bool) (*domain.Item, error) {
	item, err := s.photos.SetPhotoVisibility(ctx, id, visible)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	s.publisher.Publish(domain.Updated(*item))
	return item, nil
}

// DeletePhoto removes a photo. Open walls see it as hidden.
func (s *PhotoService) DeletePhoto(ctx context.Context, id string) error {
	item, err := s.photos.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	if err := s.photos.DeletePhoto(ctx, id); err != nil {
		return err
	}
	item.Visible = false
	s.publisher.Publish(domain.Updated(*item))
	return nil
}

func (s *PhotoService) ListPhotos(ctx context.Context, collectionID string, visibleOnly bool) ([]domain.Item, error) {
	return s.photos.ListPhotos(ctx, collectionID, visibleOnly)
}
