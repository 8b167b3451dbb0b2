package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
)

// CollectionRepository defines storage operations for collections
type CollectionRepository interface {
	CreateCollection(ctx context.Context, collection *domain.Collection) error
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	GetCollectionBySlug(ctx context.Context, slug string) (*domain.Collection, error)
	UpdateCollection(ctx context.Context, collection *domain.Collection) error
	DeleteCollection(ctx context.Context, id string) error
	// ReleaseSlug drops a claim whose collection was never written.
	ReleaseSlug(ctx context.Context, slug string) error
	ListCollections(ctx context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Collection, error)
	CountCollections(ctx context.Context, filters map[string]interface{}) (int64, error)
	SaveConfig(ctx context.Context, collectionID string, cfg domain.CollectionConfig) error
	GetConfig(ctx context.Context, collectionID string) (domain.CollectionConfig, error)
}

// PhotoRepository defines storage operations for photos
type PhotoRepository interface {
	CreatePhoto(ctx context.Context, item *domain.Item) error
	GetPhoto(ctx context.Context, id string) (*domain.Item, error)
	SetPhotoVisibility(ctx context.Context, id string, visible bool) (*domain.Item, error)
	DeletePhoto(ctx context.Context, id string) error
	ListPhotos(ctx context.Context, collectionID string, visibleOnly bool) ([]domain.Item, error)
}

// NamespaceProbe is the shared slug namespace the allocator probes and claims in
type NamespaceProbe interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	// ClaimSlug reserves slug for collectionID. It reports false when the slug
	// was already claimed.
	ClaimSlug(ctx context.Context, slug, collectionID string) (bool, error)
}

// SnapshotLoader fetches the current items of a collection, hidden ones included
type SnapshotLoader interface {
	FetchSnapshot(ctx context.Context, collectionID string) ([]domain.Item, error)
}

// FeedHandler receives the notifications of one subscription
type FeedHandler interface {
	HandleChange(ev domain.ChangeEvent)
	// HandleDisconnect is called at most once, when the subscription dropped
	// without being cancelled.
	HandleDisconnect(err error)
}

// CancelHandle ends a subscription. Cancel is idempotent.
type CancelHandle interface {
	Cancel()
}

// ChangeFeedSubscriber delivers item level changes scoped to one collection,
// at least once and without ordering across items.
type ChangeFeedSubscriber interface {
	Subscribe(collectionID string, h FeedHandler) (CancelHandle, error)
}

// ChangePublisher is the write side of the change feed
type ChangePublisher interface {
	Publish(ev domain.ChangeEvent)
}

// ConfigSource resolves the rotation interval of a collection, falling back to a default
type ConfigSource interface {
	RotationInterval(ctx context.Context, collectionID string) (time.Duration, error)
}

// Moderator decides whether an uploaded image may be shown
type Moderator interface {
	Approve(ctx context.Context, imageURL string) (bool, error)
}

// CollectionService defines business logic for collections
type CollectionService interface {
	CreateCollection(ctx context.Context, req CreateCollectionRequest) (*domain.Collection, error)
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	GetCollectionBySlug(ctx context.Context, slug string) (*domain.Collection, error)
	UpdateCollection(ctx context.Context, id string, req UpdateCollectionRequest) (*domain.Collection, error)
	UpdateConfig(ctx context.Context, id string, cfg domain.CollectionConfig) (*domain.Collection, error)
	DeleteCollection(ctx context.Context, id string) error
	ListCollections(ctx context.Context, page, limit int, search string) ([]domain.Collection, int64, error)
}

// PhotoService defines business logic for photos
type PhotoService interface {
	Upload(ctx context.Context, slug, imageURL string) (*domain.Item, error)
	SetVisibility(ctx context.Context, id string, visible bool) (*domain.Item, error)
	DeletePhoto(ctx context.Context, id string) error
	ListPhotos(ctx context.Context, collectionID string, visibleOnly bool) ([]domain.Item, error)
}

type CreateCollectionRequest struct {
	Name        string                  `json:"name"`
	EventDate   string                  `json:"event_date"`
	Description string                  `json:"description"`
	Config      domain.CollectionConfig `json:"config"`
}

type UpdateCollectionRequest struct {
	Name        string `json:"name"`
	EventDate   string `json:"event_date"`
	Description string `json:"description"`
}
