package domain

import "time"

// Collection represents an event whose photos are shown on a wall
type Collection struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	UploadURL   string           `json:"upload_url"`
	EventDate   string           `json:"event_date,omitempty"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Config      CollectionConfig `json:"config"`
}

// CollectionConfig holds the per-event display settings
type CollectionConfig struct {
	RotationSeconds int  `json:"rotation_seconds"` // 0 means not configured
	Polaroid        bool `json:"polaroid"`
	Moderation      bool `json:"moderation"`
}

// RotationInterval returns the configured interval, or fallback when unset
func (c CollectionConfig) RotationInterval(fallback time.Duration) time.Duration {
	if c.RotationSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.RotationSeconds) * time.Second
}

// DisplayConfig is the public config of a collection with the server default
// interval applied. IntervalMillis is what a wall should rotate at.
type DisplayConfig struct {
	CollectionConfig
	IntervalMillis int64 `json:"interval_ms"`
}

// Interval returns the resolved interval, or the local fallback when the
// server did not send one.
func (d DisplayConfig) Interval(fallback time.Duration) time.Duration {
	if d.IntervalMillis > 0 {
		return time.Duration(d.IntervalMillis) * time.Millisecond
	}
	return d.RotationInterval(fallback)
}

// Config keys as stored by the repository
const (
	ConfigRotationSeconds = "rotation_seconds"
	ConfigPolaroid        = "polaroid"
	ConfigModeration      = "moderation"
)
