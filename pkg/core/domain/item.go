package domain

import "time"

// Item is a single photo belonging to a collection
type Item struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	ImageURL     string    `json:"image_url"`
	Visible      bool      `json:"visible"`
	Seq          int64     `json:"seq"` // Creation order key, assigned by the store
	CreatedAt    time.Time `json:"created_at"`
}
