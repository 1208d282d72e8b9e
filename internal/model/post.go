package model

import "time"

// Author is the snapshot of a post's author taken at creation time.
//
// It is a copy, not a live reference: if the user later changes their name or
// avatar, existing posts keep the values from when they were written.
type Author struct {
	Name      string `json:"name"   db:"author_name"`
	AvatarURL string `json:"avatar" db:"author_avatar"`
}

// Post is one blog entry.
//
// AuthorExternalID is the owning user's identity-provider subject id. It is
// set once at creation and never mutated — no endpoint transfers authorship.
// ReadTime is derived from Content (see service.PostService) and recomputed
// only when Content changes. Views is a monotonic counter incremented
// atomically at the store level.
type Post struct {
	ID               string    `json:"id"               db:"id"`
	Title            string    `json:"title"            db:"title"`
	Excerpt          string    `json:"excerpt"          db:"excerpt"`
	Category         string    `json:"category"         db:"category"`
	Content          string    `json:"content"          db:"content"`
	Date             string    `json:"date"             db:"date"` // YYYY-MM-DD, defaults to creation date
	ReadTime         string    `json:"readTime"         db:"read_time"`
	Author           Author    `json:"author"`
	AuthorExternalID string    `json:"authorExternalId" db:"author_external_id"`
	ImageURL         string    `json:"imageUrl"         db:"image_url"`
	Views            int       `json:"views"            db:"views"`
	CreatedAt        time.Time `json:"createdAt"        db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt"        db:"updated_at"`
}
