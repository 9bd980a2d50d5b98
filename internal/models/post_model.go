package models

import "time"

type Post struct {
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	ClientID    int64      `db:"client_id" json:"client_id"`
	DesignID    *int64     `db:"design_id" json:"design_id,omitempty"`
	Title       string     `db:"title" json:"title"`
	Content     string     `db:"content" json:"content"`
	Status      string     `db:"status" json:"status"` // draft, review, approved, scheduled, published
	Platforms   []string   `db:"platforms" json:"platforms"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusReview    = "review"
	PostStatusApproved  = "approved"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
)

type Design struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ClientID  int64     `db:"client_id" json:"client_id"`
	Name      string    `db:"name" json:"name"`
	FileKey   string    `db:"file_key" json:"file_key"`
	FileType  string    `db:"file_type" json:"file_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
