package models

import (
	"encoding/json"
	"time"
)

// PostingHistory is one ledger entry: a single (post, account) publish attempt
// created as part of the request identified by BatchID.
type PostingHistory struct {
	ID             int64           `db:"id" json:"id"`
	PostID         int64           `db:"post_id" json:"post_id"`
	AccountID      int64           `db:"account_id" json:"account_id"`
	BatchID        string          `db:"batch_id" json:"batch_id"`
	Platform       Platform        `db:"platform" json:"platform"`
	Status         string          `db:"status" json:"status"`
	ExternalPostID string          `db:"external_post_id" json:"external_post_id,omitempty"`
	PublishedAt    *time.Time      `db:"published_at" json:"published_at,omitempty"`
	ErrorMessage   string          `db:"error_message" json:"error_message,omitempty"`
	EngagementData json.RawMessage `db:"engagement_data" json:"engagement_data,omitempty"`
	ClaimedAt      *time.Time      `db:"claimed_at" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

const (
	HistoryStatusPending    = "pending"
	HistoryStatusScheduled  = "scheduled"
	HistoryStatusPublishing = "publishing"
	HistoryStatusPublished  = "published"
	HistoryStatusFailed     = "failed"
)

func IsTerminalHistoryStatus(status string) bool {
	return status == HistoryStatusPublished || status == HistoryStatusFailed
}

// HistoryOutcome is the single terminal write applied to a claimed entry.
type HistoryOutcome struct {
	Platform       Platform
	Status         string
	ExternalPostID string
	PublishedAt    *time.Time
	ErrorMessage   string
}
