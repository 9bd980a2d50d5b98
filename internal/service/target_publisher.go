package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/publisher"
	"github.com/maheshrc27/postdispatch/internal/repository"
)

// Failure reasons recorded on ledger entries and reported per target.
const (
	ReasonAccountNotFound      = "AccountNotFound"
	ReasonTokenExpired         = "TokenExpired"
	ReasonMediaRequired        = "MediaRequired"
	ReasonUnsupportedMediaType = "UnsupportedMediaType"
	ReasonPlatformError        = "PlatformError"
	ReasonPlatformUnavailable  = "PlatformUnavailable"
)

// ResultSkipped marks a target whose entry was claimed by another worker.
const ResultSkipped = "skipped"

var errPlatformUnavailable = errors.New("no publisher registered for platform")

// TargetResult is the outcome of publishing a post to one account.
type TargetResult struct {
	EntryID        int64           `json:"entry_id"`
	AccountID      int64           `json:"account_id"`
	Platform       models.Platform `json:"platform"`
	Status         string          `json:"status"`
	ExternalPostID string          `json:"external_post_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// targetPublisher runs the claim, publish and complete sequence for a single
// ledger entry. The dispatcher and the sweep both go through it.
type targetPublisher struct {
	accounts AccountService
	ledger   repository.PostingHistoryRepository
	registry *publisher.Registry
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func (t *targetPublisher) publish(ctx context.Context, userID int64, entry *models.PostingHistory, content, imageURL string) TargetResult {
	result := TargetResult{
		EntryID:   entry.ID,
		AccountID: entry.AccountID,
		Platform:  entry.Platform,
	}

	claimed, err := t.ledger.Claim(ctx, entry.ID, t.now())
	if err != nil {
		t.log.Error("claim failed", "event", "claim_failed", "entry_id", entry.ID, "error", err)
		result.Status = ResultSkipped
		result.Error = err.Error()
		return result
	}
	if !claimed {
		t.log.Debug("entry owned by another worker", "event", "claim_lost", "entry_id", entry.ID)
		result.Status = ResultSkipped
		return result
	}

	externalID, err := t.call(ctx, userID, entry, &result, content, imageURL)

	outcome := models.HistoryOutcome{Platform: result.Platform}
	if err != nil {
		result.Status = models.HistoryStatusFailed
		result.Reason = reasonFor(err)
		result.Error = err.Error()
		outcome.Status = models.HistoryStatusFailed
		outcome.ErrorMessage = fmt.Sprintf("%s: %s", result.Reason, result.Error)
	} else {
		publishedAt := t.now()
		result.Status = models.HistoryStatusPublished
		result.ExternalPostID = externalID
		outcome.Status = models.HistoryStatusPublished
		outcome.ExternalPostID = externalID
		outcome.PublishedAt = &publishedAt
	}

	// The publish already happened; a failed ledger write must not turn it
	// into an error for the caller.
	if err := t.ledger.Complete(ctx, entry.ID, outcome); err != nil {
		t.log.Error("ledger write failed", "event", "ledger_write_failed",
			"entry_id", entry.ID, "status", outcome.Status, "error", err)
	}

	t.log.Info("target published", "event", "target_"+result.Status, "entry_id", entry.ID,
		"post_id", entry.PostID, "account_id", entry.AccountID, "platform", result.Platform,
		"reason", result.Reason)
	return result
}

func (t *targetPublisher) call(ctx context.Context, userID int64, entry *models.PostingHistory, result *TargetResult, content, imageURL string) (string, error) {
	acc, err := t.accounts.Get(ctx, userID, "", entry.AccountID)
	if err != nil {
		return "", err
	}
	result.Platform = acc.Platform

	p, ok := t.registry.Lookup(acc.Platform)
	if !ok {
		return "", fmt.Errorf("%w: %s", errPlatformUnavailable, acc.Platform)
	}

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return p.Publish(callCtx, acc, content, imageURL)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return ReasonAccountNotFound
	case errors.Is(err, publisher.ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, publisher.ErrMediaRequired):
		return ReasonMediaRequired
	case errors.Is(err, publisher.ErrUnsupportedMediaType):
		return ReasonUnsupportedMediaType
	case errors.Is(err, errPlatformUnavailable):
		return ReasonPlatformUnavailable
	default:
		return ReasonPlatformError
	}
}
