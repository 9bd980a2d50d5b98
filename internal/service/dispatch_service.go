package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/publisher"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"golang.org/x/sync/errgroup"
)

var ErrNoTargetsSelected = errors.New("no target accounts selected")

// PublishReport lists one result per distinct target, in request order.
type PublishReport struct {
	PostID  int64          `json:"post_id"`
	BatchID string         `json:"batch_id"`
	Results []TargetResult `json:"results"`
}

func (r *PublishReport) Count(status string) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// DispatchService publishes one post to several accounts at once. Individual
// target failures are reported, never returned as an error.
type DispatchService interface {
	Dispatch(ctx context.Context, userID, postID int64, accountIDs []int64, content, imageURL string) (*PublishReport, error)
}

type dispatchService struct {
	db          *sql.DB
	accounts    AccountService
	ledger      repository.PostingHistoryRepository
	target      *targetPublisher
	concurrency int
	log         *slog.Logger
}

func NewDispatchService(
	db *sql.DB,
	accounts AccountService,
	ledger repository.PostingHistoryRepository,
	registry *publisher.Registry,
	cfg config.Publishing,
	logger *slog.Logger) DispatchService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "dispatcher")
	return &dispatchService{
		db:       db,
		accounts: accounts,
		ledger:   ledger,
		target: &targetPublisher{
			accounts: accounts,
			ledger:   ledger,
			registry: registry,
			timeout:  cfg.Timeout,
			now:      time.Now,
			log:      logger,
		},
		concurrency: cfg.Concurrency,
		log:         logger,
	}
}

func (s *dispatchService) Dispatch(ctx context.Context, userID, postID int64, accountIDs []int64, content, imageURL string) (*PublishReport, error) {
	accountIDs = uniqueIDs(accountIDs)
	if len(accountIDs) == 0 {
		return nil, ErrNoTargetsSelected
	}

	batchID, err := newBatchID()
	if err != nil {
		return nil, fmt.Errorf("error generating batch id: %w", err)
	}

	platforms := s.knownPlatforms(ctx, userID)

	entries := make([]*models.PostingHistory, len(accountIDs))
	for i, accountID := range accountIDs {
		entries[i] = &models.PostingHistory{
			PostID:    postID,
			AccountID: accountID,
			BatchID:   batchID,
			Platform:  platforms[accountID],
			Status:    models.HistoryStatusPending,
		}
	}

	// Every target is on record before the first network call.
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.ledger.CreateBatch(ctx, tx, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("error recording publish batch: %w", err)
	}

	s.log.Info("dispatch started", "event", "dispatch_started", "post_id", postID,
		"batch_id", batchID, "targets", len(entries))

	report := &PublishReport{
		PostID:  postID,
		BatchID: batchID,
		Results: make([]TargetResult, len(entries)),
	}

	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			report.Results[i] = s.target.publish(ctx, userID, entry, content, imageURL)
			return nil
		})
	}
	g.Wait()

	s.log.Info("dispatch finished", "event", "dispatch_finished", "post_id", postID,
		"batch_id", batchID, "published", report.Count(models.HistoryStatusPublished),
		"failed", report.Count(models.HistoryStatusFailed))
	return report, nil
}

// knownPlatforms maps the user's active account ids to their platform so the
// ledger rows carry it from the start. Missing accounts are resolved, and
// failed, by the per-target step.
func (s *dispatchService) knownPlatforms(ctx context.Context, userID int64) map[int64]models.Platform {
	platforms := make(map[int64]models.Platform)
	accounts, err := s.accounts.ListActive(ctx, userID)
	if err != nil {
		s.log.Warn("could not list accounts", "event", "account_lookup_failed", "user_id", userID, "error", err)
		return platforms
	}
	for _, acc := range accounts {
		platforms[acc.ID] = acc.Platform
	}
	return platforms
}
