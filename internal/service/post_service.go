package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")
	ErrEmptyContent    = errors.New("post content cannot be empty")

	ErrPostAlreadyPublished = errors.New("post is already published")
	ErrPostPublishing       = errors.New("post is being published")
)

// ReasonRescheduled prefixes entries replaced by a later Schedule call.
const ReasonRescheduled = "Rescheduled"

// SweepEnqueuer schedules a one-off sweep of a post at a given time.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, postID int64, processAt time.Time) error
}

type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	PublishNow(ctx context.Context, userID, postID int64, accountIDs []int64) (*PublishReport, error)
	Schedule(ctx context.Context, userID, postID int64, accountIDs []int64, scheduledAt time.Time) (int, error)
	History(ctx context.Context, userID, postID int64) ([]*models.PostingHistory, error)
}

type postService struct {
	db         *sql.DB
	pr         repository.PostRepository
	ph         repository.PostingHistoryRepository
	dr         repository.DesignRepository
	accounts   AccountService
	dispatcher DispatchService
	payload    payloadResolver
	enqueuer   SweepEnqueuer
	now        func() time.Time
	log        *slog.Logger
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ph repository.PostingHistoryRepository,
	dr repository.DesignRepository,
	accounts AccountService,
	dispatcher DispatchService,
	designs DesignService,
	enqueuer SweepEnqueuer,
	logger *slog.Logger) PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &postService{
		db:         db,
		pr:         pr,
		ph:         ph,
		dr:         dr,
		accounts:   accounts,
		dispatcher: dispatcher,
		payload:    payloadResolver{designs: designs},
		enqueuer:   enqueuer,
		now:        time.Now,
		log:        logger.With("module", "posts"),
	}
}

func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (int64, error) {
	if pc == nil || strings.TrimSpace(pc.Content) == "" {
		return 0, ErrEmptyContent
	}

	if pc.DesignID != nil {
		design, err := s.dr.GetByID(ctx, userID, *pc.DesignID)
		if err != nil {
			return 0, fmt.Errorf("error getting design: %w", err)
		}
		if design == nil {
			return 0, ErrDesignNotFound
		}
	}

	post := models.Post{
		UserID:   userID,
		ClientID: pc.ClientID,
		DesignID: pc.DesignID,
		Title:    pc.Title,
		Content:  pc.Content,
		Status:   models.PostStatusDraft,
	}
	postID, err := s.pr.Create(ctx, nil, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}
	return postID, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	return s.pr.GetByUserID(ctx, userID)
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil || post.UserID != userID {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// PublishNow publishes the post to every selected account immediately and
// marks it published when no entry is left outstanding.
func (s *postService) PublishNow(ctx context.Context, userID, postID int64, accountIDs []int64) (*PublishReport, error) {
	if len(accountIDs) == 0 {
		return nil, ErrNoTargetsSelected
	}

	post, err := s.PostInfo(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	content, imageURL, err := s.payload.resolve(ctx, post)
	if err != nil {
		return nil, err
	}

	report, err := s.dispatcher.Dispatch(ctx, userID, postID, accountIDs, content, imageURL)
	if err != nil {
		return nil, err
	}

	if _, err := rollup(ctx, s.pr, s.ph, postID, s.now()); err != nil {
		s.log.Error("rollup failed", "event", "rollup_failed", "post_id", postID, "error", err)
	}
	return report, nil
}

// Schedule records one pending entry per target and hands the post to the
// sweep. Scheduling again replaces the targets of the previous call: its
// unclaimed entries are failed in the same transaction. It returns the
// number of entries created.
func (s *postService) Schedule(ctx context.Context, userID, postID int64, accountIDs []int64, scheduledAt time.Time) (int, error) {
	accountIDs = uniqueIDs(accountIDs)
	if len(accountIDs) == 0 {
		return 0, ErrNoTargetsSelected
	}
	if !scheduledAt.After(s.now()) {
		return 0, ErrInvalidSchedule
	}

	if _, err := s.PostInfo(ctx, postID, userID); err != nil {
		return 0, err
	}

	existing, err := s.ph.ListByPostID(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("error listing entries: %w", err)
	}
	for _, entry := range existing {
		if entry.Status == models.HistoryStatusPublishing {
			return 0, ErrPostPublishing
		}
	}

	batchID, err := newBatchID()
	if err != nil {
		return 0, fmt.Errorf("error generating batch id: %w", err)
	}

	known := make(map[int64]models.Platform)
	if accounts, err := s.accounts.ListActive(ctx, userID); err == nil {
		for _, acc := range accounts {
			known[acc.ID] = acc.Platform
		}
	}

	entries := make([]*models.PostingHistory, len(accountIDs))
	var platforms []string
	seenPlatform := make(map[models.Platform]bool)
	for i, accountID := range accountIDs {
		platform := known[accountID]
		entries[i] = &models.PostingHistory{
			PostID:    postID,
			AccountID: accountID,
			BatchID:   batchID,
			Platform:  platform,
			Status:    models.HistoryStatusPending,
		}
		if platform != "" && !seenPlatform[platform] {
			seenPlatform[platform] = true
			platforms = append(platforms, string(platform))
		}
	}

	var replaced int64
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		n, err := s.ph.FailClaimable(ctx, tx, postID, ReasonRescheduled+": replaced by batch "+batchID)
		if err != nil {
			return err
		}
		replaced = n
		if err := s.ph.CreateBatch(ctx, tx, entries); err != nil {
			return err
		}
		ok, err := s.pr.MarkScheduled(ctx, tx, postID, scheduledAt, platforms)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPostAlreadyPublished
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error scheduling post: %w", err)
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueSweep(ctx, postID, scheduledAt); err != nil {
			s.log.Warn("could not enqueue sweep, relying on periodic sweep", "event", "enqueue_failed",
				"post_id", postID, "error", err)
		}
	}

	s.log.Info("post scheduled", "event", "post_scheduled", "post_id", postID,
		"batch_id", batchID, "targets", len(entries), "replaced", replaced, "scheduled_at", scheduledAt)
	return len(entries), nil
}

func (s *postService) History(ctx context.Context, userID, postID int64) ([]*models.PostingHistory, error) {
	if _, err := s.PostInfo(ctx, postID, userID); err != nil {
		return nil, err
	}
	return s.ph.ListByPostID(ctx, postID)
}
