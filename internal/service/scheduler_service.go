package service

import (
	"context"
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

const interruptedMessage = ReasonPlatformError + ": publish interrupted"

type SweepReport struct {
	StartedAt        time.Time `json:"started_at"`
	StaleFailed      int64     `json:"stale_failed"`
	PostsScanned     int       `json:"posts_scanned"`
	EntriesProcessed int       `json:"entries_processed"`
	EntriesPublished int       `json:"entries_published"`
	EntriesFailed    int       `json:"entries_failed"`
	EntriesSkipped   int       `json:"entries_skipped"`
	PostsPublished   []int64   `json:"posts_published"`
}

func (r *SweepReport) add(p postSweep) {
	r.EntriesProcessed += p.processed
	r.EntriesPublished += p.published
	r.EntriesFailed += p.failed
	r.EntriesSkipped += p.skipped
	if p.rolledUp {
		r.PostsPublished = append(r.PostsPublished, p.postID)
	}
}

type postSweep struct {
	postID    int64
	processed int
	published int
	failed    int
	skipped   int
	rolledUp  bool
}

// SchedulerService completes scheduled posts once their time has come. It
// is safe to run concurrently with itself and with the dispatcher: every
// entry is claimed before it is published.
type SchedulerService interface {
	RunSweep(ctx context.Context) (*SweepReport, error)
	SweepPost(ctx context.Context, postID int64) (*SweepReport, error)
}

type schedulerService struct {
	posts   repository.PostRepository
	ledger  repository.PostingHistoryRepository
	target  *targetPublisher
	payload payloadResolver
	cfg     config.Sweep
	now     func() time.Time
	log     *slog.Logger
}

func NewSchedulerService(
	posts repository.PostRepository,
	ledger repository.PostingHistoryRepository,
	accounts AccountService,
	designs DesignService,
	registry *publisher.Registry,
	cfg config.Config,
	logger *slog.Logger) SchedulerService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "scheduler")
	return &schedulerService{
		posts:  posts,
		ledger: ledger,
		target: &targetPublisher{
			accounts: accounts,
			ledger:   ledger,
			registry: registry,
			timeout:  cfg.Publishing.Timeout,
			now:      time.Now,
			log:      logger,
		},
		payload: payloadResolver{designs: designs},
		cfg:     cfg.Sweep,
		now:     time.Now,
		log:     logger,
	}
}

func (s *schedulerService) RunSweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{StartedAt: s.now()}

	if s.cfg.ClaimTTL > 0 {
		n, err := s.ledger.FailStaleClaims(ctx, report.StartedAt.Add(-s.cfg.ClaimTTL), interruptedMessage)
		if err != nil {
			return nil, fmt.Errorf("error failing stale claims: %w", err)
		}
		if n > 0 {
			s.log.Warn("stale claims failed", "event", "stale_claims_failed", "count", n)
		}
		report.StaleFailed = n
	}

	posts, err := s.posts.ListDueScheduled(ctx, report.StartedAt, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("error listing due posts: %w", err)
	}
	report.PostsScanned = len(posts)
	if len(posts) == 0 {
		return report, nil
	}

	results := make([]postSweep, len(posts))
	var g errgroup.Group
	if s.cfg.Concurrency > 0 {
		g.SetLimit(s.cfg.Concurrency)
	}
	for i, post := range posts {
		i, post := i, post
		g.Go(func() error {
			res, err := s.sweepPost(ctx, post)
			if err != nil {
				s.log.Error("sweep post failed", "event", "sweep_post_failed", "post_id", post.ID, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	for _, res := range results {
		report.add(res)
	}

	s.log.Info("sweep finished", "event", "sweep_finished", "posts", report.PostsScanned,
		"processed", report.EntriesProcessed, "published", report.EntriesPublished,
		"failed", report.EntriesFailed, "posts_published", len(report.PostsPublished))
	return report, nil
}

// SweepPost processes a single post if it is still scheduled and due. A task
// that fires for a post rescheduled to a later time does nothing.
func (s *schedulerService) SweepPost(ctx context.Context, postID int64) (*SweepReport, error) {
	report := &SweepReport{StartedAt: s.now()}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post %d: %w", postID, err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.Status != models.PostStatusScheduled || post.ScheduledAt == nil || post.ScheduledAt.After(report.StartedAt) {
		return report, nil
	}

	report.PostsScanned = 1
	res, err := s.sweepPost(ctx, post)
	report.add(res)
	return report, err
}

func (s *schedulerService) sweepPost(ctx context.Context, post *models.Post) (postSweep, error) {
	res := postSweep{postID: post.ID}

	entries, err := s.ledger.ListClaimableByPostID(ctx, post.ID)
	if err != nil {
		return res, fmt.Errorf("error listing entries: %w", err)
	}

	if len(entries) > 0 {
		content, imageURL, err := s.payload.resolve(ctx, post)
		if errors.Is(err, ErrDesignNotFound) {
			// Entries of a post whose design is gone can never be published.
			n, ferr := s.ledger.FailClaimable(ctx, nil, post.ID,
				fmt.Sprintf("%s: design %d no longer exists", ReasonMediaRequired, *post.DesignID))
			if ferr != nil {
				return res, fmt.Errorf("error failing entries: %w", ferr)
			}
			s.log.Warn("design missing, entries failed", "event", "design_missing",
				"post_id", post.ID, "design_id", *post.DesignID, "count", n)
			res.processed += int(n)
			res.failed += int(n)
			res.rolledUp, err = rollup(ctx, s.posts, s.ledger, post.ID, s.now())
			return res, err
		}
		if err != nil {
			return res, err
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			result := s.target.publish(ctx, post.UserID, entry, content, imageURL)
			switch result.Status {
			case models.HistoryStatusPublished:
				res.processed++
				res.published++
			case models.HistoryStatusFailed:
				res.processed++
				res.failed++
			default:
				res.skipped++
			}
		}
	}

	res.rolledUp, err = rollup(ctx, s.posts, s.ledger, post.ID, s.now())
	return res, err
}

// rollup marks the post published once every one of its ledger entries is
// terminal. It reports whether this call changed the post.
func rollup(ctx context.Context, posts repository.PostRepository, ledger repository.PostingHistoryRepository, postID int64, now time.Time) (bool, error) {
	entries, err := ledger.ListByPostID(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("error listing entries for rollup: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	for _, entry := range entries {
		if !models.IsTerminalHistoryStatus(entry.Status) {
			return false, nil
		}
	}

	ok, err := posts.MarkPublished(ctx, postID, now)
	if err != nil {
		return false, fmt.Errorf("error marking post %d published: %w", postID, err)
	}
	return ok, nil
}

type payloadResolver struct {
	designs DesignService
}

// resolve returns the text and the optional image URL to publish for post.
func (r payloadResolver) resolve(ctx context.Context, post *models.Post) (string, string, error) {
	if post.DesignID == nil || r.designs == nil {
		return post.Content, "", nil
	}
	imageURL, err := r.designs.ImageURL(ctx, post.UserID, *post.DesignID)
	if err != nil {
		return "", "", fmt.Errorf("error resolving design %d: %w", *post.DesignID, err)
	}
	return post.Content, imageURL, nil
}
