package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// PostingHistoryRepository is the publishing ledger. Entries only move
// pending/scheduled -> publishing -> published/failed.
type PostingHistoryRepository interface {
	CreateBatch(ctx context.Context, tx *sql.Tx, entries []*models.PostingHistory) error
	GetByID(ctx context.Context, id int64) (*models.PostingHistory, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error)
	ListClaimableByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error)
	Claim(ctx context.Context, id int64, claimedAt time.Time) (bool, error)
	Complete(ctx context.Context, id int64, outcome models.HistoryOutcome) error
	FailStaleClaims(ctx context.Context, claimedBefore time.Time, message string) (int64, error)
	FailClaimable(ctx context.Context, tx *sql.Tx, postID int64, message string) (int64, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

const postingHistoryColumns = `
	id,
	post_id,
	account_id,
	batch_id,
	platform,
	status,
	external_post_id,
	published_at,
	error_message,
	COALESCE(engagement_data, '{}'::jsonb),
	claimed_at,
	created_at,
	updated_at`

func scanPostingHistory(row rowScanner) (*models.PostingHistory, error) {
	var ph models.PostingHistory
	err := row.Scan(&ph.ID, &ph.PostID, &ph.AccountID, &ph.BatchID, &ph.Platform, &ph.Status,
		&ph.ExternalPostID, &ph.PublishedAt, &ph.ErrorMessage, &ph.EngagementData, &ph.ClaimedAt,
		&ph.CreatedAt, &ph.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ph, nil
}

// CreateBatch inserts every entry and fills in the generated ids. Callers that
// need all-or-nothing semantics pass a transaction.
func (r *postingHistoryRepository) CreateBatch(ctx context.Context, tx *sql.Tx, entries []*models.PostingHistory) error {
	query := `
		INSERT INTO posting_history (post_id, account_id, batch_id, platform, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	for _, ph := range entries {
		var row *sql.Row
		if tx != nil {
			row = tx.QueryRowContext(ctx, query, ph.PostID, ph.AccountID, ph.BatchID, ph.Platform, ph.Status)
		} else {
			row = r.db.QueryRowContext(ctx, query, ph.PostID, ph.AccountID, ph.BatchID, ph.Platform, ph.Status)
		}
		if err := row.Scan(&ph.ID, &ph.CreatedAt, &ph.UpdatedAt); err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("insert posting history for account %d: %w", ph.AccountID, err)
		}
	}

	return nil
}

func (r *postingHistoryRepository) GetByID(ctx context.Context, id int64) (*models.PostingHistory, error) {
	query := `SELECT ` + postingHistoryColumns + ` FROM posting_history WHERE id = $1`

	ph, err := scanPostingHistory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return ph, nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	query := `SELECT ` + postingHistoryColumns + ` FROM posting_history WHERE post_id = $1 ORDER BY id`
	return r.list(ctx, query, postID)
}

func (r *postingHistoryRepository) ListClaimableByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	query := `SELECT ` + postingHistoryColumns + `
		FROM posting_history
		WHERE post_id = $1 AND status IN ('pending', 'scheduled')
		ORDER BY id`
	return r.list(ctx, query, postID)
}

func (r *postingHistoryRepository) list(ctx context.Context, query string, args ...any) ([]*models.PostingHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		ph, err := scanPostingHistory(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan row: %w", err)
		}
		phs = append(phs, ph)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return phs, nil
}

// Claim moves a claimable entry to publishing in one conditional update. It
// reports false when another worker already claimed or finished the entry.
func (r *postingHistoryRepository) Claim(ctx context.Context, id int64, claimedAt time.Time) (bool, error) {
	query := `
		UPDATE posting_history
		SET status = 'publishing', claimed_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'scheduled')
	`
	result, err := r.db.ExecContext(ctx, query, id, claimedAt)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postingHistoryRepository) Complete(ctx context.Context, id int64, outcome models.HistoryOutcome) error {
	if !models.IsTerminalHistoryStatus(outcome.Status) {
		return fmt.Errorf("posting history outcome status %q is not terminal", outcome.Status)
	}

	query := `
		UPDATE posting_history
		SET
			status = $2,
			platform = COALESCE(NULLIF($3, ''), platform),
			external_post_id = $4,
			published_at = $5,
			error_message = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'publishing'
	`
	result, err := r.db.ExecContext(ctx, query, id, outcome.Status, string(outcome.Platform),
		outcome.ExternalPostID, outcome.PublishedAt, outcome.ErrorMessage)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrNotClaimed
	}
	return nil
}

// FailStaleClaims fails entries left in publishing by a worker that never
// completed them. Retrying them could publish twice, so they are not reset.
func (r *postingHistoryRepository) FailStaleClaims(ctx context.Context, claimedBefore time.Time, message string) (int64, error) {
	query := `
		UPDATE posting_history
		SET status = 'failed', error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE status = 'publishing' AND claimed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, claimedBefore, message)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

// FailClaimable fails every entry of a post that no worker has claimed yet.
// Entries already publishing are left to finish.
func (r *postingHistoryRepository) FailClaimable(ctx context.Context, tx *sql.Tx, postID int64, message string) (int64, error) {
	query := `
		UPDATE posting_history
		SET status = 'failed', error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE post_id = $1 AND status IN ('pending', 'scheduled')
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, postID, message)
	} else {
		result, err = r.db.ExecContext(ctx, query, postID, message)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}
