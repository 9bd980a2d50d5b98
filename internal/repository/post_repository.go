package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postdispatch/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	MarkScheduled(ctx context.Context, tx *sql.Tx, postID int64, scheduledAt time.Time, platforms []string) (bool, error)
	MarkPublished(ctx context.Context, postID int64, publishedAt time.Time) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, client_id, design_id, title, content, status, platforms, scheduled_at, published_at, created_at, updated_at`

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.ClientID, &post.DesignID, &post.Title, &post.Content,
		&post.Status, pq.Array(&post.Platforms), &post.ScheduledAt, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, client_id, design_id, title, content, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error

	status := post.Status
	if status == "" {
		status = models.PostStatusDraft
	}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.ClientID, post.DesignID, post.Title, post.Content, status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.ClientID, post.DesignID, post.Title, post.Content, status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *postRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3`
	return r.list(ctx, query, models.PostStatusScheduled, now, limit)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// MarkScheduled never moves a published post back to scheduled.
func (r *postRepository) MarkScheduled(ctx context.Context, tx *sql.Tx, postID int64, scheduledAt time.Time, platforms []string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_at = $2,
			platforms = $3,
			updated_at = $4
		WHERE id = $5 AND status <> $6
	`
	args := []any{models.PostStatusScheduled, scheduledAt, pq.Array(platforms), time.Now(), postID, models.PostStatusPublished}

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, args...)
	} else {
		result, err = r.db.ExecContext(ctx, query, args...)
	}
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

// MarkPublished is a no-op for posts that are already published.
func (r *postRepository) MarkPublished(ctx context.Context, postID int64, publishedAt time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			updated_at = $2
		WHERE id = $3 AND status <> $1
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, publishedAt, postID)
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
