package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postdispatch/internal/models"
)

type DesignRepository interface {
	Create(ctx context.Context, tx *sql.Tx, d *models.Design) (int64, error)
	GetByID(ctx context.Context, userID, id int64) (*models.Design, error)
}

type designRepository struct {
	db *sql.DB
}

func NewDesignRepository(db *sql.DB) DesignRepository {
	return &designRepository{db: db}
}

func (r *designRepository) Create(ctx context.Context, tx *sql.Tx, d *models.Design) (int64, error) {
	var id int64
	var err error

	query := `
		INSERT INTO designs (user_id, client_id, name, file_key, file_type, file_size, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, d.UserID, d.ClientID, d.Name, d.FileKey, d.FileType, d.FileSize, d.ImageURL).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, d.UserID, d.ClientID, d.Name, d.FileKey, d.FileType, d.FileSize, d.ImageURL).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

// GetByID only returns designs owned by userID.
func (r *designRepository) GetByID(ctx context.Context, userID, id int64) (*models.Design, error) {
	query := `
		SELECT id, user_id, client_id, name, file_key, file_type, file_size, image_url, created_at
		FROM designs
		WHERE id = $1 AND user_id = $2
	`

	var d models.Design
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&d.ID,
		&d.UserID,
		&d.ClientID,
		&d.Name,
		&d.FileKey,
		&d.FileType,
		&d.FileSize,
		&d.ImageURL,
		&d.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &d, nil
}
