package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

type SocialAccountRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetActive(ctx context.Context, userID int64, platform models.Platform, accountID int64) (*models.SocialAccount, error)
	ListActive(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error
	Deactivate(ctx context.Context, userID, accountID int64) (bool, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `
	id,
	user_id,
	platform,
	external_user_id,
	external_username,
	display_name,
	account_kind,
	profile_picture_url,
	access_token,
	refresh_token,
	token_expires_at,
	active,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSocialAccount(row rowScanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.ExternalUserID, &sa.ExternalUsername,
		&sa.DisplayName, &sa.AccountKind, &sa.ProfilePicture, &sa.AccessToken, &sa.RefreshToken,
		&sa.TokenExpiresAt, &sa.Active, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

// Upsert inserts the account or, when the same external identity was
// authorized before, refreshes its tokens and profile and reactivates it.
func (r *socialAccountRepository) Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	var err error
	var id int64

	var upsertQuery = `
			INSERT INTO social_accounts(
				user_id,
				platform,
				external_user_id,
				external_username,
				display_name,
				account_kind,
				profile_picture_url,
				access_token,
				refresh_token,
				token_expires_at,
				active
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
			ON CONFLICT (user_id, platform, external_user_id) DO UPDATE SET
				external_username = EXCLUDED.external_username,
				display_name = EXCLUDED.display_name,
				account_kind = EXCLUDED.account_kind,
				profile_picture_url = EXCLUDED.profile_picture_url,
				access_token = EXCLUDED.access_token,
				refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), social_accounts.refresh_token),
				token_expires_at = EXCLUDED.token_expires_at,
				active = TRUE,
				updated_at = CURRENT_TIMESTAMP
			RETURNING id
		`

	args := []any{
		sa.UserID,
		sa.Platform,
		sa.ExternalUserID,
		sa.ExternalUsername,
		sa.DisplayName,
		sa.AccountKind,
		sa.ProfilePicture,
		sa.AccessToken,
		sa.RefreshToken,
		sa.TokenExpiresAt,
	}

	if tx != nil {
		err = tx.QueryRowContext(ctx, upsertQuery, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, upsertQuery, args...).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

// GetActive returns nil when no active account owned by userID matches.
// An empty platform matches any platform.
func (r *socialAccountRepository) GetActive(ctx context.Context, userID int64, platform models.Platform, accountID int64) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE id = $1 AND user_id = $2 AND active = TRUE AND ($3 = '' OR platform = $3)`

	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, accountID, userID, string(platform)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return sa, nil
}

func (r *socialAccountRepository) ListActive(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE user_id = $1 AND active = TRUE
		ORDER BY platform, id`

	return r.list(ctx, query, userID)
}

// ListExpiring returns active accounts whose token expires inside the window
// or has already expired and that can still be refreshed.
func (r *socialAccountRepository) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE active = TRUE
			AND refresh_token <> ''
			AND ((token_expires_at BETWEEN $1 AND $2) OR (token_expires_at < $1))`

	return r.list(ctx, query, initialTime, finalTime)
}

func (r *socialAccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var socialAccounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		socialAccounts = append(socialAccounts, sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return socialAccounts, nil
}

// SetToken swaps the stored tokens only if the access token is still the one
// the caller read, so two concurrent refreshes cannot clobber each other.
func (r *socialAccountRepository) SetToken(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2
	`
	result, err := r.db.ExecContext(ctx, updateTokenQuery, accountID, oldAccessToken, sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt)
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
		slog.Info("no rows affected; token was changed concurrently", "account_id", accountID)
		return ErrStaleToken
	}
	return nil
}

func (r *socialAccountRepository) Deactivate(ctx context.Context, userID, accountID int64) (bool, error) {
	query := `
		UPDATE social_accounts
		SET active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2 AND active = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, accountID, userID)
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
