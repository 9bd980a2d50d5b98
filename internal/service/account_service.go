package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/pkg/utils"
)

var ErrAccountNotFound = errors.New("social account not found")

// AccountService is the account registry. Tokens are encrypted before they
// reach the repository and decrypted on the way out.
type AccountService interface {
	Get(ctx context.Context, userID int64, platform models.Platform, accountID int64) (*models.SocialAccount, error)
	ListActive(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Deactivate(ctx context.Context, userID, accountID int64) error
	Link(ctx context.Context, sa *models.SocialAccount) (int64, error)
}

type accountService struct {
	ar  repository.SocialAccountRepository
	key []byte
	log *slog.Logger
}

func NewAccountService(ar repository.SocialAccountRepository, secretKey []byte, logger *slog.Logger) AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &accountService{
		ar:  ar,
		key: secretKey,
		log: logger.With("module", "accounts"),
	}
}

func (s *accountService) Get(ctx context.Context, userID int64, platform models.Platform, accountID int64) (*models.SocialAccount, error) {
	acc, err := s.ar.GetActive(ctx, userID, platform, accountID)
	if err != nil {
		return nil, fmt.Errorf("error getting social account %d: %w", accountID, err)
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.decryptTokens(acc); err != nil {
		return nil, fmt.Errorf("error decrypting tokens for account %d: %w", accountID, err)
	}
	return acc, nil
}

// ListActive returns the user's connected accounts without their tokens.
func (s *accountService) ListActive(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.ar.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing social accounts: %w", err)
	}
	for _, acc := range accounts {
		acc.AccessToken = ""
		acc.RefreshToken = ""
	}
	return accounts, nil
}

func (s *accountService) Deactivate(ctx context.Context, userID, accountID int64) error {
	ok, err := s.ar.Deactivate(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("error deactivating social account %d: %w", accountID, err)
	}
	if !ok {
		return ErrAccountNotFound
	}
	s.log.Info("account deactivated", "event", "account_deactivated", "account_id", accountID, "user_id", userID)
	return nil
}

// Link stores the outcome of a completed OAuth authorization. Connecting the
// same external identity again refreshes the existing row.
func (s *accountService) Link(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	if !sa.Platform.Valid() {
		return 0, fmt.Errorf("unsupported platform %q", sa.Platform)
	}
	if sa.ExternalUserID == "" {
		return 0, errors.New("external user id is required")
	}
	if sa.AccountKind == "" {
		sa.AccountKind = models.AccountKindPersonal
	}

	stored := *sa
	if err := s.encryptTokens(&stored); err != nil {
		return 0, fmt.Errorf("error encrypting tokens: %w", err)
	}

	id, err := s.ar.Upsert(ctx, nil, &stored)
	if err != nil {
		return 0, fmt.Errorf("error saving social account: %w", err)
	}

	s.log.Info("account linked", "event", "account_linked", "account_id", id,
		"user_id", sa.UserID, "platform", sa.Platform)
	return id, nil
}

func (s *accountService) encryptTokens(sa *models.SocialAccount) error {
	var err error
	if sa.AccessToken != "" {
		if sa.AccessToken, err = utils.Encrypt([]byte(sa.AccessToken), s.key); err != nil {
			return err
		}
	}
	if sa.RefreshToken != "" {
		if sa.RefreshToken, err = utils.Encrypt([]byte(sa.RefreshToken), s.key); err != nil {
			return err
		}
	}
	return nil
}

func (s *accountService) decryptTokens(sa *models.SocialAccount) error {
	var err error
	if sa.AccessToken != "" {
		if sa.AccessToken, err = utils.Decrypt(sa.AccessToken, s.key); err != nil {
			return err
		}
	}
	if sa.RefreshToken != "" {
		if sa.RefreshToken, err = utils.Decrypt(sa.RefreshToken, s.key); err != nil {
			return err
		}
	}
	return nil
}
