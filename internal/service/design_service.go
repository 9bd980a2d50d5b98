package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	maxDesignBytes = 8 << 20
	// Platforms fetch the image asynchronously, Instagram in particular can
	// take several minutes.
	designURLExpiry = 2 * time.Hour
)

var (
	ErrDesignNotFound    = errors.New("design not found")
	ErrUnsupportedDesign = errors.New("design must be a png, jpeg, gif or webp image")
	ErrDesignTooLarge    = errors.New("design exceeds the 8 MB limit")
)

var allowedDesignTypes = map[string]struct{}{
	"png": {}, "jpg": {}, "gif": {}, "webp": {},
}

type DesignService interface {
	Upload(ctx context.Context, userID, clientID int64, name string, data []byte) (*models.Design, error)
	ImageURL(ctx context.Context, userID, designID int64) (string, error)
}

type designService struct {
	dr    repository.DesignRepository
	store ObjectStore
	log   *slog.Logger
}

func NewDesignService(dr repository.DesignRepository, store ObjectStore, logger *slog.Logger) DesignService {
	if logger == nil {
		logger = slog.Default()
	}
	return &designService{dr: dr, store: store, log: logger.With("module", "designs")}
}

func (s *designService) Upload(ctx context.Context, userID, clientID int64, name string, data []byte) (*models.Design, error) {
	if len(data) > maxDesignBytes {
		return nil, ErrDesignTooLarge
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, ErrUnsupportedDesign
	}
	if _, ok := allowedDesignTypes[kind.Extension]; !ok {
		return nil, ErrUnsupportedDesign
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("error generating file key: %w", err)
	}
	key := fmt.Sprintf("designs/%d/%s.%s", userID, id, kind.Extension)

	if err := s.store.Put(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, err
	}

	if name == "" {
		name = id
	}
	design := &models.Design{
		UserID:   userID,
		ClientID: clientID,
		Name:     name,
		FileKey:  key,
		FileType: kind.MIME.Value,
		FileSize: int64(len(data)),
	}
	design.ID, err = s.dr.Create(ctx, nil, design)
	if err != nil {
		return nil, fmt.Errorf("error saving design: %w", err)
	}

	s.log.Info("design uploaded", "event", "design_uploaded", "design_id", design.ID, "key", key)
	return design, nil
}

// ImageURL returns a URL platforms can download the design from.
func (s *designService) ImageURL(ctx context.Context, userID, designID int64) (string, error) {
	design, err := s.dr.GetByID(ctx, userID, designID)
	if err != nil {
		return "", fmt.Errorf("error getting design %d: %w", designID, err)
	}
	if design == nil {
		return "", ErrDesignNotFound
	}
	if design.FileKey == "" {
		return design.ImageURL, nil
	}
	return s.store.PresignGet(ctx, design.FileKey, designURLExpiry)
}
