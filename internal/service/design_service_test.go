package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to detect a PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestUploadDesign(t *testing.T) {
	f := newFixture(t)
	store := &mockStore{}
	s := NewDesignService(f.designs, store, discardLogger)

	store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "designs/1/") && strings.HasSuffix(key, ".png")
	}), pngHeader, "image/png").Return(nil).Once()

	design, err := s.Upload(context.Background(), 1, 3, "banner", pngHeader)
	require.NoError(t, err)
	assert.NotZero(t, design.ID)
	assert.Equal(t, "image/png", design.FileType)
	assert.EqualValues(t, len(pngHeader), design.FileSize)

	stored, err := f.designs.GetByID(context.Background(), 1, design.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, design.FileKey, stored.FileKey)

	store.On("PresignGet", mock.Anything, design.FileKey, designURLExpiry).Return("https://r2/signed", nil).Once()
	url, err := s.ImageURL(context.Background(), 1, design.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://r2/signed", url)

	_, err = s.ImageURL(context.Background(), 2, design.ID)
	assert.ErrorIs(t, err, ErrDesignNotFound)

	store.AssertExpectations(t)
}

func TestUploadDesignRejections(t *testing.T) {
	f := newFixture(t)
	store := &mockStore{}
	s := NewDesignService(f.designs, store, discardLogger)

	_, err := s.Upload(context.Background(), 1, 0, "notes", []byte("plain text, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedDesign)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, maxDesignBytes)...)
	_, err = s.Upload(context.Background(), 1, 0, "huge", big)
	assert.ErrorIs(t, err, ErrDesignTooLarge)

	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadDesignStoreFailure(t *testing.T) {
	f := newFixture(t)
	store := &mockStore{}
	s := NewDesignService(f.designs, store, discardLogger)

	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unavailable"))

	_, err := s.Upload(context.Background(), 1, 0, "banner", pngHeader)
	assert.Error(t, err)

	designs, err := f.designs.GetByID(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, designs)
}

func TestImageURLFallsBackToStoredURL(t *testing.T) {
	f := newFixture(t)
	id, err := f.designs.Create(context.Background(), nil, &models.Design{UserID: 1, ImageURL: "https://cdn/x.png"})
	require.NoError(t, err)

	url, err := NewDesignService(f.designs, nil, discardLogger).ImageURL(context.Background(), 1, id)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.png", url)
}
