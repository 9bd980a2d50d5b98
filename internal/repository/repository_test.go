package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (PostingHistoryRepository, SocialAccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostingHistoryRepository(db), NewSocialAccountRepository(db), mock
}

func TestClaim(t *testing.T) {
	ph, _, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE posting_history\s+SET status = 'publishing'`).
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := ph.Claim(context.Background(), 7, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`UPDATE posting_history\s+SET status = 'publishing'`).
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = ph.Claim(context.Background(), 7, now)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestComplete(t *testing.T) {
	ph, _, mock := newMock(t)
	publishedAt := time.Now()
	outcome := models.HistoryOutcome{
		Platform:       models.PlatformFacebook,
		Status:         models.HistoryStatusPublished,
		ExternalPostID: "fb-1",
		PublishedAt:    &publishedAt,
	}

	mock.ExpectExec(`UPDATE posting_history.+WHERE id = \$1 AND status = 'publishing'`).
		WithArgs(int64(3), "published", "facebook", "fb-1", &publishedAt, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ph.Complete(context.Background(), 3, outcome))

	mock.ExpectExec(`UPDATE posting_history.+WHERE id = \$1 AND status = 'publishing'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, ph.Complete(context.Background(), 3, outcome), ErrNotClaimed)

	// Non-terminal outcomes never reach the database.
	err := ph.Complete(context.Background(), 3, models.HistoryOutcome{Status: models.HistoryStatusPending})
	assert.Error(t, err)
}

func TestFailStaleClaims(t *testing.T) {
	ph, _, mock := newMock(t)
	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectExec(`UPDATE posting_history\s+SET status = 'failed'`).
		WithArgs(cutoff, "PlatformError: publish interrupted").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := ph.FailStaleClaims(context.Background(), cutoff, "PlatformError: publish interrupted")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestFailClaimable(t *testing.T) {
	ph, _, mock := newMock(t)

	mock.ExpectExec(`UPDATE posting_history\s+SET status = 'failed'.+WHERE post_id = \$1 AND status IN \('pending', 'scheduled'\)`).
		WithArgs(int64(4), "Rescheduled: replaced by batch b2").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := ph.FailClaimable(context.Background(), nil, 4, "Rescheduled: replaced by batch b2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestCreateBatchFillsIDs(t *testing.T) {
	ph, _, mock := newMock(t)
	now := time.Now()
	entries := []*models.PostingHistory{
		{PostID: 1, AccountID: 10, BatchID: "b", Platform: models.PlatformTwitter, Status: models.HistoryStatusPending},
		{PostID: 1, AccountID: 11, BatchID: "b", Platform: models.PlatformLinkedIn, Status: models.HistoryStatusPending},
	}

	mock.ExpectQuery(`INSERT INTO posting_history`).
		WithArgs(int64(1), int64(10), "b", models.PlatformTwitter, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(100, now, now))
	mock.ExpectQuery(`INSERT INTO posting_history`).
		WithArgs(int64(1), int64(11), "b", models.PlatformLinkedIn, "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(101, now, now))

	require.NoError(t, ph.CreateBatch(context.Background(), nil, entries))
	assert.EqualValues(t, 100, entries[0].ID)
	assert.EqualValues(t, 101, entries[1].ID)
}

func TestCreateBatchStopsOnError(t *testing.T) {
	ph, _, mock := newMock(t)
	entries := []*models.PostingHistory{
		{PostID: 1, AccountID: 10, Status: models.HistoryStatusPending},
		{PostID: 1, AccountID: 11, Status: models.HistoryStatusPending},
	}

	mock.ExpectQuery(`INSERT INTO posting_history`).WillReturnError(errors.New("foreign key violation"))

	err := ph.CreateBatch(context.Background(), nil, entries)
	assert.ErrorContains(t, err, "account 10")
}

func TestGetHistoryMissingRow(t *testing.T) {
	ph, _, mock := newMock(t)

	mock.ExpectQuery(`FROM posting_history WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(nil))
	entry, err := ph.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestUpsertAccount(t *testing.T) {
	_, sa, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO social_accounts.+ON CONFLICT \(user_id, platform, external_user_id\) DO UPDATE`).
		WithArgs(int64(1), models.PlatformTwitter, "42", "jack", "Jack", models.AccountKindPersonal, "",
			"enc-access", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	id, err := sa.Upsert(context.Background(), nil, &models.SocialAccount{
		UserID:           1,
		Platform:         models.PlatformTwitter,
		ExternalUserID:   "42",
		ExternalUsername: "jack",
		DisplayName:      "Jack",
		AccountKind:      models.AccountKindPersonal,
		AccessToken:      "enc-access",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9, id)
}

func TestGetActiveAccount(t *testing.T) {
	_, sa, mock := newMock(t)
	now := time.Now()
	columns := []string{"id", "user_id", "platform", "external_user_id", "external_username", "display_name",
		"account_kind", "profile_picture_url", "access_token", "refresh_token", "token_expires_at", "active",
		"created_at", "updated_at"}

	mock.ExpectQuery(`FROM social_accounts\s+WHERE id = \$1 AND user_id = \$2 AND active = TRUE`).
		WithArgs(int64(9), int64(1), "").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(9, 1, "linkedin", "urn", "jane", "Jane", "page", "", "enc", "", nil, true, now, now))

	acc, err := sa.GetActive(context.Background(), 1, "", 9)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, models.PlatformLinkedIn, acc.Platform)
	assert.Equal(t, models.AccountKindPage, acc.AccountKind)
	assert.Nil(t, acc.TokenExpiresAt)

	mock.ExpectQuery(`FROM social_accounts`).
		WithArgs(int64(9), int64(2), "").
		WillReturnRows(sqlmock.NewRows(columns))
	acc, err = sa.GetActive(context.Background(), 2, "", 9)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestSetToken(t *testing.T) {
	_, sa, mock := newMock(t)
	expiry := time.Now().Add(time.Hour)
	update := &models.SocialAccount{AccessToken: "new", TokenExpiresAt: &expiry}

	mock.ExpectExec(`UPDATE social_accounts.+WHERE id = \$1 AND access_token = \$2`).
		WithArgs(int64(4), "old", "new", "", &expiry).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, sa.SetToken(context.Background(), 4, "old", update))

	mock.ExpectExec(`UPDATE social_accounts.+WHERE id = \$1 AND access_token = \$2`).
		WithArgs(int64(4), "old", "new", "", &expiry).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, sa.SetToken(context.Background(), 4, "old", update), ErrStaleToken)
}

func TestDeactivateAccount(t *testing.T) {
	_, sa, mock := newMock(t)

	mock.ExpectExec(`UPDATE social_accounts\s+SET active = FALSE`).
		WithArgs(int64(4), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := sa.Deactivate(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkScheduledSkipsPublishedPosts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	posts := NewPostRepository(db)
	at := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE posts\s+SET status = \$1.+WHERE id = \$5 AND status <> \$6`).
		WithArgs("scheduled", at, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(2), "published").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	ok, err := posts.MarkScheduled(context.Background(), tx, 2, at, []string{"facebook"})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	posts := NewPostRepository(db)
	now := time.Now()

	mock.ExpectExec(`UPDATE posts\s+SET status = \$1`).
		WithArgs("published", now, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := posts.MarkPublished(context.Background(), 2, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
