// Package memory holds in-process implementations of the repository
// interfaces. They back the service tests and local runs without Postgres.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
)

type Accounts struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]models.SocialAccount
}

func NewAccounts(seed ...models.SocialAccount) *Accounts {
	s := &Accounts{accounts: make(map[int64]models.SocialAccount, len(seed))}
	for _, acc := range seed {
		s.accounts[acc.ID] = acc
		if acc.ID > s.nextID {
			s.nextID = acc.ID
		}
	}
	return s
}

func (s *Accounts) Upsert(_ context.Context, _ *sql.Tx, sa *models.SocialAccount) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, existing := range s.accounts {
		if existing.UserID == sa.UserID && existing.Platform == sa.Platform && existing.ExternalUserID == sa.ExternalUserID {
			existing.ExternalUsername = sa.ExternalUsername
			existing.DisplayName = sa.DisplayName
			existing.AccountKind = sa.AccountKind
			existing.ProfilePicture = sa.ProfilePicture
			existing.AccessToken = sa.AccessToken
			if sa.RefreshToken != "" {
				existing.RefreshToken = sa.RefreshToken
			}
			existing.TokenExpiresAt = sa.TokenExpiresAt
			existing.Active = true
			existing.UpdatedAt = now
			s.accounts[id] = existing
			return id, nil
		}
	}

	s.nextID++
	acc := *sa
	acc.ID = s.nextID
	acc.Active = true
	acc.CreatedAt = now
	acc.UpdatedAt = now
	s.accounts[acc.ID] = acc
	return acc.ID, nil
}

func (s *Accounts) GetActive(_ context.Context, userID int64, platform models.Platform, accountID int64) (*models.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok || acc.UserID != userID || !acc.Active || (platform != "" && acc.Platform != platform) {
		return nil, nil
	}
	return &acc, nil
}

func (s *Accounts) ListActive(_ context.Context, userID int64) ([]*models.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SocialAccount
	for _, acc := range s.accounts {
		if acc.UserID == userID && acc.Active {
			acc := acc
			out = append(out, &acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Accounts) ListExpiring(_ context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SocialAccount
	for _, acc := range s.accounts {
		if !acc.Active || acc.RefreshToken == "" || acc.TokenExpiresAt == nil {
			continue
		}
		if acc.TokenExpiresAt.Before(finalTime) || acc.TokenExpiresAt.Equal(finalTime) {
			acc := acc
			out = append(out, &acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Accounts) SetToken(_ context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok || acc.AccessToken != oldAccessToken {
		return repository.ErrStaleToken
	}
	if sa.AccessToken != "" {
		acc.AccessToken = sa.AccessToken
	}
	if sa.RefreshToken != "" {
		acc.RefreshToken = sa.RefreshToken
	}
	if sa.TokenExpiresAt != nil {
		acc.TokenExpiresAt = sa.TokenExpiresAt
	}
	acc.UpdatedAt = time.Now()
	s.accounts[accountID] = acc
	return nil
}

func (s *Accounts) Deactivate(_ context.Context, userID, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok || acc.UserID != userID || !acc.Active {
		return false, nil
	}
	acc.Active = false
	acc.UpdatedAt = time.Now()
	s.accounts[accountID] = acc
	return true, nil
}

// Get returns the stored row regardless of ownership or state.
func (s *Accounts) Get(accountID int64) (models.SocialAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	return acc, ok
}

type Posts struct {
	mu     sync.RWMutex
	nextID int64
	posts  map[int64]models.Post
}

func NewPosts(seed ...models.Post) *Posts {
	s := &Posts{posts: make(map[int64]models.Post, len(seed))}
	for _, post := range seed {
		s.posts[post.ID] = post
		if post.ID > s.nextID {
			s.nextID = post.ID
		}
	}
	return s
}

func (s *Posts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return &post, nil
}

func (s *Posts) Create(_ context.Context, _ *sql.Tx, post *models.Post) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p := *post
	p.ID = s.nextID
	if p.Status == "" {
		p.Status = models.PostStatusDraft
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.posts[p.ID] = p
	return p.ID, nil
}

func (s *Posts) GetByUserID(_ context.Context, userID int64) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Post
	for _, post := range s.posts {
		if post.UserID == userID {
			post := post
			out = append(out, &post)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Posts) ListDueScheduled(_ context.Context, now time.Time, limit int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Post
	for _, post := range s.posts {
		if post.Status == models.PostStatusScheduled && post.ScheduledAt != nil && !post.ScheduledAt.After(now) {
			post := post
			out = append(out, &post)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Posts) MarkScheduled(_ context.Context, _ *sql.Tx, postID int64, scheduledAt time.Time, platforms []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok || post.Status == models.PostStatusPublished {
		return false, nil
	}
	post.Status = models.PostStatusScheduled
	post.ScheduledAt = &scheduledAt
	post.Platforms = platforms
	post.UpdatedAt = time.Now()
	s.posts[postID] = post
	return true, nil
}

func (s *Posts) MarkPublished(_ context.Context, postID int64, publishedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok || post.Status == models.PostStatusPublished {
		return false, nil
	}
	post.Status = models.PostStatusPublished
	post.PublishedAt = &publishedAt
	post.UpdatedAt = publishedAt
	s.posts[postID] = post
	return true, nil
}

type History struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]models.PostingHistory

	// CompleteErr, when set, is returned by every Complete call.
	CompleteErr error
}

func NewHistory(seed ...models.PostingHistory) *History {
	s := &History{entries: make(map[int64]models.PostingHistory, len(seed))}
	for _, ph := range seed {
		s.entries[ph.ID] = ph
		if ph.ID > s.nextID {
			s.nextID = ph.ID
		}
	}
	return s
}

func (s *History) CreateBatch(_ context.Context, _ *sql.Tx, entries []*models.PostingHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, ph := range entries {
		s.nextID++
		ph.ID = s.nextID
		ph.CreatedAt = now
		ph.UpdatedAt = now
		s.entries[ph.ID] = *ph
	}
	return nil
}

func (s *History) GetByID(_ context.Context, id int64) (*models.PostingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ph, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &ph, nil
}

func (s *History) ListByPostID(_ context.Context, postID int64) ([]*models.PostingHistory, error) {
	return s.filter(func(ph models.PostingHistory) bool { return ph.PostID == postID }), nil
}

func (s *History) ListClaimableByPostID(_ context.Context, postID int64) ([]*models.PostingHistory, error) {
	return s.filter(func(ph models.PostingHistory) bool {
		return ph.PostID == postID && claimable(ph.Status)
	}), nil
}

func (s *History) filter(keep func(models.PostingHistory) bool) []*models.PostingHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PostingHistory
	for _, ph := range s.entries {
		if keep(ph) {
			ph := ph
			out = append(out, &ph)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *History) Claim(_ context.Context, id int64, claimedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ph, ok := s.entries[id]
	if !ok || !claimable(ph.Status) {
		return false, nil
	}
	ph.Status = models.HistoryStatusPublishing
	ph.ClaimedAt = &claimedAt
	ph.UpdatedAt = claimedAt
	s.entries[id] = ph
	return true, nil
}

func (s *History) Complete(_ context.Context, id int64, outcome models.HistoryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CompleteErr != nil {
		return s.CompleteErr
	}
	ph, ok := s.entries[id]
	if !ok || ph.Status != models.HistoryStatusPublishing {
		return repository.ErrNotClaimed
	}
	ph.Status = outcome.Status
	if outcome.Platform != "" {
		ph.Platform = outcome.Platform
	}
	ph.ExternalPostID = outcome.ExternalPostID
	ph.PublishedAt = outcome.PublishedAt
	ph.ErrorMessage = outcome.ErrorMessage
	ph.UpdatedAt = time.Now()
	s.entries[id] = ph
	return nil
}

func (s *History) FailStaleClaims(_ context.Context, claimedBefore time.Time, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, ph := range s.entries {
		if ph.Status == models.HistoryStatusPublishing && ph.ClaimedAt != nil && ph.ClaimedAt.Before(claimedBefore) {
			ph.Status = models.HistoryStatusFailed
			ph.ErrorMessage = message
			ph.UpdatedAt = time.Now()
			s.entries[id] = ph
			n++
		}
	}
	return n, nil
}

func (s *History) FailClaimable(_ context.Context, _ *sql.Tx, postID int64, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, ph := range s.entries {
		if ph.PostID == postID && claimable(ph.Status) {
			ph.Status = models.HistoryStatusFailed
			ph.ErrorMessage = message
			ph.UpdatedAt = time.Now()
			s.entries[id] = ph
			n++
		}
	}
	return n, nil
}

func claimable(status string) bool {
	return status == models.HistoryStatusPending || status == models.HistoryStatusScheduled
}

type Designs struct {
	mu      sync.RWMutex
	nextID  int64
	designs map[int64]models.Design
}

func NewDesigns(seed ...models.Design) *Designs {
	s := &Designs{designs: make(map[int64]models.Design, len(seed))}
	for _, d := range seed {
		s.designs[d.ID] = d
		if d.ID > s.nextID {
			s.nextID = d.ID
		}
	}
	return s
}

func (s *Designs) Create(_ context.Context, _ *sql.Tx, d *models.Design) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	design := *d
	design.ID = s.nextID
	design.CreatedAt = time.Now()
	s.designs[design.ID] = design
	return design.ID, nil
}

func (s *Designs) GetByID(_ context.Context, userID, id int64) (*models.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.designs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	return &d, nil
}

var (
	_ repository.SocialAccountRepository  = (*Accounts)(nil)
	_ repository.PostRepository           = (*Posts)(nil)
	_ repository.PostingHistoryRepository = (*History)(nil)
	_ repository.DesignRepository         = (*Designs)(nil)
)
