package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func testAccount(platform models.Platform) *models.SocialAccount {
	return &models.SocialAccount{
		ID:             1,
		UserID:         7,
		Platform:       platform,
		ExternalUserID: "ext-1",
		AccessToken:    "token-1",
		Active:         true,
	}
}

func expiredAccount(platform models.Platform) *models.SocialAccount {
	acc := testAccount(platform)
	expired := time.Now().Add(-time.Minute)
	acc.TokenExpiresAt = &expired
	return acc
}

func TestExpiredTokenMakesNoRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	publishers := []Publisher{
		NewFacebook(srv.URL, srv.Client()),
		NewInstagram(srv.URL, srv.Client()),
		NewTwitter(srv.URL, srv.Client()),
		NewLinkedIn(srv.URL, srv.Client()),
		NewTiktok(),
	}
	for _, p := range publishers {
		t.Run(string(p.Platform()), func(t *testing.T) {
			_, err := p.Publish(context.Background(), expiredAccount(p.Platform()), "hello", srv.URL+"/img.png")
			assert.ErrorIs(t, err, ErrTokenExpired)
		})
	}
	assert.Zero(t, calls)
}

func TestFacebookPublishText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ext-1/feed", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		w.Write([]byte(`{"id":"ext-1_123"}`))
	}))
	defer srv.Close()

	id, err := NewFacebook(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformFacebook), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "ext-1_123", id)
}

func TestFacebookPublishPhotoPrefersPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ext-1/photos", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn.example.com/a.png", r.PostForm.Get("url"))
		w.Write([]byte(`{"id":"photo-9","post_id":"ext-1_456"}`))
	}))
	defer srv.Close()

	id, err := NewFacebook(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformFacebook), "hello", "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "ext-1_456", id)
}

func TestFacebookPlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	_, err := NewFacebook(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformFacebook), "hello", "")
	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "Invalid OAuth access token", perr.Message)
}

func TestInstagramRequiresImage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	_, err := NewInstagram(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformInstagram), "caption", "")
	assert.ErrorIs(t, err, ErrMediaRequired)
	assert.Zero(t, calls)
}

func TestInstagramTwoPhasePublish(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/ext-1/media":
			assert.Equal(t, "https://cdn.example.com/a.png", body["image_url"])
			assert.Equal(t, "caption", body["caption"])
			w.Write([]byte(`{"id":"container-1"}`))
		case "/ext-1/media_publish":
			assert.Equal(t, "container-1", body["creation_id"])
			w.Write([]byte(`{"id":"media-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	id, err := NewInstagram(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformInstagram), "caption", "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "media-1", id)
	assert.Equal(t, []string{"/ext-1/media", "/ext-1/media_publish"}, paths)
}

func TestInstagramPublishPhaseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ext-1/media" {
			w.Write([]byte(`{"id":"container-1"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"Media not ready"}}`))
	}))
	defer srv.Close()

	_, err := NewInstagram(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformInstagram), "caption", "https://cdn.example.com/a.png")
	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "Media not ready", perr.Message)
}

func TestInstagramEmptyContainerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewInstagram(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformInstagram), "caption", "https://cdn.example.com/a.png")
	var perr *PlatformError
	assert.True(t, errors.As(err, &perr))
}

func TestTwitterPublishWithImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			w.Write(pngBytes)
		case "/2/media/upload":
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "tweet_image", r.FormValue("media_category"))
			assert.Equal(t, "image/png", r.FormValue("media_type"))
			f, _, err := r.FormFile("media")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, pngBytes, data)
			w.Write([]byte(`{"data":{"id":"media-7"}}`))
		case "/2/tweets":
			var body struct {
				Text  string `json:"text"`
				Media struct {
					MediaIDs []string `json:"media_ids"`
				} `json:"media"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "hello", body.Text)
			assert.Equal(t, []string{"media-7"}, body.Media.MediaIDs)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"data":{"id":"tweet-1","text":"hello"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	id, err := NewTwitter(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformTwitter), "hello", srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, "tweet-1", id)
}

func TestTwitterRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/doc.txt" {
			w.Write([]byte("just some text"))
			return
		}
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	_, err := NewTwitter(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformTwitter), "hello", srv.URL+"/doc.txt")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestTwitterErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title":"Forbidden","detail":"You are not permitted to perform this action."}`))
	}))
	defer srv.Close()

	_, err := NewTwitter(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformTwitter), "hello", "")
	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusForbidden, perr.StatusCode)
	assert.Equal(t, "You are not permitted to perform this action.", perr.Message)
}

func TestLinkedInPublishAsOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, linkedInVersion, r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.Equal(t, "/rest/posts", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:organization:ext-1", body["author"])
		assert.Equal(t, "hello", body["commentary"])
		assert.Equal(t, "PUBLISHED", body["lifecycleState"])
		assert.NotContains(t, body, "content")

		w.Header().Set("x-restli-id", "urn:li:share:99")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	acc := testAccount(models.PlatformLinkedIn)
	acc.AccountKind = models.AccountKindPage

	id, err := NewLinkedIn(srv.URL, srv.Client()).Publish(context.Background(), acc, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:99", id)
}

func TestLinkedInPublishWithImage(t *testing.T) {
	var uploaded []byte
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/img.png":
			w.Write(pngBytes)
		case r.URL.Path == "/rest/images" && r.URL.Query().Get("action") == "initializeUpload":
			var body struct {
				InitializeUploadRequest struct {
					Owner string `json:"owner"`
				} `json:"initializeUploadRequest"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "urn:li:person:ext-1", body.InitializeUploadRequest.Owner)
			w.Write([]byte(`{"value":{"uploadUrl":"` + srv.URL + `/upload/1","image":"urn:li:image:1"}}`))
		case r.URL.Path == "/upload/1":
			assert.Equal(t, http.MethodPut, r.Method)
			uploaded, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/rest/posts":
			var body struct {
				Content struct {
					Media struct {
						ID string `json:"id"`
					} `json:"media"`
				} `json:"content"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "urn:li:image:1", body.Content.Media.ID)
			w.Header().Set("x-restli-id", "urn:li:share:100")
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	id, err := NewLinkedIn(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformLinkedIn), "hello", srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:100", id)
	assert.Equal(t, pngBytes, uploaded)
}

func TestLinkedInMissingPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	_, err := NewLinkedIn(srv.URL, srv.Client()).Publish(context.Background(), testAccount(models.PlatformLinkedIn), "hello", "")
	var perr *PlatformError
	assert.True(t, errors.As(err, &perr))
}

func TestTiktokUnsupported(t *testing.T) {
	_, err := NewTiktok().Publish(context.Background(), testAccount(models.PlatformTiktok), "hello", "https://cdn.example.com/a.png")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestPublishTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewFacebook(srv.URL, srv.Client()).Publish(ctx, testAccount(models.PlatformFacebook), "hello", "")
	var perr *PlatformError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "request timed out", perr.Message)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewTiktok(), NewFacebook("http://localhost", nil))

	p, ok := r.Lookup(models.PlatformFacebook)
	require.True(t, ok)
	assert.Equal(t, models.PlatformFacebook, p.Platform())

	_, ok = r.Lookup(models.PlatformTwitter)
	assert.False(t, ok)

	assert.Equal(t, []models.Platform{models.PlatformFacebook, models.PlatformTiktok}, r.Platforms())
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"graph error object", `{"error":{"message":"bad token"}}`, "bad token"},
		{"plain error string", `{"error":"invalid_request"}`, "invalid_request"},
		{"errors array", `{"errors":[{"message":"duplicate content"}]}`, "duplicate content"},
		{"linkedin message", `{"message":"Not enough permissions","status":403}`, "Not enough permissions"},
		{"raw body", `upstream unavailable`, "upstream unavailable"},
		{"empty body", ``, "502 Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body), "502 Bad Gateway"))
		})
	}
}
