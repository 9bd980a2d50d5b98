package publisher

import (
	"net/http"
	"sort"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
)

// Registry maps a platform to its Publisher. It is filled once at startup
// and only read afterwards.
type Registry struct {
	publishers map[models.Platform]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[models.Platform]Publisher, len(publishers))}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry registers every supported platform against the
// configured API endpoints.
func NewDefaultRegistry(api config.PlatformAPI, httpClient *http.Client) *Registry {
	return NewRegistry(
		NewFacebook(api.GraphURL, httpClient),
		NewInstagram(api.InstagramURL, httpClient),
		NewTwitter(api.TwitterURL, httpClient),
		NewLinkedIn(api.LinkedInURL, httpClient),
		NewTiktok(),
	)
}

func (r *Registry) Register(p Publisher) {
	r.publishers[p.Platform()] = p
}

func (r *Registry) Lookup(platform models.Platform) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

func (r *Registry) Platforms() []models.Platform {
	platforms := make([]models.Platform, 0, len(r.publishers))
	for platform := range r.publishers {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}
