package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/identity"
	"github.com/go-resty/resty/v2"
)

const defaultOEmbedURL = "https://www.youtube.com/oembed"

// YouTubeProvider looks up episode metadata through the public oEmbed
// endpoint. No API key is required; failures are expected and callers
// fall back to placeholder metadata.
type YouTubeProvider struct {
	client   *resty.Client
	endpoint string
}

// NewYouTubeProvider creates a provider. endpoint overrides the oEmbed
// URL for tests; pass "" for the real service.
func NewYouTubeProvider(endpoint string) *YouTubeProvider {
	if endpoint == "" {
		endpoint = defaultOEmbedURL
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &YouTubeProvider{client: client, endpoint: endpoint}
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Lookup fetches title and channel name for a video URL. oEmbed does
// not expose duration, so DurationSeconds stays zero until the
// transcription result provides it.
func (p *YouTubeProvider) Lookup(ctx context.Context, sourceRef string) (*identity.Metadata, error) {
	var body oembedResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"url":    sourceRef,
			"format": "json",
		}).
		SetResult(&body).
		Get(p.endpoint)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "youtube-oembed", Err: err}
	}
	if resp.IsError() {
		return nil, &domain.ExternalServiceError{
			Service: "youtube-oembed",
			Err:     fmt.Errorf("status %d", resp.StatusCode()),
		}
	}

	meta := &identity.Metadata{Title: body.Title}
	if body.AuthorName != "" {
		meta.Description = fmt.Sprintf("From %s", body.AuthorName)
	}
	return meta, nil
}
