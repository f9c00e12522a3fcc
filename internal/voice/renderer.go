package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Renderer turns prompt text into a hosted audio URL via an external TTS +
// CDN service. Rendering the same text twice is common (menus repeat), so
// successful renders are cached.
//
// Failures here must degrade, never abort a call: handlers fall back to a
// plain Say verb when Render errors.

type Config struct {
	BaseURL string
	APIKey  string

	CacheSize  int
	Timeout    time.Duration
	MaxRetries uint64
}

type Renderer struct {
	cfg   Config
	cache *lru.Cache[string, string]
	log   *slog.Logger
}

// RenderedPrompt is a hosted audio clip ready to Play.
type RenderedPrompt struct {
	URL string

	// GenerationMillis is 0 on a cache hit.
	GenerationMillis int64
}

type renderRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type renderResponse struct {
	URL string `json:"url"`
}

func NewRenderer(cfg Config, log *slog.Logger) (*Renderer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("voice: base url required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{cfg: cfg, cache: cache, log: log}, nil
}

// Render returns a hosted audio URL for text in language.
func (r *Renderer) Render(ctx context.Context, text, language string) (RenderedPrompt, error) {
	key := language + "|" + text
	if url, ok := r.cache.Get(key); ok {
		return RenderedPrompt{URL: url}, nil
	}

	started := time.Now()
	var out renderResponse
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return requests.
			URL(r.cfg.BaseURL).
			Path("/v1/render").
			Bearer(r.cfg.APIKey).
			BodyJSON(renderRequest{Text: text, Language: language, Voice: "female"}).
			ToJSON(&out).
			Fetch(callCtx)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return RenderedPrompt{}, fmt.Errorf("voice: render failed: %w", err)
	}
	if out.URL == "" {
		return RenderedPrompt{}, errors.New("voice: renderer returned no url")
	}

	r.cache.Add(key, out.URL)
	return RenderedPrompt{URL: out.URL, GenerationMillis: time.Since(started).Milliseconds()}, nil
}
