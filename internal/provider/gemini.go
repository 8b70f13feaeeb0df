package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// GeminiOptions configures the synchronous Gemini-backed adapters.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Gemini serves image and speech generation, both of which return results
// inline. The real HTTP invocation is intentionally stubbed with
// deterministic synthetic assets until the external integration is wired,
// which keeps the orchestrator fully operational in local and CI
// environments while preserving the extension points for real API calls.
type Gemini struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zerolog.Logger
}

var _ Adapter = (*Gemini)(nil)

func NewGemini(opts GeminiOptions) *Gemini {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Gemini{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		httpClient: client,
		logger:     opts.Logger,
	}
}

// Dispatch always answers inline: Gemini image and speech calls block
// until the asset exists.
func (g *Gemini) Dispatch(ctx context.Context, req Request) (Dispatch, error) {
	select {
	case <-ctx.Done():
		return Dispatch{}, ctx.Err()
	default:
	}
	if g.logger != nil {
		g.logger.Debug().Str("job_id", req.JobID).Str("model", req.ProviderKey).
			Int("units", req.Units).Msg("gemini: dispatch")
	}
	assets := make([]Asset, 0, req.Units)
	for i := 0; i < req.Units; i++ {
		assets = append(assets, g.syntheticAsset(req, i))
	}
	return Dispatch{Result: &Result{Assets: assets}}, nil
}

// Poll never applies: no handle is ever issued.
func (g *Gemini) Poll(_ context.Context, handle string) (Poll, error) {
	return Poll{}, fmt.Errorf("gemini: poll %q: %w", handle, ErrTaskNotFound)
}

func (g *Gemini) syntheticAsset(req Request, idx int) Asset {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s/%d", req.JobID, req.Prompt, idx)))
	name := hex.EncodeToString(sum[:8])
	switch req.Kind {
	case domain.JobKindSpeech:
		return Asset{
			URL:    fmt.Sprintf("%s/synthetic/%s/%s.wav", g.baseURL, req.ProviderKey, name),
			MIME:   "audio/wav",
			Length: 12,
		}
	default:
		return Asset{
			URL:    fmt.Sprintf("%s/synthetic/%s/%s.png", g.baseURL, req.ProviderKey, name),
			MIME:   "image/png",
			Width:  1024,
			Height: 1024,
		}
	}
}
