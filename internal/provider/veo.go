package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// VeoOptions configures the asynchronous video/avatar adapter.
type VeoOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	// Turnaround is how long a dispatched operation stays running before
	// the synthetic asset is ready. Zero means ready on the first poll.
	Turnaround time.Duration
}

// Veo serves video and avatar lip-sync generation. Dispatch returns an
// operation handle; the asset becomes available only through Poll. As with
// the Gemini adapter, the remote call is stubbed with deterministic
// synthetic operations so the full async lifecycle is exercised locally.
type Veo struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zerolog.Logger
	turnaround time.Duration

	mu  sync.Mutex
	ops map[string]veoOperation
}

type veoOperation struct {
	req     Request
	readyAt time.Time
}

var _ Adapter = (*Veo)(nil)

func NewVeo(opts VeoOptions) *Veo {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Veo{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		httpClient: client,
		logger:     opts.Logger,
		turnaround: opts.Turnaround,
		ops:        make(map[string]veoOperation),
	}
}

func (v *Veo) Dispatch(ctx context.Context, req Request) (Dispatch, error) {
	select {
	case <-ctx.Done():
		return Dispatch{}, ctx.Err()
	default:
	}
	handle := "operations/" + uuid.NewString()
	v.mu.Lock()
	for h, op := range v.ops {
		if time.Since(op.readyAt) > time.Hour {
			delete(v.ops, h)
		}
	}
	v.ops[handle] = veoOperation{req: req, readyAt: time.Now().Add(v.turnaround)}
	v.mu.Unlock()
	if v.logger != nil {
		v.logger.Debug().Str("job_id", req.JobID).Str("handle", handle).Msg("veo: operation started")
	}
	return Dispatch{Handle: handle}, nil
}

func (v *Veo) Poll(ctx context.Context, handle string) (Poll, error) {
	select {
	case <-ctx.Done():
		return Poll{}, fmt.Errorf("veo: poll: %w", ErrTransient)
	default:
	}
	v.mu.Lock()
	op, ok := v.ops[handle]
	v.mu.Unlock()
	if !ok {
		return Poll{}, fmt.Errorf("veo: poll %q: %w", handle, ErrTaskNotFound)
	}
	if time.Now().Before(op.readyAt) {
		return Poll{State: PollRunning}, nil
	}
	mime := "video/mp4"
	if op.req.Kind == domain.JobKindAvatarLipsync {
		mime = "video/webm"
	}
	asset := Asset{
		URL:    fmt.Sprintf("%s/synthetic/%s/%s.mp4", v.baseURL, op.req.ProviderKey, op.req.JobID),
		MIME:   mime,
		Width:  1280,
		Height: 720,
		Length: 8,
	}
	// The operation stays in the map: the caller's settlement may fail
	// after this return, and a later poll for the same handle must observe
	// Done again rather than a stranded-handle failure. Dispatch prunes
	// old finished operations.
	return Poll{State: PollDone, Result: &Result{Assets: []Asset{asset}}}, nil
}
