package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo"
	"server/internal/admission"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/orchestrator"
	"server/internal/provider"
	"server/internal/quota"
)

const testSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	ledger credits.Ledger
	video  *provider.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := credits.NewMemoryLedger()
	video := &provider.Mock{}
	catalog := domain.DefaultCatalog()
	orch := orchestrator.New(orchestrator.Options{
		Ledger:      ledger,
		Quota:       quota.NewMemoryTracker(),
		Rate:        admission.NewMemoryRateLimiter(),
		Concurrency: admission.NewMemoryConcurrency(catalog.GlobalConcurrency),
		Jobs:        repo.NewMemoryJobRepository(),
		Usage:       repo.NewMemoryUsageRepository(),
		Catalog:     catalog,
		Adapters: map[string]provider.Adapter{
			"gemini-image": &provider.Mock{},
			"veo-video":    video,
		},
		Logger: zerolog.Nop(),
	})
	app := &handlers.App{Orchestrator: orch, Ledger: ledger, Logger: zerolog.Nop()}
	cfg := &infra.Config{JWTSecret: testSecret, RateLimitPerMin: 1000}
	srv := httptest.NewServer(httpapi.NewRouter(cfg, app))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, ledger: ledger, video: video}
}

func (e *testEnv) token(t *testing.T, userID, plan string) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{Sub: userID, Plan: plan})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestGenerationsCreateSyncCompletes(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 50, 0)
	token := env.token(t, "u1", "pro")

	resp, body := env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "IMAGE_GEN",
		"provider_key": "gemini-image",
		"units":        2,
		"prompt":       "red bicycle on a pier",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	job, _ := body["job"].(map[string]any)
	if job["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %v", job["status"])
	}
	if job["credits_reserved"] != float64(4) {
		t.Fatalf("expected 4 credits reserved, got %v", job["credits_reserved"])
	}
}

func TestGenerationsCreateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 10, 0)
	token := env.token(t, "u1", "pro")

	resp, body := env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "IMAGE_GEN",
		"provider_key": "gemini-image",
		"units":        8,
		"prompt":       "a mural",
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	if body["needed"] != float64(16) || body["available"] != float64(10) {
		t.Fatalf("unexpected detail: %v", body)
	}
}

func TestGenerationsCreateRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/v1/generations", "", map[string]any{
		"kind": "IMAGE_GEN", "provider_key": "gemini-image", "prompt": "x",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGenerationsCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 50, 0)
	token := env.token(t, "u1", "pro")

	resp, body := env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "HOLOGRAM",
		"provider_key": "gemini-image",
		"prompt":       "x",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	if body["error"] != "validation_error" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGenerationsCreateUnitsHandling(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 50, 0)
	token := env.token(t, "u1", "pro")

	// Negative units are rejected, not silently coerced.
	resp, body := env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "IMAGE_GEN",
		"provider_key": "gemini-image",
		"units":        -3,
		"prompt":       "a kite",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	if body["field"] != "units" {
		t.Fatalf("unexpected rejection detail: %v", body)
	}

	// An absent field defaults to one unit.
	resp, body = env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "IMAGE_GEN",
		"provider_key": "gemini-image",
		"prompt":       "a kite",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	job, _ := body["job"].(map[string]any)
	if job["units"] != float64(1) {
		t.Fatalf("expected one unit, got %v", job["units"])
	}
}

func TestGenerationAsyncLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 100, 0)
	token := env.token(t, "u1", "pro")
	env.video.DispatchFunc = func(context.Context, provider.Request) (provider.Dispatch, error) {
		return provider.Dispatch{Handle: "operations/op-1"}, nil
	}

	resp, body := env.do(t, http.MethodPost, "/v1/generations", token, map[string]any{
		"kind":         "VIDEO_GEN",
		"provider_key": "veo-video",
		"prompt":       "timelapse of clouds",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	job, _ := body["job"].(map[string]any)
	jobID, _ := job["job_id"].(string)
	if jobID == "" || job["status"] != "PROCESSING" {
		t.Fatalf("unexpected job: %v", job)
	}

	// Provider still running.
	resp, body = env.do(t, http.MethodGet, "/v1/generations/"+jobID, token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "PROCESSING" {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}

	// Provider finished; the next poll settles the job.
	env.video.PollFunc = func(context.Context, string) (provider.Poll, error) {
		return provider.Poll{
			State:  provider.PollDone,
			Result: &provider.Result{Assets: []provider.Asset{{URL: "https://cdn/clip.mp4", MIME: "video/mp4"}}},
		}, nil
	}
	resp, body = env.do(t, http.MethodGet, "/v1/generations/"+jobID, token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "COMPLETED" {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}

	// Another user cannot see the job.
	other := env.token(t, "u2", "pro")
	resp, _ = env.do(t, http.MethodGet, "/v1/generations/"+jobID, other, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign job, got %d", resp.StatusCode)
	}
}

func TestCreditsBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.ledger.Grant(context.Background(), "u1", 12, 3)
	token := env.token(t, "u1", "free")

	resp, body := env.do(t, http.MethodGet, "/v1/credits", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["base"] != float64(12) || body["bonus"] != float64(3) || body["total"] != float64(15) {
		t.Fatalf("unexpected balances: %v", body)
	}
}
