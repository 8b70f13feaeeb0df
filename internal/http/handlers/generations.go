package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/orchestrator"
)

type generateRequest struct {
	Kind        string         `json:"kind"`
	ProviderKey string         `json:"provider_key"`
	Units       *int           `json:"units"`
	Prompt      string         `json:"prompt"`
	Params      map[string]any `json:"params"`
}

type generateResponse struct {
	Job            orchestrator.JobView `json:"job"`
	RemainingQuota int                  `json:"remaining_quota"`
}

func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	// Only an absent field defaults; an explicit zero or negative value is
	// rejected by validation downstream.
	units := 1
	if req.Units != nil {
		units = *req.Units
	}
	plan := domain.Plan(middleware.PlanFromContext(r.Context()))
	if plan == "" {
		plan = domain.PlanFree
	}

	resp, err := a.Orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		OwnerID:     userID,
		Plan:        plan,
		Kind:        domain.JobKind(req.Kind),
		ProviderKey: req.ProviderKey,
		Units:       units,
		Prompt:      req.Prompt,
		Params:      req.Params,
	})
	if err != nil {
		a.rejection(w, resp, err)
		return
	}
	status := http.StatusAccepted
	if resp.Job.Status == string(domain.JobStatusCompleted) {
		status = http.StatusOK
	}
	a.json(w, status, generateResponse{Job: resp.Job, RemainingQuota: resp.RemainingQuota})
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	view, err := a.Orchestrator.Reconcile(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("reconcile failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if view.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	bal, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("balance read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"base":  bal.Base,
		"bonus": bal.Bonus,
		"total": bal.Total(),
	})
}

// rejection maps the orchestrator's error taxonomy to HTTP statuses with
// structured detail, so a caller can decide to retry, wait, or change
// parameters without parsing free text.
func (a *App) rejection(w http.ResponseWriter, resp *orchestrator.SubmitResponse, err error) {
	var (
		ve  *domain.ValidationError
		me  *domain.ModerationRejectedError
		qe  *domain.DailyQuotaExceededError
		re  *domain.RateLimitExceededError
		uce *domain.UserConcurrencyExceededError
		gce *domain.GlobalConcurrencyExceededError
		ice *domain.InsufficientCreditsError
		de  *domain.ProviderDispatchError
	)
	switch {
	case errors.As(err, &ve):
		a.json(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "validation_error", "field": ve.Field, "message": ve.Message,
		})
	case errors.As(err, &me):
		a.json(w, http.StatusForbidden, map[string]any{
			"error": "moderation_rejected", "reason": me.Reason,
		})
	case errors.As(err, &qe):
		a.json(w, http.StatusForbidden, map[string]any{
			"error": "daily_quota_exceeded", "used": qe.Used, "limit": qe.Limit,
		})
	case errors.As(err, &re):
		w.Header().Set("Retry-After", strconv.Itoa(int(re.RetryAfter.Seconds())+1))
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"error": "rate_limit_exceeded", "provider_key": re.ProviderKey,
			"retry_after_ms": re.RetryAfter.Milliseconds(),
		})
	case errors.As(err, &uce):
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"error": "user_concurrency_exceeded", "processing": uce.Processing, "limit": uce.Limit,
		})
	case errors.As(err, &gce):
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"error": "global_concurrency_exceeded", "processing": gce.Processing, "limit": gce.Limit,
		})
	case errors.As(err, &ice):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error": "insufficient_credits", "needed": ice.Needed, "available": ice.Available,
		})
	case errors.As(err, &de):
		// Credits are already refunded; hand back the terminal job.
		body := map[string]any{"error": "provider_dispatch_error", "message": fmt.Sprintf("%v", de.Err)}
		if resp != nil {
			body["job"] = resp.Job
		}
		a.json(w, http.StatusBadGateway, body)
	default:
		a.Logger.Error().Err(err).Msg("submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to submit generation")
	}
}
