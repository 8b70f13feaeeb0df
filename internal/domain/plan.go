package domain

import "time"

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// ModelPricing describes one provider model: what a unit costs and the
// model's shared rate-limit window. The rate budget belongs to the model,
// not to any user.
type ModelPricing struct {
	Kind           JobKind
	CreditsPerUnit int64
	RateCap        int
	RateWindow     time.Duration
	MaxUnits       int
}

// PlanLimits are the per-plan admission caps. DailyQuota of 0 means
// unlimited attempts per day.
type PlanLimits struct {
	DailyQuota      int
	UserConcurrency int
}

// Catalog supplies pricing and admission limits per provider model and plan.
// It is loaded once at startup; the orchestrator never re-reads pricing for
// a job after admission.
type Catalog struct {
	Models            map[string]ModelPricing
	Plans             map[Plan]PlanLimits
	GlobalConcurrency int
	Staleness         map[JobKind]time.Duration
}

// Model returns the pricing entry for a provider key.
func (c *Catalog) Model(providerKey string) (ModelPricing, bool) {
	m, ok := c.Models[providerKey]
	return m, ok
}

// Limits returns the admission limits for a plan, falling back to the free
// plan for unknown tiers.
func (c *Catalog) Limits(plan Plan) PlanLimits {
	if l, ok := c.Plans[plan]; ok {
		return l
	}
	return c.Plans[PlanFree]
}

// StalenessFor returns the per-kind threshold after which a PROCESSING job
// is considered abandoned. Provider turnaround differs by an order of
// magnitude between speech and video, hence per-kind values.
func (c *Catalog) StalenessFor(kind JobKind) time.Duration {
	if d, ok := c.Staleness[kind]; ok && d > 0 {
		return d
	}
	return 15 * time.Minute
}

// DefaultCatalog returns the built-in model and plan table. Deployments
// override entries from configuration.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Models: map[string]ModelPricing{
			"gemini-image":   {Kind: JobKindImage, CreditsPerUnit: 2, RateCap: 60, RateWindow: time.Minute, MaxUnits: 8},
			"qwen-image":     {Kind: JobKindImage, CreditsPerUnit: 1, RateCap: 30, RateWindow: time.Minute, MaxUnits: 8},
			"veo-video":      {Kind: JobKindVideo, CreditsPerUnit: 20, RateCap: 10, RateWindow: time.Minute, MaxUnits: 1},
			"avatar-lipsync": {Kind: JobKindAvatarLipsync, CreditsPerUnit: 10, RateCap: 10, RateWindow: time.Minute, MaxUnits: 1},
			"speech-tts":     {Kind: JobKindSpeech, CreditsPerUnit: 1, RateCap: 120, RateWindow: time.Minute, MaxUnits: 4},
		},
		Plans: map[Plan]PlanLimits{
			PlanFree: {DailyQuota: 4, UserConcurrency: 2},
			PlanPro:  {DailyQuota: 0, UserConcurrency: 4},
		},
		GlobalConcurrency: 64,
		Staleness: map[JobKind]time.Duration{
			JobKindImage:         5 * time.Minute,
			JobKindVideo:         30 * time.Minute,
			JobKindAvatarLipsync: 20 * time.Minute,
			JobKindSpeech:        2 * time.Minute,
		},
	}
}
