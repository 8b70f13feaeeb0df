// Package moderation wraps the external content safety oracle. The
// orchestrator consults it before any ledger mutation; a blocked result
// rejects the request with no side effects.
package moderation

import (
	"context"
	"strings"
)

// Decision is the oracle's answer for one prompt.
type Decision struct {
	Blocked bool
	Reason  string
}

// Checker is implemented by the external moderation service client.
type Checker interface {
	Check(ctx context.Context, content string) (Decision, error)
}

// AllowAll passes everything. Used in tests and deployments that moderate
// upstream.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string) (Decision, error) {
	return Decision{}, nil
}

// Blocklist rejects prompts containing any configured term. It stands in
// for the real oracle in local environments.
type Blocklist struct {
	Terms []string
}

func (b Blocklist) Check(_ context.Context, content string) (Decision, error) {
	lower := strings.ToLower(content)
	for _, term := range b.Terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return Decision{Blocked: true, Reason: "prompt contains blocked term"}, nil
		}
	}
	return Decision{}, nil
}
