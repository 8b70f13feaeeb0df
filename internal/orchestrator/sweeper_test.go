package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"server/internal/domain"
	"server/internal/provider"
)

func TestSweeperSettlesStaleJobWithRefund(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 30, 0)
	f.asyncVideo("operations/op-1")

	resp, err := f.orch.Submit(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Not yet stale: the sweeper leaves it alone.
	n, err := f.orch.SweepStale(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("premature sweep: n=%d err=%v", n, err)
	}

	f.now = f.now.Add(f.catalog.StalenessFor(domain.JobKindVideo) + time.Minute)
	n, err = f.orch.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one settled job, got %d", n)
	}

	view, err := f.orch.Reconcile(context.Background(), resp.Job.JobID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if view.Status != string(domain.JobStatusFailed) {
		t.Fatalf("expected FAILED, got %s", view.Status)
	}
	if got := f.total(t, "u1"); got != 30 {
		t.Fatalf("expected full refund, balance %d", got)
	}
	user, _, _ := f.conc.Processing(context.Background(), "u1")
	if user != 0 {
		t.Fatalf("concurrency not released: %d", user)
	}
}

func TestStalenessVariesByKind(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 1000, 0)
	f.asyncVideo("operations/op-video")

	if _, err := f.orch.Submit(context.Background(), videoRequest("u1")); err != nil {
		t.Fatalf("submit video: %v", err)
	}

	// Ten minutes in: longer than the image threshold, well under video's.
	f.now = f.now.Add(10 * time.Minute)
	n, err := f.orch.SweepStale(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("video job swept too early: n=%d err=%v", n, err)
	}
}

func TestConcurrentSweepAndReconcileRefundOnce(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 30, 0)
	f.asyncVideo("operations/op-1")

	resp, err := f.orch.Submit(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.video.PollFunc = func(context.Context, string) (provider.Poll, error) {
		return provider.Poll{State: provider.PollFailed, Reason: "upstream gave up"}, nil
	}
	f.now = f.now.Add(f.catalog.StalenessFor(domain.JobKindVideo) + time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.orch.SweepStale(context.Background())
			} else {
				_, _ = f.orch.Reconcile(context.Background(), resp.Job.JobID)
			}
		}(i)
	}
	wg.Wait()

	if f.ledger.refunds != 1 {
		t.Fatalf("expected exactly one refund, got %d", f.ledger.refunds)
	}
	if got := f.total(t, "u1"); got != 30 {
		t.Fatalf("expected balance restored exactly once, got %d", got)
	}
	user, global, _ := f.conc.Processing(context.Background(), "u1")
	if user != 0 || global != 0 {
		t.Fatalf("counters must be released exactly once: user=%d global=%d", user, global)
	}
}

func TestOwnerSweepUnblocksAdmission(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 1000, 0)

	// Fill the pro plan's four slots with abandoned video jobs.
	for i := 0; i < 4; i++ {
		f.asyncVideo("operations/op-stale")
		if _, err := f.orch.Submit(context.Background(), videoRequest("u1")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	f.now = f.now.Add(f.catalog.StalenessFor(domain.JobKindVideo) + time.Minute)

	// The next submit sweeps the caller's own stale jobs before admission
	// instead of rejecting on concurrency.
	f.asyncVideo("operations/op-fresh")
	resp, err := f.orch.Submit(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("submit after staleness: %v", err)
	}
	if resp.Job.Status != string(domain.JobStatusProcessing) {
		t.Fatalf("expected PROCESSING, got %s", resp.Job.Status)
	}
	// Four refunds for the four abandoned jobs, and one active slot.
	if f.ledger.refunds != 4 {
		t.Fatalf("expected 4 refunds, got %d", f.ledger.refunds)
	}
	user, _, _ := f.conc.Processing(context.Background(), "u1")
	if user != 1 {
		t.Fatalf("expected a single active slot, got %d", user)
	}
}
