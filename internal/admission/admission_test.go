package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"server/internal/domain"
)

func TestMemoryRateLimiterCap(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRateLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "veo-video", 3, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should be allowed: %+v err %v", i, d, err)
		}
		if err := l.Record(ctx, "veo-video", time.Minute); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, err := l.Check(ctx, "veo-video", 3, time.Minute)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("cap reached, expected rejection")
	}
	if d.ResetIn <= 0 || d.ResetIn > time.Minute {
		t.Fatalf("reset bound out of range: %s", d.ResetIn)
	}

	// Another key is unaffected.
	d, _ = l.Check(ctx, "gemini-image", 3, time.Minute)
	if !d.Allowed {
		t.Fatalf("independent key should be allowed")
	}

	// Window rollover readmits.
	now = now.Add(time.Minute + time.Second)
	d, _ = l.Check(ctx, "veo-video", 3, time.Minute)
	if !d.Allowed {
		t.Fatalf("expected admission after window reset")
	}
}

func TestRedisRateLimiterCap(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	ctx := context.Background()
	l := NewRedisRateLimiter(client, "")
	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "veo-video", 2, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should be allowed: %+v err %v", i, d, err)
		}
		if err := l.Record(ctx, "veo-video", time.Minute); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	d, err := l.Check(ctx, "veo-video", 2, time.Minute)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allowed {
		t.Fatalf("cap reached, expected rejection")
	}

	srv.FastForward(61 * time.Second)
	d, err = l.Check(ctx, "veo-video", 2, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected admission after expiry: %+v err %v", d, err)
	}
}

func controllers(t *testing.T, globalLimit int) map[string]ConcurrencyController {
	t.Helper()
	out := map[string]ConcurrencyController{"memory": NewMemoryConcurrency(globalLimit)}
	srv, err := miniredis.Run()
	if err != nil {
		t.Logf("miniredis unavailable: %v", err)
		return out
	}
	t.Cleanup(srv.Close)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	out["redis"] = NewRedisConcurrency(client, "", globalLimit)
	return out
}

func TestConcurrencyUserLimit(t *testing.T) {
	for name, c := range controllers(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				if err := c.Acquire(ctx, "u1", 4); err != nil {
					t.Fatalf("acquire %d: %v", i, err)
				}
			}
			err := c.Acquire(ctx, "u1", 4)
			var uce *domain.UserConcurrencyExceededError
			if !errors.As(err, &uce) {
				t.Fatalf("expected user concurrency error, got %v", err)
			}
			if uce.Processing != 4 || uce.Limit != 4 {
				t.Fatalf("unexpected detail: %+v", uce)
			}

			// Other users still admitted under the global cap.
			if err := c.Acquire(ctx, "u2", 4); err != nil {
				t.Fatalf("acquire u2: %v", err)
			}
		})
	}
}

func TestConcurrencyGlobalLimit(t *testing.T) {
	for name, c := range controllers(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, user := range []string{"a", "b", "c"} {
				if err := c.Acquire(ctx, user, 0); err != nil {
					t.Fatalf("acquire %d: %v", i, err)
				}
			}
			err := c.Acquire(ctx, "d", 0)
			var gce *domain.GlobalConcurrencyExceededError
			if !errors.As(err, &gce) {
				t.Fatalf("expected global concurrency error, got %v", err)
			}
			if err := c.Release(ctx, "a"); err != nil {
				t.Fatalf("release: %v", err)
			}
			if err := c.Acquire(ctx, "d", 0); err != nil {
				t.Fatalf("acquire after release: %v", err)
			}
		})
	}
}

func TestConcurrencyBoundUnderRace(t *testing.T) {
	for name, c := range controllers(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			var mu sync.Mutex
			admitted := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := c.Acquire(ctx, "u1", 0); err == nil {
						mu.Lock()
						admitted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if admitted != 5 {
				t.Fatalf("global cap 5, admitted %d", admitted)
			}
			_, global, err := c.Processing(ctx, "u1")
			if err != nil || global != 5 {
				t.Fatalf("global = %d, err %v", global, err)
			}
		})
	}
}
