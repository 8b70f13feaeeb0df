package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type ipWindow struct {
	count int
	until time.Time
}

// RateLimit caps requests per client IP in a fixed window. It protects the
// whole surface from abusive callers; the per-model generation rate limits
// are enforced separately at admission. Rejections carry Retry-After and a
// JSON body shaped like the API's other rejections.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	windows := make(map[string]*ipWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			mu.Lock()
			now := time.Now()
			if len(windows) > 4096 {
				for k, win := range windows {
					if now.After(win.until) {
						delete(windows, k)
					}
				}
			}
			win, ok := windows[ip]
			if !ok || now.After(win.until) {
				win = &ipWindow{until: now.Add(per)}
				windows[ip] = win
			}
			if win.count >= limit {
				retryAfter := int(win.until.Sub(now).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"too_many_requests","retry_after_s":%d}`, retryAfter)
				return
			}
			win.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first valid X-Forwarded-For hop, then the remote
// address.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
