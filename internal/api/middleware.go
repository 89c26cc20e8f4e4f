package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"
)

// TokenHeader carries the per-session token generated at server start.
const TokenHeader = "X-Blockscope-Token"

// CORS wraps an http.Handler with CORS headers for cross-origin requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TokenAuth returns middleware that validates the session token on every
// route except /healthz. WebSocket clients, which cannot set headers from a
// browser, may pass it as the token query parameter instead.
// If token is empty, the middleware is a no-op (all requests pass through).
func TokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(TokenHeader)
			if got == "" && r.URL.Path == "/api/ws" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusForbidden, "invalid or missing session token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// trackActivity records the time of every request for the idle watcher.
func (s *Server) trackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.touch()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor reports how long the server has gone without a request.
func (s *Server) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// WatchIdle requests shutdown once the server has been idle for timeout,
// checking every interval, while no batch run is active. It returns when ctx
// is done or shutdown was requested.
func (s *Server) WatchIdle(ctx context.Context, timeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			if s.runActive() {
				s.touch()
				continue
			}
			if idle := s.IdleFor(); idle >= timeout {
				s.log.Info("idle timeout reached", "idle", idle.Round(time.Second))
				s.requestShutdown("idle timeout")
				return
			}
		}
	}
}
