package hooks

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/discode-ai/discode/internal/events"
	"github.com/discode-ai/discode/internal/state"
)

// maxBodySize caps hook payloads. Anything larger answers 413.
const maxBodySize = 256 << 10

// Dispatcher receives decoded events. The server answers 200 before the
// event's side-effects run.
type Dispatcher interface {
	Dispatch(ev events.Event)
}

// Server is the hook ingestion HTTP server. Loopback by default; every
// route except /health requires the bearer token.
type Server struct {
	addr       string
	token      string
	store      *state.Store
	dispatcher Dispatcher
	limiter    *sourceLimiter
	httpServer *http.Server
}

// NewServer builds the server. Start actually listens.
func NewServer(host string, port int, token string, store *state.Store, d Dispatcher) *Server {
	s := &Server{
		addr:       fmt.Sprintf("%s:%d", host, port),
		token:      token,
		store:      store,
		dispatcher: d,
		limiter:    newSourceLimiter(),
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("hook server listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// PruneRateBuckets evicts idle per-source buckets. Called by the
// maintenance sweeper.
func (s *Server) PruneRateBuckets(maxIdle time.Duration) int {
	return s.limiter.prune(maxIdle)
}

// handler wires the three routes by hand: the exact 404/405 split matters
// to hook scripts, and http.ServeMux conflates them.
func (s *Server) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("hook handler panic", "path", r.URL.Path,
					"panic", rec, "stack", string(debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()

		switch r.URL.Path {
		case "/health":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "ok")
		case "/opencode-event":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if !s.authorized(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			s.handleEvent(w, r)
		case "/reload":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if !s.authorized(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := s.store.Reload(); err != nil {
				slog.Error("state reload failed", "error", err)
				http.Error(w, "reload failed", http.StatusInternalServerError)
				return
			}
			slog.Info("state reloaded")
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
}

func (s *Server) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	source := remoteHost(r)
	if !s.limiter.allow(source) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	ev, err := events.Decode(body)
	if err != nil {
		slog.Debug("rejecting hook payload", "source", source, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.store.Project(ev.Meta().ProjectName); !ok {
		http.Error(w, "unknown project", http.StatusBadRequest)
		return
	}

	// Accept before side-effects: the hook script must not block on chat.
	s.dispatcher.Dispatch(ev)
	w.WriteHeader(http.StatusOK)
}

// remoteHost is the rate-limit bucket key: the peer IP without the port.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
