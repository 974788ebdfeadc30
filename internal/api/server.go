// Package api provides the HTTP server and handlers.
package api

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fileroot/internal/events"
	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/internal/metrics"
	"github.com/fruitsalade/fileroot/internal/ratelimiter"
	"github.com/fruitsalade/fileroot/internal/storage"
	"github.com/fruitsalade/fileroot/pkg/protocol"
)

// Options configures the optional parts of a Server.
type Options struct {
	// Root is the absolute data directory. It is stripped from error
	// messages sent to clients.
	Root string

	// AssetsDir, when set, is served at / for paths no API route claims.
	AssetsDir string

	// Broadcaster receives mutation events. Nil disables /api/v1/events.
	Broadcaster *events.Broadcaster

	// RateLimiter, when set, limits every /api/v1 request.
	RateLimiter *ratelimiter.RateLimiter
}

// Server is the HTTP server.
type Server struct {
	backend     storage.Backend
	root        string
	assetsDir   string
	broadcaster *events.Broadcaster
	limiter     *ratelimiter.RateLimiter
}

// NewServer creates a new server.
func NewServer(backend storage.Backend, opts Options) *Server {
	return &Server{
		backend:     backend,
		root:        opts.Root,
		assetsDir:   opts.AssetsDir,
		broadcaster: opts.Broadcaster,
		limiter:     opts.RateLimiter,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.limit(h))
	}
	api("GET /api/v1/ls", s.handleList)
	api("PUT /api/v1/mkdir", s.handleMkdir)
	api("DELETE /api/v1/rmdir", s.handleRmdir)
	api("PUT /api/v1/mv", s.handleMove)
	api("PUT /api/v1/cp", s.handleCopy)
	api("GET /api/v1/download", s.handleDownload)
	api("PUT /api/v1/upload", s.handleUpload)
	api("DELETE /api/v1/rm", s.handleRemoveFile)

	if s.broadcaster != nil {
		api("GET /api/v1/events", s.handleEvents)
	}

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusNotFound, false, "Unknown endpoint")
	})

	if s.assetsDir != "" {
		mux.Handle("/", s.assets())
	}

	// Logging is outermost: it replaces the request context, and metrics has
	// to see the same request the mux fills in the route pattern on.
	return logging.Middleware(metrics.Middleware(mux))
}

// assets serves static files for GET and HEAD.
func (s *Server) assets() http.Handler {
	files := http.FileServer(http.Dir(s.assetsDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// limit rejects requests beyond the configured rate with 429.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.RecordRateLimitHit()
			if retry := s.limiter.RetryAfter(); retry > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
			}
			writeResponse(w, http.StatusTooManyRequests, false, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	usage, err := s.backend.Usage(r.Context())
	if err != nil {
		logging.WithContext(r.Context()).Warn("disk usage unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, protocol.HealthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:       "ok",
		DataDirTotal: usage.Total,
		DataDirFree:  usage.Free,
	})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResponse(w, http.StatusInternalServerError, false, "Streaming not supported")
		return
	}

	// Subscribe before the headers go out so a client that has seen the
	// response start cannot miss an event.
	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// publish sends a mutation event if a broadcaster is configured. Paths are
// normalized to their slash-rooted form.
func (s *Server) publish(eventType, to, from string, size int64) {
	if s.broadcaster == nil {
		return
	}
	e := events.Event{Type: eventType, Path: cleanPath(to), Size: size}
	if from != "" {
		e.From = cleanPath(from)
	}
	s.broadcaster.Publish(e)
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}
