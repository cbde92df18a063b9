package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/kura/internal/engine"
	"github.com/lazypower/kura/internal/logging"
	"github.com/lazypower/kura/internal/memory"
	"github.com/lazypower/kura/internal/metrics"
	"github.com/lazypower/kura/internal/quota"
	"github.com/lazypower/kura/internal/store"
)

// Deps are the components the API exposes. Metrics and Logger are optional.
type Deps struct {
	DB      *store.DB
	Engine  *engine.Engine
	Memory  *memory.Store
	Quotas  *quota.Lookup
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server is the kura HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	memory  *memory.Store
	quotas  *quota.Lookup
	metrics *metrics.Metrics
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the given components.
func New(d Deps, version string) *Server {
	s := &Server{
		db:      d.DB,
		engine:  d.Engine,
		memory:  d.Memory,
		quotas:  d.Quotas,
		metrics: d.Metrics,
		log:     logging.OrNop(d.Logger),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Use(withOwner)

			r.Post("/classify", s.handleClassify)
			r.Post("/reclassify", s.handleBatchReclassify)
			r.Post("/consolidate", s.handleConsolidate)

			r.Get("/projects", s.handleListProjects)
			r.Post("/projects", s.handleCreateProject)
			r.Delete("/projects/{projectID}", s.handleDeleteProject)

			r.Post("/rooms", s.handleCreateRoom)
			r.Post("/rooms/{roomID}/messages", s.handleAddMessage)
			r.Post("/rooms/{roomID}/reclassify", s.handleReclassifyRoom)
			r.Put("/rooms/{roomID}/lock", s.handleLockRoom)
			r.Delete("/rooms/{roomID}/lock", s.handleUnlockRoom)

			r.Get("/memories", s.handleListMemories)
			r.Post("/memories", s.handleSaveMemory)
			r.Post("/memories/context", s.handleMemoryContext)
			r.Get("/memories/stats", s.handleMemoryStats)
			r.Post("/memories/compress", s.handleCompressMemories)
			r.Post("/memories/{memoryID}/promote", s.handlePromoteMemory)

			r.Put("/plan", s.handleSetPlan)
		})
	})

	s.router = r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps an operation error to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound), errors.Is(err, memory.ErrMemoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrInvalidTier), errors.Is(err, memory.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
