// Package api exposes the lead engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/enrich"
	"github.com/sells-group/lead-intel/internal/lifecycle"
	"github.com/sells-group/lead-intel/internal/queue"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/internal/webhook"
	"github.com/sells-group/lead-intel/internal/xref"
)

// Deps holds the components the handlers call.
type Deps struct {
	Store     store.Store
	Lifecycle *lifecycle.Manager
	Queue     *queue.Generator
	Enricher  *enrich.Enricher
	Matcher   *xref.Matcher
	Webhooks  *webhook.Service
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins []string
	PageSize    int
	// DailyCapacity caps generated queues; 0 means unbounded.
	DailyCapacity int
}

// Server routes HTTP requests to the lead engine.
type Server struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

// NewServer returns a Server.
func NewServer(deps Deps, opts Options) *Server {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	return &Server{
		deps: deps,
		opts: opts,
		log:  zap.L().With(zap.String("component", "api")),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Get("/stats", s.leadStats)
		r.Post("/enrich-batch", s.enrichBatch)
		r.Post("/cross-reference", s.crossReference)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getLead)
			r.Delete("/", s.deleteLead)
			r.Get("/matches", s.leadMatches)
			r.Post("/enrich", s.enrichLead)
			r.Post("/convert", s.convertLead)
			r.Patch("/status", s.updateLeadStatus)
		})
	})

	r.Route("/prospection", func(r chi.Router) {
		r.Get("/queue", s.listQueue)
		r.Post("/queue/generate", s.generateQueue)
		r.Patch("/queue/{id}", s.updateQueueItem)
		r.Post("/interactions", s.createInteraction)
	})

	r.Patch("/instruments/{id}", s.updateInstrument)
	r.Get("/jobs/{id}", s.getJob)

	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/", s.listWebhooks)
		r.Post("/", s.createWebhook)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getWebhook)
			r.Patch("/", s.updateWebhook)
			r.Delete("/", s.deleteWebhook)
			r.Get("/deliveries", s.listDeliveries)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.log.Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
