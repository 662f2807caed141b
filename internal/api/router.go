package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// OutboxStats reports the relay backlog. *database.Relay satisfies it.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// ProductCounter reports how many products are stored.
// *database.ProductRepository satisfies it.
type ProductCounter interface {
	Count(ctx context.Context) (int64, error)
}

type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Outbox and Products are nil when the database sink is disabled.
	Outbox   OutboxStats
	Products ProductCounter
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health(opts.Outbox, opts.Products))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Get("/{jobID}/products", h.GetJobProducts)
		})
		r.Get("/stats", h.GetStats)
	})

	return r
}

func (h *Handlers) health(outbox OutboxStats, products ProductCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"status": "ok"}
		status := http.StatusOK

		if products != nil {
			count, err := products.Count(r.Context())
			if err != nil {
				h.logger.Warn("failed to count stored products", "error", err)
				health["status"] = "error"
				health["message"] = "product store unavailable"
				status = http.StatusServiceUnavailable
			} else {
				health["stored_products"] = count
			}
		}

		if outbox != nil {
			pending, err := outbox.PendingCount(r.Context())
			if err != nil {
				h.logger.Warn("failed to read outbox backlog", "error", err)
			}
			deadLetter, err := outbox.DeadLetterCount(r.Context())
			if err != nil {
				h.logger.Warn("failed to read dead letter count", "error", err)
			}

			health["outbox"] = map[string]interface{}{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > 1000 && status == http.StatusOK {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if deadLetter > 100 {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		h.respondJSON(w, status, health)
	}
}
