package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stockledger/stockledger-backend/pkg/httputil"
	"github.com/stockledger/stockledger-backend/pkg/logger"
)

// NewRouter assembles the HTTP surface. Identity headers are resolved once at
// this edge; everything below works with explicit tenant and actor values.
func NewRouter(
	log *logger.Logger,
	health http.HandlerFunc,
	movements *MovementHandler,
	positions *PositionHandler,
	allocations *AllocationHandler,
	batches *BatchHandler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-User-ID", "X-User-Name", "X-User-Email"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.IdentityMiddleware)

		r.Post("/movements", movements.Create)
		r.Get("/positions", positions.List)
		r.Post("/allocations/plan", allocations.Plan)

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batches.List)
			r.Post("/receipt", batches.Receive)
			r.Get("/expiring", batches.ListExpiring)

			r.Route("/{batchID}", func(r chi.Router) {
				r.Get("/", batches.Get)
				r.Post("/status", batches.UpdateStatus)
				r.Get("/movements", movements.ListByBatch)
			})
		})
	})

	return r
}
