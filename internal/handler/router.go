package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/giannisgkountras/juice-shop/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса juice-shop.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics)

	r.Route("/rest", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/image-captcha", h.ImageCaptcha)
			r.Post("/user/data-export", h.DataExport)

			r.Post("/basket/{id}/items", h.AddBasketItem)
			r.Post("/basket/{id}/checkout", h.Checkout)

			r.Put("/products/{id}/reviews", h.CreateReview)
			r.Post("/products/reviews/{id}/like", h.LikeReview)
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
