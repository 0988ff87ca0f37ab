// Package handler exposes the storefront API over HTTP: catalog reads,
// checkout, the recent-purchase feed, and server time.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/livedrop/livedrop/internal/domain/checkout"
	"github.com/livedrop/livedrop/internal/domain/product"
	"github.com/livedrop/livedrop/internal/domain/purchase"
)

// CheckoutService is the reservation core consumed by the checkout endpoint.
type CheckoutService interface {
	Reserve(ctx context.Context, req checkout.Request) (*purchase.Record, error)
}

// FeedPublisher fans completed purchases out to live feed subscribers.
type FeedPublisher interface {
	Publish(ctx context.Context, entries []purchase.FeedEntry) error
}

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, key, orderID string) error
}

// Handler serves the storefront API, delegating business logic to the
// injected domain dependencies. Feed and idempotency collaborators are
// optional; when nil the corresponding behavior is skipped.
type Handler struct {
	products  product.Repository
	checkout  CheckoutService
	purchases purchase.Repository
	feed      FeedPublisher
	idem      IdempotencyStore
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	products product.Repository,
	checkoutSvc CheckoutService,
	purchases purchase.Repository,
	feed FeedPublisher,
	idem IdempotencyStore,
) *Handler {
	return &Handler{
		products:  products,
		checkout:  checkoutSvc,
		purchases: purchases,
		feed:      feed,
		idem:      idem,
	}
}

// Routes returns the API router. Mount it under the API prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Identity())

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/checkout", h.placeOrder)
	r.Get("/purchases/recent", h.recentPurchases)
	r.Get("/time", h.serverTime)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{
		"code":    status,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
