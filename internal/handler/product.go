package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/livedrop/livedrop/internal/domain/product"
)

// productResponse is the catalog representation served to storefront clients.
type productResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	DropTime    string  `json:"dropTime,omitempty"`
	Dropped     bool    `json:"dropped"`
}

func toProductResponse(p product.Product, now time.Time) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Image:       p.Image,
		Price:       p.Price.InexactFloat64(),
		Stock:       p.Stock,
		Dropped:     p.Dropped(now),
	}
	if p.DropTime != nil {
		resp.DropTime = p.DropTime.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products", nil)
		return
	}

	now := time.Now()
	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p, now)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product "+id+" not found", nil)
			return
		}
		zctx.From(r.Context()).Error("get product", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get product", nil)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(*p, time.Now()))
}
