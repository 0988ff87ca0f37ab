package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/livedrop/livedrop/internal/domain/checkout"
	"github.com/livedrop/livedrop/internal/domain/purchase"
)

const idempotencyKeyHeader = "Idempotency-Key"

type checkoutRequest struct {
	Items []checkoutItem `json:"items"`
}

type checkoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	Items     []orderItemResponse `json:"items"`
	Total     float64             `json:"total"`
	Purchaser string              `json:"user"`
	Status    string              `json:"status"`
	CreatedAt string              `json:"createdAt"`
}

func toOrderResponse(rec *purchase.Record) orderResponse {
	items := make([]orderItemResponse, len(rec.Items))
	for i, it := range rec.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price.InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}
	return orderResponse{
		ID:        rec.ID,
		Items:     items,
		Total:     rec.Total.InexactFloat64(),
		Purchaser: rec.Purchaser,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// placeOrder reserves stock for the cart and records the purchase.
//
// A failed reservation never reports success. The record-persistence partial
// failure is reported as "uncertain" rather than success or plain failure:
// stock is already decremented and the order needs manual reconciliation.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	// Replay: a retried request with a known Idempotency-Key returns the
	// original order id without touching stock again.
	idemKey := r.Header.Get(idempotencyKeyHeader)
	if idemKey != "" && h.idem != nil {
		if orderID, ok, err := h.idem.Lookup(r.Context(), idemKey); err != nil {
			lg.Warn("idempotency lookup failed", zap.Error(err))
		} else if ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"id":     orderID,
				"replay": true,
			})
			return
		}
	}

	items := make([]checkout.Line, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkout.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	rec, err := h.checkout.Reserve(r.Context(), checkout.Request{
		Items:     items,
		Purchaser: IdentityFromContext(r.Context()),
	})
	if err != nil {
		h.writeReserveError(w, r, err, idemKey)
		return
	}

	if idemKey != "" && h.idem != nil {
		if err := h.idem.Remember(r.Context(), idemKey, rec.ID); err != nil {
			lg.Warn("idempotency remember failed", zap.Error(err))
		}
	}
	h.publishFeed(r, rec)

	writeJSON(w, http.StatusCreated, toOrderResponse(rec))
}

func (h *Handler) writeReserveError(w http.ResponseWriter, r *http.Request, err error, idemKey string) {
	lg := zctx.From(r.Context())

	var (
		iqErr  *checkout.InvalidQuantityError
		pnfErr *checkout.ProductNotFoundError
		isErr  *checkout.InsufficientStockError
		rpErr  *checkout.RecordPersistenceError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error(), nil)

	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error(), map[string]any{
			"productId": iqErr.ProductID,
		})

	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error(), map[string]any{
			"productId": pnfErr.ProductID,
		})

	case errors.As(err, &isErr):
		writeError(w, http.StatusConflict, isErr.Error(), map[string]any{
			"productId": isErr.ProductID,
			"requested": isErr.Requested,
			"available": isErr.Available,
		})

	case errors.As(err, &rpErr):
		// Stock is durably decremented; remembering the idempotency key here
		// keeps a client retry from double-decrementing.
		lg.Error("purchase record not persisted", zap.String("order_id", rpErr.Record.ID), zap.Error(err))
		if idemKey != "" && h.idem != nil {
			if rerr := h.idem.Remember(r.Context(), idemKey, rpErr.Record.ID); rerr != nil {
				lg.Warn("idempotency remember failed", zap.Error(rerr))
			}
		}
		writeError(w, http.StatusInternalServerError,
			"purchase state uncertain, contact support", map[string]any{
				"status":  "uncertain",
				"orderId": rpErr.Record.ID,
			})

	case errors.Is(err, checkout.ErrConflict):
		writeError(w, http.StatusConflict, "checkout contention, try again", nil)

	default:
		lg.Error("checkout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "checkout failed", nil)
	}
}

func (h *Handler) publishFeed(r *http.Request, rec *purchase.Record) {
	if h.feed == nil {
		return
	}
	if err := h.feed.Publish(r.Context(), purchase.FeedEntries(rec)); err != nil {
		// Feed delivery is best-effort; the purchase itself is committed.
		zctx.From(r.Context()).Warn("publish purchase feed", zap.Error(err))
	}
}
