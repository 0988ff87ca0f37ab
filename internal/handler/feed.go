package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

type feedEntryResponse struct {
	OrderID   string  `json:"orderId"`
	Title     string  `json:"title"`
	Amount    float64 `json:"amount"`
	Purchaser string  `json:"user"`
	Timestamp string  `json:"timestamp"`
}

// recentPurchases serves the public purchase feed, newest first.
func (h *Handler) recentPurchases(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxFeedLimit)
	}

	entries, err := h.purchases.Recent(r.Context(), limit)
	if err != nil {
		zctx.From(r.Context()).Error("recent purchases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list purchases", nil)
		return
	}

	resp := make([]feedEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = feedEntryResponse{
			OrderID:   e.OrderID,
			Title:     e.Title,
			Amount:    e.Amount.InexactFloat64(),
			Purchaser: e.Purchaser,
			Timestamp: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// serverTime returns the server clock. Drop countdowns use it instead of the
// client clock so a skewed device cannot unlock a drop early.
func (h *Handler) serverTime(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"now":        now.Format(time.RFC3339Nano),
		"unixMillis": now.UnixMilli(),
	})
}
