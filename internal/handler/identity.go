package handler

import (
	"context"
	"net/http"

	"github.com/livedrop/livedrop/internal/domain/checkout"
)

// authenticatedUserHeader is set by the external auth layer in front of the
// API. The core never talks to an identity provider; it only receives the
// resolved label.
const authenticatedUserHeader = "X-Authenticated-User"

type identityKey struct{}

// Identity returns a middleware that resolves the purchaser identity from the
// request and stores it in the context. Requests without an authenticated
// user are treated as guests.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who := r.Header.Get(authenticatedUserHeader)
			if who == "" {
				who = checkout.GuestPurchaser
			}
			ctx := context.WithValue(r.Context(), identityKey{}, who)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the purchaser identity resolved by the Identity
// middleware, or the guest label when none is present.
func IdentityFromContext(ctx context.Context) string {
	if who, ok := ctx.Value(identityKey{}).(string); ok && who != "" {
		return who
	}
	return checkout.GuestPurchaser
}
