// Package rest is the HTTP edge for box and upload management: every
// endpoint is bound to a UOS (upload-operation-scoped) token carrying the
// one scope and resource id it authorizes, minted by the work-package
// service the caller authenticated against.
package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/authn"
)

type contextKey string

const claimsContextKey contextKey = "resource_claims"

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// resourceAuth validates a UOS token against keys and stashes its claims
// in the request context. It does not check scope or resource id itself;
// requireScope does that once chi has parsed the path, so an
// out-of-scope or wrong-resource token fails the same way a missing one
// does, before any core method runs.
func resourceAuth(keys *authn.KeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcUnauthorized,
					http.StatusForbidden, "missing bearer token", nil))
				return
			}

			claims, err := authn.ParseResourceToken(tokenString, keys)
			if err != nil {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcForbidden,
					http.StatusForbidden, "invalid or expired resource token", nil))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireScope rejects a request whose token does not authorize scope
// against the named path parameter's value.
func requireScope(scope authn.ResourceScope, pathParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsContextKey).(*authn.ResourceClaims)
			resourceID := chi.URLParam(r, pathParam)
			if claims == nil || !claims.BoundTo(scope, resourceID) {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcForbidden,
					http.StatusForbidden, "token not valid for this operation", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
