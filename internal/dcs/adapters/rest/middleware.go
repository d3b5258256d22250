// Package rest is the HTTP edge for the DRS API: object access, envelope
// retrieval and the health check. Every DRS endpoint is bound to a
// work-order token whose file_id claim must equal the path id.
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

const claimsContextKey contextKey = "work_order_claims"

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// workOrderAuth validates a download work-order token and stashes its
// claims in the request context. It does not check the path-bound
// file_id itself; requireBoundFile does that once chi has parsed
// {object_id}, so the 403 happens before any DAO read either way.
func workOrderAuth(keys *authn.KeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcUnauthorized,
					http.StatusForbidden, "missing bearer token", nil))
				return
			}

			claims, err := authn.ParseWorkOrderToken(tokenString, keys)
			if err != nil || !claims.IsDownload() {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcForbidden,
					http.StatusForbidden, "invalid, expired or wrong-type work-order token", nil))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireBoundFile rejects a request whose work-order token's file_id
// claim does not match the {object_id} path segment, before any core
// method (and therefore any DAO access) runs.
func requireBoundFile() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsContextKey).(*authn.WorkOrderClaims)
			objectID := chi.URLParam(r, "object_id")
			if claims == nil || !claims.BoundTo(objectID) {
				apierror.WriteError(w, apierror.WrongFileAuthorization(claimValue(claims), objectID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimValue(claims *authn.WorkOrderClaims) string {
	if claims == nil {
		return ""
	}
	return claims.FileID
}
