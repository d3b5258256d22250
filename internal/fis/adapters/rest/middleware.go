// Package rest is the HTTP edge for ingest and interrogation: decrypted
// envelope submission, the not-yet-interrogated and can-remove listings a
// data hub polls, and the interrogation-report callback it posts back.
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

const claimsContextKey contextKey = "ingest_claims"

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// ingestAuth validates a data hub's ingest token (JWT-per-hub, per the
// data_hub_auth_keys model) against keys and stashes its claims in the
// request context. Every FIS route requires one: ingest endpoints accept
// any hub's token, while the upload-listing and interrogation-report
// endpoints additionally bind it to the {storage_alias} path segment.
func ingestAuth(keys *authn.KeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcUnauthorized,
					http.StatusForbidden, "missing bearer token", nil))
				return
			}

			claims, err := authn.ParseIngestToken(tokenString, keys)
			if err != nil {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcForbidden,
					http.StatusForbidden, "invalid or expired ingest token", nil))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireBoundHub blocks a request whose ingest token was not issued for
// the {storage_alias} path segment it is being used against.
func requireBoundHub() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsContextKey).(*authn.IngestClaims)
			storageAlias := chi.URLParam(r, "storage_alias")
			if claims == nil || !claims.BoundTo(storageAlias) {
				apierror.WriteError(w, apierror.NewClientError(apierror.ExcForbidden,
					http.StatusForbidden, "token not valid for this data hub", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
