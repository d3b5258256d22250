package rest

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/authn"
	"github.com/marmos91/dittofs/internal/dcs"
)

// ObjectHandler serves the GA4GH DRS object and envelope endpoints.
type ObjectHandler struct {
	registry *dcs.RegistryController
}

// NewObjectHandler builds an ObjectHandler.
func NewObjectHandler(registry *dcs.RegistryController) *ObjectHandler {
	return &ObjectHandler{registry: registry}
}

// GetObject handles GET /ga4gh/drs/v1/objects/{object_id}. A successful
// fetch sets Cache-Control to the registry's presign-minus-buffer max
// age; a RetryAccessLaterError is written by apierror.WriteError with its
// own no-store/Retry-After headers, so only the happy path sets caching
// here.
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "object_id")

	object, err := h.registry.AccessDrsObject(r.Context(), objectID)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, private", int(h.registry.CacheMaxAge().Seconds())))
	apierror.WriteJSON(w, http.StatusOK, object)
}

type envelopeResponse struct {
	Content string `json:"content"`
}

// GetEnvelope handles GET /ga4gh/drs/v1/objects/{object_id}/envelopes. The
// recipient public key comes from the work-order token's own
// user_public_crypt4gh_key claim, not a request parameter: the token is
// minted per-download, so the recipient is whoever it was issued to.
func (h *ObjectHandler) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "object_id")
	claims, _ := r.Context().Value(claimsContextKey).(*authn.WorkOrderClaims)

	recipientKey, err := base64.StdEncoding.DecodeString(claims.UserPublicCrypt4GHKey)
	if err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusBadRequest, "work-order token carries a malformed recipient public key", nil))
		return
	}

	envelope, err := h.registry.ServeEnvelope(r.Context(), objectID, recipientKey)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}

	apierror.WriteJSON(w, http.StatusOK, envelopeResponse{
		Content: base64.StdEncoding.EncodeToString(envelope),
	})
}
