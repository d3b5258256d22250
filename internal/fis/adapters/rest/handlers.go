package rest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/fis"
)

// EncryptedPayload is the wire body of every ingest endpoint: a single
// anonymously-sealed envelope, base64-encoded over the wire the way JSON
// transports arbitrary binary.
type EncryptedPayload struct {
	Payload []byte `json:"payload"`
}

// IngestHandler serves POST /legacy/ingest, /federated/ingest_metadata and
// /federated/ingest_secret.
type IngestHandler struct {
	ingest *fis.IngestController
}

// NewIngestHandler builds an IngestHandler.
func NewIngestHandler(ingest *fis.IngestController) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

func decodePayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var body EncryptedPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusUnprocessableEntity, "malformed request body: "+err.Error(), nil))
		return nil, false
	}
	return body.Payload, true
}

// IngestLegacy handles POST /legacy/ingest.
func (h *IngestHandler) IngestLegacy(w http.ResponseWriter, r *http.Request) {
	sealed, ok := decodePayload(w, r)
	if !ok {
		return
	}
	if err := h.ingest.IngestLegacy(r.Context(), sealed); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// IngestFederatedMetadata handles POST /federated/ingest_metadata.
func (h *IngestHandler) IngestFederatedMetadata(w http.ResponseWriter, r *http.Request) {
	sealed, ok := decodePayload(w, r)
	if !ok {
		return
	}
	if err := h.ingest.IngestFederatedMetadata(r.Context(), sealed); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// federatedSecretResponse is the wire body of the ingest_secret response.
type federatedSecretResponse struct {
	SecretID string `json:"secret_id"`
}

// IngestFederatedSecret handles POST /federated/ingest_secret.
func (h *IngestHandler) IngestFederatedSecret(w http.ResponseWriter, r *http.Request) {
	sealed, ok := decodePayload(w, r)
	if !ok {
		return
	}
	secretID, err := h.ingest.IngestFederatedSecret(r.Context(), sealed)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, federatedSecretResponse{SecretID: secretID})
}

// InterrogationHandler serves the per-hub upload-listing, can-remove and
// interrogation-report endpoints, each bound to the {storage_alias} path
// segment by requireBoundHub.
type InterrogationHandler struct {
	interrogation *fis.InterrogationHandler
}

// NewInterrogationHandler builds an InterrogationHandler.
func NewInterrogationHandler(interrogation *fis.InterrogationHandler) *InterrogationHandler {
	return &InterrogationHandler{interrogation: interrogation}
}

// ListUploads handles GET /storages/{storage_alias}/uploads.
func (h *InterrogationHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	dataHub := chi.URLParam(r, "storage_alias")
	files, err := h.interrogation.GetFilesNotYetInterrogated(r.Context(), dataHub)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, files)
}

// CanRemove handles POST /storages/{storage_alias}/uploads/can_remove: a
// list of file ids in, the removable subset out.
func (h *InterrogationHandler) CanRemove(w http.ResponseWriter, r *http.Request) {
	var fileIDs []string
	if err := json.NewDecoder(r.Body).Decode(&fileIDs); err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusUnprocessableEntity, "malformed request body: "+err.Error(), nil))
		return
	}

	removable := make([]string, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		ok, err := h.interrogation.CheckIfRemovable(r.Context(), fileID)
		if err != nil {
			apierror.WriteError(w, err)
			return
		}
		if ok {
			removable = append(removable, fileID)
		}
	}
	apierror.WriteJSON(w, http.StatusOK, removable)
}

// PostReport handles POST /storages/{storage_alias}/interrogation-reports.
func (h *InterrogationHandler) PostReport(w http.ResponseWriter, r *http.Request) {
	var report fis.InterrogationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusUnprocessableEntity, "malformed request body: "+err.Error(), nil))
		return
	}
	if err := validateReport(report); err != nil {
		apierror.WriteError(w, err)
		return
	}

	if err := h.interrogation.HandleInterrogationReport(r.Context(), report); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// validateReport enforces the two shape invariants a JSON schema would
// otherwise carry: a passing report must carry a secret and both checksum
// lists, a failing one must carry a reason.
func validateReport(report fis.InterrogationReport) error {
	if report.Passed {
		if len(report.Secret) == 0 || len(report.EncryptedPartsMD5) == 0 || len(report.EncryptedPartsSHA256) == 0 {
			return apierror.NewClientError(apierror.ExcValidationError, http.StatusUnprocessableEntity,
				"a passing interrogation report must carry a secret and both checksum lists", nil)
		}
	} else if report.Reason == "" {
		return apierror.NewClientError(apierror.ExcValidationError, http.StatusUnprocessableEntity,
			"a failing interrogation report must carry a reason", nil)
	}
	return nil
}
