package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofs/internal/apierror"
	"github.com/marmos91/dittofs/internal/ucs"
)

// BoxHandler serves box lifecycle endpoints: create, view, lock, unlock.
type BoxHandler struct {
	ctrl *ucs.Controller
}

// NewBoxHandler builds a BoxHandler.
func NewBoxHandler(ctrl *ucs.Controller) *BoxHandler {
	return &BoxHandler{ctrl: ctrl}
}

type createBoxResponse struct {
	BoxID string `json:"box_id"`
}

// CreateBox handles POST /storages/{storage_alias}/boxes.
func (h *BoxHandler) CreateBox(w http.ResponseWriter, r *http.Request) {
	storageAlias := chi.URLParam(r, "storage_alias")
	boxID, err := h.ctrl.CreateBox(r.Context(), storageAlias)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusCreated, createBoxResponse{BoxID: boxID})
}

// GetBox handles GET /boxes/{box_id}.
func (h *BoxHandler) GetBox(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	box, err := h.ctrl.GetBox(r.Context(), boxID)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, box)
}

// LockBox handles POST /boxes/{box_id}/lock.
func (h *BoxHandler) LockBox(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	if err := h.ctrl.LockBox(r.Context(), boxID); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlockBox handles POST /boxes/{box_id}/unlock.
func (h *BoxHandler) UnlockBox(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	if err := h.ctrl.UnlockBox(r.Context(), boxID); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /boxes/{box_id}/files.
func (h *BoxHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	fileIDs, err := h.ctrl.ListFileIDsForBox(r.Context(), boxID)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, fileIDs)
}

// UploadHandler serves per-file multipart upload endpoints scoped under a box.
type UploadHandler struct {
	ctrl *ucs.Controller
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(ctrl *ucs.Controller) *UploadHandler {
	return &UploadHandler{ctrl: ctrl}
}

type initiateUploadRequest struct {
	Alias    string `json:"alias"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

type initiateUploadResponse struct {
	FileID string `json:"file_id"`
}

// InitiateUpload handles POST /boxes/{box_id}/files.
func (h *UploadHandler) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")

	var body initiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusUnprocessableEntity, "malformed request body: "+err.Error(), nil))
		return
	}

	fileID, err := h.ctrl.InitiateFileUpload(r.Context(), boxID, body.Alias, body.Checksum, body.Size)
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusCreated, initiateUploadResponse{FileID: fileID})
}

type partUploadURLResponse struct {
	URL string `json:"url"`
}

// GetPartUploadURL handles GET /boxes/{box_id}/files/{file_id}/parts/{part_no}.
func (h *UploadHandler) GetPartUploadURL(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	partNo, err := strconv.ParseInt(chi.URLParam(r, "part_no"), 10, 32)
	if err != nil {
		apierror.WriteError(w, apierror.NewClientError(apierror.ExcValidationError,
			http.StatusUnprocessableEntity, "part_no must be an integer", nil))
		return
	}

	url, err := h.ctrl.GetPartUploadURL(r.Context(), fileID, int32(partNo))
	if err != nil {
		apierror.WriteError(w, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, partUploadURLResponse{URL: url})
}

// CompleteUpload handles POST /boxes/{box_id}/files/{file_id}/complete.
func (h *UploadHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	fileID := chi.URLParam(r, "file_id")
	if err := h.ctrl.CompleteFileUpload(r.Context(), boxID, fileID); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveUpload handles DELETE /boxes/{box_id}/files/{file_id}.
func (h *UploadHandler) RemoveUpload(w http.ResponseWriter, r *http.Request) {
	boxID := chi.URLParam(r, "box_id")
	fileID := chi.URLParam(r, "file_id")
	if err := h.ctrl.RemoveFileUpload(r.Context(), boxID, fileID); err != nil {
		apierror.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
