package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"relay/internal/blob"
)

// MediaHandler serves uploaded blob bytes under mediaurl.PathPrefix,
// redirecting to the backend's own URL when one exists (S3) and proxying
// bytes directly otherwise (local disk).
type MediaHandler struct {
	blobs *blob.Service
}

func NewMediaHandler(blobs *blob.Service) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// blobKindsByLikelihood is tried in order since a blob's kind isn't encoded
// in its ID; chat attachments dominate traffic, so they're checked first.
var blobKindsByLikelihood = []blob.Kind{blob.KindChatAttachment, blob.KindAvatar, blob.KindServerImage}

func (h *MediaHandler) resolvePath(blobID string, preview bool) (string, bool) {
	if preview {
		relPath := blob.ChatAttachmentPreviewRelativePath(blobID)
		if rc, err := h.blobs.Open(relPath); err == nil {
			_ = rc.Close()
			return relPath, true
		}
		return "", false
	}

	for _, kind := range blobKindsByLikelihood {
		relPath := blob.RelativePath(kind, blobID)
		if rc, err := h.blobs.Open(relPath); err == nil {
			_ = rc.Close()
			return relPath, true
		}
	}
	return "", false
}

func (h *MediaHandler) serve(w http.ResponseWriter, r *http.Request, preview bool) {
	blobID := chi.URLParam(r, "id")
	relPath, ok := h.resolvePath(blobID, preview)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}

	if url := h.blobs.URL(relPath); url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, err := h.blobs.Open(relPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = io.Copy(w, rc)
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

func (h *MediaHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}
