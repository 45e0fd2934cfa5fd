package api

import (
	"bytes"
	"errors"
	"net/http"

	"relay/internal/blob"
	"relay/internal/mediaurl"
)

// UploadHandler accepts multipart file uploads (chat attachments and
// avatars), validates/stores them through blob.Service, and hands back the
// URL shape SendMessage's attachment linking and profile updates expect.
type UploadHandler struct {
	blobs          *blob.Service
	baseURL        string
	previewMaxEdge int
}

func NewUploadHandler(blobs *blob.Service, baseURL string) *UploadHandler {
	return &UploadHandler{blobs: blobs, baseURL: baseURL, previewMaxEdge: blob.DefaultPreviewMaxEdge}
}

type uploadResponse struct {
	BlobID       string  `json:"blobId"`
	URL          string  `json:"url"`
	PreviewURL   *string `json:"previewUrl,omitempty"`
	MimeType     string  `json:"mimeType"`
	OriginalName string  `json:"originalName"`
	SizeBytes    int64   `json:"sizeBytes"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
}

func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request, kind blob.Kind) {
	if _, ok := IdentityFromContext(r); !ok {
		unauthorized(w, "authentication required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	stored, err := h.blobs.Save(r.Context(), kind, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "invalid", "file too large")
		case errors.Is(err, blob.ErrDisallowedType), errors.Is(err, blob.ErrExecutableFile), errors.Is(err, blob.ErrInvalidKind):
			badRequest(w, "disallowed file type")
		default:
			internalServerError(w)
		}
		return
	}

	resp := uploadResponse{
		BlobID:       stored.ID,
		URL:          mediaurl.Blob(h.baseURL, stored.ID),
		MimeType:     stored.MimeType,
		OriginalName: stored.OriginalName,
		SizeBytes:    stored.SizeBytes,
	}

	if kind == blob.KindChatAttachment && isPreviewableImage(stored.MimeType) {
		if preview := h.generatePreview(stored); preview != nil {
			url := mediaurl.BlobPreview(h.baseURL, stored.ID)
			resp.PreviewURL = &url
			resp.Width = &preview.Width
			resp.Height = &preview.Height
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *UploadHandler) generatePreview(stored *blob.StoredBlob) *blob.Preview {
	src, err := h.blobs.Open(stored.StoragePath)
	if err != nil {
		return nil
	}
	defer src.Close()

	preview, err := blob.GenerateStaticImagePreview(src, h.previewMaxEdge, blob.DefaultPreviewQuality)
	if err != nil {
		return nil
	}

	relPath := blob.ChatAttachmentPreviewRelativePath(stored.ID)
	if _, err := h.blobs.Write(relPath, bytes.NewReader(preview.Data)); err != nil {
		return nil
	}
	return preview
}

func (h *UploadHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, blob.KindChatAttachment)
}

func (h *UploadHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, blob.KindAvatar)
}

func isPreviewableImage(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
