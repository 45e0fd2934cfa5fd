package api

import "net/http"

// ServerInfoHandler serves the unauthenticated bootstrap info clients need
// before logging in, kept from the teacher's ServerInfoHandler shape.
type ServerInfoHandler struct {
	name           string
	baseURL        string
	uploadMaxBytes int64
}

func NewServerInfoHandler(name, baseURL string, uploadMaxBytes int64) *ServerInfoHandler {
	return &ServerInfoHandler{name: name, baseURL: baseURL, uploadMaxBytes: uploadMaxBytes}
}

func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           h.name,
		"baseUrl":        h.baseURL,
		"uploadMaxBytes": h.uploadMaxBytes,
		"version":        "1.0.0",
	})
}
