package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pion/webrtc/v4"

	"relay/internal/sfu"
)

// WebRTCHandler exposes the SFU control plane's router/transport/producer/
// consumer operations over REST: router_rtp_capabilities, create_transport,
// connect_transport, produce, consume, list_producers, delete_transport.
type WebRTCHandler struct {
	sfu *sfu.Manager
}

func NewWebRTCHandler(manager *sfu.Manager) *WebRTCHandler {
	return &WebRTCHandler{sfu: manager}
}

func (h *WebRTCHandler) routerFor(w http.ResponseWriter, channelID string) (*sfu.Router, bool) {
	router, ok := h.sfu.Router(channelID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no active voice router for this channel; join voice first")
		return nil, false
	}
	return router, true
}

func (h *WebRTCHandler) RouterCapabilities(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	router, ok := h.routerFor(w, channelID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codecs": router.RTPCapabilities()})
}

type createTransportRequest struct {
	ChannelID string        `json:"channelId" validate:"required"`
	Direction sfu.Direction `json:"direction" validate:"required,oneof=send recv"`
}

type transportResponse struct {
	ID        string              `json:"id"`
	Direction sfu.Direction       `json:"direction"`
	Local     sfu.LocalParameters `json:"localParameters"`
}

func (h *WebRTCHandler) CreateTransport(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req createTransportRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	router, ok := h.routerFor(w, req.ChannelID)
	if !ok {
		return
	}

	transport, err := router.CreateTransport(req.Direction, identity.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	local, err := transport.LocalParameters()
	if err != nil {
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, transportResponse{ID: transport.ID, Direction: transport.Direction, Local: local})
}

type connectTransportRequest struct {
	ChannelID      string                `json:"channelId" validate:"required"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

func (h *WebRTCHandler) ConnectTransport(w http.ResponseWriter, r *http.Request) {
	var req connectTransportRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	router, ok := h.routerFor(w, req.ChannelID)
	if !ok {
		return
	}

	transportID := chi.URLParam(r, "id")
	transport, ok := router.Transport(transportID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "transport not found")
		return
	}

	if err := transport.Connect(req.ICEParameters, req.DTLSParameters); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rtpEncoding struct {
	SSRC uint32 `json:"ssrc"`
}

type produceRequest struct {
	ChannelID string        `json:"channelId" validate:"required"`
	Kind      string        `json:"kind" validate:"required,oneof=audio video"`
	Label     string        `json:"label" validate:"required"`
	Encodings []rtpEncoding `json:"encodings"`
}

type produceResponse struct {
	ProducerID string `json:"producerId"`
}

func (h *WebRTCHandler) Produce(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req produceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	router, ok := h.routerFor(w, req.ChannelID)
	if !ok {
		return
	}

	transportID := chi.URLParam(r, "id")
	transport, ok := router.Transport(transportID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "transport not found")
		return
	}

	kind := webrtc.RTPCodecTypeAudio
	if req.Kind == "video" {
		kind = webrtc.RTPCodecTypeVideo
	}

	encodings := make([]webrtc.RTPEncodingParameters, 0, len(req.Encodings))
	for _, e := range req.Encodings {
		encodings = append(encodings, webrtc.RTPEncodingParameters{
			RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(e.SSRC)},
		})
	}

	producer, err := transport.Produce(identity.UserID, req.Label, kind, webrtc.RTPParameters{Encodings: encodings})
	if err != nil {
		writeAppError(w, err)
		return
	}

	router.RegisterProducer(producer, identity.UserID)
	writeJSON(w, http.StatusCreated, produceResponse{ProducerID: producer.ID})
}

type consumeRequest struct {
	ChannelID  string `json:"channelId" validate:"required"`
	ProducerID string `json:"producerId" validate:"required"`
}

type consumeResponse struct {
	ConsumerID    string                      `json:"consumerId"`
	ProducerID    string                      `json:"producerId"`
	RTPParameters []webrtc.RTPCodecParameters `json:"rtpCodecs"`
}

func (h *WebRTCHandler) Consume(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req consumeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	router, ok := h.routerFor(w, req.ChannelID)
	if !ok {
		return
	}

	transportID := chi.URLParam(r, "id")
	transport, ok := router.Transport(transportID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "transport not found")
		return
	}

	consumer, err := router.Consume(transport, identity.UserID, req.ProducerID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	producer, _ := router.Producer(req.ProducerID)
	var codecs []webrtc.RTPCodecParameters
	if producer != nil {
		codecs = matchingRouterCodecs(router, producer.Kind())
	}

	writeJSON(w, http.StatusCreated, consumeResponse{
		ConsumerID:    consumer.ID,
		ProducerID:    consumer.ProducerID,
		RTPParameters: codecs,
	})
}

// matchingRouterCodecs narrows the router's full codec set down to the one
// matching kind, the same codec the client will actually receive RTP as.
func matchingRouterCodecs(router *sfu.Router, kind webrtc.RTPCodecType) []webrtc.RTPCodecParameters {
	mime := webrtc.MimeTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		mime = webrtc.MimeTypeVP9
	}
	out := make([]webrtc.RTPCodecParameters, 0, 1)
	for _, c := range router.RTPCapabilities() {
		if c.MimeType == mime {
			out = append(out, c)
		}
	}
	return out
}

type producerInfo struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Kind   string `json:"kind"`
	Label  string `json:"label"`
}

func (h *WebRTCHandler) ListProducers(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	router, ok := h.routerFor(w, channelID)
	if !ok {
		return
	}

	producers := router.ListProducers()
	out := make([]producerInfo, 0, len(producers))
	for _, p := range producers {
		kind := "audio"
		if p.Kind() == webrtc.RTPCodecTypeVideo {
			kind = "video"
		}
		out = append(out, producerInfo{ID: p.ID, UserID: p.UserID(), Kind: kind, Label: p.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WebRTCHandler) DeleteTransport(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	router, ok := h.routerFor(w, channelID)
	if !ok {
		return
	}

	transportID := chi.URLParam(r, "id")
	if err := router.DeleteTransport(transportID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
