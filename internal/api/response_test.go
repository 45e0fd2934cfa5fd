package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"relay/internal/apperr"
)

func TestWriteJSONSetsContentTypeAndEncodesBody(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 201, map[string]string{"hello": "world"})

	if w.Code != 201 {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["hello"] != "world" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWriteErrorEncodesCodeAndMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, 400, "invalid", "bad request")

	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "invalid" || body.Error.Message != "bad request" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestWriteAppErrorMapsKnownKindToItsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeAppError(w, apperr.New(apperr.NotFound, "channel not found"))

	if w.Code != 404 {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "not_found" || body.Error.Message != "channel not found" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestWriteAppErrorFallsBackToInternalForPlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	writeAppError(w, errors.New("unexpected"))

	if w.Code != 500 {
		t.Fatalf("expected status 500, got %d", w.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "internal" {
		t.Fatalf("expected internal error code, got %q", body.Error.Code)
	}
	if body.Error.Message == "unexpected" {
		t.Fatal("expected the raw error message to not be leaked to the client")
	}
}

func TestBadRequestWritesInvalidKind(t *testing.T) {
	w := httptest.NewRecorder()
	badRequest(w, "missing field")

	if w.Code != 400 {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "invalid" {
		t.Fatalf("expected invalid error code, got %q", body.Error.Code)
	}
}

func TestUnauthorizedWritesUnauthenticatedKind(t *testing.T) {
	w := httptest.NewRecorder()
	unauthorized(w, "missing token")

	if w.Code != 401 {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated error code, got %q", body.Error.Code)
	}
}
