package linkpreview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractURLsFindsHTTPAndHTTPSOnly(t *testing.T) {
	content := "check this out https://example.com/a and also ftp://nope.example.com plus http://example.org/b."
	got := ExtractURLs(content)

	want := []string{"https://example.com/a", "http://example.org/b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestExtractURLsTrimsTrailingPunctuation(t *testing.T) {
	got := ExtractURLs("see (https://example.com/page)!")
	if len(got) != 1 || got[0] != "https://example.com/page" {
		t.Fatalf("expected trailing punctuation stripped, got %v", got)
	}
}

func TestExtractURLsDedupesAndCapsAtMax(t *testing.T) {
	content := "https://a.example.com https://a.example.com https://b.example.com https://c.example.com https://d.example.com"
	got := ExtractURLs(content)

	if len(got) != maxURLsPerMsg {
		t.Fatalf("expected at most %d urls, got %d (%v)", maxURLsPerMsg, len(got), got)
	}
	if got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("expected first-seen order with dedup, got %v", got)
	}
}

func TestExtractURLsIgnoresPlainText(t *testing.T) {
	if got := ExtractURLs("no links here, just words."); len(got) != 0 {
		t.Fatalf("expected no urls, got %v", got)
	}
}

func TestFetchParsesOpenGraphMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="Example Title">
			<meta property="og:description" content="An example page.">
			<meta property="og:image" content="https://example.com/img.png">
			<meta property="og:site_name" content="Example Site">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	svc := NewService()
	preview := svc.Fetch(context.Background(), srv.URL)

	if preview == nil {
		t.Fatal("expected a preview to be parsed")
	}
	if preview.Title != "Example Title" || preview.Description != "An example page." ||
		preview.ImageURL != "https://example.com/img.png" || preview.SiteName != "Example Site" {
		t.Fatalf("unexpected preview: %+v", preview)
	}
}

func TestFetchFallsBackToTitleTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title> Plain Title </title></head><body></body></html>`))
	}))
	defer srv.Close()

	svc := NewService()
	preview := svc.Fetch(context.Background(), srv.URL)

	if preview == nil || preview.Title != "Plain Title" {
		t.Fatalf("expected fallback to <title>, got %+v", preview)
	}
}

func TestFetchReturnsNilWhenNothingUsableFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head></head><body>nothing here</body></html>`))
	}))
	defer srv.Close()

	svc := NewService()
	if preview := svc.Fetch(context.Background(), srv.URL); preview != nil {
		t.Fatalf("expected nil preview, got %+v", preview)
	}
}

func TestFetchReturnsNilOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService()
	if preview := svc.Fetch(context.Background(), srv.URL); preview != nil {
		t.Fatalf("expected nil preview for a 404, got %+v", preview)
	}
}

func TestFetchReturnsNilOnNonHTMLContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"og:title":"nope"}`))
	}))
	defer srv.Close()

	svc := NewService()
	if preview := svc.Fetch(context.Background(), srv.URL); preview != nil {
		t.Fatalf("expected nil preview for a non-html content type, got %+v", preview)
	}
}

func TestFetchCachesResultAcrossCalls(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Cached</title></head></html>`))
	}))
	defer srv.Close()

	svc := NewService()
	first := svc.Fetch(context.Background(), srv.URL)
	second := svc.Fetch(context.Background(), srv.URL)

	if first == nil || second == nil || first.Title != second.Title {
		t.Fatalf("expected consistent cached preview, got %+v / %+v", first, second)
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 upstream fetch due to caching, got %d", hits)
	}
}
