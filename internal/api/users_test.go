package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"relay/internal/bus"
	"relay/internal/db"
	"relay/internal/models"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	return database
}

func withIdentity(r *http.Request, identity *Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, identity))
}

func TestGetMeReturnsTheAuthenticatedUser(t *testing.T) {
	database := openTestDB(t)
	users := db.NewUserRepository(database)
	user, err := users.Create("alice", "alice@example.com", "hashed", models.RoleMember)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	handler := NewUserHandler(users, bus.New())
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), &Identity{UserID: user.ID})
	rr := httptest.NewRecorder()

	handler.GetMe(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var got models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.ID != user.ID || got.Username != "alice" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetMeRequiresAuthentication(t *testing.T) {
	database := openTestDB(t)
	users := db.NewUserRepository(database)
	handler := NewUserHandler(users, bus.New())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rr := httptest.NewRecorder()

	handler.GetMe(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestUpdateMeChangesDisplayNameAndPublishesEvent(t *testing.T) {
	database := openTestDB(t)
	users := db.NewUserRepository(database)
	user, err := users.Create("alice", "alice@example.com", "hashed", models.RoleMember)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	eventBus := bus.New()
	var events []bus.Event
	eventBus.Subscribe(func(_ bus.Target, evt bus.Event) { events = append(events, evt) })

	handler := NewUserHandler(users, eventBus)
	req := withIdentity(
		httptest.NewRequest(http.MethodPatch, "/api/v1/users/me", strings.NewReader(`{"displayName":"Alice Renamed"}`)),
		&Identity{UserID: user.ID},
	)
	rr := httptest.NewRecorder()

	handler.UpdateMe(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var got models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.DisplayName != "Alice Renamed" {
		t.Fatalf("display name = %q, want %q", got.DisplayName, "Alice Renamed")
	}

	if len(events) != 1 || events[0].Name != "USER_RENAMED" {
		t.Fatalf("expected a single USER_RENAMED event, got %+v", events)
	}
}

func TestUpdateMeRejectsEmptyDisplayName(t *testing.T) {
	database := openTestDB(t)
	users := db.NewUserRepository(database)
	user, err := users.Create("alice", "alice@example.com", "hashed", models.RoleMember)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	handler := NewUserHandler(users, bus.New())
	req := withIdentity(
		httptest.NewRequest(http.MethodPatch, "/api/v1/users/me", strings.NewReader(`{"displayName":""}`)),
		&Identity{UserID: user.ID},
	)
	rr := httptest.NewRecorder()

	handler.UpdateMe(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestListReturnsPublicUsersOnly(t *testing.T) {
	database := openTestDB(t)
	users := db.NewUserRepository(database)
	if _, err := users.Create("alice", "alice@example.com", "hashed", models.RoleMember); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := users.Create("bob", "bob@example.com", "hashed", models.RoleMember); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	handler := NewUserHandler(users, bus.New())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var got []*models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 users, got %d", len(got))
	}
	for _, u := range got {
		if u.PasswordHash != "" {
			t.Fatal("expected public users to never leak a password hash")
		}
	}
}
