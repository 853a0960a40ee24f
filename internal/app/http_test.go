package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oficio/api/internal/store"
)

func testHTTPServer(t *testing.T, data *fakeStore) (*HTTPServer, *Service) {
	t.Helper()
	svc := testService(data)
	return NewHTTPServer(svc, "*"), svc
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testHTTPServer(t, &fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestRequiresAuthentication(t *testing.T) {
	server, _ := testHTTPServer(t, &fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/requests", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server, _ := testHTTPServer(t, &fakeStore{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["authenticated"] != false {
		t.Fatalf("expected unauthenticated, got %v", body)
	}
}

func TestAuthenticatedRequestFlow(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client")
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Ana", Role: "client"}, nil
		},
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	server, svc := testHTTPServer(t, data)

	session, err := svc.CreateSession(context.Background(), "usr_client")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/requests/req_1", nil)
	request.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "NUEVA" {
		t.Fatalf("expected derived status NUEVA, got %v", body["status"])
	}
}

func TestRoleGatePerEndpoint(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client")
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: id, Role: "client"}, nil
		},
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
	}
	server, svc := testHTTPServer(t, data)

	session, err := svc.CreateSession(context.Background(), "usr_client")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// A client may not submit offers.
	request := httptest.NewRequest(http.MethodPost, "/api/requests/req_1/offers", strings.NewReader(`{"amount":100}`))
	request.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestConflictMapsTo409(t *testing.T) {
	snap := openSnapshot("req_1", "usr_client",
		store.Offer{ID: "off_a", ProID: "usr_a", Status: store.OfferPending},
	)
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: id, Role: "client"}, nil
		},
		getSnapshotFn: func(context.Context, string) (store.Snapshot, error) { return snap, nil },
		getOfferFn: func(context.Context, string, string) (store.Offer, error) {
			return snap.Offers[0], nil
		},
		acceptOfferFn: func(context.Context, string, string) (bool, bool, error) {
			return false, false, nil
		},
	}
	server, svc := testHTTPServer(t, data)

	session, err := svc.CreateSession(context.Background(), "usr_client")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/api/requests/req_1/offers/off_a/accept", nil)
	request.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "OFFER_CONFLICT" {
		t.Fatalf("expected OFFER_CONFLICT, got %v", body["code"])
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	data := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: id, Role: "client"}, nil
		},
	}
	server, svc := testHTTPServer(t, data)

	session, err := svc.CreateSession(context.Background(), "usr_client")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/nonsense", nil)
	request.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}
