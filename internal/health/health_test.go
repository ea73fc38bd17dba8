package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/guardianvoice/maya/internal/safety"
	"github.com/guardianvoice/maya/internal/session"
	audiomock "github.com/guardianvoice/maya/pkg/audio/mock"
	"github.com/guardianvoice/maya/pkg/conversation/file"
	livemock "github.com/guardianvoice/maya/pkg/provider/live/mock"
)

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var res result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if res := decodeResult(t, rec); res.Status != "ok" {
		t.Fatalf("body status = %q, want ok", res.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "always", Check: func(context.Context) error { return nil }})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	res := decodeResult(t, rec)
	if res.Checks["always"] != "ok" {
		t.Fatalf("checks = %v, want always: ok", res.Checks)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "good", Check: func(context.Context) error { return nil }},
		Checker{Name: "bad", Check: func(context.Context) error { return errors.New("boom") }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	res := decodeResult(t, rec)
	if res.Status != "fail" {
		t.Fatalf("body status = %q, want fail", res.Status)
	}
	if res.Checks["good"] != "ok" || res.Checks["bad"] != "fail: boom" {
		t.Fatalf("checks = %v", res.Checks)
	}
}

func TestStoreChecker(t *testing.T) {
	t.Parallel()
	store, err := file.New(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	if err := StoreChecker(store).Check(context.Background()); err != nil {
		t.Fatalf("StoreChecker on healthy store: %v", err)
	}
}

func TestSessionChecker(t *testing.T) {
	t.Parallel()
	store, err := file.New(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	monitor, err := safety.New(nil, nil)
	if err != nil {
		t.Fatalf("safety.New: %v", err)
	}
	provider := &livemock.Provider{}
	provider.ConnectErr = errors.New("backend down")

	ctrl, err := session.New(context.Background(), provider, &audiomock.Platform{}, store, monitor,
		session.Config{Credential: "k", Voice: "Kore"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	if err := SessionChecker(ctrl).Check(context.Background()); err != nil {
		t.Fatalf("SessionChecker on idle controller: %v", err)
	}

	// Drive the controller into the errored state and expect failure.
	if err := ctrl.Connect(context.Background()); err == nil {
		t.Fatal("Connect: expected error")
	}
	if err := SessionChecker(ctrl).Check(context.Background()); err == nil {
		t.Fatal("SessionChecker on errored controller: expected error")
	}
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz status = %d, want 200", resp.StatusCode)
	}
}
