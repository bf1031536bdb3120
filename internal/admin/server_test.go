package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/fciannella/ace-versioning/internal/analytics"
	"github.com/fciannella/ace-versioning/internal/assignment"
	"github.com/fciannella/ace-versioning/internal/observability"
	"github.com/fciannella/ace-versioning/internal/versioning"
)

func newTestServer(t *testing.T) (*Server, assignment.StoreSet) {
	t.Helper()

	registry := versioning.NewRegistry()
	err := registry.Register(versioning.VersionConfig{
		CharacterID:      "plato",
		VersionIDs:       []string{"base", "enhanced"},
		DefaultVersionID: "base",
		Strategy: versioning.StrategyConfig{
			Kind:    versioning.StrategyWeighted,
			Weights: map[string]float64{"base": 0.6, "enhanced": 0.4},
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stores := assignment.NewMemoryStores()
	service, err := assignment.NewService(assignment.ServiceConfig{
		Registry: registry,
		Stores:   stores,
		Source:   versioning.NewSource(3),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	aggregator := analytics.NewAggregator(registry, stores.Assignments, nil)
	server, err := NewServer(Config{}, service, aggregator, logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return server, stores
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleResolve_StickyAcrossRequests(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	body := map[string]string{"user_id": "u1", "character_id": "plato"}

	first := doJSON(t, handler, http.MethodPost, "/v1/assignments/resolve", body)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", first.Code, first.Body.String())
	}
	var resp1 resolveResponse
	decodeBody(t, first, &resp1)
	if resp1.VersionID != "base" && resp1.VersionID != "enhanced" {
		t.Fatalf("VersionID = %q, want base or enhanced", resp1.VersionID)
	}

	second := doJSON(t, handler, http.MethodPost, "/v1/assignments/resolve", body)
	var resp2 resolveResponse
	decodeBody(t, second, &resp2)
	if resp2.VersionID != resp1.VersionID {
		t.Errorf("assignment not sticky across requests: %q then %q", resp1.VersionID, resp2.VersionID)
	}
}

func TestHandleResolve_UnknownCharacter(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodPost, "/v1/assignments/resolve",
		map[string]string{"user_id": "u1", "character_id": "aristotle"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleReassign(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	doJSON(t, handler, http.MethodPost, "/v1/assignments/resolve",
		map[string]string{"user_id": "u1", "character_id": "plato"})

	rec := doJSON(t, handler, http.MethodPost, "/v1/assignments/reassign",
		map[string]string{"user_id": "u1", "character_id": "plato", "version_id": "enhanced"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	resolved := doJSON(t, handler, http.MethodPost, "/v1/assignments/resolve",
		map[string]string{"user_id": "u1", "character_id": "plato"})
	var resp resolveResponse
	decodeBody(t, resolved, &resp)
	if resp.VersionID != "enhanced" {
		t.Errorf("VersionID after reassign = %q, want %q", resp.VersionID, "enhanced")
	}

	bad := doJSON(t, handler, http.MethodPost, "/v1/assignments/reassign",
		map[string]string{"user_id": "u1", "character_id": "plato", "version_id": "socratic"})
	if bad.Code != http.StatusBadRequest {
		t.Errorf("status for invalid target = %d, want 400", bad.Code)
	}
}

func TestHandleLogEvent(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	// Unassigned users cannot be attributed.
	early := doJSON(t, handler, http.MethodPost, "/v1/events",
		map[string]any{"user_id": "u1", "character_id": "plato", "event_type": "message_sent"})
	if early.Code != http.StatusNotFound {
		t.Errorf("status before assignment = %d, want 404", early.Code)
	}

	doJSON(t, handler, http.MethodPost, "/v1/assignments/resolve",
		map[string]string{"user_id": "u1", "character_id": "plato"})

	rec := doJSON(t, handler, http.MethodPost, "/v1/events",
		map[string]any{"user_id": "u1", "character_id": "plato", "event_type": "message_sent",
			"metadata": map[string]any{"latency_ms": 88}})
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDistribution(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/v1/characters/plato/distribution?draws=2000", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var report assignment.DistributionReport
	decodeBody(t, rec, &report)
	if report.Samples != 2000 {
		t.Errorf("Samples = %d, want 2000", report.Samples)
	}
	if report.ExpectedProportions["base"] != 0.6 {
		t.Errorf("ExpectedProportions[base] = %v, want 0.6", report.ExpectedProportions["base"])
	}
}

func TestHandleDistribution_BadSampleCount(t *testing.T) {
	server, _ := newTestServer(t)
	for _, query := range []string{"draws=0", "draws=-5", "draws=abc", "draws=2000001"} {
		rec := doJSON(t, server.Handler(), http.MethodGet, "/v1/characters/plato/distribution?"+query, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status for %q = %d, want 400", query, rec.Code)
		}
		var body map[string]string
		decodeBody(t, rec, &body)
		if want := strconv.Itoa(maxSampleCount); !strings.Contains(body["error"], want) {
			t.Errorf("error for %q = %q, want the %s limit mentioned", query, body["error"], want)
		}
	}
}

func TestHandleSimulateAndAnalytics(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	sim := doJSON(t, handler, http.MethodGet, "/v1/characters/plato/simulate?users=200", nil)
	if sim.Code != http.StatusOK {
		t.Fatalf("simulate status = %d: %s", sim.Code, sim.Body.String())
	}

	rec := doJSON(t, handler, http.MethodGet, "/v1/characters/plato/analytics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d: %s", rec.Code, rec.Body.String())
	}
	var snapshot analytics.Snapshot
	decodeBody(t, rec, &snapshot)
	if snapshot.TotalAssignments != 200 {
		t.Errorf("TotalAssignments = %d, want 200 after simulation", snapshot.TotalAssignments)
	}
}

func TestHandleHealthReport(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report analytics.HealthReport
	decodeBody(t, rec, &report)
	if score, ok := report.PerCharacterScores["plato"]; !ok || score != 0 {
		t.Errorf("score[plato] = %v, want 0 before any assignments", score)
	}
}

func TestStart_ShutsDownOnContextCancel(t *testing.T) {
	server, _ := newTestServer(t)
	server.config = Config{Host: "127.0.0.1", Port: 0}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() after cancel error = %v", err)
	}
}
