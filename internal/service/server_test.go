package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return NewServer(cfg, svc)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	srv := testServer(t)

	payload := `{
		"initial_value": 100,
		"market_type": "BULLISH",
		"volatility": 0.01,
		"time_period_days": 30,
		"seed": 7
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp SimulateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.SimulationID == "" || resp.Status != StatusCompleted {
		t.Errorf("unexpected response: %+v", resp)
	}

	// The accepted run is queryable through the status endpoint
	statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/simulate/"+resp.SimulationID+"/status", nil)
	statusRec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status endpoint returned %d", statusRec.Code)
	}
}

func TestSimulateEndpointRejectsBadRequest(t *testing.T) {
	srv := testServer(t)

	payload := `{"initial_value": -1, "market_type": "BULLISH", "volatility": 0.2, "time_period_days": 10}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSimulateEndpointRejectsUnconfiguredS3(t *testing.T) {
	srv := testServer(t)

	payload := `{
		"initial_value": 100,
		"market_type": "BULLISH",
		"volatility": 0.01,
		"time_period_days": 10,
		"storage_type": "S3",
		"seed": 7
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusEndpointUnknownRun(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/simulate/nope/status", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMarketSimulateEndpoint(t *testing.T) {
	srv := testServer(t)

	payload := `{
		"initial_value": 22500,
		"time_period_days": 1,
		"regimes": [
			{"name": "calm", "mu": 0.05, "sigma": 0.12, "theta": 0.1},
			{"name": "stressed", "mu": -0.1, "sigma": 0.35, "theta": -0.2}
		],
		"transition_matrix": [[0.95, 0.05], [0.1, 0.9]],
		"storage_type": "LOCAL",
		"seed": 11
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate/market", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp SimulateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.StoragePaths) != 2 {
		t.Errorf("expected index and options datasets, got %v", resp.StoragePaths)
	}
}
