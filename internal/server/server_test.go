package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/equity-waterfall/internal/analysis"
	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/testutil"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newTestHandler(t *testing.T, maxUploadSize int64) http.Handler {
	t.Helper()
	conf := &config.Configuration{
		Fund: testutil.Fund(),
		Companies: []config.Company{
			{
				Company:          portfolio.Company{ID: "acme", Name: "Acme Robotics", Stage: "Series A"},
				ImpliedValuation: 60_000_000,
				ExitScenarios:    []float64{20_000_000},
				CapTable:         testutil.SeriesAOnly(),
			},
		},
	}
	clock := testutil.ClockAt("2024-01-01")
	service := analysis.NewService(zap.NewNop(), conf, analysis.WithClock(clock))
	return NewHandler(zap.NewNop(), service, maxUploadSize, "1.2.3")
}

func performJSON(t *testing.T, handler http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHandleWaterfall(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)
	ct := testutil.SeriesAOnly()

	tests := []struct {
		name           string
		payload        interface{}
		expectedStatus int
		expectedSeries float64
		expectedFund   float64
		expectedField  string
	}{
		{
			name:           "Inline cap table",
			payload:        map[string]interface{}{"capTable": ct, "exitValuation": 100_000_000},
			expectedStatus: http.StatusOK,
			expectedSeries: 20_000_000,
			expectedFund:   10_000_000,
		},
		{
			name:           "Configured company",
			payload:        map[string]interface{}{"companyId": "acme", "exitValuation": 20_000_000},
			expectedStatus: http.StatusOK,
			expectedSeries: 8_000_000,
			expectedFund:   4_000_000,
		},
		{
			name:           "Fund override",
			payload:        map[string]interface{}{"companyId": "acme", "exitValuation": 20_000_000, "fund": map[string]string{"id": "founder_1"}},
			expectedStatus: http.StatusOK,
			expectedSeries: 8_000_000,
			expectedFund:   12_000_000,
		},
		{
			name:           "Missing exit valuation",
			payload:        map[string]interface{}{"capTable": ct},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing cap table",
			payload:        map[string]interface{}{"exitValuation": 1},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Negative exit valuation",
			payload:        map[string]interface{}{"capTable": ct, "exitValuation": -5},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedField:  "exitValuation",
		},
		{
			name:           "Unknown company",
			payload:        map[string]interface{}{"companyId": "nope", "exitValuation": 1},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := performJSON(t, handler, http.MethodPost, "/api/waterfall", tt.payload)
			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}

			if tt.expectedStatus != http.StatusOK {
				var resp map[string]string
				decodeBody(t, rr, &resp)
				if resp["error"] == "" {
					t.Errorf("expected error message in response")
				}
				if tt.expectedField != "" && resp["field"] != tt.expectedField {
					t.Errorf("field = %q, expected %q", resp["field"], tt.expectedField)
				}
				return
			}

			var result waterfall.Result
			decodeBody(t, rr, &result)
			row, ok := result.Row(constants.ClassSeriesA)
			if !ok || row.TotalProceeds != tt.expectedSeries {
				t.Errorf("Series A row = %+v, expected proceeds %v", row, tt.expectedSeries)
			}
			if result.FundProceeds != tt.expectedFund {
				t.Errorf("FundProceeds = %v, expected %v", result.FundProceeds, tt.expectedFund)
			}
		})
	}
}

func TestHandleMalformedJSON(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	for _, path := range []string{"/api/ownership", "/api/round", "/api/waterfall", "/api/sensitivity", "/api/portfolio", "/api/config/export"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{not json"))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, rr.Code)
		}
	}
}

func TestHandleRequestTooLarge(t *testing.T) {
	handler := newTestHandler(t, 64)

	rr := performJSON(t, handler, http.MethodPost, "/api/waterfall", map[string]interface{}{
		"capTable":      testutil.SeriesAOnly(),
		"exitValuation": 1,
	})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	rr := performJSON(t, handler, http.MethodGet, "/api/waterfall", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestHandleRound(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)
	ct := testutil.DilutionScenario()

	t.Run("available", func(t *testing.T) {
		rr := performJSON(t, handler, http.MethodPost, "/api/round", map[string]interface{}{
			"capTable": ct,
			"round":    map[string]interface{}{"name": "Series A", "preMoney": 10_000_000, "roundSize": 2_500_000},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp roundResponse
		decodeBody(t, rr, &resp)
		if !resp.Available || resp.Result == nil {
			t.Fatalf("expected an available result, got %s", rr.Body.String())
		}
		if resp.Result.PostMoney != 12_500_000 || resp.Result.NewTotalShares != 12_500_000 {
			t.Errorf("result = %+v", resp.Result)
		}
	})

	t.Run("not computable", func(t *testing.T) {
		rr := performJSON(t, handler, http.MethodPost, "/api/round", map[string]interface{}{
			"capTable": ct,
			"round":    map[string]interface{}{"name": "Series A", "preMoney": 0, "roundSize": 2_500_000},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if strings.TrimSpace(rr.Body.String()) != `{"available":false}` {
			t.Errorf("body = %s, expected only available=false", rr.Body.String())
		}
	})

	t.Run("allocation above round size", func(t *testing.T) {
		rr := performJSON(t, handler, http.MethodPost, "/api/round", map[string]interface{}{
			"capTable": ct,
			"round":    map[string]interface{}{"name": "Series A", "preMoney": 10_000_000, "roundSize": 1_000_000, "ourAllocation": 2_000_000},
		})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHandleOwnership(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	ct := testutil.SeriesAOnly()
	for i := range ct.Holdings {
		ct.Holdings[i].OwnershipPct = 0
	}

	rr := performJSON(t, handler, http.MethodPost, "/api/ownership", map[string]interface{}{
		"capTable": ct,
		"fund":     map[string]string{"id": "sh_other_fund"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ownershipResponse
	decodeBody(t, rr, &resp)
	if resp.CapTable.Holdings[0].OwnershipPct != 80 {
		t.Errorf("founder OwnershipPct = %v, expected 80", resp.CapTable.Holdings[0].OwnershipPct)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "sh_other_fund") {
		t.Errorf("Warnings = %v, expected a missing fund warning", resp.Warnings)
	}

	ct.TotalShares = 1
	rr = performJSON(t, handler, http.MethodPost, "/api/ownership", map[string]interface{}{"capTable": ct})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleSensitivity(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	rr := performJSON(t, handler, http.MethodPost, "/api/sensitivity", map[string]interface{}{
		"companyId": "acme",
		"options":   map[string]interface{}{"steps": 2, "maxExit": 100_000_000},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp analysis.SensitivityReport
	decodeBody(t, rr, &resp)
	if strings.Join(resp.Classes, ",") != "Common,Series A" {
		t.Errorf("Classes = %v", resp.Classes)
	}
	if len(resp.Points) != 3 {
		t.Fatalf("got %d points, expected 3", len(resp.Points))
	}
	last := resp.Points[2]
	if last.ExitValuation != 100_000_000 || last.Proceeds[constants.FundSeriesKey] != 10_000_000 {
		t.Errorf("last point = %+v", last)
	}

	rr = performJSON(t, handler, http.MethodPost, "/api/sensitivity", map[string]interface{}{
		"companyId": "acme",
		"options":   map[string]interface{}{"steps": constants.MaxSensitivitySteps + 1},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandlePortfolio(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	rr := performJSON(t, handler, http.MethodPost, "/api/portfolio", map[string]interface{}{})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp analysis.PortfolioReport
	decodeBody(t, rr, &resp)
	if len(resp.Positions) != 1 || resp.Positions[0].UnrealizedValue != 6_000_000 {
		t.Errorf("Positions = %+v", resp.Positions)
	}
	if resp.Summary.BlendedMOIC != 1.5 || resp.Summary.ActivePositions != 1 {
		t.Errorf("Summary = %+v", resp.Summary)
	}

	multi := config.Company{
		Company:          portfolio.Company{ID: "multi", Name: "Northwind Bio", Stage: "Series A"},
		ImpliedValuation: 60_000_000,
		CapTable:         testutil.MultiClass(),
	}
	rr = performJSON(t, handler, http.MethodPost, "/api/portfolio", map[string]interface{}{
		"companies": []config.Company{multi},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = analysis.PortfolioReport{}
	decodeBody(t, rr, &resp)
	if len(resp.Positions) != 1 || resp.Positions[0].CompanyName != "Northwind Bio" || resp.Positions[0].MOIC != 3.43 {
		t.Errorf("Positions = %+v", resp.Positions)
	}
}

func TestHandleCompanies(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	rr := performJSON(t, handler, http.MethodGet, "/api/companies", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var companies []companySummary
	decodeBody(t, rr, &companies)
	if len(companies) != 1 {
		t.Fatalf("got %d companies, expected 1", len(companies))
	}
	c := companies[0]
	if c.ID != "acme" || c.Name != "Acme Robotics" || c.LastRound != "Series A" || c.TotalShares != 10_000_000 || c.ImpliedValuation != 60_000_000 {
		t.Errorf("company = %+v", c)
	}
}

func TestHandleCompanyWaterfall(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{path: "/api/companies/acme/waterfall?exit=100000000", expectedStatus: http.StatusOK},
		{path: "/api/companies/acme/waterfall", expectedStatus: http.StatusBadRequest},
		{path: "/api/companies/acme/waterfall?exit=lots", expectedStatus: http.StatusBadRequest},
		{path: "/api/companies/acme/waterfall?exit=-1", expectedStatus: http.StatusUnprocessableEntity},
		{path: "/api/companies/nope/waterfall?exit=1", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := performJSON(t, handler, http.MethodGet, tt.path, nil)
			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var result waterfall.Result
			decodeBody(t, rr, &result)
			if result.ExitValuation != 100_000_000 || result.FundIRR == nil {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestHandleVersion(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	rr := performJSON(t, handler, http.MethodGet, "/api/version", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeBody(t, rr, &resp)
	if resp["version"] != "1.2.3" {
		t.Errorf("version = %q, expected 1.2.3", resp["version"])
	}

	defaulted := NewHandler(nil, nil, 0, "  ")
	rr = performJSON(t, defaulted, http.MethodGet, "/api/version", nil)
	decodeBody(t, rr, &resp)
	if resp["version"] != "dev" {
		t.Errorf("version = %q, expected dev", resp["version"])
	}
}

func TestHandleConfigExport(t *testing.T) {
	handler := newTestHandler(t, constants.DefaultMaxUploadSizeBytes)

	data, err := os.ReadFile(filepath.Join("..", "..", "test", "test_config.yaml"))
	if err != nil {
		t.Fatalf("failed to read test config: %v", err)
	}
	var payload map[string]interface{}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to unmarshal yaml: %v", err)
	}
	payload["notes"] = "exported"

	rr := performJSON(t, handler, http.MethodPost, "/api/config/export", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	decodeBody(t, rr, &resp)
	yamlStr := resp["configYaml"]

	previous := -1
	for _, key := range []string{"logging:", "output:", "fund:", "sensitivity:", "waterfall:", "companies:", "notes:"} {
		idx := strings.Index(yamlStr, "\n"+key)
		if strings.HasPrefix(yamlStr, key) {
			idx = 0
		}
		if idx < 0 {
			t.Fatalf("expected yaml to contain %s, got %q", key, yamlStr)
		}
		if idx <= previous {
			t.Errorf("expected %s after the previous section", key)
		}
		previous = idx
	}

	conf, err := config.LoadConfigurationFromReader(strings.NewReader(yamlStr))
	if err != nil {
		t.Fatalf("exported yaml does not load: %v", err)
	}
	if len(conf.Companies) != 2 {
		t.Errorf("exported configuration has %d companies, expected 2", len(conf.Companies))
	}
	for _, c := range conf.Companies {
		if err := c.CapTable.Validate(); err != nil {
			t.Errorf("exported company %s invalid: %v", c.ID, err)
		}
	}
}

func TestRespondServiceErrorFallback(t *testing.T) {
	h := &handler{logger: zap.NewNop()}
	rr := httptest.NewRecorder()
	h.respondServiceError(rr, os.ErrClosed, "server.test")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.respondServiceError(rr, captable.Invalid("steps", "too many"), "server.test")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rr.Code)
	}
}
