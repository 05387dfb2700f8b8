package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stickerquote/internal/config"
	"stickerquote/internal/metrics"
	"stickerquote/internal/tokens"
)

func minimalConfig() config.Config {
	cfg := config.Default()
	cfg.PDF.PaperSizes = map[string]config.PaperSize{"A4": {Width: 8.27, Height: 11.69}}
	cfg.PDF.TimeoutSecs = 1
	cfg.Pricing.Materials = config.DefaultMaterials()
	cfg.Cache.PDFCacheEnabled = false
	return cfg
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Redis: nil})

	reqStats, _ := http.NewRequest(http.MethodGet, "/v1/chrome/stats", nil)
	respStats, err := app.Test(reqStats)
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	if respStats.StatusCode != http.StatusOK {
		t.Fatalf("expected /v1/chrome/stats 200, got %d", respStats.StatusCode)
	}

	req404, _ := http.NewRequest(http.MethodGet, "/does-not-exist", nil)
	resp404, err := app.Test(req404)
	if err != nil {
		t.Fatalf("404 request failed: %v", err)
	}
	if resp404.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp404.StatusCode)
	}
	if got := resp404.Header.Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected JSON error response content type, got %q", got)
	}
	body, _ := io.ReadAll(resp404.Body)
	if !strings.Contains(string(body), `"code":404`) {
		t.Fatalf("expected error envelope, got %s", body)
	}
}

func TestNew_PriceAndMetrics(t *testing.T) {
	cfg := minimalConfig()
	cfg.Metrics.Enabled = true
	app := New(Deps{Config: cfg, Metrics: metrics.New()})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/price?width=50&height=50&material=print_only", nil))
	if err != nil {
		t.Fatalf("price request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"price":"1.25"`) {
		t.Fatalf("unexpected price response %d %s", resp.StatusCode, body)
	}

	mresp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	mbody, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(mbody), `stickerquote_calculations_total{result="valid"} 1`) {
		t.Fatalf("expected calculation counter in metrics output")
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Metrics: metrics.New()})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", resp.StatusCode)
	}
}

func TestNew_TokenScopes(t *testing.T) {
	cfg := minimalConfig()
	cfg.Auth.Enabled = true
	cache := tokens.NewCache()
	cache.Replace(map[string]tokens.Entry{
		"viewer": {Scope: tokens.Scope{"profiles": true}},
	})
	app := New(Deps{Config: cfg, Tokens: cache})

	body := `{"material":"print_only","stickers":[{"width":50,"height":50,"quantity":10}]}`
	post := func(path string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", "viewer")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request %s failed: %v", path, err)
		}
		return resp
	}

	if resp := post("/v1/quote"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected quote JSON to be open to any token, got %d", resp.StatusCode)
	}
	if resp := post("/v1/quote/text"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for export without scope, got %d", resp.StatusCode)
	}

	anon := httptest.NewRequest(http.MethodPost, "/v1/quote/text", strings.NewReader(body))
	anon.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(anon)
	if err != nil {
		t.Fatalf("anonymous request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected anonymous export to pass, got %d", resp.StatusCode)
	}
}

func TestNew_ProfilesWithoutStore(t *testing.T) {
	app := New(Deps{Config: minimalConfig()})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/profiles/shop/state", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %d", resp.StatusCode)
	}
}

func TestNew_PanicsOnInvalidPricing(t *testing.T) {
	cfg := minimalConfig()
	cfg.Pricing.RollWidthMM = 0
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid pricing config")
		}
	}()
	New(Deps{Config: cfg})
}

func TestNewBuilder_UsesConfig(t *testing.T) {
	cfg := minimalConfig()
	cfg.Pricing.Materials = map[string]float64{"vinyl": -1}
	if _, err := NewBuilder(cfg); err == nil {
		t.Fatalf("expected error for negative material price")
	}
}
