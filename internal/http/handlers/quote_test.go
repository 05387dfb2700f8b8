package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stickerquote/internal/config"
	"stickerquote/internal/metrics"
	"stickerquote/internal/pricing"
	"stickerquote/internal/quote"
)

const quoteBody = `{"material":"print_only","include_vat":true,"stickers":[` +
	`{"width":50,"height":50,"quantity":100},` +
	`{"width":0,"height":10,"quantity":5}]}`

func testCfg() config.Config {
	cfg := config.Default()
	cfg.PDF.PaperSizes = map[string]config.PaperSize{"A4": {Width: 8.27, Height: 11.69}, "LETTER": {Width: 8.5, Height: 11}}
	cfg.PDF.TimeoutSecs = 1
	cfg.PDF.ChromePoolSize = 0
	cfg.PDF.ChromePath = "/definitely/missing/chrome"
	cfg.Limits.MaxStickers = 5
	cfg.Pricing.Materials = config.DefaultMaterials()
	return cfg
}

func testBuilder(t *testing.T, cfg config.Config) *quote.Builder {
	t.Helper()
	cat, err := pricing.NewMaterialCatalog(cfg.Pricing.Materials)
	require.NoError(t, err)
	layout, err := pricing.NewLayout(cfg.Pricing.RollWidthMM, cfg.Pricing.BleedMM, cfg.Pricing.MinPricePerSticker)
	require.NoError(t, err)
	return quote.NewBuilder(pricing.NewCalculator(cat, layout), quote.Options{
		DefaultVATRate: cfg.Pricing.DefaultVATRate,
		MinOrderAmount: cfg.Pricing.MinOrderAmount,
		Currency:       cfg.Pricing.CurrencySymbol,
		MaxStickers:    cfg.Limits.MaxStickers,
	})
}

func quoteApp(t *testing.T) (*fiber.App, *metrics.Metrics) {
	t.Helper()
	cfg := testCfg()
	m := metrics.New()
	svc := NewQuoteService(cfg, testBuilder(t, cfg), m)

	app := fiber.New()
	app.Get("/materials", svc.HandleMaterials)
	app.Get("/price", svc.HandlePrice)
	app.Post("/price", svc.HandlePrice)
	app.Post("/quote", svc.HandleQuote)
	app.Post("/quote/text", svc.HandleQuoteText)
	app.Post("/quote/xlsx", svc.HandleQuoteXLSX)
	return app, m
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestHandlePrice_Variants(t *testing.T) {
	app, _ := quoteApp(t)

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		price       string
		perRow      any
	}{
		{"query", "GET", "/price?width=50&height=50&material=print_only", "", "", "1.25", 12.0},
		{"json numbers and strings", "POST", "/price", "application/json", `{"width":50,"height":"50","material":"print_only"}`, "1.25", 12.0},
		{"form", "POST", "/price", "application/x-www-form-urlencoded", "width=100&height=100&material=cut_contour", "6.07", 6.0},
		{"zero width", "GET", "/price?width=0&height=50&material=print_only", "", "", pricing.InvalidMarker, nil},
		{"unspecified material", "GET", "/price?width=50&height=50&material=unspecified", "", "", pricing.InvalidMarker, nil},
		{"wider than roll", "GET", "/price?width=700&height=50&material=print_only", "", "", pricing.InvalidMarker, nil},
		{"huge exponent", "GET", "/price?width=50&height=1e5000000&material=print_only", "", "", pricing.InvalidMarker, nil},
		{"tiny exponent", "POST", "/price", "application/json", `{"width":"1e-5000000","height":50,"material":"print_only"}`, pricing.InvalidMarker, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			out := decode(t, resp.Body)
			assert.Equal(t, tc.price, out["price"])
			assert.Equal(t, tc.perRow, out["stickers_per_row"])
			if tc.perRow == nil {
				assert.NotEmpty(t, out["reason"])
			}
		})
	}
}

func TestHandlePrice_BadJSON(t *testing.T) {
	app, _ := quoteApp(t)
	req := httptest.NewRequest("POST", "/price", strings.NewReader(`{"width":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleMaterials(t *testing.T) {
	app, _ := quoteApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/materials", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp.Body)
	assert.Equal(t, "650", out["roll_width_mm"])
	assert.Equal(t, "R", out["currency"])

	quotable := map[string]bool{}
	for _, raw := range out["materials"].([]any) {
		m := raw.(map[string]any)
		quotable[m["key"].(string)] = m["quotable"].(bool)
	}
	assert.True(t, quotable["print_only"])
	assert.False(t, quotable["unspecified"])
	assert.Len(t, quotable, len(config.DefaultMaterials()))
}

func TestHandleQuote_JSON(t *testing.T) {
	app, m := quoteApp(t)
	req := httptest.NewRequest("POST", "/quote", strings.NewReader(quoteBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp.Body)
	assert.Equal(t, "135.00", out["total_excl_vat"])
	assert.Equal(t, "155.25", out["total_incl_vat"])
	assert.Equal(t, false, out["below_min_order"])

	lines := out["lines"].([]any)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	assert.Equal(t, 9.0, first["rows"])
	assert.Equal(t, 108.0, first["total_stickers"])
	second := lines[1].(map[string]any)
	assert.Equal(t, pricing.InvalidMarker, second["calculation"].(map[string]any)["price"])

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHandleQuote_Rejections(t *testing.T) {
	app, _ := quoteApp(t)

	tooMany := `{"material":"print_only","stickers":[` + strings.Repeat(`{"width":1,"height":1,"quantity":1},`, 5) + `{"width":1,"height":1,"quantity":1}]}`
	for name, body := range map[string]string{
		"malformed":     `{"stickers":`,
		"no stickers":   `{"material":"print_only","stickers":[]}`,
		"too many":      tooMany,
		"negative vat":  `{"material":"print_only","vat_rate":-1,"stickers":[{"width":1,"height":1,"quantity":1}]}`,
		"huge quantity": `{"material":"print_only","stickers":[{"width":50,"height":50,"quantity":"20000000"}]}`,
		"exponent quantity": `{"material":"print_only","stickers":[{"width":50,"height":50,"quantity":1e5000000}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/quote", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleQuoteText(t *testing.T) {
	app, _ := quoteApp(t)
	req := httptest.NewRequest("POST", "/quote/text", strings.NewReader(quoteBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	assert.Contains(t, text, "50x50mm - R1.25 excl VAT per sticker (12 stickers per row)")
	assert.Contains(t, text, "Sticker 2 (0x10mm): Invalid dimensions")
	assert.Contains(t, text, "R155.25 Incl VAT")
}

func TestHandleQuoteXLSX(t *testing.T) {
	app, _ := quoteApp(t)
	req := httptest.NewRequest("POST", "/quote/xlsx", strings.NewReader(quoteBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "StickerKing-Quote.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Quote", "A1")
	require.NoError(t, err)
	assert.Equal(t, "line", header)
	invalid, err := f.GetCellValue("Quote", "E3")
	require.NoError(t, err)
	assert.Equal(t, pricing.InvalidMarker, invalid)
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "StickerKing-Quote.xlsx", exportName("StickerKing-Quote.pdf", ".xlsx"))
	assert.Equal(t, "quote.pdf", exportName("", ".pdf"))
}
