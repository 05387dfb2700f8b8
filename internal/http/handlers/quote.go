package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"stickerquote/internal/config"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/metrics"
	"stickerquote/internal/pricing"
	"stickerquote/internal/quote"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// QuoteService serves the calculator and the quote exports that do not need Chrome.
type QuoteService struct {
	Config  *config.Config
	Builder *quote.Builder
	Metrics *metrics.Metrics
}

func NewQuoteService(cfg config.Config, builder *quote.Builder, m *metrics.Metrics) *QuoteService {
	return &QuoteService{Config: &cfg, Builder: builder, Metrics: m}
}

type priceRequest struct {
	Width    quote.Value `json:"width"`
	Height   quote.Value `json:"height"`
	Material string      `json:"material"`
}

// HandleMaterials lists the catalog with the roll constants.
func (svc *QuoteService) HandleMaterials(c *fiber.Ctx) error {
	calc := svc.Builder.Calculator()
	catalog := calc.Catalog()
	layout := calc.Layout()

	materials := make([]fiber.Map, 0, catalog.Len())
	for _, key := range catalog.Keys() {
		price, _ := catalog.Price(key)
		materials = append(materials, fiber.Map{
			"key":        key,
			"unit_price": price.StringFixed(2),
			"quotable":   catalog.Quotable(key),
		})
	}
	return c.JSON(fiber.Map{
		"materials":             materials,
		"roll_width_mm":         layout.RollWidthMM.String(),
		"bleed_mm":              layout.BleedMM.String(),
		"min_price_per_sticker": layout.MinPricePerSticker.StringFixed(2),
		"currency":              svc.Config.Pricing.CurrencySymbol,
	})
}

// HandlePrice prices one sticker. Invalid dimensions are a normal 200 answer.
func (svc *QuoteService) HandlePrice(c *fiber.Ctx) error {
	var req priceRequest
	switch {
	case c.Method() == fiber.MethodGet:
		req = priceRequest{Width: quote.Value(c.Query("width")), Height: quote.Value(c.Query("height")), Material: c.Query("material")}
	case c.Is("json"):
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
		}
	default:
		req = priceRequest{Width: quote.Value(c.FormValue("width")), Height: quote.Value(c.FormValue("height")), Material: c.FormValue("material")}
	}

	res := svc.Builder.Calculator().Calculate(req.Width.Decimal(), req.Height.Decimal(), strings.TrimSpace(req.Material))
	svc.Metrics.Calculation(resultLabel(res))
	return c.JSON(res)
}

func (svc *QuoteService) HandleQuote(c *fiber.Ctx) error {
	q, err := buildQuote(c, svc.Builder, svc.Metrics)
	if err != nil {
		return err
	}
	svc.Metrics.Quote("json")
	return c.JSON(q)
}

func (svc *QuoteService) HandleQuoteText(c *fiber.Ctx) error {
	q, err := buildQuote(c, svc.Builder, svc.Metrics)
	if err != nil {
		return err
	}
	svc.Metrics.Quote("text")
	c.Type("txt", "utf-8")
	return c.SendString(quote.Text(q))
}

func (svc *QuoteService) HandleQuoteXLSX(c *fiber.Ctx) error {
	q, err := buildQuote(c, svc.Builder, svc.Metrics)
	if err != nil {
		return err
	}
	start := time.Now()
	var buf bytes.Buffer
	if err := quote.WriteWorkbook(&buf, q); err != nil {
		logging.Error("XLSX export failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "XLSX export failed")
	}
	svc.Metrics.ObserveRender("xlsx", time.Since(start))
	svc.Metrics.Quote("xlsx")

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+exportName(svc.Config.PDF.Filename, ".xlsx"))
	return c.Send(buf.Bytes())
}

// buildQuote decodes the JSON quote request and prices it.
func buildQuote(c *fiber.Ctx, b *quote.Builder, m *metrics.Metrics) (quote.Quote, error) {
	var req quote.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return quote.Quote{}, fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	req.Material = strings.TrimSpace(req.Material)

	q, err := b.Build(req)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidRequest) {
			return quote.Quote{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return quote.Quote{}, err
	}
	for _, l := range q.Lines {
		m.Calculation(resultLabel(l.Result))
	}
	return q, nil
}

func resultLabel(r pricing.Result) string {
	if r.Valid() {
		return "valid"
	}
	return r.Reason().String()
}

// exportName swaps the extension of the configured PDF file name.
func exportName(pdfName, ext string) string {
	if pdfName == "" {
		pdfName = "quote.pdf"
	}
	return strings.TrimSuffix(pdfName, ".pdf") + ext
}
