package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"stickerquote/internal/config"
	"stickerquote/internal/http/handlers"
	"stickerquote/internal/http/middleware"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/metrics"
	"stickerquote/internal/pricing"
	"stickerquote/internal/quote"
	"stickerquote/internal/store"
	"stickerquote/internal/tokens"
)

// Deps are the collaborators the HTTP server is assembled from. Only Config
// is required; missing infrastructure disables the routes that need it.
type Deps struct {
	Config config.Config
	// Redis caches rendered PDFs.
	Redis   *redis.Client
	Store   *store.Store
	Tokens  *tokens.Cache
	Metrics *metrics.Metrics
	// RateLimitStorage overrides the limiter storage built from Config.
	RateLimitStorage fiber.Storage
}

// NewBuilder builds the quote builder described by cfg.Pricing.
func NewBuilder(cfg config.Config) (*quote.Builder, error) {
	catalog, err := pricing.NewMaterialCatalog(cfg.Pricing.Materials)
	if err != nil {
		return nil, fmt.Errorf("material catalog: %w", err)
	}
	layout, err := pricing.NewLayout(cfg.Pricing.RollWidthMM, cfg.Pricing.BleedMM, cfg.Pricing.MinPricePerSticker)
	if err != nil {
		return nil, fmt.Errorf("roll layout: %w", err)
	}
	return quote.NewBuilder(pricing.NewCalculator(catalog, layout), quote.Options{
		DefaultVATRate: cfg.Pricing.DefaultVATRate,
		MinOrderAmount: cfg.Pricing.MinOrderAmount,
		Currency:       cfg.Pricing.CurrencySymbol,
		MaxStickers:    cfg.Limits.MaxStickers,
	}), nil
}

// New creates the Fiber app with middleware and routes. It panics when the
// pricing configuration cannot be turned into a calculator.
func New(d Deps) *fiber.App {
	cfg := d.Config
	builder, err := NewBuilder(cfg)
	if err != nil {
		panic(fmt.Sprintf("invalid pricing config: %v", err))
	}

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxBodyBytes,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg, middleware.Deps{Tokens: d.Tokens, Storage: d.RateLimitStorage})

	if cfg.Metrics.Enabled && d.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	quotes := handlers.NewQuoteService(cfg, builder, d.Metrics)
	pdf := handlers.NewPDFService(cfg, d.Redis, builder, d.Metrics)
	profiles := handlers.NewProfileService(cfg, d.Store)
	app.Hooks().OnShutdown(func() error {
		pdf.Close()
		return nil
	})

	scope := func(group string) fiber.Handler {
		if d.Tokens == nil {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return middleware.RequireScope(group, d.Tokens)
	}

	v1 := app.Group("/v1")
	v1.Get("/materials", quotes.HandleMaterials)
	v1.Get("/price", quotes.HandlePrice)
	v1.Post("/price", quotes.HandlePrice)
	v1.Post("/quote", quotes.HandleQuote)

	export := scope("export")
	v1.Post("/quote/text", export, quotes.HandleQuoteText)
	v1.Post("/quote/pdf", export, pdf.HandleQuotePDF)
	v1.Post("/quote/xlsx", export, quotes.HandleQuoteXLSX)

	p := v1.Group("/profiles/:profile", scope("profiles"))
	p.Get("/state", profiles.HandleGetState)
	p.Put("/state", profiles.HandlePutState)
	p.Get("/quotes", profiles.HandleListQuotes)
	p.Post("/quotes", profiles.HandleSaveQuote)
	p.Get("/quotes/:id", profiles.HandleGetQuote)
	p.Delete("/quotes/:id", profiles.HandleDeleteQuote)
	p.Post("/quotes/:id/load", profiles.HandleLoadQuote)

	v1.Get("/chrome/stats", pdf.HandleChromeStats)
	v1.Get("/monitor", monitor.New(monitor.Config{Title: "stickerquote"}))

	// everything else, including 404s, answers in JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		msg = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", "path", c.Path(), "status", code, "error", err)
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
