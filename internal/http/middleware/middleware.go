package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"stickerquote/internal/config"
	"stickerquote/internal/domain"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/infra/ratelimit"
	"stickerquote/internal/tokens"
)

// APIKeyLocal is the fiber.Ctx local holding the authenticated token.
const APIKeyLocal = "api_key"

// Deps are the optional collaborators of the global middleware stack.
type Deps struct {
	// Tokens is required when cfg.Auth.Enabled is set.
	Tokens *tokens.Cache
	// Storage backs the rate limiters. Built from cfg.Cache when nil.
	Storage fiber.Storage
}

// Register attaches the global middleware to app.
func Register(app *fiber.App, cfg config.Config, deps ...Deps) {
	var d Deps
	if len(deps) > 0 {
		d = deps[0]
	}
	if d.Storage == nil {
		d.Storage = ratelimit.NewStore(ratelimit.RedisConfig{Addr: cfg.Cache.RedisHost, DB: cfg.Cache.RateLimitDB})
	}

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(requestLogger())

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/health",
		ReadinessEndpoint: "/ops/ready",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return !cfg.Auth.Enabled || (d.Tokens != nil && d.Tokens.Ready())
		},
	}))

	if cfg.Auth.Enabled {
		app.Use(apiKeyAuth(d.Tokens))
	}
	app.Use(authMode)

	rl := RateLimitConfigFrom(cfg)
	if d.Tokens != nil {
		app.Use(TokenRateLimit(rl, d.Tokens, d.Storage, NewLimiterCache()))
	}
	app.Use(UserRateLimit(rl, d.Storage))
}

func apiKeyAuth(cache *tokens.Cache) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: APIKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if cache == nil || !cache.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !cache.Validate(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		// anonymous requests fall through to the user limiter
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return errorJSON(c, status, err.Error())
		},
	})
}

// authMode tells clients and proxies how the request was admitted.
func authMode(c *fiber.Ctx) error {
	mode := "public"
	if token, ok := c.Locals(APIKeyLocal).(string); ok && token != "" {
		mode = "token"
	}
	c.Set("X-Auth-Mode", mode)
	return c.Next()
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		logging.Info("Request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		)
		return err
	}
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    status,
			"message": msg,
		},
	})
}
