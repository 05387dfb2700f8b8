package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"stickerquote/internal/config"
	"stickerquote/internal/infra/chrome"
	"stickerquote/internal/infra/logging"
	"stickerquote/internal/metrics"
	"stickerquote/internal/quote"
)

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// PDFRequestParams holds the validated print options and the page to print.
type PDFRequestParams struct {
	HTML        string
	Format      string
	Orientation string
	Margin      float64
	Filename    string
	Paper       config.PaperSize
}

// PDFService prints quotes through a shared Chrome pool and caches the result in Redis.
type PDFService struct {
	Config  *config.Config
	Redis   *redis.Client
	Builder *quote.Builder
	Metrics *metrics.Metrics

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error
}

func NewPDFService(cfg config.Config, rdb *redis.Client, builder *quote.Builder, m *metrics.Metrics) *PDFService {
	return &PDFService{
		Config:  &cfg,
		Redis:   rdb,
		Builder: builder,
		Metrics: m,
	}
}

// getChromePool starts the pool lazily. A nil pool with a nil error means
// pooling is disabled and every render launches its own browser.
func (svc *PDFService) getChromePool() (*chrome.Pool, error) {
	svc.poolMu.Lock()
	defer svc.poolMu.Unlock()

	if svc.Config.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if svc.pool != nil {
		return svc.pool, nil
	}
	pool, err := chrome.NewPool(*svc.Config)
	if err != nil {
		svc.poolErr = err
		return nil, err
	}
	svc.pool = pool
	svc.poolErr = nil
	return svc.pool, nil
}

// Close stops the Chrome pool if one was started.
func (svc *PDFService) Close() {
	svc.poolMu.Lock()
	defer svc.poolMu.Unlock()
	if svc.pool != nil {
		svc.pool.Close()
		svc.pool = nil
	}
}

// HandleQuotePDF prices the posted quote and returns it as a PDF.
func (svc *PDFService) HandleQuotePDF(c *fiber.Ctx) error {
	params, err := validatePDFOptions(c, *svc.Config)
	if err != nil {
		return err
	}
	q, err := buildQuote(c, svc.Builder, svc.Metrics)
	if err != nil {
		return err
	}
	html, err := quote.HTML(q)
	if err != nil {
		logging.Error("Quote HTML render failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Quote rendering failed")
	}
	if svc.Config.Limits.MaxHTMLBytes > 0 && len(html) > svc.Config.Limits.MaxHTMLBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Quote page exceeds %d bytes", svc.Config.Limits.MaxHTMLBytes))
	}
	params.HTML = html
	svc.Metrics.Quote("pdf")
	return svc.processPDFGeneration(c, params)
}

// processPDFGeneration serves from cache or renders and caches.
func (svc *PDFService) processPDFGeneration(c *fiber.Ctx, params *PDFRequestParams) error {
	cacheKey := computePDFCacheKey(params)
	useCache := svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled

	if useCache {
		if cached, err := getCachedPDF(c, svc.Redis, cacheKey, params.Filename); err == nil && cached != nil {
			svc.Metrics.PDFCache(true)
			return c.Send(cached)
		}
		svc.Metrics.PDFCache(false)
	}

	start := time.Now()
	pdfBuf, err := svc.renderPDF(params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Error("PDF generation timeout", "timeout_secs", svc.Config.PDF.TimeoutSecs, "error", err)
			return fiber.NewError(fiber.StatusRequestTimeout, "PDF rendering took too long")
		}
		if chrome.IsSessionInterrupted(err) {
			logging.Error("Chrome session interrupted", "error", err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "Chrome session interrupted")
		}
		logging.Error("PDF generation failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "PDF generation failed: "+err.Error())
	}
	svc.Metrics.ObserveRender("pdf", time.Since(start))

	if svc.Config.Limits.MaxPDFBytes > 0 && len(pdfBuf) > svc.Config.Limits.MaxPDFBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}

	if useCache {
		setCachedPDF(c, svc.Redis, cacheKey, pdfBuf, svc.Config.Cache.PDFCacheTTL)
	}

	logging.Info("PDF generated", "filename", params.Filename, "request_id", c.GetRespHeader(fiber.HeaderXRequestID))

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+params.Filename)
	return c.Send(pdfBuf)
}

func (svc *PDFService) renderPDF(params *PDFRequestParams) ([]byte, error) {
	pool, err := svc.getChromePool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return renderPDFWithChrome(params.HTML, params.Paper, params.Margin, *svc.Config)
	}

	timeout := time.Duration(svc.Config.PDF.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(tab.Ctx, timeout)
		pdfBuf, renderErr := renderPDFInExistingTab(ctx, params.HTML, params.Paper, params.Margin)
		cancel()

		pool.Release(tab, renderErr)
		return pdfBuf, renderErr
	}

	pdfBuf, renderErr := runOnce()
	if renderErr != nil && !errors.Is(renderErr, context.DeadlineExceeded) && chrome.IsSessionInterrupted(renderErr) {
		logging.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		if err := pool.Restart(); err != nil {
			return nil, err
		}
		return runOnce()
	}
	return pdfBuf, renderErr
}

// validatePDFOptions reads the print options from the query string.
func validatePDFOptions(c *fiber.Ctx, cfg config.Config) (*PDFRequestParams, error) {
	format := strings.ToUpper(c.Query("format"))
	if format != "" {
		if _, ok := cfg.PDF.PaperSizes[format]; !ok {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid format: not supported")
		}
	}

	orientation := strings.ToLower(c.Query("orientation"))
	if orientation != "" && orientation != "portrait" && orientation != "landscape" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid orientation: must be 'portrait' or 'landscape'")
	}

	margin := cfg.PDF.Margin
	if margin <= 0 {
		margin = 0.4
	}
	if marginStr := c.Query("margin"); marginStr != "" {
		m, err := strconv.ParseFloat(marginStr, 64)
		if err != nil || m < 0.1 || m > 2.0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid margin: must be a float between 0.1 and 2.0")
		}
		margin = m
	}

	filename := c.Query("filename")
	if filename == "" {
		filename = exportName(cfg.PDF.Filename, ".pdf")
	} else {
		if !strings.HasSuffix(filename, ".pdf") {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename must end with .pdf")
		}
		if !filenamePattern.MatchString(filename) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
	}

	paper, ok := cfg.PDF.PaperSizes[format]
	if !ok {
		paper, ok = cfg.PDF.PaperSizes[cfg.PDF.DefaultPaper]
		if !ok {
			return nil, fiber.NewError(fiber.StatusInternalServerError, "Default paper size not configured")
		}
	}
	if orientation == "landscape" {
		paper.Width, paper.Height = paper.Height, paper.Width
	}

	return &PDFRequestParams{
		Format:      format,
		Orientation: orientation,
		Margin:      margin,
		Filename:    filename,
		Paper:       paper,
	}, nil
}

func computePDFCacheKey(params *PDFRequestParams) string {
	h := sha256.New()
	h.Write([]byte(params.HTML))
	h.Write([]byte(params.Format))
	h.Write([]byte(params.Orientation))
	h.Write([]byte(strconv.FormatFloat(params.Margin, 'f', 2, 64)))
	return "pdfcache:" + hex.EncodeToString(h.Sum(nil))
}

func getCachedPDF(c *fiber.Ctx, rdb *redis.Client, key, filename string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}

	logging.Debug("PDF cache hit", "key", key)
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	return cached, nil
}

// setCachedPDF stores data for ttl, one minute when ttl is not positive.
func setCachedPDF(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}

// renderPDFWithChrome launches a throwaway browser for one render.
func renderPDFWithChrome(html string, paper config.PaperSize, margin float64, cfg config.Config) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(tmpDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(cfg.PDF.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	chromeCtx, cancelTimeout := context.WithTimeout(chromeCtx, timeout)
	defer cancelTimeout()

	return renderPDFInExistingTab(chromeCtx, html, paper, margin)
}

// renderPDFInExistingTab loads html into the tab behind ctx and prints it.
func renderPDFInExistingTab(ctx context.Context, html string, paper config.PaperSize, margin float64) ([]byte, error) {
	var pdfBuf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// HandleChromeStats reports capacity and usage of the Chrome pool.
func (svc *PDFService) HandleChromeStats(c *fiber.Ctx) error {
	pool, err := svc.getChromePool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	if pool == nil {
		return c.JSON(chrome.Stats{
			PoolSizeConf: svc.Config.PDF.ChromePoolSize,
			TimeoutSecs:  svc.Config.PDF.TimeoutSecs,
		})
	}
	return c.JSON(pool.Stats(svc.Config.PDF.TimeoutSecs))
}
