package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/metrics"
)

var (
	ErrChromeUnavailable = errors.New("chrome or chromium not found")
	ErrNoFont            = errors.New("no UTF-8 font available for the fallback PDF renderer; set export.font_path")
)

// PDFRenderer turns transcript text into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, text string) ([]byte, error)
	Name() string
}

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// FindChrome returns the configured path when set, else the first browser
// found on PATH.
func FindChrome(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %s", ErrChromeUnavailable, configured)
		}
		return configured, nil
	}
	for _, c := range chromeCandidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", ErrChromeUnavailable
}

// ChromeRenderer prints the HTML wrapper through headless Chrome so complex
// Devanagari shaping is handled by a real layout engine.
type ChromeRenderer struct {
	execPath string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewChromeRenderer(execPath string, timeout time.Duration, logger *zap.Logger) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeRenderer{execPath: execPath, timeout: timeout, logger: logger}
}

func (c *ChromeRenderer) Name() string { return "chrome" }

func (c *ChromeRenderer) RenderPDF(ctx context.Context, text string) ([]byte, error) {
	execPath, err := FindChrome(c.execPath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, c.timeout)
	defer timeoutCancel()

	doc := PrintDocument(text)
	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome print to pdf: %w", err)
	}

	c.logger.Debug("PDF rendered with Chrome", zap.Int("bytes", len(pdf)))
	return pdf, nil
}

var fontCandidates = []string{
	"/usr/share/fonts/truetype/noto/NotoSansDevanagari-Regular.ttf",
	"/usr/share/fonts/noto/NotoSansDevanagari-Regular.ttf",
	"/usr/share/fonts/google-noto/NotoSansDevanagari-Regular.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
	"/usr/share/fonts/truetype/freefont/FreeSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// FindFont returns the configured font or the first known UTF-8 font on disk.
func FindFont(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoFont, err)
		}
		return configured, nil
	}
	for _, f := range fontCandidates {
		if _, err := os.Stat(f); err == nil {
			return f, nil
		}
	}
	return "", ErrNoFont
}

// FPDFRenderer lays text out line by line with fpdf. fpdf has no complex
// script shaping, so Devanagari conjuncts and vowel signs come out as
// unjoined glyphs. Its output is a degraded fallback for when Chrome is
// unavailable; ChromeRenderer produces the faithful PDF.
type FPDFRenderer struct {
	fontPath string
}

func NewFPDFRenderer(fontPath string) *FPDFRenderer {
	return &FPDFRenderer{fontPath: fontPath}
}

func (f *FPDFRenderer) Name() string { return "fpdf" }

func (f *FPDFRenderer) RenderPDF(ctx context.Context, text string) ([]byte, error) {
	fontPath, err := FindFont(f.fontPath)
	if err != nil {
		return nil, err
	}

	const (
		marginMM   = 20.0
		fontSizePt = 12.0
		lineHeight = fontSizePt * 1.5 * 25.4 / 72 // mm
	)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Converted Devanagari Text", true)
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.AddUTF8Font("transcript", "", fontPath)
	pdf.SetFont("transcript", "", fontSizePt)
	pdf.AddPage()

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if line == "" {
			pdf.Ln(lineHeight)
			continue
		}
		pdf.MultiCell(0, lineHeight, line, "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("fpdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("fpdf output: %w", err)
	}
	return buf.Bytes(), nil
}

// BreakerRenderer sends work to the primary renderer through a circuit
// breaker and falls back when the call fails or the breaker is open.
type BreakerRenderer struct {
	primary  PDFRenderer
	fallback PDFRenderer
	cb       *gobreaker.CircuitBreaker[[]byte]
	logger   *zap.Logger
}

func NewBreakerRenderer(primary, fallback PDFRenderer, logger *zap.Logger, m *metrics.Metrics) *BreakerRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := "pdf_" + primary.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("PDF renderer breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	}
	return &BreakerRenderer{
		primary:  primary,
		fallback: fallback,
		cb:       gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:   logger,
	}
}

func (b *BreakerRenderer) Name() string {
	return b.primary.Name() + "+breaker"
}

// State exposes the breaker state for diagnostics.
func (b *BreakerRenderer) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerRenderer) RenderPDF(ctx context.Context, text string) ([]byte, error) {
	out, err := b.cb.Execute(func() ([]byte, error) {
		return b.primary.RenderPDF(ctx, text)
	})
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || b.fallback == nil {
		return nil, err
	}

	b.logger.Warn("Primary PDF renderer failed, using fallback",
		zap.String("primary", b.primary.Name()),
		zap.String("fallback", b.fallback.Name()),
		zap.Error(err),
	)
	out, ferr := b.fallback.RenderPDF(ctx, text)
	if ferr != nil {
		return nil, fmt.Errorf("%s: %v; %s: %w", b.primary.Name(), err, b.fallback.Name(), ferr)
	}
	return out, nil
}
