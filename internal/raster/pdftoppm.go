package raster

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
)

// Pdftoppm rasterizes through poppler-utils. Page ranges are spread over
// concurrent pdftoppm processes.
type Pdftoppm struct {
	pdftoppm string
	pdfinfo  string
	logger   *zap.Logger
}

// NewPdftoppm creates the poppler backend. Empty paths resolve on PATH.
func NewPdftoppm(pdftoppmBin, pdfinfoBin string, logger *zap.Logger) *Pdftoppm {
	if pdftoppmBin == "" {
		pdftoppmBin = "pdftoppm"
	}
	if pdfinfoBin == "" {
		pdfinfoBin = "pdfinfo"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pdftoppm{pdftoppm: pdftoppmBin, pdfinfo: pdfinfoBin, logger: logger}
}

func (p *Pdftoppm) Name() string { return "pdftoppm" }

// Rasterize implements Rasterizer.
func (p *Pdftoppm) Rasterize(ctx context.Context, pdf []byte, opts Options) ([]document.PageImage, error) {
	if len(pdf) == 0 {
		return nil, apperrors.Wrap(fmt.Errorf("empty input"), apperrors.ErrNoPages.Code, apperrors.ErrNoPages.Message)
	}
	opts = opts.normalized()

	var pages []document.PageImage
	err := withScratch(opts.ScratchPrefix, func(dir string) error {
		input := filepath.Join(dir, "input.pdf")
		if err := os.WriteFile(input, pdf, 0600); err != nil {
			return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "write scratch PDF")
		}

		total, err := p.pageCount(ctx, input)
		if err != nil {
			return err
		}

		ranges := splitRanges(total, opts.Workers)
		p.logger.Debug("Rasterizing PDF",
			zap.Int("pages", total),
			zap.Int("dpi", opts.DPI),
			zap.Int("workers", len(ranges)),
		)

		pages = make([]document.PageImage, total)
		g, gctx := errgroup.WithContext(ctx)
		for i, r := range ranges {
			i, r := i, r
			g.Go(func() error {
				outDir := filepath.Join(dir, fmt.Sprintf("r%03d", i))
				if err := os.Mkdir(outDir, 0700); err != nil {
					return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "create range directory")
				}
				return p.renderRange(gctx, input, outDir, r, opts.DPI, pages)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (p *Pdftoppm) pageCount(ctx context.Context, input string) (int, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.pdfinfo, input)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, apperrors.Wrap(commandError(p.pdfinfo, err, &stderr), apperrors.ErrRasterize.Code, "read PDF info")
	}

	n, err := parsePageCount(out)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrRasterize.Code, "read PDF info")
	}
	if n == 0 {
		return 0, apperrors.Wrap(fmt.Errorf("pdfinfo reported 0 pages"), apperrors.ErrNoPages.Code, apperrors.ErrNoPages.Message)
	}
	return n, nil
}

// parsePageCount extracts the "Pages:" field from pdfinfo output.
func parsePageCount(out []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("invalid page count %q", line)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no page count")
}

func (p *Pdftoppm) renderRange(ctx context.Context, input, outDir string, r pageRange, dpi int, pages []document.PageImage) error {
	args := []string{
		"-r", strconv.Itoa(dpi),
		"-png",
		"-f", strconv.Itoa(r.First),
		"-l", strconv.Itoa(r.Last),
		input,
		filepath.Join(outDir, "page"),
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.pdftoppm, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apperrors.Wrap(commandError(p.pdftoppm, err, &stderr), apperrors.ErrRasterize.Code,
			fmt.Sprintf("render pages %d-%d", r.First, r.Last))
	}

	files, err := filepath.Glob(filepath.Join(outDir, "page-*.png"))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "list rendered pages")
	}
	// pdftoppm zero-pads to the document's page count, so names sort numerically
	sort.Strings(files)

	want := r.Last - r.First + 1
	if len(files) != want {
		return apperrors.Wrap(fmt.Errorf("expected %d images, found %d", want, len(files)),
			apperrors.ErrRasterize.Code, fmt.Sprintf("render pages %d-%d", r.First, r.Last))
	}

	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "read rendered page")
		}
		idx := r.First - 1 + i
		img, err := pageImage(idx, dpi, data)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "read rendered page")
		}
		pages[idx] = img
	}
	return nil
}

func commandError(name string, err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %s", name, err, msg)
}
