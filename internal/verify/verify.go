// Package verify checks that the OCR engine and its language data are
// installed before any conversion starts.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	apperrors "github.com/gmsas95/devocr/internal/errors"
)

const (
	ProblemNotInstalled = "Tesseract is not installed properly."
	ProblemNoTessdata   = "Could not determine TESSDATA_PREFIX. Please set it manually."
)

// linuxTessdataDirs are probed in order when nothing else names the directory.
var linuxTessdataDirs = []string{
	"/usr/share/tesseract-ocr/5/tessdata",
	"/usr/share/tesseract-ocr/4.00/tessdata",
	"/usr/share/tessdata",
	"/usr/local/share/tessdata",
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec, folding stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Options configure a Verifier. Zero fields fall back to the real system.
type Options struct {
	Binary      string
	TessdataDir string
	Languages   []string
	GOOS        string
	SearchDirs  []string

	Runner Runner
	Getenv func(string) string
	Setenv func(key, value string) error
	Stat   func(string) (os.FileInfo, error)
}

// Report is the outcome of one environment check.
type Report struct {
	OK               bool      `json:"ok"`
	EngineVersion    string    `json:"engine_version,omitempty"`
	TessdataDir      string    `json:"tessdata_dir,omitempty"`
	MissingLanguages []string  `json:"missing_languages,omitempty"`
	Problems         []string  `json:"problems,omitempty"`
	Remediation      string    `json:"remediation,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Err converts a failed report into an ENV_001 error.
func (r *Report) Err() error {
	if r == nil || r.OK {
		return nil
	}
	return apperrors.Wrap(fmt.Errorf("%s", strings.Join(r.Problems, "; ")),
		apperrors.ErrEnvironment.Code, apperrors.ErrEnvironment.Message)
}

type Verifier struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	cached *Report
}

// New creates a Verifier for the configured engine.
func New(cfg config.OCRConfig, logger *zap.Logger) *Verifier {
	return NewWithOptions(Options{
		Binary:      cfg.Binary,
		TessdataDir: cfg.TessdataDir,
		Languages:   cfg.RequiredLanguages,
	}, logger)
}

func NewWithOptions(opts Options, logger *zap.Logger) *Verifier {
	if opts.Binary == "" {
		opts.Binary = "tesseract"
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"hin", "san"}
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.SearchDirs == nil {
		opts.SearchDirs = linuxTessdataDirs
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Setenv == nil {
		opts.Setenv = os.Setenv
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{opts: opts, logger: logger}
}

// Cached returns the last report, running a check when there is none or the
// previous one failed.
func (v *Verifier) Cached(ctx context.Context) *Report {
	v.mu.Lock()
	cached := v.cached
	v.mu.Unlock()

	if cached != nil && cached.OK {
		return cached
	}
	return v.Check(ctx)
}

// Check inspects the engine binary and every required language file.
func (v *Verifier) Check(ctx context.Context) *Report {
	r := &Report{CheckedAt: time.Now()}

	out, err := v.opts.Runner(ctx, v.opts.Binary, "--version")
	if err != nil {
		v.logger.Warn("Tesseract version check failed", zap.Error(err))
		r.Problems = append(r.Problems, ProblemNotInstalled)
	} else {
		r.EngineVersion = firstLine(string(out))
	}

	dir := v.resolveTessdata(ctx)
	if dir == "" {
		r.Problems = append(r.Problems, ProblemNoTessdata)
	} else {
		r.TessdataDir = dir
		for _, lang := range v.opts.Languages {
			path := filepath.Join(dir, lang+".traineddata")
			if _, err := v.opts.Stat(path); err != nil {
				r.MissingLanguages = append(r.MissingLanguages, lang)
			}
		}
		if len(r.MissingLanguages) > 0 {
			r.Problems = append(r.Problems,
				"Missing language files: "+strings.Join(r.MissingLanguages, ", "))
		}
	}

	r.OK = len(r.Problems) == 0
	if !r.OK {
		r.Remediation = v.remediation(r)
	}

	v.logger.Info("Environment checked",
		zap.Bool("ok", r.OK),
		zap.String("tessdata", r.TessdataDir),
		zap.Strings("missing", r.MissingLanguages),
	)

	v.mu.Lock()
	v.cached = r
	v.mu.Unlock()

	return r
}

func (v *Verifier) resolveTessdata(ctx context.Context) string {
	if dir := v.opts.Getenv("TESSDATA_PREFIX"); dir != "" {
		return dir
	}
	if v.opts.TessdataDir != "" {
		return v.opts.TessdataDir
	}

	if v.opts.GOOS == "darwin" {
		out, err := v.opts.Runner(ctx, "brew", "--prefix")
		if err != nil {
			v.logger.Debug("brew --prefix failed", zap.Error(err))
			return ""
		}
		dir := strings.TrimSpace(string(out)) + "/share/tessdata"
		if err := v.opts.Setenv("TESSDATA_PREFIX", dir); err != nil {
			v.logger.Warn("Failed to export TESSDATA_PREFIX", zap.Error(err))
		}
		return dir
	}

	for _, dir := range v.opts.SearchDirs {
		if info, err := v.opts.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

func (v *Verifier) remediation(r *Report) string {
	var sb strings.Builder

	if v.opts.GOOS == "darwin" {
		sb.WriteString("To install Tesseract and the missing languages on macOS:\n")
		sb.WriteString("1. Run: brew install tesseract tesseract-lang\n")
		sb.WriteString("2. Add to ~/.zshrc: export TESSDATA_PREFIX=\"$(brew --prefix)/share/tessdata/\"\n")
		sb.WriteString("3. Restart your terminal or run: source ~/.zshrc\n")
		return sb.String()
	}

	packages := []string{"tesseract-ocr"}
	langs := r.MissingLanguages
	if len(langs) == 0 {
		langs = v.opts.Languages
	}
	for _, lang := range langs {
		packages = append(packages, "tesseract-ocr-"+lang)
	}

	sb.WriteString("To install Tesseract and the language data on Debian/Ubuntu:\n")
	sb.WriteString("1. Run: sudo apt-get install " + strings.Join(packages, " ") + "\n")
	if r.TessdataDir == "" {
		sb.WriteString("2. Export the data directory, e.g. export TESSDATA_PREFIX=/usr/share/tesseract-ocr/5/tessdata\n")
	} else {
		sb.WriteString("2. Or download <lang>.traineddata from https://github.com/tesseract-ocr/tessdata into " + r.TessdataDir + "\n")
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
