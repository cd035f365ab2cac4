// Package onboarding writes a starter devocr.yaml, asking a few questions
// when run interactively.
package onboarding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/export"
)

// Answers are the settings the wizard collects.
type Answers struct {
	OutputDir      string
	DefaultFormat  string
	DPI            int
	Port           int
	SessionBackend string
	PDFRenderer    string
	TessdataDir    string
}

// DefaultAnswers mirrors the built-in configuration defaults.
func DefaultAnswers(dataDir string) Answers {
	return Answers{
		OutputDir:      filepath.Join(dataDir, "output"),
		DefaultFormat:  string(export.FormatTXT),
		DPI:            200,
		Port:           8501,
		SessionBackend: "badger",
		PDFRenderer:    "chrome",
		TessdataDir:    os.Getenv("TESSDATA_PREFIX"),
	}
}

// fileConfig is the subset of the configuration a fresh install sets.
type fileConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Processing struct {
		DPI struct {
			Default int `yaml:"default"`
		} `yaml:"dpi"`
	} `yaml:"processing"`
	OCR struct {
		TessdataDir string `yaml:"tessdata_dir,omitempty"`
	} `yaml:"ocr"`
	Output struct {
		Dir           string `yaml:"dir"`
		DefaultFormat string `yaml:"default_format"`
	} `yaml:"output"`
	Export struct {
		PDFRenderer string `yaml:"pdf_renderer"`
	} `yaml:"export"`
	Session struct {
		Backend string `yaml:"backend"`
	} `yaml:"session"`
}

// Wizard handles the interactive setup process
type Wizard struct {
	reader  *bufio.Reader
	out     io.Writer
	logger  *zap.Logger
	dataDir string
}

func NewWizard(in io.Reader, out io.Writer, dataDir string, logger *zap.Logger) *Wizard {
	return &Wizard{
		reader:  bufio.NewReader(in),
		out:     out,
		logger:  logger,
		dataDir: dataDir,
	}
}

// Run asks for each setting, offering the default, and writes the config
// file. It refuses to replace an existing file unless force is set.
func (w *Wizard) Run(interactive, force bool) (string, error) {
	path := config.ConfigFilePath(w.dataDir)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists (use --force to replace it)", path)
		}
	}

	answers := DefaultAnswers(w.dataDir)
	if interactive {
		fmt.Fprintln(w.out, "devocr setup. Press Enter to keep the value in brackets.")
		fmt.Fprintln(w.out)
		if err := w.ask(&answers); err != nil {
			return "", err
		}
	}

	if err := Write(path, answers); err != nil {
		return "", err
	}
	w.logger.Info("Configuration written", zap.String("path", path))
	fmt.Fprintf(w.out, "✓ Configuration written to %s\n", path)
	fmt.Fprintln(w.out, "  Run 'devocr doctor' to check Tesseract and the Hindi/Sanskrit language files.")
	return path, nil
}

func (w *Wizard) ask(a *Answers) error {
	var err error
	a.OutputDir = w.prompt("Where should converted files be saved?", a.OutputDir)

	for {
		a.DefaultFormat = w.prompt("Default export format (txt, docx, pdf, html)", a.DefaultFormat)
		if _, err = export.ParseFormat(a.DefaultFormat); err == nil {
			break
		}
		fmt.Fprintln(w.out, "  "+err.Error())
	}

	a.DPI, err = w.promptInt("Rasterization DPI (100-300)", a.DPI, 100, 300)
	if err != nil {
		return err
	}
	a.Port, err = w.promptInt("Web interface port", a.Port, 1, 65535)
	if err != nil {
		return err
	}

	a.SessionBackend = w.choose("Keep sessions on disk across restarts? (badger/memory)", a.SessionBackend, "badger", "memory")
	a.PDFRenderer = w.choose("PDF export renderer (chrome/fpdf)", a.PDFRenderer, "chrome", "fpdf")
	a.TessdataDir = w.prompt("Tessdata directory (empty to detect)", a.TessdataDir)
	return nil
}

func (w *Wizard) prompt(question, def string) string {
	fmt.Fprintf(w.out, "%s [%s]: ", question, def)
	line, _ := w.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func (w *Wizard) promptInt(question string, def, lo, hi int) (int, error) {
	for attempt := 0; attempt < 3; attempt++ {
		v, err := strconv.Atoi(w.prompt(question, strconv.Itoa(def)))
		if err == nil && v >= lo && v <= hi {
			return v, nil
		}
		fmt.Fprintf(w.out, "  enter a number between %d and %d\n", lo, hi)
	}
	return 0, fmt.Errorf("no valid answer for %q", question)
}

func (w *Wizard) choose(question, def string, options ...string) string {
	for {
		v := strings.ToLower(w.prompt(question, def))
		for _, o := range options {
			if v == o {
				return v
			}
		}
		fmt.Fprintf(w.out, "  choose one of: %s\n", strings.Join(options, ", "))
	}
}

// Write renders answers as YAML to path.
func Write(path string, a Answers) error {
	var fc fileConfig
	fc.Server.Port = a.Port
	fc.Processing.DPI.Default = a.DPI
	fc.OCR.TessdataDir = a.TessdataDir
	fc.Output.Dir = a.OutputDir
	fc.Output.DefaultFormat = a.DefaultFormat
	fc.Export.PDFRenderer = a.PDFRenderer
	fc.Session.Backend = a.SessionBackend

	body, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	header := fmt.Sprintf("# devocr configuration\n# Generated on %s\n\n", time.Now().Format(time.RFC1123))
	return os.WriteFile(path, append([]byte(header), body...), 0644)
}

// CheckFirstRun reports whether no config file exists in dataDir yet.
func CheckFirstRun(dataDir string) bool {
	_, err := os.Stat(config.ConfigFilePath(dataDir))
	return os.IsNotExist(err)
}
