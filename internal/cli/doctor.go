package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/verify"
)

// check is one line of doctor output.
type check struct {
	name   string
	ok     bool
	warn   bool
	detail string
}

func newDoctorCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the OCR environment and export tooling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := g.loadConfig()
			if err != nil {
				printChecks(out, []check{{name: "Config", detail: err.Error()}}, g.noColor)
				return err
			}

			report := verify.New(cfg.OCR, zap.NewNop()).Check(cmd.Context())
			printChecks(out, toolingChecks(cfg), g.noColor)
			printReport(out, report, g.noColor)
			if !report.OK {
				return report.Err()
			}
			return nil
		},
	}
}

func toolingChecks(cfg *config.Config) []check {
	checks := []check{{name: "Config", ok: true, detail: "loaded"}}

	if _, err := os.Stat(cfg.Storage.DataDir); err != nil {
		checks = append(checks, check{name: "Data directory", detail: err.Error()})
	} else {
		checks = append(checks, check{name: "Data directory", ok: true, detail: cfg.Storage.DataDir})
	}

	if cfg.Processing.Rasterizer == "" || cfg.Processing.Rasterizer == "pdftoppm" {
		if path, err := exec.LookPath("pdftoppm"); err != nil {
			checks = append(checks, check{name: "pdftoppm", detail: "not found, install poppler-utils"})
		} else {
			checks = append(checks, check{name: "pdftoppm", ok: true, detail: path})
		}
	}

	chrome, chromeErr := export.FindChrome(cfg.Export.ChromePath)
	font, fontErr := export.FindFont(cfg.Export.FontPath)
	switch {
	case chromeErr == nil:
		checks = append(checks, check{name: "PDF export", ok: true, detail: "Chrome at " + chrome})
	case fontErr == nil:
		checks = append(checks, check{name: "PDF export", ok: true, warn: true,
			detail: "Chrome not found, using the built-in renderer with " + font})
	default:
		checks = append(checks, check{name: "PDF export",
			detail: "neither Chrome nor a Devanagari TTF font found, PDF export will fail"})
	}
	return checks
}

func styled(style lipgloss.Style, noColor bool, s string) string {
	if noColor {
		return s
	}
	return style.Render(s)
}

func printChecks(w io.Writer, checks []check, noColor bool) {
	for _, c := range checks {
		mark := styled(okStyle, noColor, "✓")
		switch {
		case !c.ok:
			mark = styled(errStyle, noColor, "✗")
		case c.warn:
			mark = styled(titleStyle, noColor, "!")
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, c.name, c.detail)
	}
}

// printReport renders an environment report with its remediation text.
func printReport(w io.Writer, r *verify.Report, noColor bool) {
	if r.EngineVersion != "" {
		printChecks(w, []check{{name: "Tesseract", ok: true, detail: r.EngineVersion}}, noColor)
	}
	if r.TessdataDir != "" {
		printChecks(w, []check{{name: "Tessdata", ok: true, detail: r.TessdataDir}}, noColor)
	}
	for _, p := range r.Problems {
		printChecks(w, []check{{name: "OCR", detail: p}}, noColor)
	}

	fmt.Fprintln(w)
	if r.OK {
		fmt.Fprintln(w, styled(okStyle, noColor, "All OCR checks passed."))
		return
	}
	fmt.Fprintln(w, styled(errStyle, noColor, "The OCR environment is not ready."))
	if r.Remediation != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimRight(r.Remediation, "\n"))
	}
}
