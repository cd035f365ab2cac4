package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gmsas95/devocr/internal/app"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/export"
)

type convertFlags struct {
	format    string
	output    string
	outputDir string
	dpi       int
	batchSize int
	plain     bool
}

func newConvertCommand(g *globalFlags) *cobra.Command {
	f := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert <pdf>...",
		Short: "Convert PDFs to Unicode text from the terminal",
		Long: `Convert one or more scanned PDFs and save the combined text in the chosen
format. Without --output the file is named after the input, or
combined_<a>_<b> for several inputs. Existing files are never overwritten.`,
		Example: `  devocr convert granth.pdf
  devocr convert a.pdf b.pdf --format docx --output sangrah
  devocr convert scan.pdf --dpi 300 --batch-size 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, g, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output format: txt, docx, pdf or html (default output.default_format)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file name without extension")
	cmd.Flags().StringVar(&f.outputDir, "dir", "", "output directory (default output.dir)")
	cmd.Flags().IntVar(&f.dpi, "dpi", 0, "rasterization DPI, 100 to 300")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "maximum pages per batch, 5 to 50")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "log progress lines instead of the interactive view")
	return cmd
}

func runConvert(cmd *cobra.Command, g *globalFlags, f *convertFlags, paths []string) error {
	interactive := !f.plain && isTerminal(cmd.OutOrStdout())

	a, err := g.openApp(app.ModeCLI, interactive)
	if err != nil {
		return err
	}
	defer a.Close()

	formatName := f.format
	if formatName == "" {
		formatName = a.Config.Output.DefaultFormat
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if f.outputDir != "" {
		a.Config.Output.Dir = f.outputDir
	}

	if report := a.Verifier.Check(cmd.Context()); !report.OK {
		printReport(cmd.ErrOrStderr(), report, g.noColor)
		return report.Err()
	}

	c := &conversion{
		svc:       a.Service,
		exporter:  a.Exporter,
		outputDir: a.Config.Output.Dir,
		maxBytes:  int64(a.Config.Server.BodyLimitMB) * 1024 * 1024,
		logger:    a.Logger,
	}
	req := conversionRequest{
		Paths:   paths,
		Format:  format,
		Output:  f.output,
		Options: a.Service.Resolve(convert.Options{DPI: f.dpi, BatchSize: f.batchSize}),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *conversionResult
	if interactive {
		res, err = runInteractive(ctx, c, req, cmd.OutOrStdout())
	} else {
		res, err = c.run(ctx, req, newLogReporter(a.Logger))
	}

	if res != nil && res.Record != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", res.Record.Path, res.Record.Size)
	}
	return err
}

func runInteractive(ctx context.Context, c *conversion, req conversionRequest, out io.Writer) (*conversionResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(cancel), tea.WithOutput(out))

	type outcome struct {
		res *conversionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.run(ctx, req, teaReporter{send: p.Send})
		done <- outcome{res, err}
		p.Send(runFinishedMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	o := <-done
	return o.res, o.err
}

// isTerminal reports whether stream is a terminal file.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
