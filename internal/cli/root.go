// Package cli implements the devocr command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/devocr/internal/app"
	"github.com/gmsas95/devocr/internal/config"
)

var Version = "dev"

type globalFlags struct {
	configPath string
	dataDir    string
	verbose    bool
	noColor    bool
}

// NewRootCommand builds the devocr command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "devocr",
		Short: "Devanagari PDF to Unicode text converter",
		Long: `devocr turns scanned Hindi and Sanskrit PDFs into Unicode text with Tesseract.

Run "devocr serve" for the web interface, or "devocr convert" to convert
files from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFiles(); err != nil {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&g.dataDir, "data", "", "data directory")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newInitCommand(g),
		newServeCommand(g),
		newConvertCommand(g),
		newDoctorCommand(g),
		newWatchCommand(g),
		newConfigCommand(g),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.dataDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp loads the configuration and wires the components. quiet raises the
// console log level so a full-screen progress view is not interleaved with
// log lines.
func (g *globalFlags) openApp(mode app.Mode, quiet bool) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	switch {
	case g.verbose:
		level = zapcore.DebugLevel
	case quiet:
		level = zapcore.ErrorLevel
	}
	logger, err := app.NewLogger(mode == app.ModeServer, level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	return app.New(cfg, logger, Version, mode)
}
