package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/onboarding"
)

func newInitCommand(g *globalFlags) *cobra.Command {
	var (
		force bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter devocr.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir := g.dataDir
			if dataDir == "" {
				dataDir = config.DefaultDataDir()
			}
			interactive := !yes && isTerminal(os.Stdin)

			w := onboarding.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), dataDir, zap.NewNop())
			_, err := w.Run(interactive, force)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept every default without asking")
	return cmd
}
