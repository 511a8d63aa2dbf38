package cli

import (
	"github.com/spf13/cobra"

	"vaspflow/internal/popanalysis"
	"vaspflow/pkg/logger"
)

func NewBaderCmd() *cobra.Command {
	var magFile string

	cmd := &cobra.Command{
		Use:   "bader <dir>",
		Short: "Bader charge analysis of a completed run directory",
		Long: `Run the bader program on the all-electron charge density of a finished
calculation and report per-atom partial charges. When a magnetization
density file is present, per-atom spin moments are computed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := popanalysis.RunBader(args[0], popanalysis.BaderOptions{
				Command: cfg.Analysis.BaderCommand,
				MagFile: magFile,
			})
			if err != nil {
				return err
			}
			logger.Info("bader analysis finished",
				"atoms", len(summary.PartialCharges),
				"vacuum_charge", summary.VacuumCharge)
			return printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&magFile, "mag-file", "",
		"Magnetization density file for spin moments (default CHGCAR_mag)")

	return cmd
}

func NewChargemolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chargemol <dir>",
		Short: "DDEC6 charge analysis of a completed run directory",
		Long: `Run the chargemol program on a finished calculation and report DDEC6
partial charges, and spin moments, bond orders and CM5 charges when the
corresponding output files are produced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := popanalysis.RunChargemol(args[0], popanalysis.ChargemolOptions{
				Command:            cfg.Analysis.ChargemolCommand,
				AtomicDensitiesDir: cfg.Analysis.AtomicDensitiesDir,
			})
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}
