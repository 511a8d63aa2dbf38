// Package cli implements the vaspflow command line interface: workflow
// execution, slab and adsorbate structure generation and the population
// analysis front-ends.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaspflow/pkg/config"
	"vaspflow/pkg/logger"
)

var (
	configPath string
	jsonOutput bool

	// cfg is loaded once before any command that needs it runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vaspflow",
	Short: "vaspflow - slab generation, calculator setup and workflows for VASP",
	Long: `vaspflow drives plane-wave calculations end to end: it cleaves bulk
structures into slabs, decorates surfaces with adsorbates, resolves
calculator parameters from presets with automatic sanity fixes, and
chains everything into dynamic job graphs.

  vaspflow run workflow.yaml     execute a workflow definition
  vaspflow slabs POSCAR          generate slab structures from a bulk
  vaspflow adsorb POSCAR         place adsorbates on a slab
  vaspflow bader DIR             Bader charge analysis of a run directory
  vaspflow chargemol DIR         DDEC6 analysis of a run directory`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var source string
		var err error
		cfg, source, err = config.LoadConfigFrom(configPath)
		if err != nil {
			return err
		}
		if lvl, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(lvl)
		}
		logger.Debug("configuration loaded", "source", source)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (searches common locations if not specified)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewSlabsCmd())
	rootCmd.AddCommand(NewAdsorbCmd())
	rootCmd.AddCommand(NewBaderCmd())
	rootCmd.AddCommand(NewChargemolCmd())
	rootCmd.AddCommand(NewVersionCmd())
}

func printJSON(v interface{}) error {
	data, err := marshalIndent(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
