package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vaspflow/internal/structure"
	"vaspflow/internal/surface"
	"vaspflow/pkg/errors"
	"vaspflow/pkg/logger"
)

func NewAdsorbCmd() *cobra.Command {
	var (
		adsorbate      string
		adsorbateFile  string
		modes          []string
		minDistance    float64
		allowedSymbols []string
		allowedIndices []int
		outputDir      string
	)

	cmd := &cobra.Command{
		Use:   "adsorb <POSCAR>",
		Short: "Place an adsorbate on every stable surface site of a slab",
		Long: `Detect the ontop, bridge and hollow sites of a slab's top surface and
write one structure per distinct placement. The adsorbate is either a
built-in molecule (` + strings.Join(structure.BuiltinMoleculeNames(), ", ") + `)
or a POSCAR file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if adsorbate != "" && adsorbateFile != "" {
				return fmt.Errorf("%w: use --adsorbate or --adsorbate-file, not both",
					errors.ErrConflictingOptions)
			}
			if adsorbate == "" && adsorbateFile == "" {
				return fmt.Errorf("%w: an adsorbate is required", errors.ErrInvalidConfig)
			}

			slab, err := readStructure(args[0])
			if err != nil {
				return err
			}

			var mol *structure.Structure
			if adsorbateFile != "" {
				mol, err = readStructure(adsorbateFile)
			} else {
				mol, err = structure.BuiltinMolecule(adsorbate)
			}
			if err != nil {
				return err
			}

			opts := surface.AdsorbateOptions{
				Modes:                 modes,
				MinDistance:           minDistance,
				AllowedSurfaceSymbols: allowedSymbols,
				AllowedSurfaceIndices: allowedIndices,
			}
			placed, err := surface.PlaceAdsorbate(slab, mol, opts)
			if err != nil {
				return err
			}
			if len(placed) == 0 {
				logger.Warn("no adsorption sites survived filtering")
				return nil
			}

			for i, s := range placed {
				path := filepath.Join(outputDir, fmt.Sprintf("POSCAR_ads_%03d", i))
				if err := writeStructure(path, s); err != nil {
					return err
				}
				logger.Info("wrote adsorbate structure", "file", path, "atoms", s.Len())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&adsorbate, "adsorbate", "a", "", "Built-in adsorbate molecule name")
	cmd.Flags().StringVar(&adsorbateFile, "adsorbate-file", "", "POSCAR file holding the adsorbate geometry")
	cmd.Flags().StringSliceVar(&modes, "modes", nil, "Site modes to consider (ontop, bridge, hollow; default all)")
	cmd.Flags().Float64Var(&minDistance, "min-distance", 2.0, "Gap between adsorbate and surface in angstroms")
	cmd.Flags().StringSliceVar(&allowedSymbols, "surface-symbols", nil, "Keep only sites coordinated to these species")
	cmd.Flags().IntSliceVar(&allowedIndices, "surface-indices", nil, "Keep only sites coordinated to these atom indices")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "adsorbates", "Directory to write structures into")

	return cmd
}
