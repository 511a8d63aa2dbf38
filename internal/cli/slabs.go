package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vaspflow/internal/surface"
	"vaspflow/pkg/logger"
)

func NewSlabsCmd() *cobra.Command {
	var (
		maxIndex       int
		minSlabSize    float64
		minLengthWidth float64
		minVacuumSize  float64
		zFix           float64
		ftol           float64
		maxSlabs       int
		noFlip         bool
		allowedAtoms   []string
		outputDir      string
	)

	cmd := &cobra.Command{
		Use:   "slabs <POSCAR>",
		Short: "Generate slab structures from a bulk crystal",
		Long: `Enumerate the distinct low-index surfaces of a bulk structure and cut a
vacuum-padded slab for every unique termination. Slabs are written as
POSCAR files with selective dynamics freeing the surface layer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bulk, err := readStructure(args[0])
			if err != nil {
				return err
			}

			opts := surface.DefaultSlabOptions()
			opts.MaxIndex = maxIndex
			opts.MinSlabSize = minSlabSize
			opts.MinLengthWidth = minLengthWidth
			opts.MinVacuumSize = minVacuumSize
			opts.ZFix = zFix
			opts.FTol = ftol
			opts.FlipAsymmetric = !noFlip
			opts.AllowedSurfaceAtoms = allowedAtoms

			slabs, err := surface.MakeMaxSlabs(bulk, maxSlabs, opts)
			if err != nil {
				return err
			}
			if len(slabs) == 0 {
				logger.Warn("no slabs survived generation and filtering")
				return nil
			}

			for i, slab := range slabs {
				name := fmt.Sprintf("POSCAR_slab_%d%d%d_%03d",
					slab.MillerIndex[0], slab.MillerIndex[1], slab.MillerIndex[2], i)
				path := filepath.Join(outputDir, name)
				if err := writeStructure(path, slab.Structure); err != nil {
					return err
				}
				logger.Info("wrote slab",
					"file", path,
					"miller", slab.MillerIndex,
					"shift", slab.Shift,
					"atoms", slab.Len())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxIndex, "max-index", 1, "Maximum Miller index component")
	cmd.Flags().Float64Var(&minSlabSize, "min-slab-size", 10.0, "Minimum slab thickness in angstroms")
	cmd.Flags().Float64Var(&minLengthWidth, "min-length-width", 8.0, "Minimum in-plane cell length in angstroms")
	cmd.Flags().Float64Var(&minVacuumSize, "min-vacuum-size", 20.0, "Minimum vacuum gap in angstroms")
	cmd.Flags().Float64Var(&zFix, "z-fix", 2.0, "Depth from the top surface left free to relax")
	cmd.Flags().Float64Var(&ftol, "ftol", 0.1, "Fractional tolerance for termination clustering")
	cmd.Flags().IntVar(&maxSlabs, "max-slabs", 0, "Keep at most this many slabs (0 keeps all)")
	cmd.Flags().BoolVar(&noFlip, "no-flip", false, "Do not add mirrored counterparts of asymmetric slabs")
	cmd.Flags().StringSliceVar(&allowedAtoms, "allowed-surface-atoms", nil,
		"Keep only slabs whose surface contains one of these species")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "slabs", "Directory to write slab POSCAR files into")

	return cmd
}
