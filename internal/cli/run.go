package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vaspflow/internal/flow"
	"vaspflow/internal/recipes"
	"vaspflow/internal/structure"
	"vaspflow/internal/surface"
	"vaspflow/internal/vasp"
	"vaspflow/pkg/errors"
	"vaspflow/pkg/logger"
)

// workflowFile is the on-disk workflow definition.
type workflowFile struct {
	Name      string `yaml:"name"`
	Recipe    string `yaml:"recipe"`
	Structure string `yaml:"structure"`
	Preset    string `yaml:"preset"`
	Adsorbate string `yaml:"adsorbate"`

	NCore       int   `yaml:"ncore"`
	KPar        int   `yaml:"kpar"`
	MaxSlabs    int   `yaml:"maxSlabs"`
	WithDOS     *bool `yaml:"withDos"`
	VolumeRelax *bool `yaml:"volumeRelax"`

	Slab struct {
		MaxIndex            int      `yaml:"maxIndex"`
		MinSlabSize         float64  `yaml:"minSlabSize"`
		MinLengthWidth      float64  `yaml:"minLengthWidth"`
		MinVacuumSize       float64  `yaml:"minVacuumSize"`
		ZFix                float64  `yaml:"zFix"`
		FlipAsymmetric      *bool    `yaml:"flipAsymmetric"`
		AllowedSurfaceAtoms []string `yaml:"allowedSurfaceAtoms"`
	} `yaml:"slab"`

	Adsorption struct {
		Modes       []string `yaml:"modes"`
		MinDistance float64  `yaml:"minDistance"`
	} `yaml:"adsorption"`

	Flags map[string]interface{} `yaml:"flags"`
}

var knownRecipes = []string{
	"relax", "static",
	"slab_relax", "slab_static", "slab_dos",
	"bulk_to_slab", "slab_to_ads_slab",
}

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow definition",
		Long: `Parse a YAML workflow definition, build the job graph and execute it
with the local runner. Expansion recipes (bulk_to_slab, slab_to_ads_slab)
replace themselves with per-structure relax and static chains at runtime.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(args[0])
		},
	}
}

func runWorkflow(path string) error {
	def, err := loadWorkflowFile(path)
	if err != nil {
		return err
	}

	bulk, err := readStructure(def.Structure)
	if err != nil {
		return err
	}

	job, err := buildRecipeJob(def, bulk)
	if err != nil {
		return err
	}

	name := def.Name
	if name == "" {
		name = def.Recipe
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := flow.NewRunner()
	runner.MaxDynamicJobs = cfg.Workflow.MaxDynamicJobs

	store, err := runner.Run(ctx, flow.NewFlow(name).Add(job))
	if err != nil {
		return err
	}

	return reportRun(store)
}

func loadWorkflowFile(path string) (*workflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	def := &workflowFile{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parsing workflow file %s: %w", path, err)
	}
	if def.Recipe == "" {
		return nil, fmt.Errorf("%w: workflow names no recipe", errors.ErrInvalidConfig)
	}
	if def.Structure == "" {
		return nil, fmt.Errorf("%w: workflow names no structure file", errors.ErrInvalidConfig)
	}
	return def, nil
}

// buildRecipeJob maps the workflow definition onto a recipe maker.
func buildRecipeJob(def *workflowFile, bulk *structure.Structure) (*flow.Job, error) {
	env := recipes.EnvironmentFromConfig(cfg)
	atoms := structure.MustEncode(bulk)
	flags := workflowFlags(def)
	ncore, kpar := coreCounts(def)

	switch def.Recipe {
	case "relax":
		m := recipes.NewRelaxMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		if def.VolumeRelax != nil {
			m.VolumeRelax = *def.VolumeRelax
		}
		return m.Make(atoms, flags), nil

	case "static":
		m := recipes.NewStaticMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		return m.Make(atoms, flags), nil

	case "slab_relax":
		m := recipes.NewSlabRelaxMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		return m.Make(atoms, flags), nil

	case "slab_static":
		m := recipes.NewSlabStaticMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		return m.Make(atoms, flags), nil

	case "slab_dos":
		m := recipes.NewSlabDOSMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		return m.Make(atoms, flags), nil

	case "bulk_to_slab":
		m := recipes.NewBulkToSlabMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		m.MaxSlabs = def.MaxSlabs
		m.Options = slabOptions(def)
		if def.WithDOS != nil {
			m.WithDOS = *def.WithDOS
		}
		return m.Make(atoms, flags), nil

	case "slab_to_ads_slab":
		if def.Adsorbate == "" {
			return nil, fmt.Errorf("%w: slab_to_ads_slab needs an adsorbate", errors.ErrInvalidConfig)
		}
		m := recipes.NewSlabToAdsSlabMaker(env)
		m.Preset, m.NCore, m.KPar = def.Preset, ncore, kpar
		m.Options = surface.AdsorbateOptions{
			Modes:       def.Adsorption.Modes,
			MinDistance: def.Adsorption.MinDistance,
		}
		return m.Make(atoms, def.Adsorbate, flags), nil
	}

	return nil, fmt.Errorf("%w: unknown recipe %q (known: %s)",
		errors.ErrInvalidConfig, def.Recipe, strings.Join(knownRecipes, ", "))
}

func workflowFlags(def *workflowFile) vasp.Parameters {
	flags := make(vasp.Parameters, len(def.Flags))
	flags.Merge(vasp.Parameters(def.Flags))
	return flags
}

func coreCounts(def *workflowFile) (ncore, kpar int) {
	ncore, kpar = def.NCore, def.KPar
	if ncore == 0 {
		ncore = 1
	}
	if kpar == 0 {
		kpar = 1
	}
	return ncore, kpar
}

func slabOptions(def *workflowFile) surface.SlabOptions {
	opts := surface.DefaultSlabOptions()
	if def.Slab.MaxIndex > 0 {
		opts.MaxIndex = def.Slab.MaxIndex
	}
	if def.Slab.MinSlabSize > 0 {
		opts.MinSlabSize = def.Slab.MinSlabSize
	}
	if def.Slab.MinLengthWidth > 0 {
		opts.MinLengthWidth = def.Slab.MinLengthWidth
	}
	if def.Slab.MinVacuumSize > 0 {
		opts.MinVacuumSize = def.Slab.MinVacuumSize
	}
	if def.Slab.ZFix > 0 {
		opts.ZFix = def.Slab.ZFix
	}
	if def.Slab.FlipAsymmetric != nil {
		opts.FlipAsymmetric = *def.Slab.FlipAsymmetric
	}
	opts.AllowedSurfaceAtoms = def.Slab.AllowedSurfaceAtoms
	return opts
}

// reportRun prints the per-job outcome once the flow is done.
func reportRun(store *flow.Store) error {
	if jsonOutput {
		out := make([]map[string]interface{}, 0)
		for _, id := range store.JobIDs() {
			out = append(out, map[string]interface{}{
				"id":     id,
				"name":   store.Name(id),
				"state":  string(store.State(id)),
				"output": store.Output(id),
			})
		}
		return printJSON(out)
	}

	for _, id := range store.JobIDs() {
		log := logger.WithFields("job", store.Name(id), "id", id, "state", string(store.State(id)))
		if out := store.Output(id); out != nil {
			log.Info("job finished", "energy", out["energy"], "formula", out["formula"])
		} else {
			log.Info("job finished")
		}
	}
	return nil
}
