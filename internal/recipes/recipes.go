// Package recipes provides ready-made workflow jobs for the common
// calculation shapes: bulk relaxations and statics, slab studies with
// per-slab chains, and adsorbate placement flows. Each maker builds a
// flow.Job that decodes its structure input, resolves the calculator
// setup, runs it in a scratch directory and emits a run summary.
package recipes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vaspflow/internal/flow"
	"vaspflow/internal/structure"
	"vaspflow/internal/vasp"
	"vaspflow/pkg/config"
	"vaspflow/pkg/errors"
)

// Environment bundles the machine-level settings every recipe needs:
// where VASP lives, where presets live and where runs scratch.
type Environment struct {
	Command      string
	GammaCommand string
	VdwKernelDir string
	PresetDir    string
	ScratchRoot  string
}

// EnvironmentFromConfig lifts the recipe-relevant settings out of the
// loaded configuration.
func EnvironmentFromConfig(cfg *config.Config) Environment {
	return Environment{
		Command:      cfg.VASP.Command,
		GammaCommand: cfg.VASP.GammaCommand,
		VdwKernelDir: cfg.VASP.VdwKernelDir,
		PresetDir:    cfg.Paths.PresetDir,
		ScratchRoot:  cfg.Paths.ScratchRoot,
	}
}

func (e Environment) scratch(jobID string) string {
	root := e.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, "run-"+jobID)
}

// runCalculation is the shared execution path of every maker: resolve
// the calculator for the structure, run it in the job's scratch
// directory and tabulate the summary.
func runCalculation(env Environment, jobID, name, preset string, s *structure.Structure, flags vasp.Parameters) (map[string]interface{}, error) {
	opts := vasp.DefaultConfigureOptions()
	opts.Preset = preset
	opts.PresetDir = env.PresetDir
	opts.VdwKernelDir = env.VdwKernelDir
	opts.Overrides = flags

	calc, err := vasp.Configure(s, opts)
	if err != nil {
		return nil, err
	}
	calc.Command = env.Command
	calc.GammaCommand = env.GammaCommand

	dir := env.scratch(jobID)
	results, err := calc.Execute(dir)
	if err != nil {
		return nil, err
	}

	summary := vasp.Summarize(calc, results, map[string]interface{}{
		"name": name,
		"dir":  dir,
	})
	return map[string]interface{}(summary), nil
}

// decodeAtoms pulls the named input and decodes it into a structure.
func decodeAtoms(inputs map[string]interface{}, key string) (*structure.Structure, error) {
	raw, ok := inputs[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q input", errors.ErrInvalidParameter, key)
	}
	encoded, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q input must be an encoded structure", errors.ErrInvalidParameter, key)
	}
	return structure.Decode(encoded)
}

// mergeFlags layers caller flags over the maker's defaults.
func mergeFlags(defaults, flags vasp.Parameters) vasp.Parameters {
	out := make(vasp.Parameters, len(defaults)+len(flags))
	out.Merge(defaults)
	out.Merge(flags)
	return out
}

// RelaxMaker builds a geometry relaxation job. VolumeRelax toggles
// between a full cell relaxation (ISIF 3) and positions only (ISIF 2).
type RelaxMaker struct {
	Name        string
	Preset      string
	NCore       int
	KPar        int
	VolumeRelax bool
	Env         Environment
}

// NewRelaxMaker returns a RelaxMaker with the standard settings.
func NewRelaxMaker(env Environment) *RelaxMaker {
	return &RelaxMaker{
		Name:        "Relax",
		NCore:       1,
		KPar:        1,
		VolumeRelax: true,
		Env:         env,
	}
}

// Make creates the relaxation job. atoms is either an encoded structure
// or an OutputRef to an upstream job's "atoms" output.
func (m *RelaxMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		s, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		isif := 3
		if !m.VolumeRelax {
			isif = 2
		}
		defaults := vasp.Parameters{
			"ediff":  1e-5,
			"ediffg": -0.02,
			"ibrion": 2,
			"isif":   isif,
			"ismear": 0,
			"isym":   0,
			"kpar":   m.KPar,
			"lcharg": false,
			"lwave":  false,
			"ncore":  m.NCore,
			"nsw":    200,
			"sigma":  0.05,
		}
		output, err := runCalculation(m.Env, job.ID, m.Name, m.Preset, s, mergeFlags(defaults, flags))
		if err != nil {
			return nil, err
		}
		return &flow.Response{Output: output}, nil
	}
	return job
}

// StaticMaker builds a single-point calculation job with the charge
// density and wavefunctions kept for follow-up analysis.
type StaticMaker struct {
	Name   string
	Preset string
	NCore  int
	KPar   int
	Env    Environment
}

// NewStaticMaker returns a StaticMaker with the standard settings.
func NewStaticMaker(env Environment) *StaticMaker {
	return &StaticMaker{
		Name:  "Static",
		NCore: 1,
		KPar:  1,
		Env:   env,
	}
}

// Make creates the static job. atoms is either an encoded structure or
// an OutputRef to an upstream job's "atoms" output.
func (m *StaticMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		s, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		defaults := vasp.Parameters{
			"ediff":  1e-6,
			"ismear": -5,
			"isym":   2,
			"kpar":   m.KPar,
			"laechg": true,
			"lcharg": true,
			"lwave":  true,
			"ncore":  m.NCore,
			"nedos":  5001,
			"nsw":    0,
			"sigma":  0.05,
		}
		output, err := runCalculation(m.Env, job.ID, m.Name, m.Preset, s, mergeFlags(defaults, flags))
		if err != nil {
			return nil, err
		}
		return &flow.Response{Output: output}, nil
	}
	return job
}
