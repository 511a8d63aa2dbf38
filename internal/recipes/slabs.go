package recipes

import (
	"context"
	"strings"

	"vaspflow/internal/flow"
	"vaspflow/internal/structure"
	"vaspflow/internal/surface"
	"vaspflow/internal/vasp"
)

// SlabRelaxMaker builds a slab geometry relaxation job. The cell is
// held fixed (ISIF 2) and the dipole correction is on.
type SlabRelaxMaker struct {
	Name   string
	Preset string
	NCore  int
	KPar   int
	Env    Environment
}

// NewSlabRelaxMaker returns a SlabRelaxMaker with the standard settings.
func NewSlabRelaxMaker(env Environment) *SlabRelaxMaker {
	return &SlabRelaxMaker{
		Name:  "SlabRelax",
		NCore: 1,
		KPar:  1,
		Env:   env,
	}
}

// Make creates the slab relaxation job.
func (m *SlabRelaxMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		s, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		defaults := vasp.Parameters{
			"auto_dipole": true,
			"ediff":       1e-5,
			"ediffg":      -0.02,
			"ibrion":      2,
			"isif":        2,
			"ismear":      0,
			"isym":        0,
			"kpar":        m.KPar,
			"lcharg":      false,
			"lwave":       false,
			"ncore":       m.NCore,
			"nsw":         200,
			"sigma":       0.05,
		}
		output, err := runCalculation(m.Env, job.ID, m.Name, m.Preset, s, mergeFlags(defaults, flags))
		if err != nil {
			return nil, err
		}
		return &flow.Response{Output: output}, nil
	}
	return job
}

// SlabStaticMaker builds a slab single-point job that keeps the charge
// density files needed for population analysis.
type SlabStaticMaker struct {
	Name   string
	Preset string
	NCore  int
	KPar   int
	Env    Environment
}

// NewSlabStaticMaker returns a SlabStaticMaker with the standard
// settings.
func NewSlabStaticMaker(env Environment) *SlabStaticMaker {
	return &SlabStaticMaker{
		Name:  "SlabStatic",
		NCore: 1,
		KPar:  1,
		Env:   env,
	}
}

// Make creates the slab static job.
func (m *SlabStaticMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		s, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		defaults := vasp.Parameters{
			"auto_dipole": true,
			"ediff":       1e-6,
			"ismear":      -5,
			"isym":        2,
			"kpar":        m.KPar,
			"laechg":      true,
			"lcharg":      true,
			"lvhar":       true,
			"lwave":       true,
			"ncore":       m.NCore,
			"nedos":       5001,
			"nsw":         0,
			"sigma":       0.05,
		}
		output, err := runCalculation(m.Env, job.ID, m.Name, m.Preset, s, mergeFlags(defaults, flags))
		if err != nil {
			return nil, err
		}
		return &flow.Response{Output: output}, nil
	}
	return job
}

// SlabDOSMaker builds a dense-mesh density-of-states job, meant to run
// on the converged density of a preceding static.
type SlabDOSMaker struct {
	Name   string
	Preset string
	NCore  int
	KPar   int
	Env    Environment
}

// NewSlabDOSMaker returns a SlabDOSMaker with the standard settings.
func NewSlabDOSMaker(env Environment) *SlabDOSMaker {
	return &SlabDOSMaker{
		Name:  "SlabDOS",
		NCore: 1,
		KPar:  1,
		Env:   env,
	}
}

// Make creates the DOS job.
func (m *SlabDOSMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		s, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		defaults := vasp.Parameters{
			"auto_dipole": true,
			"ediff":       1e-6,
			"ismear":      -5,
			"isym":        2,
			"kpar":        m.KPar,
			"lcharg":      true,
			"lorbit":      11,
			"lwave":       true,
			"ncore":       m.NCore,
			"nedos":       10001,
			"nsw":         0,
			"sigma":       0.01,
		}
		output, err := runCalculation(m.Env, job.ID, m.Name, m.Preset, s, mergeFlags(defaults, flags))
		if err != nil {
			return nil, err
		}
		return &flow.Response{Output: output}, nil
	}
	return job
}

// BulkToSlabMaker builds a job that cleaves a bulk structure into slabs
// and expands into a relax, static and optional DOS chain per slab.
type BulkToSlabMaker struct {
	Name     string
	Preset   string
	NCore    int
	KPar     int
	MaxSlabs int
	Options  surface.SlabOptions
	WithDOS  bool
	Env      Environment
}

// NewBulkToSlabMaker returns a BulkToSlabMaker with the standard
// settings.
func NewBulkToSlabMaker(env Environment) *BulkToSlabMaker {
	return &BulkToSlabMaker{
		Name:    "BulkToSlab",
		NCore:   1,
		KPar:    1,
		Options: surface.DefaultSlabOptions(),
		WithDOS: true,
		Env:     env,
	}
}

// Make creates the expansion job. The slab chains inherit flags.
func (m *BulkToSlabMaker) Make(atoms interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		bulk, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		slabs, err := surface.MakeMaxSlabs(bulk, m.MaxSlabs, m.Options)
		if err != nil {
			return nil, err
		}
		if len(slabs) == 0 {
			return nil, nil
		}
		return &flow.Response{Replace: m.slabFlow(slabs, flags)}, nil
	}
	return job
}

func (m *BulkToSlabMaker) slabFlow(slabs []*surface.Slab, flags vasp.Parameters) *flow.Flow {
	sub := flow.NewFlow(m.Name)
	for _, slab := range slabs {
		relax := (&SlabRelaxMaker{
			Name: "SlabRelax", Preset: m.Preset, NCore: m.NCore, KPar: m.KPar, Env: m.Env,
		}).Make(structure.MustEncode(slab.Structure), flags)
		static := (&SlabStaticMaker{
			Name: "SlabStatic", Preset: m.Preset, NCore: m.NCore, KPar: m.KPar, Env: m.Env,
		}).Make(relax.OutputRef("atoms"), flags)
		sub.Add(relax, static)

		if m.WithDOS {
			dos := (&SlabDOSMaker{
				Name: "SlabDOS", Preset: m.Preset, NCore: m.NCore, KPar: m.KPar, Env: m.Env,
			}).Make(static.OutputRef("atoms"), flags)
			sub.Add(dos)
		}
	}
	return sub
}

// SlabToAdsSlabMaker builds a job that decorates a slab with an
// adsorbate at every stable site and expands into a relax plus static
// chain per placement. No viable site means the job completes without
// children.
type SlabToAdsSlabMaker struct {
	Name    string
	Preset  string
	NCore   int
	KPar    int
	Options surface.AdsorbateOptions
	Env     Environment
}

// NewSlabToAdsSlabMaker returns a SlabToAdsSlabMaker with the standard
// settings.
func NewSlabToAdsSlabMaker(env Environment) *SlabToAdsSlabMaker {
	return &SlabToAdsSlabMaker{
		Name:  "SlabToAdsSlab",
		NCore: 1,
		KPar:  1,
		Env:   env,
	}
}

// Make creates the expansion job. adsorbate is a built-in molecule name
// or an encoded structure.
func (m *SlabToAdsSlabMaker) Make(atoms interface{}, adsorbate interface{}, flags vasp.Parameters) *flow.Job {
	job := flow.NewJob(m.Name, nil)
	job.WithInput("atoms", atoms)
	job.WithInput("adsorbate", adsorbate)
	job.Fn = func(ctx context.Context, inputs map[string]interface{}) (*flow.Response, error) {
		slab, err := decodeAtoms(inputs, "atoms")
		if err != nil {
			return nil, err
		}
		mol, err := resolveAdsorbate(inputs)
		if err != nil {
			return nil, err
		}
		placed, err := surface.PlaceAdsorbate(slab, mol, m.Options)
		if err != nil {
			return nil, err
		}
		if len(placed) == 0 {
			return nil, nil
		}

		sub := flow.NewFlow(m.Name)
		for _, ads := range placed {
			relax := (&SlabRelaxMaker{
				Name: "SlabRelax", Preset: m.Preset, NCore: m.NCore, KPar: m.KPar, Env: m.Env,
			}).Make(structure.MustEncode(ads), flags)
			static := (&SlabStaticMaker{
				Name: "SlabStatic", Preset: m.Preset, NCore: m.NCore, KPar: m.KPar, Env: m.Env,
			}).Make(relax.OutputRef("atoms"), flags)
			sub.Add(relax, static)
		}
		return &flow.Response{Replace: sub}, nil
	}
	return job
}

// resolveAdsorbate accepts either an encoded structure or the name of a
// built-in molecule.
func resolveAdsorbate(inputs map[string]interface{}) (*structure.Structure, error) {
	raw, _ := inputs["adsorbate"].(string)
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return structure.Decode(raw)
	}
	return structure.BuiltinMolecule(raw)
}
