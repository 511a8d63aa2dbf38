package recipes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaspflow/internal/flow"
	"vaspflow/internal/structure"
	"vaspflow/internal/surface"
	"vaspflow/internal/vasp"
	"vaspflow/pkg/errors"
)

const outcarFixture = `  FREE ENERGIE OF THE ION-ELECTRON SYSTEM (eV)
  ---------------------------------------------------
  free  energy   TOTEN  =       -27.200000 eV
`

// fakeEnv returns an Environment whose "VASP" copies a canned OUTCAR
// into the run directory.
func fakeEnv(t *testing.T) Environment {
	t.Helper()
	root := t.TempDir()
	outcar := filepath.Join(root, "OUTCAR.fixture")
	require.NoError(t, os.WriteFile(outcar, []byte(outcarFixture), 0o644))
	return Environment{
		Command:     "cp " + outcar + " OUTCAR",
		ScratchRoot: filepath.Join(root, "scratch"),
	}
}

func fccCu() *structure.Structure {
	const a = 3.615
	s := structure.New(structure.CubicLattice(a))
	for _, f := range [][3]float64{
		{0, 0, 0},
		{0.5, 0.5, 0},
		{0.5, 0, 0.5},
		{0, 0.5, 0.5},
	} {
		s.AddAtom("Cu", s.Lattice.FracToCart(f))
	}
	return s
}

func squareSlab() *structure.Structure {
	const a = 2.55
	s := structure.New(structure.Lattice{
		{2 * a, 0, 0},
		{0, 2 * a, 0},
		{0, 0, 20},
	})
	for _, xy := range [][2]float64{{0, 0}, {a, 0}, {0, a}, {a, a}} {
		s.AddAtom("Cu", [3]float64{xy[0], xy[1], 10})
	}
	return s
}

func runSingle(t *testing.T, env Environment, job *flow.Job) *flow.Store {
	t.Helper()
	store, err := flow.NewRunner().Run(context.Background(), flow.NewFlow("test").Add(job))
	require.NoError(t, err)
	return store
}

func readIncar(t *testing.T, env Environment, jobID string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.scratch(jobID), "INCAR"))
	require.NoError(t, err)
	return string(data)
}

func TestRelaxMakerRunsAndSummarizes(t *testing.T) {
	env := fakeEnv(t)
	job := NewRelaxMaker(env).Make(structure.MustEncode(fccCu()), vasp.Parameters{"encut": 520})

	store := runSingle(t, env, job)
	out := store.Output(job.ID)
	require.NotNil(t, out)

	assert.Equal(t, "Relax", out["name"])
	assert.Equal(t, "Cu4", out["formula"])
	assert.InDelta(t, -27.2, out["energy"].(float64), 1e-9)
	assert.InDelta(t, -6.8, out["energy_per_atom"].(float64), 1e-9)

	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "ISIF = 3")
	assert.Contains(t, incar, "ENCUT = 520")
	assert.Contains(t, incar, "NSW = 200")
}

func TestRelaxMakerPositionsOnly(t *testing.T) {
	env := fakeEnv(t)
	m := NewRelaxMaker(env)
	m.VolumeRelax = false
	job := m.Make(structure.MustEncode(fccCu()), nil)

	runSingle(t, env, job)
	assert.Contains(t, readIncar(t, env, job.ID), "ISIF = 2")
}

func TestRelaxMakerCallerFlagsWin(t *testing.T) {
	env := fakeEnv(t)
	job := NewRelaxMaker(env).Make(structure.MustEncode(fccCu()), vasp.Parameters{"nsw": 50})

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "NSW = 50")
	assert.NotContains(t, incar, "NSW = 200")
}

func TestStaticMakerDefaults(t *testing.T) {
	env := fakeEnv(t)
	job := NewStaticMaker(env).Make(structure.MustEncode(fccCu()), nil)

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "NSW = 0")
	assert.Contains(t, incar, "NEDOS = 5001")
	assert.Contains(t, incar, "LAECHG = .TRUE.")
}

func TestStaticMakerChainsFromRelaxOutput(t *testing.T) {
	env := fakeEnv(t)
	relax := NewRelaxMaker(env).Make(structure.MustEncode(fccCu()), nil)
	static := NewStaticMaker(env).Make(relax.OutputRef("atoms"), nil)

	store, err := flow.NewRunner().Run(context.Background(), flow.NewFlow("chain").Add(relax, static))
	require.NoError(t, err)

	out := store.Output(static.ID)
	require.NotNil(t, out)
	assert.Equal(t, "Static", out["name"])
	assert.Equal(t, "Cu4", out["formula"])
}

func TestSlabRelaxMakerAutoDipole(t *testing.T) {
	env := fakeEnv(t)
	job := NewSlabRelaxMaker(env).Make(structure.MustEncode(squareSlab()), nil)

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "LDIPOL = .TRUE.")
	assert.Contains(t, incar, "IDIPOL = 3")
	assert.Contains(t, incar, "DIPOL = ")
	assert.NotContains(t, incar, "AUTO_DIPOLE")
}

func TestSlabRelaxMakerWithShippedPreset(t *testing.T) {
	env := fakeEnv(t)
	env.PresetDir = filepath.Join("..", "..", "presets")
	m := NewSlabRelaxMaker(env)
	m.Preset = "SlabSet"
	job := m.Make(structure.MustEncode(squareSlab()), nil)

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "ENCUT = 450")
	assert.Contains(t, incar, "LDIPOL = .TRUE.")
	assert.NotContains(t, incar, "AUTO_KPTS")
	assert.NotContains(t, incar, "EDIFF_PER_ATOM")

	kpoints, err := os.ReadFile(filepath.Join(env.scratch(job.ID), "KPOINTS"))
	require.NoError(t, err)
	assert.Contains(t, string(kpoints), "10 10 1")
}

func TestSlabStaticMakerKeepsDensityFiles(t *testing.T) {
	env := fakeEnv(t)
	job := NewSlabStaticMaker(env).Make(structure.MustEncode(squareSlab()), nil)

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "LCHARG = .TRUE.")
	assert.Contains(t, incar, "LVHAR = .TRUE.")
	assert.Contains(t, incar, "LAECHG = .TRUE.")
}

func TestSlabDOSMakerDenseMesh(t *testing.T) {
	env := fakeEnv(t)
	job := NewSlabDOSMaker(env).Make(structure.MustEncode(squareSlab()), nil)

	runSingle(t, env, job)
	incar := readIncar(t, env, job.ID)
	assert.Contains(t, incar, "NEDOS = 10001")
	assert.Contains(t, incar, "LORBIT = 11")
}

func TestBulkToSlabMakerExpands(t *testing.T) {
	env := fakeEnv(t)
	m := NewBulkToSlabMaker(env)
	m.MaxSlabs = 1
	m.WithDOS = false
	job := m.Make(structure.MustEncode(fccCu()), nil)

	store := runSingle(t, env, job)

	// Parent plus one relax and one static per surviving slab.
	require.Len(t, store.JobIDs(), 3)
	assert.True(t, store.Completed())

	names := map[string]int{}
	for _, id := range store.JobIDs() {
		names[store.Name(id)]++
	}
	assert.Equal(t, 1, names["SlabRelax"])
	assert.Equal(t, 1, names["SlabStatic"])
}

func TestBulkToSlabMakerWithDOS(t *testing.T) {
	env := fakeEnv(t)
	m := NewBulkToSlabMaker(env)
	m.MaxSlabs = 1
	job := m.Make(structure.MustEncode(fccCu()), nil)

	store := runSingle(t, env, job)
	require.Len(t, store.JobIDs(), 4)

	var dosID string
	for _, id := range store.JobIDs() {
		if store.Name(id) == "SlabDOS" {
			dosID = id
		}
	}
	require.NotEmpty(t, dosID)
	assert.Equal(t, "SlabDOS", store.Output(dosID)["name"])
}

func TestSlabToAdsSlabMakerExpands(t *testing.T) {
	env := fakeEnv(t)
	m := NewSlabToAdsSlabMaker(env)
	m.Options = surface.AdsorbateOptions{Modes: []string{surface.ModeOntop}}
	job := m.Make(structure.MustEncode(squareSlab()), "H", nil)

	store := runSingle(t, env, job)

	// One ontop site per surface atom, a relax and a static each.
	require.Len(t, store.JobIDs(), 9)
	assert.True(t, store.Completed())
}

func TestSlabToAdsSlabMakerNoSites(t *testing.T) {
	env := fakeEnv(t)
	m := NewSlabToAdsSlabMaker(env)
	m.Options = surface.AdsorbateOptions{AllowedSurfaceSymbols: []string{"Au"}}
	job := m.Make(structure.MustEncode(squareSlab()), "H", nil)

	store := runSingle(t, env, job)
	require.Len(t, store.JobIDs(), 1)
	assert.Equal(t, flow.StatusCompleted, store.State(job.ID))
	assert.Nil(t, store.Output(job.ID))
}

func TestSlabToAdsSlabMakerUnknownAdsorbate(t *testing.T) {
	env := fakeEnv(t)
	job := NewSlabToAdsSlabMaker(env).Make(structure.MustEncode(squareSlab()), "C60", nil)

	_, err := flow.NewRunner().Run(context.Background(), flow.NewFlow("bad").Add(job))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownAdsorbate)
}

func TestMakerFailurePropagatesAsJobError(t *testing.T) {
	env := fakeEnv(t)
	env.Command = "exit 1"
	job := NewStaticMaker(env).Make(structure.MustEncode(fccCu()), nil)

	_, err := flow.NewRunner().Run(context.Background(), flow.NewFlow("fail").Add(job))
	require.Error(t, err)
	assert.True(t, errors.IsJobError(err))
}

func TestDecodeAtomsRejectsBadInput(t *testing.T) {
	_, err := decodeAtoms(map[string]interface{}{"atoms": 42}, "atoms")
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)

	_, err = decodeAtoms(map[string]interface{}{}, "atoms")
	assert.ErrorIs(t, err, errors.ErrInvalidParameter)
}

func TestMergeFlagsOrder(t *testing.T) {
	merged := mergeFlags(
		vasp.Parameters{"nsw": 200, "sigma": 0.05},
		vasp.Parameters{"nsw": 0},
	)
	v, _ := merged.Int("nsw")
	assert.Equal(t, 0, v)
	f, _ := merged.Float("sigma")
	assert.InDelta(t, 0.05, f, 1e-12)
}

func TestResolveAdsorbateEncodedStructure(t *testing.T) {
	mol, err := structure.BuiltinMolecule("CO")
	require.NoError(t, err)

	got, err := resolveAdsorbate(map[string]interface{}{
		"adsorbate": structure.MustEncode(mol),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "O"}, got.Symbols)

	_, err = resolveAdsorbate(map[string]interface{}{"adsorbate": "C60"})
	assert.ErrorIs(t, err, errors.ErrUnknownAdsorbate)
}
