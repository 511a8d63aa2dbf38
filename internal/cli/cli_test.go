package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaspflow/internal/structure"
	"vaspflow/internal/vasp"
	"vaspflow/pkg/errors"
)

func writeBulkPoscar(t *testing.T, dir string) string {
	t.Helper()
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
	path := filepath.Join(dir, "POSCAR")
	text, _ := vasp.RenderPOSCAR(s)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func writeSlabPoscar(t *testing.T, dir string) string {
	t.Helper()
	const a = 2.55
	s := structure.New(structure.Lattice{
		{2 * a, 0, 0},
		{0, 2 * a, 0},
		{0, 0, 20},
	})
	for _, xy := range [][2]float64{{0, 0}, {a, 0}, {0, a}, {a, a}} {
		s.AddAtom("Cu", [3]float64{xy[0], xy[1], 10})
	}
	path := filepath.Join(dir, "POSCAR_slab")
	text, _ := vasp.RenderPOSCAR(s)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSlabsCommandWritesPoscars(t *testing.T) {
	dir := t.TempDir()
	bulk := writeBulkPoscar(t, dir)
	out := filepath.Join(dir, "slabs")

	require.NoError(t, execute("slabs", bulk, "--output", out, "--max-slabs", "1"))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	slab, err := readStructure(filepath.Join(out, entries[0].Name()))
	require.NoError(t, err)
	assert.Greater(t, slab.Len(), 4)
}

func TestSlabsCommandFilterExcludesAll(t *testing.T) {
	dir := t.TempDir()
	bulk := writeBulkPoscar(t, dir)
	out := filepath.Join(dir, "slabs")

	require.NoError(t, execute("slabs", bulk, "--output", out, "--allowed-surface-atoms", "Pt"))

	_, err := os.ReadDir(out)
	assert.True(t, os.IsNotExist(err))
}

func TestAdsorbCommandWritesPlacements(t *testing.T) {
	dir := t.TempDir()
	slab := writeSlabPoscar(t, dir)
	out := filepath.Join(dir, "ads")

	require.NoError(t, execute("adsorb", slab, "--adsorbate", "H", "--modes", "ontop", "--output", out))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestAdsorbCommandConflictingOptions(t *testing.T) {
	dir := t.TempDir()
	slab := writeSlabPoscar(t, dir)

	err := execute("adsorb", slab, "--adsorbate", "H", "--adsorbate-file", slab)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflictingOptions)
}

func TestAdsorbCommandUnknownMolecule(t *testing.T) {
	dir := t.TempDir()
	slab := writeSlabPoscar(t, dir)

	err := execute("adsorb", slab, "--adsorbate", "C60", "--adsorbate-file", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownAdsorbate)
}

func TestRunCommandExecutesWorkflow(t *testing.T) {
	dir := t.TempDir()
	bulk := writeBulkPoscar(t, dir)

	outcar := filepath.Join(dir, "OUTCAR.fixture")
	require.NoError(t, os.WriteFile(outcar, []byte(
		"  free  energy   TOTEN  =       -27.200000 eV\n"), 0o644))

	t.Setenv("VASPFLOW_VASP_CMD", "cp "+outcar+" OUTCAR")
	t.Setenv("VASPFLOW_SCRATCH_ROOT", filepath.Join(dir, "scratch"))

	workflow := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflow, []byte(
		"name: cu-static\nrecipe: static\nstructure: "+bulk+"\n"), 0o644))

	require.NoError(t, execute("run", workflow))

	// The run directory holds the rendered inputs and captured output.
	scratch, err := os.ReadDir(filepath.Join(dir, "scratch"))
	require.NoError(t, err)
	require.Len(t, scratch, 1)
	incar, err := os.ReadFile(filepath.Join(dir, "scratch", scratch[0].Name(), "INCAR"))
	require.NoError(t, err)
	assert.Contains(t, string(incar), "NSW = 0")
}

func TestRunCommandUnknownRecipe(t *testing.T) {
	dir := t.TempDir()
	bulk := writeBulkPoscar(t, dir)

	workflow := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflow, []byte(
		"recipe: phonon\nstructure: "+bulk+"\n"), 0o644))

	err := execute("run", workflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestRunCommandMissingRecipe(t *testing.T) {
	dir := t.TempDir()
	workflow := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(workflow, []byte("name: empty\n"), 0o644))

	err := execute("run", workflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestVersionCommand(t *testing.T) {
	require.NoError(t, execute("version"))
}
