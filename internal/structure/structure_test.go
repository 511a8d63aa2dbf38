package structure

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaspflow/pkg/errors"
)

// fccCu builds the conventional fcc Cu cell (4 atoms, a = 3.615).
func fccCu() *Structure {
	a := 3.615
	s := New(CubicLattice(a))
	s.AddAtom("Cu", [3]float64{0, 0, 0})
	s.AddAtom("Cu", [3]float64{0, a / 2, a / 2})
	s.AddAtom("Cu", [3]float64{a / 2, 0, a / 2})
	s.AddAtom("Cu", [3]float64{a / 2, a / 2, 0})
	return s
}

func TestLattice_Volume(t *testing.T) {
	l := CubicLattice(3.615)
	assert.InDelta(t, 3.615*3.615*3.615, l.Volume(), 1e-10)
}

func TestLattice_Reciprocal(t *testing.T) {
	l := CubicLattice(2.0)
	rec := l.Reciprocal()
	assert.InDelta(t, math.Pi, rec[0][0], 1e-12)
	assert.InDelta(t, 0, rec[0][1], 1e-12)
	// Reciprocal volume of a cube of side a is (2*pi/a)^3.
	assert.InDelta(t, math.Pow(math.Pi, 3), rec.Volume(), 1e-9)
}

func TestLattice_FracCartRoundTrip(t *testing.T) {
	l := Lattice{{4, 0, 0}, {1, 3, 0}, {0.5, 0.2, 6}}
	f := [3]float64{0.21, 0.77, 0.35}
	back := l.CartToFrac(l.FracToCart(f))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, f[i], back[i], 1e-12)
	}
}

func TestLattice_Classification(t *testing.T) {
	assert.True(t, CubicLattice(3.0).IsCubic())
	assert.False(t, CubicLattice(3.0).IsHexagonal())

	hex := Lattice{
		{2.46, 0, 0},
		{-1.23, 2.46 * math.Sqrt(3) / 2, 0},
		{0, 0, 6.70},
	}
	assert.True(t, hex.IsHexagonal())
	assert.False(t, hex.IsCubic())
}

func TestStructure_CopyIsDeep(t *testing.T) {
	s := fccCu()
	s.SetInitialMagmoms([]float64{1, 1, 1, 1})
	s.Info["slab_stats"] = map[string]interface{}{"shift": 0.25}

	c := s.Copy()
	c.Positions[0][2] = 99
	c.InitialMagmoms[0] = -5
	c.Info["slab_stats"].(map[string]interface{})["shift"] = 0.5

	assert.Equal(t, 0.0, s.Positions[0][2])
	assert.Equal(t, 1.0, s.InitialMagmoms[0])
	assert.Equal(t, 0.25, s.Info["slab_stats"].(map[string]interface{})["shift"])
}

func TestStructure_Supercell(t *testing.T) {
	s := fccCu()
	sc := s.Supercell(2, 3, 1)

	assert.Equal(t, 4*6, sc.Len())
	assert.InDelta(t, 2*3.615, sc.Lattice.Lengths()[0], 1e-10)
	assert.InDelta(t, 3*3.615, sc.Lattice.Lengths()[1], 1e-10)
	assert.InDelta(t, 3.615, sc.Lattice.Lengths()[2], 1e-10)
}

func TestStructure_FlipZPreservesFormula(t *testing.T) {
	s := fccCu()
	s.AddAtom("O", [3]float64{1.0, 1.0, 2.5})
	s.Info["origin"] = "test"

	flipped := s.FlipZ()

	assert.Equal(t, s.ChemicalFormula(), flipped.ChemicalFormula())
	assert.Equal(t, "test", flipped.Info["origin"])

	// All atoms must sit inside the cell after the flip.
	for _, f := range flipped.FracCoords() {
		for i := 0; i < 3; i++ {
			assert.GreaterOrEqual(t, f[i], -1e-9)
			assert.Less(t, f[i], 1.0+1e-9)
		}
	}
}

func TestStructure_Wrap(t *testing.T) {
	s := New(CubicLattice(4))
	s.AddAtom("Cu", [3]float64{-1, 5, 9})
	s.Wrap()

	want := [3]float64{3, 1, 1}
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], s.Positions[0][i], 1e-9)
	}
}

func TestStructure_DistanceMIC(t *testing.T) {
	s := New(CubicLattice(4))
	s.AddAtom("Cu", [3]float64{0.2, 0, 0})
	s.AddAtom("Cu", [3]float64{3.8, 0, 0})

	// Across the boundary the separation is 0.4, not 3.6.
	assert.InDelta(t, 0.4, s.DistanceMIC(0, 1), 1e-9)

	d := s.DistanceMatrixMIC()
	assert.InDelta(t, 0.4, d[0][1], 1e-9)
	assert.InDelta(t, 0.4, d[1][0], 1e-9)
	assert.Equal(t, 0.0, d[0][0])
}

func TestStructure_ChemicalFormula_HillOrder(t *testing.T) {
	s := New(CubicLattice(10))
	s.AddAtom("O", [3]float64{0, 0, 0})
	s.AddAtom("H", [3]float64{1, 0, 0})
	s.AddAtom("C", [3]float64{2, 0, 0})
	s.AddAtom("H", [3]float64{3, 0, 0})

	assert.Equal(t, "CH2O", s.ChemicalFormula())
}

func TestAtomicNumber(t *testing.T) {
	assert.Equal(t, 29, AtomicNumber("Cu"))
	assert.Equal(t, 58, AtomicNumber("Ce"))
	assert.Equal(t, 0, AtomicNumber("Xx"))
}

func TestBuiltinMolecule(t *testing.T) {
	co, err := BuiltinMolecule("CO")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "O"}, co.Symbols)
	assert.False(t, co.Periodic)
	assert.False(t, co.HasInitialMagmoms())

	// O2 is the one entry that ships with moments (triplet ground state).
	o2, err := BuiltinMolecule("O2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 1.0}, o2.InitialMagmoms)

	_, err = BuiltinMolecule("H3O")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownAdsorbate))
}

func TestBuiltinMolecule_ReturnsFreshCopy(t *testing.T) {
	a, err := BuiltinMolecule("H2O")
	require.NoError(t, err)
	a.Positions[0][0] = 42

	b, err := BuiltinMolecule("H2O")
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.Positions[0][0])
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := fccCu()
	s.SetInitialMagmoms([]float64{0.5, 0.5, 0.5, 0.5})
	s.Free = []bool{true, true, false, false}
	s.Info["slab_stats"] = map[string]interface{}{
		"miller_index": []interface{}{1.0, 1.0, 1.0},
		"shift":        0.125,
	}

	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	if diff := cmp.Diff(s.Positions, got.Positions); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, s.Symbols, got.Symbols)
	assert.Equal(t, s.Lattice, got.Lattice)
	assert.Equal(t, s.InitialMagmoms, got.InitialMagmoms)
	assert.Equal(t, s.Free, got.Free)
	assert.Equal(t, s.Info, got.Info)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode("{not json")
	assert.Error(t, err)
}
