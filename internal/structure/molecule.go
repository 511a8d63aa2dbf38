package structure

import (
	"fmt"
	"sort"

	"vaspflow/pkg/errors"
)

// builtinMolecules is the small molecule table used to resolve string
// adsorbate names. Geometries are oriented so the coordinating atom sits
// lowest along z, which is the orientation the adsorbate placer preserves.
// Only O2 carries default initial moments; silently magnetizing every
// molecule is left to the caller.
var builtinMolecules = map[string]func() *Structure{
	"H":  func() *Structure { return newMolecule([]string{"H"}, [][3]float64{{0, 0, 0}}) },
	"O":  func() *Structure { return newMolecule([]string{"O"}, [][3]float64{{0, 0, 0}}) },
	"N":  func() *Structure { return newMolecule([]string{"N"}, [][3]float64{{0, 0, 0}}) },
	"H2": func() *Structure { return newMolecule([]string{"H", "H"}, [][3]float64{{0, 0, 0}, {0, 0, 0.741}}) },
	"N2": func() *Structure { return newMolecule([]string{"N", "N"}, [][3]float64{{0, 0, 0}, {0, 0, 1.098}}) },
	"O2": func() *Structure {
		m := newMolecule([]string{"O", "O"}, [][3]float64{{0, 0, 0}, {0, 0, 1.208}})
		m.SetInitialMagmoms([]float64{1.0, 1.0})
		return m
	},
	"OH": func() *Structure { return newMolecule([]string{"O", "H"}, [][3]float64{{0, 0, 0}, {0, 0, 0.970}}) },
	"CO": func() *Structure { return newMolecule([]string{"C", "O"}, [][3]float64{{0, 0, 0}, {0, 0, 1.128}}) },
	"NO": func() *Structure { return newMolecule([]string{"N", "O"}, [][3]float64{{0, 0, 0}, {0, 0, 1.154}}) },
	"CO2": func() *Structure {
		return newMolecule([]string{"O", "C", "O"},
			[][3]float64{{0, 0, 0}, {0, 0, 1.163}, {0, 0, 2.326}})
	},
	"H2O": func() *Structure {
		return newMolecule([]string{"O", "H", "H"},
			[][3]float64{{0, 0, 0}, {0.758, 0, 0.587}, {-0.758, 0, 0.587}})
	},
	"NH3": func() *Structure {
		return newMolecule([]string{"N", "H", "H", "H"},
			[][3]float64{
				{0, 0, 0},
				{0.938, 0, 0.381},
				{-0.469, 0.812, 0.381},
				{-0.469, -0.812, 0.381},
			})
	},
	"CH3": func() *Structure {
		return newMolecule([]string{"C", "H", "H", "H"},
			[][3]float64{
				{0, 0, 0},
				{1.040, 0, 0.300},
				{-0.520, 0.901, 0.300},
				{-0.520, -0.901, 0.300},
			})
	},
	"CH4": func() *Structure {
		return newMolecule([]string{"C", "H", "H", "H", "H"},
			[][3]float64{
				{0, 0, 0},
				{0.628, 0.628, 0.628},
				{0.628, -0.628, -0.628},
				{-0.628, 0.628, -0.628},
				{-0.628, -0.628, 0.628},
			})
	},
}

func newMolecule(symbols []string, positions [][3]float64) *Structure {
	return &Structure{
		Symbols:   symbols,
		Positions: positions,
		Periodic:  false,
		Info:      make(map[string]interface{}),
	}
}

// BuiltinMolecule resolves an adsorbate name against the built-in table.
// The returned structure is a fresh copy, safe to mutate.
func BuiltinMolecule(name string) (*Structure, error) {
	build, ok := builtinMolecules[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, errors.ErrUnknownAdsorbate)
	}
	return build(), nil
}

// BuiltinMoleculeNames lists all resolvable adsorbate names, sorted.
func BuiltinMoleculeNames() []string {
	names := make([]string, 0, len(builtinMolecules))
	for name := range builtinMolecules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
