package vasp

import (
	"vaspflow/internal/structure"
)

// Summary is a flattened, serialization-safe record of one completed
// calculation: structure provenance, the inputs actually used and the
// parsed outputs. Built once and never mutated afterwards.
type Summary map[string]interface{}

// Summarize tabulates a finished run. The returned structure encoding
// has the final magnetic moments moved into the initial ones so it can
// seed a follow-up calculation directly.
func Summarize(calc *Calculator, results *Results, extra map[string]interface{}) Summary {
	next := calc.Structure.Copy()
	if results.Magmoms != nil {
		next.Magmoms = append([]float64(nil), results.Magmoms...)
		next.SetInitialMagmoms(results.Magmoms)
	}

	inputs := make(map[string]interface{}, len(calc.Parameters))
	for _, k := range calc.Parameters.Keys() {
		v, _ := calc.Parameters.Get(k)
		inputs[k] = v
	}

	summary := Summary{
		"formula":         calc.Structure.ChemicalFormula(),
		"natoms":          calc.Structure.Len(),
		"atoms":           structure.MustEncode(next),
		"inputs":          inputs,
		"energy":          results.Energy,
		"energy_per_atom": results.Energy / float64(calc.Structure.Len()),
	}
	if calc.Kpoints != nil {
		if len(calc.Kpoints.Points) > 0 {
			summary["nkpts"] = len(calc.Kpoints.Points)
		} else {
			summary["kpts"] = []int{calc.Kpoints.Grid[0], calc.Kpoints.Grid[1], calc.Kpoints.Grid[2]}
			summary["gamma"] = calc.Kpoints.Gamma
		}
	}
	if results.Forces != nil {
		summary["forces"] = results.Forces
	}
	if results.Magmoms != nil {
		summary["magmoms"] = results.Magmoms
	}
	for k, v := range extra {
		summary[k] = v
	}
	return summary
}
