package vasp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vaspflow/internal/structure"
	"vaspflow/pkg/logger"
)

// Non-INCAR bookkeeping keys that never appear in the INCAR file.
var nonIncarKeys = map[string]bool{
	"kpts":       true,
	"gamma":      true,
	"reciprocal": true,
	"xc":         true,
	"setups":     true,
	"ldau_luj":   true,
}

// Calculator holds a fully resolved calculation: the structure, the
// final parameter set and the k-point sampling. Command selection and
// execution live here; everything upstream only builds state.
type Calculator struct {
	Structure  *structure.Structure
	Parameters Parameters
	Kpoints    *Kpoints

	// Command runs VASP; GammaCommand, when set, is preferred for
	// gamma-point-only grids.
	Command      string
	GammaCommand string

	// perm maps POSCAR row order back to structure order, set by
	// WriteInputs and used when parsing per-atom outputs.
	perm []int
}

// Results are the parsed outputs of a completed run.
type Results struct {
	Energy  float64
	Forces  [][3]float64
	Magmoms []float64
}

// WriteInputs renders INCAR, KPOINTS and POSCAR into dir.
func (c *Calculator) WriteInputs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "INCAR"), []byte(c.renderIncar()), 0o644); err != nil {
		return fmt.Errorf("writing INCAR: %w", err)
	}
	if c.Kpoints != nil {
		if err := os.WriteFile(filepath.Join(dir, "KPOINTS"), []byte(c.renderKpoints()), 0o644); err != nil {
			return fmt.Errorf("writing KPOINTS: %w", err)
		}
	}
	poscar, perm := RenderPOSCAR(c.Structure)
	c.perm = perm
	if err := os.WriteFile(filepath.Join(dir, "POSCAR"), []byte(poscar), 0o644); err != nil {
		return fmt.Errorf("writing POSCAR: %w", err)
	}
	return nil
}

// Execute writes the inputs, runs VASP in dir and parses the outputs.
// The call blocks until the process exits; cancellation is handled at
// the workflow layer between jobs, never by killing a half-written run.
func (c *Calculator) Execute(dir string) (*Results, error) {
	log := logger.WithField("component", "vasp-runner")

	if err := c.WriteInputs(dir); err != nil {
		return nil, err
	}

	command := c.Command
	if c.GammaCommand != "" && c.Kpoints != nil && len(c.Kpoints.Points) == 0 && c.Kpoints.Product() == 1 {
		command = c.GammaCommand
	}
	if command == "" {
		return nil, fmt.Errorf("no VASP command configured")
	}

	log.Info("starting VASP", "dir", dir, "command", command)
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir

	outFile, err := os.Create(filepath.Join(dir, "vasp.out"))
	if err != nil {
		return nil, fmt.Errorf("creating vasp.out: %w", err)
	}
	defer outFile.Close()
	cmd.Stdout = outFile
	cmd.Stderr = outFile

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("VASP exited with an error: %w", err)
	}

	results, err := c.ParseOutputs(dir)
	if err != nil {
		return nil, err
	}
	log.Info("VASP finished", "dir", dir, "energy", results.Energy)
	return results, nil
}

// ParseOutputs reads OUTCAR and OSZICAR from a completed run directory.
// Per-atom quantities are returned in structure order.
func (c *Calculator) ParseOutputs(dir string) (*Results, error) {
	outcar, err := os.ReadFile(filepath.Join(dir, "OUTCAR"))
	if err != nil {
		return nil, fmt.Errorf("reading OUTCAR: %w", err)
	}
	results, err := parseOutcar(string(outcar), c.Structure.Len())
	if err != nil {
		return nil, err
	}

	// OSZICAR's final E0 is the sigma->0 energy, preferred when present.
	if oszicar, err := os.ReadFile(filepath.Join(dir, "OSZICAR")); err == nil {
		if e0, ok := parseOszicarE0(string(oszicar)); ok {
			results.Energy = e0
		}
	}

	if c.perm != nil {
		results.Forces = permuteVectors(results.Forces, c.perm)
		results.Magmoms = permuteFloats(results.Magmoms, c.perm)
	}
	return results, nil
}

// renderIncar produces the INCAR text: sorted upper-case keys, with
// ldau_luj expanded into the per-species LDAU arrays.
func (c *Calculator) renderIncar() string {
	params := c.Parameters.Copy()
	if luj, ok := params.Map("ldau_luj"); ok {
		expandLdau(params, luj, c.Structure)
	}

	var b strings.Builder
	for _, key := range params.Keys() {
		if nonIncarKeys[key] {
			continue
		}
		v, _ := params.Get(key)
		fmt.Fprintf(&b, "%s = %s\n", strings.ToUpper(key), formatValue(v))
	}
	return b.String()
}

// expandLdau turns the ldau_luj mapping into LDAU/LDAUL/LDAUU/LDAUJ in
// POSCAR species order. Species without an entry get L=-1, U=J=0.
func expandLdau(params Parameters, luj map[string]interface{}, s *structure.Structure) {
	species := speciesOrder(s)
	ls := make([]int, len(species))
	us := make([]float64, len(species))
	js := make([]float64, len(species))
	for i, sym := range species {
		ls[i] = -1
		entry, ok := luj[sym].(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := numberValue(entry["L"]); ok {
			ls[i] = int(v)
		}
		us[i], _ = numberValue(entry["U"])
		js[i], _ = numberValue(entry["J"])
	}
	params.Set("ldau", true)
	params.Set("ldaul", ls)
	params.Set("ldauu", us)
	params.Set("ldauj", js)
}

func (c *Calculator) renderKpoints() string {
	k := c.Kpoints
	var b strings.Builder

	if len(k.Points) > 0 {
		fmt.Fprintf(&b, "Explicit k-points\n%d\nReciprocal\n", len(k.Points))
		for _, p := range k.Points {
			fmt.Fprintf(&b, "%.10f %.10f %.10f 1\n", p[0], p[1], p[2])
		}
		return b.String()
	}

	style := "Monkhorst-Pack"
	if k.Gamma {
		style = "Gamma"
	}
	fmt.Fprintf(&b, "Automatic mesh\n0\n%s\n%d %d %d\n0 0 0\n", style, k.Grid[0], k.Grid[1], k.Grid[2])
	return b.String()
}

func parseOutcar(text string, natoms int) (*Results, error) {
	lines := strings.Split(text, "\n")
	results := &Results{}
	haveEnergy := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if strings.Contains(line, "free  energy   TOTEN") {
			fields := strings.Fields(line)
			// "free energy TOTEN = <value> eV"
			for j, f := range fields {
				if f == "=" && j+1 < len(fields) {
					if v, err := strconv.ParseFloat(fields[j+1], 64); err == nil {
						results.Energy = v
						haveEnergy = true
					}
				}
			}
		}

		if strings.Contains(line, "TOTAL-FORCE (eV/Angst)") {
			forces, ok := parseForceBlock(lines, i+2, natoms)
			if ok {
				results.Forces = forces
			}
		}

		if strings.Contains(line, "magnetization (x)") {
			if mags, ok := parseMagnetizationBlock(lines, i, natoms); ok {
				results.Magmoms = mags
			}
		}
	}

	if !haveEnergy {
		return nil, fmt.Errorf("OUTCAR has no total energy; the run did not complete")
	}
	return results, nil
}

func parseForceBlock(lines []string, start, natoms int) ([][3]float64, bool) {
	if start+natoms > len(lines) {
		return nil, false
	}
	forces := make([][3]float64, natoms)
	for i := 0; i < natoms; i++ {
		fields := strings.Fields(lines[start+i])
		if len(fields) < 6 {
			return nil, false
		}
		for d := 0; d < 3; d++ {
			v, err := strconv.ParseFloat(fields[3+d], 64)
			if err != nil {
				return nil, false
			}
			forces[i][d] = v
		}
	}
	return forces, true
}

// parseMagnetizationBlock reads the per-ion table that follows a
// "magnetization (x)" header; the total moment is the final column.
func parseMagnetizationBlock(lines []string, headerIdx, natoms int) ([]float64, bool) {
	// Skip forward to the first numbered ion row.
	i := headerIdx + 1
	for ; i < len(lines); i++ {
		fields := strings.Fields(lines[i])
		if len(fields) >= 2 && fields[0] == "1" {
			break
		}
		if i > headerIdx+8 {
			return nil, false
		}
	}
	if i+natoms > len(lines) {
		return nil, false
	}
	mags := make([]float64, natoms)
	for n := 0; n < natoms; n++ {
		fields := strings.Fields(lines[i+n])
		if len(fields) < 2 {
			return nil, false
		}
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return nil, false
		}
		mags[n] = v
	}
	return mags, true
}

func parseOszicarE0(text string) (float64, bool) {
	var e0 float64
	found := false
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, "E0=")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len("E0="):])
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			e0 = v
			found = true
		}
	}
	return e0, found
}

// permuteVectors maps POSCAR-ordered rows back to structure order:
// perm[i] is the structure index of POSCAR row i.
func permuteVectors(rows [][3]float64, perm []int) [][3]float64 {
	if rows == nil {
		return nil
	}
	out := make([][3]float64, len(rows))
	for i, row := range rows {
		out[perm[i]] = row
	}
	return out
}

func permuteFloats(vals []float64, perm []int) []float64 {
	if vals == nil {
		return nil
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[perm[i]] = v
	}
	return out
}
