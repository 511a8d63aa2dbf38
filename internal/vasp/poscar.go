package vasp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vaspflow/internal/structure"
)

// speciesOrder returns the unique chemical symbols in order of first
// appearance, which fixes the POSCAR species blocks and the LDAU array
// ordering.
func speciesOrder(s *structure.Structure) []string {
	seen := make(map[string]bool)
	var order []string
	for _, sym := range s.Symbols {
		if !seen[sym] {
			seen[sym] = true
			order = append(order, sym)
		}
	}
	return order
}

// RenderPOSCAR writes a structure in VASP 5 POSCAR format with atoms
// grouped by species. The returned permutation maps each POSCAR row to
// its index in the structure, for realigning per-atom outputs.
func RenderPOSCAR(s *structure.Structure) (string, []int) {
	order := speciesOrder(s)
	var perm []int
	counts := make([]int, len(order))
	for gi, sym := range order {
		for i, atomSym := range s.Symbols {
			if atomSym == sym {
				perm = append(perm, i)
				counts[gi]++
			}
		}
	}

	selective := s.Free != nil

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n1.0\n", s.ChemicalFormula())
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, " %20.14f %20.14f %20.14f\n", s.Lattice[i][0], s.Lattice[i][1], s.Lattice[i][2])
	}
	b.WriteString(strings.Join(order, " ") + "\n")
	countStrs := make([]string, len(counts))
	for i, n := range counts {
		countStrs[i] = strconv.Itoa(n)
	}
	b.WriteString(strings.Join(countStrs, " ") + "\n")
	if selective {
		b.WriteString("Selective dynamics\n")
	}
	b.WriteString("Cartesian\n")

	for _, i := range perm {
		p := s.Positions[i]
		fmt.Fprintf(&b, " %20.14f %20.14f %20.14f", p[0], p[1], p[2])
		if selective {
			flag := "F F F"
			if s.Free[i] {
				flag = "T T T"
			}
			b.WriteString(" " + flag)
		}
		b.WriteString("\n")
	}
	return b.String(), perm
}

// ParsePOSCAR reads a VASP 5 POSCAR/CONTCAR. Both Direct and Cartesian
// coordinate blocks are supported, with optional selective dynamics.
func ParsePOSCAR(r io.Reader) (*structure.Structure, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading POSCAR: %w", err)
	}
	if len(lines) < 8 {
		return nil, fmt.Errorf("POSCAR too short: %d lines", len(lines))
	}

	scale, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("POSCAR scale factor: %w", err)
	}

	var lat structure.Lattice
	for i := 0; i < 3; i++ {
		fields := strings.Fields(lines[2+i])
		if len(fields) < 3 {
			return nil, fmt.Errorf("POSCAR lattice row %d malformed", i+1)
		}
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, fmt.Errorf("POSCAR lattice row %d: %w", i+1, err)
			}
			lat[i][j] = v * scale
		}
	}

	symbols := strings.Fields(lines[5])
	countFields := strings.Fields(lines[6])
	if len(symbols) != len(countFields) {
		return nil, fmt.Errorf("POSCAR species and count rows disagree")
	}
	var expanded []string
	for i, sym := range symbols {
		n, err := strconv.Atoi(countFields[i])
		if err != nil {
			return nil, fmt.Errorf("POSCAR species count: %w", err)
		}
		for j := 0; j < n; j++ {
			expanded = append(expanded, sym)
		}
	}

	idx := 7
	selective := false
	if len(lines) > idx && strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[idx])), "s") {
		selective = true
		idx++
	}
	if len(lines) <= idx {
		return nil, fmt.Errorf("POSCAR missing coordinate mode line")
	}
	mode := strings.ToLower(strings.TrimSpace(lines[idx]))
	cartesian := strings.HasPrefix(mode, "c") || strings.HasPrefix(mode, "k")
	idx++

	if len(lines) < idx+len(expanded) {
		return nil, fmt.Errorf("POSCAR has %d coordinate rows, want %d", len(lines)-idx, len(expanded))
	}

	s := structure.New(lat)
	var free []bool
	for i, sym := range expanded {
		fields := strings.Fields(lines[idx+i])
		if len(fields) < 3 {
			return nil, fmt.Errorf("POSCAR coordinate row %d malformed", i+1)
		}
		var coord [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, fmt.Errorf("POSCAR coordinate row %d: %w", i+1, err)
			}
			coord[j] = v
		}
		if cartesian {
			coord = [3]float64{coord[0] * scale, coord[1] * scale, coord[2] * scale}
		} else {
			coord = lat.FracToCart(coord)
		}
		s.AddAtom(sym, coord)

		if selective && len(fields) >= 6 {
			free = append(free, strings.EqualFold(fields[3], "T"))
		} else if selective {
			free = append(free, true)
		}
	}
	if selective {
		s.Free = free
	}
	return s, nil
}
