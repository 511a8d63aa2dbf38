// Package popanalysis wraps the external Bader and Chargemol charge
// partitioning tools, validating their VASP input files and parsing
// their outputs into per-atom summaries.
package popanalysis

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vaspflow/pkg/errors"
	"vaspflow/pkg/logger"
)

// requiredFiles must be present, plain or gzipped, before either tool
// can run.
var requiredFiles = []string{"CHGCAR", "AECCAR0", "AECCAR2", "POTCAR"}

// BaderOptions configures RunBader.
type BaderOptions struct {
	// Command invokes the bader executable; the density file argument is
	// appended per pass. Defaults to "bader".
	Command string
	// MagFile names an optional magnetization density file; when it is
	// present a second pass computes per-atom spin moments from it.
	MagFile string
}

// BaderSummary is the parsed result of a Bader analysis. An atom with a
// positive partial charge is cationic, a negative one anionic.
type BaderSummary struct {
	PartialCharges []float64 `json:"partial_charges"`
	SpinMoments    []float64 `json:"spin_moments,omitempty"`
	MinDists       []float64 `json:"min_dist"`
	AtomicVolumes  []float64 `json:"atomic_volume"`
	VacuumCharge   float64   `json:"vacuum_charge"`
	VacuumVolume   float64   `json:"vacuum_volume"`
	NElectrons     float64   `json:"nelectrons"`
}

// ChargemolOptions configures RunChargemol.
type ChargemolOptions struct {
	// Command invokes the chargemol executable. Defaults to "chargemol".
	Command string
	// AtomicDensitiesDir is the reference atomic density library the
	// DDEC6 method requires. Empty is a configuration error.
	AtomicDensitiesDir string
}

// ChargemolSummary is the parsed result of a DDEC6 + CM5 analysis.
type ChargemolSummary struct {
	DDEC DDECSummary `json:"ddec"`
	CM5  CM5Summary  `json:"cm5"`
}

type DDECSummary struct {
	PartialCharges []float64 `json:"partial_charges"`
	SpinMoments    []float64 `json:"spin_moments,omitempty"`
	BondOrderSums  []float64 `json:"bond_order_sums,omitempty"`
}

type CM5Summary struct {
	PartialCharges []float64 `json:"partial_charges,omitempty"`
}

// RunBader runs a Bader charge analysis on the VASP outputs in dir.
// Partial charges are reported relative to the POTCAR valence counts so
// positive means cationic.
func RunBader(dir string, opts BaderOptions) (*BaderSummary, error) {
	log := logger.WithField("component", "bader")
	if opts.Command == "" {
		opts.Command = "bader"
	}
	if opts.MagFile == "" {
		opts.MagFile = "CHGCAR_mag"
	}

	if err := checkRequiredFiles(dir); err != nil {
		return nil, err
	}
	for _, name := range requiredFiles {
		if err := ensurePlain(dir, name); err != nil {
			return nil, errors.WrapAnalysisError("bader", dir, err)
		}
	}

	log.Info("running bader", "dir", dir)
	if err := runTool(dir, opts.Command+" CHGCAR"); err != nil {
		return nil, errors.WrapAnalysisError("bader", dir, err)
	}

	acf, err := os.ReadFile(filepath.Join(dir, "ACF.dat"))
	if err != nil {
		return nil, errors.WrapAnalysisError("bader", dir, fmt.Errorf("reading ACF.dat: %w", err))
	}
	charges, summary, err := parseACF(string(acf))
	if err != nil {
		return nil, errors.WrapAnalysisError("bader", dir, err)
	}

	zvals, err := perAtomZvals(dir, len(charges))
	if err != nil {
		return nil, errors.WrapAnalysisError("bader", dir, err)
	}
	summary.PartialCharges = make([]float64, len(charges))
	for i, c := range charges {
		summary.PartialCharges[i] = zvals[i] - c
	}

	// A spin-resolved run reuses ACF.dat, so the charge pass above has
	// already been captured before this overwrites it.
	if fileExists(filepath.Join(dir, opts.MagFile)) || fileExists(filepath.Join(dir, opts.MagFile+".gz")) {
		if err := ensurePlain(dir, opts.MagFile); err != nil {
			return nil, errors.WrapAnalysisError("bader", dir, err)
		}
		log.Info("running bader on the magnetization density", "dir", dir, "file", opts.MagFile)
		if err := runTool(dir, opts.Command+" "+opts.MagFile); err != nil {
			return nil, errors.WrapAnalysisError("bader", dir, err)
		}
		magACF, err := os.ReadFile(filepath.Join(dir, "ACF.dat"))
		if err != nil {
			return nil, errors.WrapAnalysisError("bader", dir, err)
		}
		moments, _, err := parseACF(string(magACF))
		if err != nil {
			return nil, errors.WrapAnalysisError("bader", dir, err)
		}
		summary.SpinMoments = moments
	}

	return summary, nil
}

// RunChargemol runs a DDEC6 analysis on the VASP outputs in dir.
func RunChargemol(dir string, opts ChargemolOptions) (*ChargemolSummary, error) {
	log := logger.WithField("component", "chargemol")
	if opts.Command == "" {
		opts.Command = "chargemol"
	}
	if opts.AtomicDensitiesDir == "" {
		return nil, errors.WrapConfigError("chargemol", "atomic_densities_dir",
			fmt.Errorf("%w: no atomic densities directory configured", errors.ErrInvalidConfig))
	}

	if err := checkRequiredFiles(dir); err != nil {
		return nil, err
	}

	if err := writeJobControl(dir, opts.AtomicDensitiesDir); err != nil {
		return nil, errors.WrapAnalysisError("chargemol", dir, err)
	}

	log.Info("running chargemol", "dir", dir)
	if err := runTool(dir, opts.Command); err != nil {
		return nil, errors.WrapAnalysisError("chargemol", dir, err)
	}

	summary := &ChargemolSummary{}
	chargeFile := filepath.Join(dir, "DDEC6_even_tempered_net_atomic_charges.xyz")
	data, err := os.ReadFile(chargeFile)
	if err != nil {
		return nil, errors.WrapAnalysisError("chargemol", dir,
			fmt.Errorf("%w: DDEC6_even_tempered_net_atomic_charges.xyz", errors.ErrMissingOutputFile))
	}
	charges, err := parseChargemolXYZ(string(data))
	if err != nil {
		return nil, errors.WrapAnalysisError("chargemol", dir, err)
	}
	summary.DDEC.PartialCharges = charges
	summary.CM5.PartialCharges = parseCM5Section(string(data), len(charges))

	if data, err := os.ReadFile(filepath.Join(dir, "DDEC6_even_tempered_atomic_spin_moments.xyz")); err == nil {
		if moments, err := parseChargemolXYZ(string(data)); err == nil {
			summary.DDEC.SpinMoments = moments
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "DDEC6_even_tempered_bond_orders.xyz")); err == nil {
		if sums, err := parseChargemolXYZ(string(data)); err == nil {
			summary.DDEC.BondOrderSums = sums
		}
	}

	return summary, nil
}

// checkRequiredFiles verifies the four VASP density/potential files are
// present in plain or gzipped form; the error names the missing file.
func checkRequiredFiles(dir string) error {
	for _, name := range requiredFiles {
		if !fileExists(filepath.Join(dir, name)) && !fileExists(filepath.Join(dir, name+".gz")) {
			return fmt.Errorf("%w: %s in %s", errors.ErrMissingOutputFile, name, dir)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensurePlain decompresses name.gz into name when only the compressed
// form is present. The external tools read only plain files.
func ensurePlain(dir, name string) error {
	plain := filepath.Join(dir, name)
	if fileExists(plain) {
		return nil
	}
	gzPath := plain + ".gz"
	in, err := os.Open(gzPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", gzPath, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", gzPath, err)
	}
	defer zr.Close()

	out, err := os.Create(plain)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, zr); err != nil {
		return fmt.Errorf("decompressing %s: %w", gzPath, err)
	}
	return nil
}

func runTool(dir, command string) error {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %s", errors.ErrAnalysisFailed, err, firstLine(output))
	}
	return nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// parseACF reads bader's ACF.dat: per-atom rows of index, position,
// charge, min dist and volume, then a footer with vacuum totals.
func parseACF(text string) ([]float64, *BaderSummary, error) {
	summary := &BaderSummary{}
	var charges []float64

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "-") {
			continue
		}

		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "VACUUM CHARGE"):
			summary.VacuumCharge = footerValue(trimmed)
			continue
		case strings.HasPrefix(upper, "VACUUM VOLUME"):
			summary.VacuumVolume = footerValue(trimmed)
			continue
		case strings.HasPrefix(upper, "NUMBER OF ELECTRONS"):
			summary.NElectrons = footerValue(trimmed)
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 7 {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		charge, err1 := strconv.ParseFloat(fields[4], 64)
		minDist, err2 := strconv.ParseFloat(fields[5], 64)
		vol, err3 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, nil, fmt.Errorf("malformed ACF.dat row: %q", trimmed)
		}
		charges = append(charges, charge)
		summary.MinDists = append(summary.MinDists, minDist)
		summary.AtomicVolumes = append(summary.AtomicVolumes, vol)
	}

	if len(charges) == 0 {
		return nil, nil, fmt.Errorf("ACF.dat has no atom rows")
	}
	return charges, summary, nil
}

func footerValue(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	v, _ := strconv.ParseFloat(fields[len(fields)-1], 64)
	return v
}

// perAtomZvals expands the POTCAR valence counts to one entry per atom
// using the species counts in the CHGCAR header.
func perAtomZvals(dir string, natoms int) ([]float64, error) {
	if err := ensurePlain(dir, "POTCAR"); err != nil {
		return nil, err
	}
	potcar, err := os.ReadFile(filepath.Join(dir, "POTCAR"))
	if err != nil {
		return nil, err
	}
	speciesZvals := parsePotcarZvals(string(potcar))
	if len(speciesZvals) == 0 {
		return nil, fmt.Errorf("POTCAR has no ZVAL entries")
	}

	counts, err := chgcarSpeciesCounts(dir)
	if err != nil {
		return nil, err
	}
	if len(counts) != len(speciesZvals) {
		return nil, fmt.Errorf("POTCAR has %d species but CHGCAR lists %d", len(speciesZvals), len(counts))
	}

	var zvals []float64
	for i, n := range counts {
		for j := 0; j < n; j++ {
			zvals = append(zvals, speciesZvals[i])
		}
	}
	if len(zvals) != natoms {
		return nil, fmt.Errorf("CHGCAR lists %d atoms but ACF.dat has %d", len(zvals), natoms)
	}
	return zvals, nil
}

// parsePotcarZvals extracts one valence electron count per species block.
func parsePotcarZvals(text string) []float64 {
	var zvals []float64
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, "ZVAL")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("ZVAL"):]
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "="))
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], ";"), 64); err == nil {
			zvals = append(zvals, v)
		}
	}
	return zvals
}

// chgcarSpeciesCounts reads the POSCAR-style header of CHGCAR for the
// per-species atom counts.
func chgcarSpeciesCounts(dir string) ([]int, error) {
	if err := ensurePlain(dir, "CHGCAR"); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, "CHGCAR"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 4096)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, err
	}
	lines := strings.Split(string(header[:n]), "\n")
	if len(lines) < 7 {
		return nil, fmt.Errorf("CHGCAR header too short")
	}
	var counts []int
	for _, field := range strings.Fields(lines[6]) {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("CHGCAR species counts: %w", err)
		}
		counts = append(counts, v)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("CHGCAR has no species counts")
	}
	return counts, nil
}

// writeJobControl emits the chargemol input file pointing at the atomic
// density library.
func writeJobControl(dir, densitiesDir string) error {
	if !strings.HasSuffix(densitiesDir, string(os.PathSeparator)) {
		densitiesDir += string(os.PathSeparator)
	}
	var b strings.Builder
	b.WriteString("<atomic densities directory complete path>\n")
	b.WriteString(densitiesDir + "\n")
	b.WriteString("</atomic densities directory complete path>\n\n")
	b.WriteString("<charge type>\nDDEC6\n</charge type>\n\n")
	b.WriteString("<compute BOs>\n.true.\n</compute BOs>\n")
	return os.WriteFile(filepath.Join(dir, "job_control.txt"), []byte(b.String()), 0o644)
}

// parseChargemolXYZ reads an extended xyz written by chargemol: an atom
// count, a comment, then per-atom rows whose fifth column is the value.
func parseChargemolXYZ(text string) ([]float64, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("chargemol xyz too short")
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("chargemol xyz atom count: %w", err)
	}
	if len(lines) < 2+natoms {
		return nil, fmt.Errorf("chargemol xyz has %d rows, want %d", len(lines)-2, natoms)
	}
	values := make([]float64, natoms)
	for i := 0; i < natoms; i++ {
		fields := strings.Fields(lines[2+i])
		if len(fields) < 5 {
			return nil, fmt.Errorf("malformed chargemol xyz row: %q", lines[2+i])
		}
		v, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed chargemol xyz row: %q", lines[2+i])
		}
		values[i] = v
	}
	return values, nil
}

// parseCM5Section scans past the CM5 marker in the net atomic charges
// file and collects one value per atom from the rows that follow.
// Returns nil when the section is absent.
func parseCM5Section(text string, natoms int) []float64 {
	idx := strings.Index(text, "CM5")
	if idx < 0 {
		return nil
	}
	var values []float64
	for _, line := range strings.Split(text[idx:], "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		rowDone := false
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				rowDone = true
				break
			}
			values = append(values, v)
			if len(values) == natoms {
				return values
			}
		}
		if rowDone && len(values) > 0 {
			break
		}
	}
	if len(values) == natoms {
		return values
	}
	return nil
}
