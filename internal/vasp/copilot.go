package vasp

import (
	"fmt"
	"math"
	"strings"

	"vaspflow/internal/structure"
	"vaspflow/pkg/errors"
	"vaspflow/pkg/logger"
)

// ConfigureOptions controls Configure. Zero values mean "use the
// defaults from DefaultConfigureOptions", which callers should start
// from; the struct mirrors how workflows hand tuning knobs downward.
type ConfigureOptions struct {
	// Preset names a parameter preset, resolved via LoadPreset.
	Preset string
	// PresetDir is where named presets live.
	PresetDir string
	// Overrides are caller parameters layered on top of the preset.
	// A nil value removes the preset's key.
	Overrides Parameters

	// IncarCopilot enables the parameter adjustment rules.
	IncarCopilot bool
	// ForceGamma requests gamma-centered grids from the k-point schemes.
	ForceGamma bool
	// CopyMagmoms moves converged magnetic moments into the initial
	// moments when any exceed MagCutoff in magnitude.
	CopyMagmoms bool
	MagCutoff   float64
	// Verbose emits a warning for every copilot adjustment.
	Verbose bool

	// VdwKernelDir is the location of the vdW kernel data. Empty means
	// unavailable, which makes vdW functionals a configuration error.
	VdwKernelDir string
}

// DefaultConfigureOptions returns the standard knob settings.
func DefaultConfigureOptions() ConfigureOptions {
	return ConfigureOptions{
		IncarCopilot: true,
		ForceGamma:   true,
		CopyMagmoms:  true,
		MagCutoff:    0.05,
		Verbose:      true,
	}
}

// Configure resolves the full calculator setup for a structure: preset
// plus overrides, convenience-key expansion, automatic k-points, magmom
// policy, flag cleanup and the copilot rules. The input structure is not
// modified; the returned Calculator holds its own copy. Configure is
// deterministic and idempotent for fixed inputs.
func Configure(s *structure.Structure, opts ConfigureOptions) (*Calculator, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("%w: structure is empty", errors.ErrInvalidParameter)
	}
	log := logger.WithField("component", "incar-copilot")
	s = s.Copy()

	preset, err := LoadPreset(opts.Preset, opts.PresetDir)
	if err != nil {
		return nil, err
	}

	params := preset.Copy()
	params.Merge(opts.Overrides)

	// An explicit caller kpts or ediff beats the preset's convenience
	// key for the same concern.
	if opts.Overrides.Has("kpts") && preset.Has("auto_kpts") {
		params.Delete("auto_kpts")
	}
	if opts.Overrides.Has("ediff") && preset.Has("ediff_per_atom") {
		params.Delete("ediff_per_atom")
	}

	// An explicit gamma setting wins over ForceGamma.
	forceGamma := opts.ForceGamma
	userGamma := false
	if g, ok := params.Bool("gamma"); ok {
		userGamma = true
		if !g && forceGamma && opts.Verbose {
			log.Warn("gamma-centering forced but gamma explicitly disabled, honoring the explicit setting")
		}
		forceGamma = g
	}

	// Consume the convenience keys; they never reach the INCAR.
	elementalMags, _ := params.Map("elemental_magmoms")
	params.Delete("elemental_magmoms")
	autoKpts, hasAutoKpts := params.Map("auto_kpts")
	params.Delete("auto_kpts")
	ediffPerAtom, hasEdiffPerAtom := params.Float("ediff_per_atom")
	params.Delete("ediff_per_atom")
	autoDipole := params.BoolOr("auto_dipole", false)
	params.Delete("auto_dipole")

	if autoDipole {
		applyAutoDipole(s, params)
	}

	var kpts *Kpoints
	if hasAutoKpts {
		kpts, err = resolveAutoKpts(s, autoKpts, forceGamma)
		if err != nil {
			return nil, err
		}
		if len(kpts.Points) > 0 {
			params.Set("reciprocal", true)
		} else {
			params.Set("kpts", []int{kpts.Grid[0], kpts.Grid[1], kpts.Grid[2]})
			if !userGamma {
				params.Set("gamma", kpts.Gamma)
			}
		}
	} else if grid, ok := params.Ints("kpts"); ok && len(grid) == 3 {
		kpts = &Kpoints{
			Grid:  [3]int{grid[0], grid[1], grid[2]},
			Gamma: params.BoolOr("gamma", forceGamma),
		}
	}

	if hasEdiffPerAtom {
		params.Set("ediff", ediffPerAtom*float64(s.Len()))
	}

	applyMagmomPolicy(s, elementalMags, opts)
	cleanupFlags(params)

	if opts.IncarCopilot {
		if err := applyCopilot(s, params, kpts, opts, log); err != nil {
			return nil, err
		}
	}

	return &Calculator{
		Structure:  s,
		Parameters: params,
		Kpoints:    kpts,
	}, nil
}

// applyAutoDipole turns on the dipole correction for slab geometries,
// centered on the mean fractional position. Explicit dipole settings
// are left alone.
func applyAutoDipole(s *structure.Structure, params Parameters) {
	if !params.Has("dipol") {
		var center [3]float64
		for _, f := range s.FracCoords() {
			for d := 0; d < 3; d++ {
				center[d] += f[d]
			}
		}
		n := float64(s.Len())
		params.Set("dipol", []float64{center[0] / n, center[1] / n, center[2] / n})
	}
	if !params.Has("idipol") {
		params.Set("idipol", 3)
	}
	if !params.Has("ldipol") {
		params.Set("ldipol", true)
	}
}

// applyMagmomPolicy copies converged moments over the initial ones when
// significant, and otherwise seeds initial moments from the per-element
// defaults with 1.0 for unlisted species.
func applyMagmomPolicy(s *structure.Structure, elementalMags map[string]interface{}, opts ConfigureOptions) {
	hadInitial := s.HasInitialMagmoms()

	if s.Magmoms != nil && opts.CopyMagmoms {
		significant := false
		for _, m := range s.Magmoms {
			if math.Abs(m) > opts.MagCutoff {
				significant = true
				break
			}
		}
		if significant {
			s.SetInitialMagmoms(append([]float64(nil), s.Magmoms...))
		}
	}

	if !hadInitial && len(elementalMags) > 0 {
		mags := make([]float64, s.Len())
		for i, sym := range s.Symbols {
			mags[i] = 1.0
			if v, ok := numberValue(elementalMags[sym]); ok {
				mags[i] = v
			}
		}
		s.SetInitialMagmoms(mags)
	}
}

// cleanupFlags drops relaxation flags for static runs and all +U flags
// when +U is off.
func cleanupFlags(params Parameters) {
	if params.IntOr("nsw", 0) == 0 {
		for _, flag := range []string{"ediffg", "ibrion", "isif", "potim"} {
			params.Delete(flag)
		}
	}
	_, hasLuj := params.Map("ldau_luj")
	if !params.BoolOr("ldau", false) && !hasLuj {
		for _, flag := range []string{"ldau", "ldauu", "ldauj", "ldaul", "ldautype", "ldauprint", "ldau_luj"} {
			params.Delete(flag)
		}
	}
}

// applyCopilot adjusts parameters that contradict how VASP should be run
// for the given structure. Each change is warned about when verbose.
func applyCopilot(s *structure.Structure, params Parameters, kpts *Kpoints, opts ConfigureOptions, log *logger.Logger) error {
	warn := func(msg string, args ...interface{}) {
		if opts.Verbose {
			log.Warn(msg, args...)
		}
	}
	maxZ := s.MaxAtomicNumber()

	_, hasLuj := params.Map("ldau_luj")
	metagga, _ := params.String("metagga")

	if maxZ > 56 && params.IntOr("lmaxmix", 0) < 6 {
		warn("setting LMAXMIX = 6 for an f-element system")
		params.Set("lmaxmix", 6)
	} else if maxZ > 20 && params.IntOr("lmaxmix", 0) < 4 {
		warn("setting LMAXMIX = 4 for a d-element system")
		params.Set("lmaxmix", 4)
	}

	if (params.BoolOr("luse_vdw", false) ||
		params.BoolOr("lhfcalc", false) ||
		params.BoolOr("ldau", false) ||
		hasLuj ||
		metagga != "") && !params.BoolOr("lasph", false) {
		warn("setting LASPH = True for a +U, vdW, meta-GGA or hybrid calculation")
		params.Set("lasph", true)
	}

	if params.BoolOr("lasph", false) && maxZ > 56 && params.IntOr("lmaxtau", 6) < 8 {
		warn("setting LMAXTAU = 8 for LASPH with an f-element")
		params.Set("lmaxtau", 8)
	}

	if params.BoolOr("lhfcalc", false) || metagga != "" {
		if algo, _ := params.String("algo"); strings.ToLower(algo) != "all" {
			warn("setting ALGO = All for a meta-GGA or hybrid calculation")
			params.Set("algo", "All")
		}
	}

	gridMode := kpts != nil && len(kpts.Points) == 0
	if gridMode {
		if params.Has("nedos") && params.IntOr("ismear", 1) != -5 &&
			params.IntOr("nsw", 0) == 0 && kpts.Product() >= 4 {
			warn("setting ISMEAR = -5 for a static DOS calculation with enough k-points")
			params.Set("ismear", -5)
		}
		if v, ok := params.Int("ismear"); ok && v == -5 && kpts.Product() < 4 {
			warn("setting ISMEAR = 0 because there are too few k-points for the tetrahedron method")
			params.Set("ismear", 0)
		}
	}

	if ksp, ok := params.Float("kspacing"); ok && ksp > 0.5 && params.IntOr("ismear", 1) == -5 {
		// Advisory only; the error handler downstream can still recover.
		warn("KSPACING may be too large for ISMEAR = -5", "kspacing", ksp)
	}

	if params.IntOr("nsw", 0) > 0 && params.BoolOr("laechg", false) {
		warn("setting LAECHG = False because core charges cannot be written during relaxations")
		params.Set("laechg", false)
	}

	if params.BoolOr("ldau", false) || hasLuj {
		if params.IntOr("ldauprint", 0) == 0 {
			warn("setting LDAUPRINT = 1 because LDAU is enabled")
			params.Set("ldauprint", 1)
		}
	}

	if lreal, ok := params.Get("lreal"); ok && !isFalse(lreal) && params.IntOr("nsw", 0) <= 1 {
		warn("setting LREAL = False for a static calculation")
		params.Set("lreal", false)
	}

	if !params.Has("lorbit") && (params.IntOr("ispin", 1) == 2 || anyNonzeroMagmom(s)) {
		warn("setting LORBIT = 11 for a spin-polarized calculation")
		params.Set("lorbit", 11)
	}

	if params.BoolOr("luse_vdw", false) && opts.VdwKernelDir == "" {
		return fmt.Errorf("%w: a vdW functional was requested", errors.ErrVdwKernelMissing)
	}

	return nil
}

func isFalse(v interface{}) bool {
	b, ok := v.(bool)
	return ok && !b
}

func anyNonzeroMagmom(s *structure.Structure) bool {
	for _, m := range s.InitialMagmoms {
		if m != 0 {
			return true
		}
	}
	return false
}
