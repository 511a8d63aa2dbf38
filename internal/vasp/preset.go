package vasp

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vaspflow/pkg/errors"
)

// presetFile is the on-disk preset schema: a single "inputs" mapping of
// calculator parameters, optionally including the convenience keys
// auto_kpts, ediff_per_atom and elemental_magmoms.
type presetFile struct {
	Inputs map[string]interface{} `yaml:"inputs"`
}

// LoadPreset resolves and parses a calculator preset. nameOrPath is
// tried verbatim first so full paths always win; otherwise it is looked
// up under presetDir with an implied .yaml extension.
func LoadPreset(nameOrPath, presetDir string) (Parameters, error) {
	if nameOrPath == "" {
		return Parameters{}, nil
	}

	candidate := nameOrPath
	if filepath.Ext(candidate) == "" {
		candidate += ".yaml"
	}

	path := candidate
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(presetDir, candidate)
		if _, err := os.Stat(path); err != nil {
			return nil, errors.WrapPresetError(nameOrPath, errors.ErrPresetNotFound)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPresetError(nameOrPath, err)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errors.WrapPresetError(nameOrPath, fmt.Errorf("parsing %s: %w", path, err))
	}
	if pf.Inputs == nil {
		return nil, errors.WrapPresetError(nameOrPath, fmt.Errorf("%s has no inputs mapping", path))
	}

	params := make(Parameters, len(pf.Inputs))
	for k, v := range pf.Inputs {
		params.Set(k, v)
	}
	return params, nil
}
