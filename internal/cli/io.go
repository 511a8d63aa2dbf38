package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vaspflow/internal/structure"
	"vaspflow/internal/vasp"
)

// readStructure loads a POSCAR-format structure file.
func readStructure(path string) (*structure.Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening structure file: %w", err)
	}
	defer f.Close()

	s, err := vasp.ParsePOSCAR(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// writeStructure renders a structure to a POSCAR-format file, creating
// the parent directory as needed.
func writeStructure(path string, s *structure.Structure) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	text, _ := vasp.RenderPOSCAR(s)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func marshalIndent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
