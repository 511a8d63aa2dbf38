package structure

import (
	"encoding/json"
	"fmt"
)

// encoded is the wire form of a Structure crossing job boundaries.
type encoded struct {
	Symbols        []string               `json:"symbols"`
	Positions      [][3]float64           `json:"positions"`
	Lattice        [3][3]float64          `json:"lattice"`
	Periodic       bool                   `json:"periodic"`
	InitialMagmoms []float64              `json:"initial_magmoms,omitempty"`
	Magmoms        []float64              `json:"magmoms,omitempty"`
	Free           []bool                 `json:"free,omitempty"`
	Info           map[string]interface{} `json:"info,omitempty"`
}

// Encode serializes a structure to its JSON wire form.
func Encode(s *Structure) (string, error) {
	data, err := json.Marshal(encoded{
		Symbols:        s.Symbols,
		Positions:      s.Positions,
		Lattice:        [3][3]float64(s.Lattice),
		Periodic:       s.Periodic,
		InitialMagmoms: s.InitialMagmoms,
		Magmoms:        s.Magmoms,
		Free:           s.Free,
		Info:           s.Info,
	})
	if err != nil {
		return "", fmt.Errorf("encoding structure: %w", err)
	}
	return string(data), nil
}

// Decode deserializes the JSON wire form back into a Structure.
func Decode(data string) (*Structure, error) {
	var e encoded
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decoding structure: %w", err)
	}
	s := &Structure{
		Symbols:        e.Symbols,
		Positions:      e.Positions,
		Lattice:        Lattice(e.Lattice),
		Periodic:       e.Periodic,
		InitialMagmoms: e.InitialMagmoms,
		Magmoms:        e.Magmoms,
		Free:           e.Free,
		Info:           e.Info,
	}
	if s.Info == nil {
		s.Info = make(map[string]interface{})
	}
	return s, nil
}

// MustEncode is Encode for values known to be serializable; it panics on
// failure and exists for provenance records built from plain JSON types.
func MustEncode(s *Structure) string {
	data, err := Encode(s)
	if err != nil {
		panic(err)
	}
	return data
}
