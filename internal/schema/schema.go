// Package schema parses the YAML schema documents that describe a driver's
// record payloads. Parsing is treated as a pure function: file bytes in,
// descriptors out, with no knowledge of drivers or the engine.
package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Unit is the enumerated vocabulary a field's unit must belong to.
type Unit string

const (
	UnitDegree    Unit = "degree"
	UnitKelvin    Unit = "K"
	UnitKgPerSec  Unit = "kg/s"
	UnitMeter     Unit = "m"
	UnitMeterPerS Unit = "m/s"
	UnitAccel     Unit = "m/s²"
	UnitNone      Unit = "none"
	UnitPascal    Unit = "Pa"
	UnitPercent   Unit = "percent"
	UnitRadian    Unit = "rad"
	UnitRadPerS   Unit = "rad/s"
	UnitNanosec   Unit = "ns"
)

var validUnits = map[Unit]bool{
	UnitDegree: true, UnitKelvin: true, UnitKgPerSec: true, UnitMeter: true,
	UnitMeterPerS: true, UnitAccel: true, UnitNone: true, UnitPascal: true,
	UnitPercent: true, UnitRadian: true, UnitRadPerS: true, UnitNanosec: true,
}

// Type is the payload field's wire representation.
type Type string

const (
	TypeF32   Type = "f32"
	TypeF64   Type = "f64"
	TypeI8    Type = "i8"
	TypeU8    Type = "u8"
	TypeI16   Type = "i16"
	TypeU16   Type = "u16"
	TypeI32   Type = "i32"
	TypeU32   Type = "u32"
	TypeI64   Type = "i64"
	TypeU64   Type = "u64"
	TypeBytes Type = "bytes"
)

var validTypes = map[Type]bool{
	TypeF32: true, TypeF64: true, TypeI8: true, TypeU8: true, TypeI16: true,
	TypeU16: true, TypeI32: true, TypeU32: true, TypeI64: true, TypeU64: true,
	TypeBytes: true,
}

// FieldFmt describes one field inside a record payload. Size zero means
// "all remaining bytes."
type FieldFmt struct {
	Name   string `yaml:"name"`
	Unit   Unit   `yaml:"unit"`
	Offset uint32 `yaml:"offset"`
	Size   uint32 `yaml:"size"`
	Type   Type   `yaml:"type"`
}

// Desc is one schema document: a data_id, a name, and its field layout.
type Desc struct {
	DataID uint32     `yaml:"id"`
	Name   string     `yaml:"name"`
	Fmt    []FieldFmt `yaml:"fmt"`
}

// Sentinel errors the engine maps onto its closed error-code enumeration.
var (
	ErrInvalidUnit      = errors.New("schema: invalid unit")
	ErrInvalidType      = errors.New("schema: invalid type")
	ErrMissingName      = errors.New("schema: missing name")
	ErrDuplicateDataID  = errors.New("schema: duplicate data_id")
)

func (f FieldFmt) validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: field has empty name", ErrMissingName)
	}
	if !validUnits[f.Unit] {
		return fmt.Errorf("%w: %q (field %s)", ErrInvalidUnit, f.Unit, f.Name)
	}
	if !validTypes[f.Type] {
		return fmt.Errorf("%w: %q (field %s)", ErrInvalidType, f.Type, f.Name)
	}
	return nil
}

func (d Desc) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: descriptor %d", ErrMissingName, d.DataID)
	}
	for _, f := range d.Fmt {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads a multi-document YAML schema file and returns every
// descriptor it contains, rejecting any that reuse a data_id already seen
// earlier in this file. Collisions across files are checked only by
// LoadAll.
func LoadFile(path string) ([]Desc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()

	descs, err := decodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return descs, nil
}

func decodeAll(r io.Reader) ([]Desc, error) {
	dec := yaml.NewDecoder(r)
	seen := map[uint32]bool{}
	var out []Desc
	for {
		var d Desc
		err := dec.Decode(&d)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := d.validate(); err != nil {
			return nil, err
		}
		if seen[d.DataID] {
			return nil, fmt.Errorf("%w: %d (%s)", ErrDuplicateDataID, d.DataID, d.Name)
		}
		seen[d.DataID] = true
		out = append(out, d)
	}
	return out, nil
}

// LoadAll parses schema files from multiple paths and checks for data_id
// collisions across all of them combined, not just within one file.
func LoadAll(paths []string) ([]Desc, error) {
	seen := map[uint32]string{}
	var all []Desc
	for _, p := range paths {
		descs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, d := range descs {
			if prev, ok := seen[d.DataID]; ok {
				return nil, fmt.Errorf("%w: %d claimed by both %s and %s", ErrDuplicateDataID, d.DataID, prev, p)
			}
			seen[d.DataID] = p
		}
		all = append(all, descs...)
	}
	return all, nil
}

// Serialize renders a descriptor back to YAML. Round-tripping a document
// through LoadFile then Serialize then LoadFile again must be idempotent
// for the field subset this package covers.
func Serialize(d Desc) ([]byte, error) {
	return yaml.Marshal(d)
}
