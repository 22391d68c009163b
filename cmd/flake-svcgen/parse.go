package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coldwave/flake-go/pkg/wire"
)

// RawServiceDef is an object type definition loaded from YAML.
type RawServiceDef struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"` // object type UUID
	Description string           `yaml:"description"`
	Properties  []RawPropertyDef `yaml:"properties"`
	Messages    []RawMessageDef  `yaml:"messages"`
}

// RawPropertyDef is one property of an object type.
type RawPropertyDef struct {
	ID          uint16 `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`   // "int16", "string", "bin", ...
	Access      string `yaml:"access"` // "readOnly", "readWrite"
	Volatile    bool   `yaml:"volatile"`
	Default     any    `yaml:"default"`
	Unit        string `yaml:"unit"`
	Description string `yaml:"description"`
}

// RawMessageDef is a custom message the object type answers.
type RawMessageDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseServiceDef parses and validates a definition from YAML bytes.
func ParseServiceDef(data []byte) (*RawServiceDef, error) {
	var def RawServiceDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing service def: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadServiceDef loads and parses a definition from a file.
func LoadServiceDef(path string) (*RawServiceDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseServiceDef(data)
}

func (d *RawServiceDef) validate() error {
	if d.Name == "" {
		return fmt.Errorf("service definition missing name")
	}
	if _, err := wire.ParseUniqueID(d.Type); err != nil {
		return fmt.Errorf("%s: invalid type %q: %w", d.Name, d.Type, err)
	}

	ids := make(map[uint16]string)
	names := make(map[string]bool)
	for _, p := range d.Properties {
		if p.Name == "" {
			return fmt.Errorf("%s: property 0x%04x missing name", d.Name, p.ID)
		}
		if p.ID == 0 {
			return fmt.Errorf("%s.%s: property id must not be zero", d.Name, p.Name)
		}
		if prev, dup := ids[p.ID]; dup {
			return fmt.Errorf("%s.%s: id 0x%04x already used by %s", d.Name, p.Name, p.ID, prev)
		}
		ids[p.ID] = p.Name
		if names[p.Name] {
			return fmt.Errorf("%s: duplicate property %s", d.Name, p.Name)
		}
		names[p.Name] = true
		if _, ok := propTypes[p.Type]; !ok {
			return fmt.Errorf("%s.%s: unsupported type %q", d.Name, p.Name, p.Type)
		}
		switch p.Access {
		case "", "readOnly", "readWrite":
		default:
			return fmt.Errorf("%s.%s: unknown access %q", d.Name, p.Name, p.Access)
		}
	}

	msgs := make(map[string]bool)
	for _, m := range d.Messages {
		if m.Name == "" {
			return fmt.Errorf("%s: message missing name", d.Name)
		}
		if msgs[m.Name] {
			return fmt.Errorf("%s: duplicate message %s", d.Name, m.Name)
		}
		msgs[m.Name] = true
	}
	return nil
}
