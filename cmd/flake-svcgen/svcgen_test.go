package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/imports"
)

const thermostatYAML = `
name: Thermostat
type: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64
description: "A room thermostat."
properties:
  - id: 0x0310
    name: temperature
    type: int16
    access: readOnly
    volatile: true
    default: 215
    unit: "0.1 C"
    description: "Measured room temperature"
  - id: 0x0311
    name: target_temp
    type: int16
    access: readWrite
    default: 200
  - id: 0x0312
    name: label
    type: string
    default: hall
  - id: 0x0313
    name: eco
    type: bool
  - id: 0x0314
    name: gain
    type: float
    default: 1.5
  - id: 0x0315
    name: calibration
    type: bin
    default: "0x0102ff"
messages:
  - name: boost
    description: "Raises the target for one hour."
`

func thermostatDef(t *testing.T) *RawServiceDef {
	t.Helper()
	def, err := ParseServiceDef([]byte(thermostatYAML))
	if err != nil {
		t.Fatalf("ParseServiceDef failed: %v", err)
	}
	return def
}

func mustContain(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Errorf("output missing %q\n%s", want, output)
	}
}

func TestParseServiceDef(t *testing.T) {
	def := thermostatDef(t)

	if def.Name != "Thermostat" {
		t.Errorf("name = %q, want Thermostat", def.Name)
	}
	if len(def.Properties) != 6 {
		t.Fatalf("len(properties) = %d, want 6", len(def.Properties))
	}
	if def.Properties[0].ID != 0x0310 {
		t.Errorf("id = 0x%04x, want 0x0310", def.Properties[0].ID)
	}
	if !def.Properties[0].Volatile {
		t.Error("volatile = false, want true")
	}
	if len(def.Messages) != 1 || def.Messages[0].Name != "boost" {
		t.Errorf("messages = %+v", def.Messages)
	}
}

func TestParseServiceDefErrors(t *testing.T) {
	tests := map[string]string{
		"missing name":   "type: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\n",
		"bad type":       "name: X\ntype: nope\n",
		"duplicate id":   "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nproperties:\n  - {id: 1, name: a, type: int8}\n  - {id: 1, name: b, type: int8}\n",
		"duplicate name": "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nproperties:\n  - {id: 1, name: a, type: int8}\n  - {id: 2, name: a, type: int8}\n",
		"zero id":        "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nproperties:\n  - {id: 0, name: a, type: int8}\n",
		"unknown type":   "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nproperties:\n  - {id: 1, name: a, type: datetime}\n",
		"unknown access": "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nproperties:\n  - {id: 1, name: a, type: int8, access: writeOnly}\n",
		"dup message":    "name: X\ntype: c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64\nmessages:\n  - {name: go}\n  - {name: go}\n",
		"not yaml":       "name: [",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseServiceDef([]byte(src)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGenerateService(t *testing.T) {
	output, err := GenerateService(thermostatDef(t), "devices")
	if err != nil {
		t.Fatalf("GenerateService failed: %v", err)
	}

	mustContain(t, output, "// Code generated by flake-svcgen. DO NOT EDIT.")
	mustContain(t, output, "package devices")
	mustContain(t, output, `var ThermostatType = wire.MustParseUniqueID("c4a1e8f2-9d37-4b6a-8e15-2f0b7c3d9a64")`)
	mustContain(t, output, "ThermostatTagTemperature = wire.MakeTag(0x0310, wire.TypeInt16, wire.FlagReadOnly|wire.FlagVolatile)")
	mustContain(t, output, "ThermostatTagTargetTemp = wire.MakeTag(0x0311, wire.TypeInt16, 0)")
	mustContain(t, output, "ThermostatMsgBoost = \"boost\"")
	mustContain(t, output, "wire.NewInt16(ThermostatTagTemperature, 215),")
	mustContain(t, output, `wire.NewString(ThermostatTagLabel, "hall"),`)
	mustContain(t, output, "wire.NewBool(ThermostatTagEco, false),")
	mustContain(t, output, "wire.NewFloat(ThermostatTagGain, 1.5),")
	mustContain(t, output, "wire.NewBinary(ThermostatTagCalibration, []byte{0x01, 0x02, 0xff}),")
	mustContain(t, output, "func (s *Thermostat) TargetTemp() int16 {")
	mustContain(t, output, "return int16(v)")
	mustContain(t, output, "func (s *Thermostat) SetTargetTemp(ctx context.Context, value int16) error {")
	mustContain(t, output, "func (s *Thermostat) Label() string {")
	mustContain(t, output, "func (s *Thermostat) OnBoost(h model.MessageHandler) {")
	mustContain(t, output, "// Raises the target for one hour.")
}

func TestGeneratedCodeFormats(t *testing.T) {
	output, err := GenerateService(thermostatDef(t), "devices")
	if err != nil {
		t.Fatalf("GenerateService failed: %v", err)
	}
	if _, err := imports.Process("thermostat_gen.go", []byte(output), nil); err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, output)
	}
}

func TestGenerateRejectsReservedNames(t *testing.T) {
	def := thermostatDef(t)
	def.Properties = append(def.Properties, RawPropertyDef{ID: 0x0400, Name: "type", Type: "uint8"})
	if _, err := GenerateService(def, "devices"); err == nil {
		t.Error("expected error for a property shadowing Type")
	}
}

func TestGenerateRejectsOutOfRangeDefault(t *testing.T) {
	def := thermostatDef(t)
	def.Properties = append(def.Properties, RawPropertyDef{ID: 0x0400, Name: "level", Type: "uint8", Default: 300})
	if _, err := GenerateService(def, "devices"); err == nil {
		t.Error("expected error for a default that does not fit uint8")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	defs := filepath.Join(dir, "defs")
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(defs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(defs, "thermostat.yaml"), []byte(thermostatYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(defs, "devices", out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "thermostat_gen.go"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	mustContain(t, string(data), "func NewThermostat() *Thermostat {")
}

func TestRunRejectsDuplicateTypes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(thermostatYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := run(dir, "devices", filepath.Join(dir, "out")); err == nil {
		t.Error("expected duplicate type error")
	}
}

func TestFileName(t *testing.T) {
	if got := fileName("RoomThermostat"); got != "room_thermostat" {
		t.Errorf("fileName = %q, want room_thermostat", got)
	}
	if got := goTitleCase("target_temp"); got != "TargetTemp" {
		t.Errorf("goTitleCase = %q, want TargetTemp", got)
	}
}
