package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/coldwave/flake-go/pkg/wire"
)

// propType maps a definition type to the wire and Go side.
type propType struct {
	wire   wire.Type
	konst  string
	ctor   string
	goType string
	getter string
	zero   string
}

var propTypes = map[string]propType{
	"int32":  {wire.TypeInt32, "wire.TypeInt32", "wire.NewInt32", "int32", "AsInt", "0"},
	"int16":  {wire.TypeInt16, "wire.TypeInt16", "wire.NewInt16", "int16", "AsInt", "0"},
	"int8":   {wire.TypeInt8, "wire.TypeInt8", "wire.NewInt8", "int8", "AsInt", "0"},
	"uint32": {wire.TypeUint32, "wire.TypeUint32", "wire.NewUint32", "uint32", "AsInt", "0"},
	"uint16": {wire.TypeUint16, "wire.TypeUint16", "wire.NewUint16", "uint16", "AsInt", "0"},
	"uint8":  {wire.TypeUint8, "wire.TypeUint8", "wire.NewUint8", "uint8", "AsInt", "0"},
	"bool":   {wire.TypeBool, "wire.TypeBool", "wire.NewBool", "bool", "AsBool", "false"},
	"float":  {wire.TypeFloat, "wire.TypeFloat", "wire.NewFloat", "float32", "AsFloat", "0"},
	"uuid":   {wire.TypeUUID, "wire.TypeUUID", "wire.NewUUID", "wire.UniqueID", "AsUniqueID", "wire.NilID"},
	"string": {wire.TypeString, "wire.TypeString", "wire.NewString", "string", "AsString", `""`},
	"bin":    {wire.TypeBinary, "wire.TypeBinary", "wire.NewBinary", "[]byte", "AsBytes", "nil"},
}

// reserved are BaseService methods that generated accessors must not shadow.
var reserved = map[string]bool{
	"Type": true, "Addr": true, "Get": true, "Set": true, "Store": true,
	"Broadcast": true, "Attach": true, "On": true, "OnMessage": true,
	"OnInitialized": true, "IsInitialized": true, "SetProperties": true,
	"DefaultPropset": true, "BeginUpdate": true, "CommitUpdate": true,
	"HandleMessage": true, "SetPropertyRequested": true, "GetPropertyRequested": true,
}

// GenerateService renders the Go source for def into package pkg.
func GenerateService(def *RawServiceDef, pkg string) (string, error) {
	data := serviceData{
		Package:     pkg,
		Name:        def.Name,
		Type:        def.Type,
		Description: def.Description,
	}

	for _, p := range def.Properties {
		pd, err := propertyFor(def.Name, p)
		if err != nil {
			return "", err
		}
		data.Properties = append(data.Properties, pd)
	}
	for _, m := range def.Messages {
		goName := goTitleCase(m.Name)
		data.Messages = append(data.Messages, messageData{
			Name:        m.Name,
			GoName:      goName,
			ConstName:   def.Name + "Msg" + goName,
			Description: m.Description,
		})
	}

	var b strings.Builder
	for _, name := range []string{"header", "tags", "messages", "service", "accessors", "handlers"} {
		renderTemplate(&b, name, data)
	}
	return b.String(), nil
}

func propertyFor(service string, p RawPropertyDef) (propertyData, error) {
	pt, ok := propTypes[p.Type]
	if !ok {
		return propertyData{}, fmt.Errorf("%s.%s: unsupported type %q", service, p.Name, p.Type)
	}
	goName := goTitleCase(p.Name)
	if reserved[goName] || reserved["Set"+goName] {
		return propertyData{}, fmt.Errorf("%s.%s: name clashes with a service method", service, p.Name)
	}
	def, err := defaultExpr(pt, p.Default)
	if err != nil {
		return propertyData{}, fmt.Errorf("%s.%s: default: %w", service, p.Name, err)
	}

	conv := pt.goType
	if pt.getter != "AsInt" && pt.getter != "AsFloat" {
		conv = ""
	}

	return propertyData{
		Name:        p.Name,
		GoName:      goName,
		TagName:     service + "Tag" + goName,
		ID:          p.ID,
		TypeConst:   pt.konst,
		Flags:       flagsExpr(p),
		Ctor:        pt.ctor,
		GoType:      pt.goType,
		Getter:      pt.getter,
		Conv:        conv,
		DefaultExpr: def,
		Unit:        p.Unit,
		Description: p.Description,
	}, nil
}

func flagsExpr(p RawPropertyDef) string {
	var flags []string
	if p.Access == "readOnly" {
		flags = append(flags, "wire.FlagReadOnly")
	}
	if p.Volatile {
		flags = append(flags, "wire.FlagVolatile")
	}
	if len(flags) == 0 {
		return "0"
	}
	return strings.Join(flags, "|")
}

// defaultExpr renders v as a Go expression of the property's type. The
// value is checked by parsing it as the wire type would.
func defaultExpr(pt propType, v any) (string, error) {
	if v == nil {
		return pt.zero, nil
	}
	var text string
	switch x := v.(type) {
	case string:
		text = x
	case bool:
		text = strconv.FormatBool(x)
	case int:
		text = strconv.Itoa(x)
	case float64:
		text = strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}

	val, err := wire.ParseValue(pt.wire, text)
	if err != nil {
		return "", err
	}
	switch x := val.(type) {
	case wire.UniqueID:
		return fmt.Sprintf("wire.MustParseUniqueID(%q)", x.String()), nil
	case wire.Binary:
		if len(x) == 0 {
			return "nil", nil
		}
		parts := make([]string, len(x))
		for i, c := range x {
			parts[i] = fmt.Sprintf("0x%02x", c)
		}
		return "[]byte{" + strings.Join(parts, ", ") + "}", nil
	case wire.Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	}
	return wire.FormatValue(val), nil
}

// goTitleCase converts "targetTemp" or "target_temp" to "TargetTemp".
func goTitleCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstLower(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
