package main

import (
	"fmt"
	"strings"
	"text/template"
)

var funcMap = template.FuncMap{
	"firstLower": firstLower,
	"hex4":       func(v uint16) string { return fmt.Sprintf("0x%04X", v) },
	"quote":      func(s string) string { return fmt.Sprintf("%q", s) },
}

var templates = template.Must(template.New("").Funcs(funcMap).Parse(
	headerTmpl +
		tagsTmpl +
		messagesTmpl +
		serviceTmpl +
		accessorsTmpl +
		handlersTmpl,
))

// renderTemplate executes a named template into the builder.
func renderTemplate(b *strings.Builder, name string, data any) {
	if err := templates.ExecuteTemplate(b, name, data); err != nil {
		panic(fmt.Sprintf("template %s: %v", name, err))
	}
}

// --- Template data types ---

type serviceData struct {
	Package     string
	Name        string
	Type        string
	Description string
	Properties  []propertyData
	Messages    []messageData
}

type propertyData struct {
	Name        string
	GoName      string
	TagName     string
	ID          uint16
	TypeConst   string
	Flags       string
	Ctor        string
	GoType      string
	Getter      string
	Conv        string
	DefaultExpr string
	Unit        string
	Description string
}

type messageData struct {
	Name        string
	GoName      string
	ConstName   string
	Description string
}

// --- Template definitions ---

const headerTmpl = `{{define "header"}}// Code generated by flake-svcgen. DO NOT EDIT.

package {{.Package}}

import (
"context"

"github.com/coldwave/flake-go/pkg/model"
"github.com/coldwave/flake-go/pkg/wire"
)

// {{.Name}}Type is the object type of {{.Name}} objects.
var {{.Name}}Type = wire.MustParseUniqueID({{quote .Type}})

{{end}}`

const tagsTmpl = `{{define "tags"}}
{{- if .Properties}}
// {{.Name}} property tags.
var (
{{- range .Properties}}
{{- if .Description}}
// {{.TagName}}: {{firstLower .Description}}.
{{- end}}
{{.TagName}} = wire.MakeTag({{hex4 .ID}}, {{.TypeConst}}, {{.Flags}})
{{- end}}
)

{{end}}
{{- end}}`

const messagesTmpl = `{{define "messages"}}
{{- if .Messages}}
// {{.Name}} message names.
const (
{{- range .Messages}}
{{.ConstName}} = {{quote .Name}}
{{- end}}
)

{{end}}
{{- end}}`

const serviceTmpl = `{{define "service"}}
// {{.Name}} hosts a {{.Name}} object.
{{- if .Description}}
// {{.Description}}
{{- end}}
type {{.Name}} struct {
*model.BaseService
}

// New{{.Name}} creates a {{.Name}} holding the default property values.
func New{{.Name}}() *{{.Name}} {
return &{{.Name}}{BaseService: model.NewBaseService({{.Name}}Type, wire.NewPropArray(
{{- range .Properties}}
{{.Ctor}}({{.TagName}}, {{.DefaultExpr}}),
{{- end}}
))}
}

{{end}}`

const accessorsTmpl = `{{define "accessors"}}
{{- $name := .Name}}
{{- range .Properties}}
// {{.GoName}} returns the {{.Name}} property.
{{- if .Unit}} Unit: {{.Unit}}.{{end}}
func (s *{{$name}}) {{.GoName}}() {{.GoType}} {
v, _ := s.Get({{.TagName}}).{{.Getter}}()
return {{if .Conv}}{{.Conv}}(v){{else}}v{{end}}
}

// Set{{.GoName}} stores the {{.Name}} property and publishes the change.
func (s *{{$name}}) Set{{.GoName}}(ctx context.Context, value {{.GoType}}) error {
return s.Set(ctx, {{.Ctor}}({{.TagName}}, value))
}

{{end}}
{{- end}}`

const handlersTmpl = `{{define "handlers"}}
{{- $name := .Name}}
{{- range .Messages}}
// On{{.GoName}} sets the handler of the {{.Name}} message.
{{- if .Description}}
// {{.Description}}
{{- end}}
func (s *{{$name}}) On{{.GoName}}(h model.MessageHandler) {
s.OnMessage({{.ConstName}}, h)
}

{{end}}
{{- end}}`
