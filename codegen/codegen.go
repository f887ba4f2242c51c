// Package codegen generates Go declarations of a pbdb schema for message
// types compiled by protoc-gen-go.
//
// The generated file belongs in the same package as the .pb.go files and
// declares:
//
//	var Schema = pbdb.NewSchema()
//	var BasicMessageCollection = pbdb.DefineCollection[*BasicMessage](Schema, "BasicMessage", "id")
//	func BasicMessageID(id string) pbdb.Id[*BasicMessage]
//	func (x *BasicMessage) PbdbID() pbdb.Id[*BasicMessage]
//	var SettingsSingleton = pbdb.DefineSingleton[*Settings](Schema, "Settings")
//	func OpenDB(path string, opt pbdb.Options) (*pbdb.DB, error)
//	func OpenAmbientDB(path string, opt pbdb.Options) (*pbdb.Guard, error)
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"text/template"

	"github.com/andreyvit/pbdb/protoschema"
)

const DefaultImportPath = "github.com/andreyvit/pbdb"

type Options struct {
	// Package is the Go package name of the output. Defaults to the name
	// implied by the go_package option of the definitions.
	Package string

	// Source is mentioned in the header, usually the descriptor set or
	// .proto file name.
	Source string

	// ImportPath of the pbdb package, DefaultImportPath if empty.
	ImportPath string
}

var ErrNoDefinitions = errors.New("no collections or singletons to generate")

type record struct {
	Name            string
	GoType          string
	KeyField        string
	CaseInsensitive bool
	Singleton       bool
}

type templateData struct {
	Package    string
	Source     string
	ImportPath string
	Records    []record
}

// Generate returns a gofmt'ed Go source file declaring defs. The output only
// depends on its inputs.
func Generate(defs []protoschema.Definition, opt Options) ([]byte, error) {
	if len(defs) == 0 {
		return nil, ErrNoDefinitions
	}
	data := templateData{
		Package:    opt.Package,
		Source:     opt.Source,
		ImportPath: opt.ImportPath,
	}
	if data.ImportPath == "" {
		data.ImportPath = DefaultImportPath
	}
	if data.Package == "" {
		data.Package = defs[0].GoPackageName()
	}
	if !token.IsIdentifier(data.Package) {
		return nil, fmt.Errorf("invalid Go package name %q (set go_package or pass a package name)", data.Package)
	}

	names := make(map[string]string)
	for _, def := range defs {
		r := record{
			Name:            def.Name,
			GoType:          protoschema.GoCamelCase(def.Name),
			KeyField:        def.KeyField,
			CaseInsensitive: def.CaseInsensitive,
			Singleton:       def.IsSingleton(),
		}
		if prev, ok := names[r.GoType]; ok {
			return nil, fmt.Errorf("%s and %s both map to Go type %s", prev, def.FullName, r.GoType)
		}
		names[r.GoType] = def.FullName
		data.Records = append(data.Records, r)
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated code: %w\n%s", err, buf.Bytes())
	}
	return src, nil
}

var fileTmpl = template.Must(template.New("file").Parse(`// Code generated by pbdb gen. DO NOT EDIT.
{{- if .Source}}
// source: {{.Source}}
{{- end}}

package {{.Package}}

import (
	"{{.ImportPath}}"
)

// Schema declares every collection and singleton of this package.
var Schema = pbdb.NewSchema()

var (
{{- range .Records}}
{{- if .Singleton}}
	{{.GoType}}Singleton = pbdb.DefineSingleton[*{{.GoType}}](Schema, {{printf "%q" .Name}})
{{- else}}
	{{.GoType}}Collection = pbdb.DefineCollection[*{{.GoType}}](Schema, {{printf "%q" .Name}}, {{printf "%q" .KeyField}}{{if .CaseInsensitive}}, pbdb.CaseInsensitive{{end}})
{{- end}}
{{- end}}
)
{{range .Records}}{{if not .Singleton}}
// {{.GoType}}ID returns the key of the {{.Name}} whose {{.KeyField}} is id.
func {{.GoType}}ID(id string) pbdb.Id[*{{.GoType}}] {
	return {{.GoType}}Collection.ID(id)
}

// PbdbID returns the key of x in {{.GoType}}Collection.
func (x *{{.GoType}}) PbdbID() pbdb.Id[*{{.GoType}}] {
	return {{.GoType}}Collection.IDOf(x)
}
{{end}}{{end}}
// OpenDB opens the database at path with Schema.
func OpenDB(path string, opt pbdb.Options) (*pbdb.DB, error) {
	return pbdb.Open(path, Schema, opt)
}

// OpenAmbientDB opens the database at path with Schema and installs it as
// pbdb.Ambient.
func OpenAmbientDB(path string, opt pbdb.Options) (*pbdb.Guard, error) {
	return pbdb.OpenAmbient(path, Schema, opt)
}
`))
