package protoschema

import (
	"fmt"
	"os"
	"path"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

type Kind int

const (
	KindCollection Kind = iota + 1
	KindSingleton
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindSingleton:
		return "singleton"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

// Definition describes how one message type is stored.
type Definition struct {
	// Name is the simple message name. It names the collection partition,
	// or the record key inside the singleton partition.
	Name      string
	FullName  string
	File      string
	GoPackage string
	Kind      Kind

	// Collections only.
	KeyField        string
	KeyFieldNumber  int32
	KeyGoName       string
	CaseInsensitive bool
}

func (d *Definition) IsSingleton() bool {
	return d.Kind == KindSingleton
}

// RecordID is the key of a singleton record in the shared singleton
// partition: the simple message name, case preserved, without a prefix.
func (d *Definition) RecordID() string {
	return d.Name
}

// GoPackageName returns the Go package name implied by the go_package file
// option, or "" when the option is not set.
func (d *Definition) GoPackageName() string {
	if d.GoPackage == "" {
		return ""
	}
	if _, name, ok := strings.Cut(d.GoPackage, ";"); ok {
		return name
	}
	return path.Base(d.GoPackage)
}

// Analyze derives definitions for every top-level message of fds that is a
// collection or a singleton. Definitions are returned in descriptor order.
func Analyze(fds *descriptorpb.FileDescriptorSet) ([]Definition, error) {
	var defs []Definition
	seen := make(map[string]string)
	for _, file := range fds.GetFile() {
		for _, md := range file.GetMessageType() {
			def, ok, err := analyzeMessage(file, md)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if prev, dup := seen[def.Name]; dup {
				return nil, schemaErrf(file.GetName(), md.GetName(), "", "record type name is already used by %s", prev)
			}
			seen[def.Name] = def.FullName
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func analyzeMessage(file *descriptorpb.FileDescriptorProto, md *descriptorpb.DescriptorProto) (Definition, bool, error) {
	var idFields []*descriptorpb.FieldDescriptorProto
	for _, fd := range md.GetField() {
		if isIDField(fd) {
			idFields = append(idFields, fd)
		}
	}

	def := Definition{
		Name:      md.GetName(),
		FullName:  md.GetName(),
		File:      file.GetName(),
		GoPackage: file.GetOptions().GetGoPackage(),
	}
	if pkg := file.GetPackage(); pkg != "" {
		def.FullName = pkg + "." + def.Name
	}

	switch len(idFields) {
	case 0:
		if !isSingleton(md) {
			return Definition{}, false, nil
		}
		def.Kind = KindSingleton
		return def, true, nil
	case 1:
		fd := idFields[0]
		if fd.GetType() != descriptorpb.FieldDescriptorProto_TYPE_STRING {
			return Definition{}, false, schemaErrf(file.GetName(), md.GetName(), fd.GetName(), "identifier field must be a string, got %s", typeName(fd))
		}
		if fd.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED {
			return Definition{}, false, schemaErrf(file.GetName(), md.GetName(), fd.GetName(), "identifier field must not be repeated")
		}
		def.Kind = KindCollection
		def.KeyField = fd.GetName()
		def.KeyFieldNumber = fd.GetNumber()
		def.KeyGoName = GoCamelCase(fd.GetName())
		def.CaseInsensitive = isCaseInsensitive(md)
		return def, true, nil
	default:
		names := make([]string, len(idFields))
		for i, fd := range idFields {
			names[i] = fd.GetName()
		}
		return Definition{}, false, schemaErrf(file.GetName(), md.GetName(), "", "multiple identifier fields: %s", strings.Join(names, ", "))
	}
}

func typeName(fd *descriptorpb.FieldDescriptorProto) string {
	s := strings.TrimPrefix(fd.GetType().String(), "TYPE_")
	return strings.ToLower(s)
}

// LoadDescriptorSet reads a binary FileDescriptorSet, as produced by
// protoc --descriptor_set_out.
func LoadDescriptorSet(fn string) (*descriptorpb.FileDescriptorSet, error) {
	raw, err := os.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("pbdb: reading descriptor set: %w", err)
	}
	fds := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(raw, fds); err != nil {
		return nil, fmt.Errorf("pbdb: decoding descriptor set %s: %w", fn, err)
	}
	return fds, nil
}

// AnalyzeFile is LoadDescriptorSet followed by Analyze.
func AnalyzeFile(fn string) (*descriptorpb.FileDescriptorSet, []Definition, error) {
	fds, err := LoadDescriptorSet(fn)
	if err != nil {
		return nil, nil, err
	}
	defs, err := Analyze(fds)
	if err != nil {
		return nil, nil, err
	}
	return fds, defs, nil
}
