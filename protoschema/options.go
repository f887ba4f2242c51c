package protoschema

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Extension numbers of the pbdb options. Field and message options live in
// separate extension ranges, so IDFieldNumber and SingletonNumber may share
// a value.
const (
	IDFieldNumber         protowire.Number = 50601 // FieldOptions
	SingletonNumber       protowire.Number = 50601 // MessageOptions
	CaseInsensitiveNumber protowire.Number = 50602 // MessageOptions
)

// OptionsFileName is the import path user schemas use for the options file.
const OptionsFileName = "pbdb.proto"

// OptionsProto is the source of pbdb.proto.
const OptionsProto = `syntax = "proto2";

package pbdb;

import "google/protobuf/descriptor.proto";

extend google.protobuf.FieldOptions {
  // Marks the string field holding the record identifier of a collection.
  optional bool pbdb_id = 50601;
}

extend google.protobuf.MessageOptions {
  // Stores exactly one instance of the message, keyed by its type name.
  optional bool pbdb_singleton = 50601;
  // Folds identifier case before reading or writing records.
  optional bool pbdb_case_insensitive = 50602;
}
`

// OptionsFile returns the descriptor of pbdb.proto.
func OptionsFile() *descriptorpb.FileDescriptorProto {
	ext := func(name string, num protowire.Number, extendee string) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			Number:   proto.Int32(int32(num)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum(),
			Extendee: proto.String(extendee),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(OptionsFileName),
		Package:    proto.String("pbdb"),
		Dependency: []string{"google/protobuf/descriptor.proto"},
		Extension: []*descriptorpb.FieldDescriptorProto{
			ext("pbdb_id", IDFieldNumber, ".google.protobuf.FieldOptions"),
			ext("pbdb_singleton", SingletonNumber, ".google.protobuf.MessageOptions"),
			ext("pbdb_case_insensitive", CaseInsensitiveNumber, ".google.protobuf.MessageOptions"),
		},
		Syntax: proto.String("proto2"),
	}
}

// WriteOptionsProto writes pbdb.proto into dir so that protoc can resolve
// the import. The file is only rewritten when its content differs.
func WriteOptionsProto(dir string) (string, error) {
	path := filepath.Join(dir, OptionsFileName)
	if old, err := os.ReadFile(path); err == nil && string(old) == OptionsProto {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pbdb: %w", err)
	}
	if err := os.WriteFile(path, []byte(OptionsProto), 0o644); err != nil {
		return "", fmt.Errorf("pbdb: %w", err)
	}
	return path, nil
}

// Extensions holds resolved extension types for the pbdb options, usable with
// proto.SetExtension and proto.GetExtension.
type Extensions struct {
	ID              protoreflect.ExtensionType
	Singleton       protoreflect.ExtensionType
	CaseInsensitive protoreflect.ExtensionType
}

var loadExtensions = sync.OnceValues(func() (*Extensions, error) {
	fd, err := protodesc.NewFile(OptionsFile(), protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("pbdb: building %s: %w", OptionsFileName, err)
	}
	xds := fd.Extensions()
	return &Extensions{
		ID:              dynamicpb.NewExtensionType(xds.ByName("pbdb_id")),
		Singleton:       dynamicpb.NewExtensionType(xds.ByName("pbdb_singleton")),
		CaseInsensitive: dynamicpb.NewExtensionType(xds.ByName("pbdb_case_insensitive")),
	}, nil
})

// OptionExtensions returns the extension types of the pbdb options.
func OptionExtensions() (*Extensions, error) {
	return loadExtensions()
}

// SetIDField marks fd as the identifier field of its message.
func SetIDField(fd *descriptorpb.FieldDescriptorProto) {
	if fd.Options == nil {
		fd.Options = &descriptorpb.FieldOptions{}
	}
	setBoolOption(fd.Options, IDFieldNumber)
}

// SetSingleton marks md as a singleton record type.
func SetSingleton(md *descriptorpb.DescriptorProto) {
	if md.Options == nil {
		md.Options = &descriptorpb.MessageOptions{}
	}
	setBoolOption(md.Options, SingletonNumber)
}

// SetCaseInsensitive makes the identifiers of md case-insensitive.
func SetCaseInsensitive(md *descriptorpb.DescriptorProto) {
	if md.Options == nil {
		md.Options = &descriptorpb.MessageOptions{}
	}
	setBoolOption(md.Options, CaseInsensitiveNumber)
}

func setBoolOption(opts proto.Message, num protowire.Number) {
	r := opts.ProtoReflect()
	b := slices.Clone(r.GetUnknown())
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	r.SetUnknown(b)
}

func isIDField(fd *descriptorpb.FieldDescriptorProto) bool {
	opts := fd.GetOptions()
	if opts == nil {
		return false
	}
	return boolOption(opts, IDFieldNumber)
}

func isSingleton(md *descriptorpb.DescriptorProto) bool {
	opts := md.GetOptions()
	if opts == nil {
		return false
	}
	return boolOption(opts, SingletonNumber)
}

func isCaseInsensitive(md *descriptorpb.DescriptorProto) bool {
	opts := md.GetOptions()
	if opts == nil {
		return false
	}
	return boolOption(opts, CaseInsensitiveNumber)
}

// boolOption reports the value of a boolean extension on an options message.
// A resolved extension field takes precedence over unknown bytes; among
// repeated occurrences in unknown bytes the last one wins, as in protobuf
// decoding.
func boolOption(opts proto.Message, num protowire.Number) bool {
	r := opts.ProtoReflect()

	var val, found bool
	r.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.IsExtension() && fd.Number() == num && fd.Kind() == protoreflect.BoolKind {
			val, found = v.Bool(), true
			return false
		}
		return true
	})
	if found {
		return val
	}

	b := r.GetUnknown()
	for len(b) > 0 {
		n, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return false
		}
		b = b[tagLen:]
		if n == num && typ == protowire.VarintType {
			v, vlen := protowire.ConsumeVarint(b)
			if vlen < 0 {
				return false
			}
			val = v != 0
			b = b[vlen:]
			continue
		}
		vlen := protowire.ConsumeFieldValue(n, typ, b)
		if vlen < 0 {
			return false
		}
		b = b[vlen:]
	}
	return val
}
