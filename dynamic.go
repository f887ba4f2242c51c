package pbdb

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/andreyvit/pbdb/protoschema"
)

// DynamicSchema is a Schema built at run time from a descriptor set, with
// records represented as *dynamicpb.Message.
type DynamicSchema struct {
	*Schema
	Files       *protoregistry.Files
	Definitions []protoschema.Definition

	colls   map[string]*Collection[*dynamicpb.Message]
	singles map[string]*Singleton[*dynamicpb.Message]
}

// NewDynamicSchema analyzes fds and defines a collection or singleton for
// every record type found, in definition order.
func NewDynamicSchema(fds *descriptorpb.FileDescriptorSet) (*DynamicSchema, error) {
	defs, err := protoschema.Analyze(fds)
	if err != nil {
		return nil, err
	}
	files, err := protodesc.FileOptions{AllowUnresolvable: true}.NewFiles(fds)
	if err != nil {
		return nil, fmt.Errorf("pbdb: building descriptors: %w", err)
	}

	ds := &DynamicSchema{
		Schema:      NewSchema(),
		Files:       files,
		Definitions: defs,
		colls:       make(map[string]*Collection[*dynamicpb.Message]),
		singles:     make(map[string]*Singleton[*dynamicpb.Message]),
	}
	for _, def := range defs {
		if isReservedName(def.Name) {
			return nil, fmt.Errorf("pbdb: %s: name %q is reserved", def.FullName, def.Name)
		}
		d, err := files.FindDescriptorByName(protoreflect.FullName(def.FullName))
		if err != nil {
			return nil, fmt.Errorf("pbdb: %s: %w", def.FullName, err)
		}
		md, ok := d.(protoreflect.MessageDescriptor)
		if !ok {
			return nil, fmt.Errorf("pbdb: %s is not a message", def.FullName)
		}
		mt := dynamicpb.NewMessageType(md)
		if def.IsSingleton() {
			ds.singles[def.Name] = DefineSingletonOf[*dynamicpb.Message](ds.Schema, mt)
		} else {
			var opts []CollectionOpt
			if def.CaseInsensitive {
				opts = append(opts, CaseInsensitive)
			}
			ds.colls[def.Name] = DefineCollectionOf[*dynamicpb.Message](ds.Schema, mt, def.KeyField, opts...)
		}
	}
	return ds, nil
}

// LoadDynamicSchema reads a binary descriptor set file and builds a
// DynamicSchema from it.
func LoadDynamicSchema(fn string) (*DynamicSchema, error) {
	fds, err := protoschema.LoadDescriptorSet(fn)
	if err != nil {
		return nil, err
	}
	return NewDynamicSchema(fds)
}

// Collection returns the collection named name, or nil.
func (ds *DynamicSchema) Collection(name string) *Collection[*dynamicpb.Message] {
	return ds.colls[name]
}

// Singleton returns the singleton named name, or nil.
func (ds *DynamicSchema) Singleton(name string) *Singleton[*dynamicpb.Message] {
	return ds.singles[name]
}
