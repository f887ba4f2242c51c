// Package pbdbtest builds descriptor sets and dynamic messages for tests.
package pbdbtest

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/andreyvit/pbdb/protoschema"
)

const FileName = "tests.proto"

// Field returns a singular field descriptor.
func Field(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
		JsonName: proto.String(name),
	}
}

// IDField returns a string field marked as the record identifier.
func IDField(name string, num int32) *descriptorpb.FieldDescriptorProto {
	fd := Field(name, num, descriptorpb.FieldDescriptorProto_TYPE_STRING)
	protoschema.SetIDField(fd)
	return fd
}

func Message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:  proto.String(name),
		Field: fields,
	}
}

func Singleton(md *descriptorpb.DescriptorProto) *descriptorpb.DescriptorProto {
	protoschema.SetSingleton(md)
	return md
}

func CaseInsensitive(md *descriptorpb.DescriptorProto) *descriptorpb.DescriptorProto {
	protoschema.SetCaseInsensitive(md)
	return md
}

func File(name, pkg string, msgs ...*descriptorpb.DescriptorProto) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String(name),
		Package:     proto.String(pkg),
		MessageType: msgs,
		Syntax:      proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("example.com/app/testpb;testpb"),
		},
	}
}

// FileSet returns the schema most tests use:
//
//	message BasicMessage { string id = 1 [(pbdb.pbdb_id) = true]; uint32 value = 2; }
//	message Settings { option (pbdb.pbdb_singleton) = true; uint32 value = 1; }
//	message Account { option (pbdb.pbdb_case_insensitive) = true; string email = 1 [(pbdb.pbdb_id) = true]; string name = 2; }
//	message Theme { option (pbdb.pbdb_singleton) = true; string name = 1; }
//	message Note { string text = 1; }
func FileSet() *descriptorpb.FileDescriptorSet {
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			File(FileName, "tests",
				Message("BasicMessage",
					IDField("id", 1),
					Field("value", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				),
				Singleton(Message("Settings",
					Field("value", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				)),
				CaseInsensitive(Message("Account",
					IDField("email", 1),
					Field("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				)),
				Singleton(Message("Theme",
					Field("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				)),
				Message("Note",
					Field("text", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				),
			),
		},
	}
}

// New returns a dynamic message of type mt with the given field values,
// passed as name, value pairs.
func New(mt protoreflect.MessageType, kv ...any) *dynamicpb.Message {
	m := mt.New().Interface().(*dynamicpb.Message)
	Set(m, kv...)
	return m
}

// Set assigns field values, passed as name, value pairs.
func Set(m proto.Message, kv ...any) {
	if len(kv)%2 != 0 {
		panic("pbdbtest.Set: odd number of arguments")
	}
	r := m.ProtoReflect()
	for i := 0; i < len(kv); i += 2 {
		name := kv[i].(string)
		fd := r.Descriptor().Fields().ByName(protoreflect.Name(name))
		if fd == nil {
			panic(fmt.Errorf("pbdbtest.Set: %s has no field %q", r.Descriptor().FullName(), name))
		}
		r.Set(fd, protoreflect.ValueOf(kv[i+1]))
	}
}

// Get returns a field value as a Go value.
func Get(m proto.Message, name string) any {
	r := m.ProtoReflect()
	fd := r.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Errorf("pbdbtest.Get: %s has no field %q", r.Descriptor().FullName(), name))
	}
	return r.Get(fd).Interface()
}
