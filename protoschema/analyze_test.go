package protoschema_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/andreyvit/pbdb/internal/pbdbtest"
	"github.com/andreyvit/pbdb/protoschema"
)

func TestAnalyze(t *testing.T) {
	defs, err := protoschema.Analyze(pbdbtest.FileSet())
	require.NoError(t, err)
	require.Len(t, defs, 4)

	assert.Equal(t, protoschema.Definition{
		Name:           "BasicMessage",
		FullName:       "tests.BasicMessage",
		File:           "tests.proto",
		GoPackage:      "example.com/app/testpb;testpb",
		Kind:           protoschema.KindCollection,
		KeyField:       "id",
		KeyFieldNumber: 1,
		KeyGoName:      "Id",
	}, defs[0])

	assert.Equal(t, "Settings", defs[1].Name)
	assert.Equal(t, protoschema.KindSingleton, defs[1].Kind)
	assert.True(t, defs[1].IsSingleton())
	assert.Equal(t, "Settings", defs[1].RecordID())
	assert.Empty(t, defs[1].KeyField)

	assert.Equal(t, "Account", defs[2].Name)
	assert.Equal(t, "email", defs[2].KeyField)
	assert.True(t, defs[2].CaseInsensitive)

	assert.Equal(t, "Theme", defs[3].Name)
	assert.Equal(t, "testpb", defs[3].GoPackageName())
}

func TestAnalyze_Deterministic(t *testing.T) {
	a, err := protoschema.Analyze(pbdbtest.FileSet())
	require.NoError(t, err)
	b, err := protoschema.Analyze(pbdbtest.FileSet())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAnalyze_Errors(t *testing.T) {
	repeatedID := pbdbtest.IDField("ids", 1)
	repeatedID.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()

	intID := pbdbtest.Field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64)
	protoschema.SetIDField(intID)

	tests := []struct {
		name  string
		msgs  []*descriptorpb.DescriptorProto
		field string
		msg   string
	}{
		{
			name:  "non-string",
			msgs:  []*descriptorpb.DescriptorProto{pbdbtest.Message("Bad", intID)},
			field: "id",
			msg:   "tests.proto: Bad.id: identifier field must be a string, got int64",
		},
		{
			name:  "repeated",
			msgs:  []*descriptorpb.DescriptorProto{pbdbtest.Message("Bad", repeatedID)},
			field: "ids",
			msg:   "tests.proto: Bad.ids: identifier field must not be repeated",
		},
		{
			name: "ambiguous",
			msgs: []*descriptorpb.DescriptorProto{
				pbdbtest.Message("Bad", pbdbtest.IDField("a", 1), pbdbtest.IDField("b", 2)),
			},
			msg: "tests.proto: Bad: multiple identifier fields: a, b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fds := &descriptorpb.FileDescriptorSet{
				File: []*descriptorpb.FileDescriptorProto{pbdbtest.File("tests.proto", "tests", tt.msgs...)},
			}
			defs, err := protoschema.Analyze(fds)
			require.Error(t, err)
			assert.Nil(t, defs)

			var se *protoschema.SchemaError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "Bad", se.Message)
			assert.Equal(t, tt.field, se.Field)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestAnalyze_DuplicateNames(t *testing.T) {
	fds := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			pbdbtest.File("a.proto", "a", pbdbtest.Message("Item", pbdbtest.IDField("id", 1))),
			pbdbtest.File("b.proto", "b", pbdbtest.Singleton(pbdbtest.Message("Item"))),
		},
	}
	_, err := protoschema.Analyze(fds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.proto: Item: record type name is already used by a.Item")
}

func TestAnalyze_IdentifierWinsOverSingleton(t *testing.T) {
	md := pbdbtest.Singleton(pbdbtest.Message("Both", pbdbtest.IDField("id", 1)))
	fds := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{pbdbtest.File("x.proto", "", md)},
	}
	defs, err := protoschema.Analyze(fds)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, protoschema.KindCollection, defs[0].Kind)
	assert.Equal(t, "Both", defs[0].FullName)
}

func TestAnalyze_ResolvedExtensions(t *testing.T) {
	xts, err := protoschema.OptionExtensions()
	require.NoError(t, err)

	idField := pbdbtest.Field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)
	idField.Options = &descriptorpb.FieldOptions{}
	proto.SetExtension(idField.Options, xts.ID, true)

	single := pbdbtest.Message("Config", pbdbtest.Field("n", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32))
	single.Options = &descriptorpb.MessageOptions{}
	proto.SetExtension(single.Options, xts.Singleton, true)

	fds := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			pbdbtest.File("x.proto", "x", pbdbtest.Message("Keyed", idField), single),
		},
	}
	defs, err := protoschema.Analyze(fds)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "key", defs[0].KeyField)
	assert.Equal(t, protoschema.KindSingleton, defs[1].Kind)
}

func TestAnalyze_OptionExplicitlyFalse(t *testing.T) {
	fd := pbdbtest.Field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)
	protoschema.SetIDField(fd)
	// a later occurrence overrides the earlier one
	r := fd.Options.ProtoReflect()
	b := protowire.AppendTag(slices.Clone(r.GetUnknown()), protoschema.IDFieldNumber, protowire.VarintType)
	r.SetUnknown(protowire.AppendVarint(b, 0))

	fds := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{pbdbtest.File("x.proto", "x", pbdbtest.Message("Plain", fd))},
	}
	defs, err := protoschema.Analyze(fds)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestAnalyzeFile(t *testing.T) {
	raw, err := proto.Marshal(pbdbtest.FileSet())
	require.NoError(t, err)
	fn := filepath.Join(t.TempDir(), "fds.bin")
	require.NoError(t, os.WriteFile(fn, raw, 0o644))

	fds, defs, err := protoschema.AnalyzeFile(fn)
	require.NoError(t, err)
	assert.Len(t, fds.GetFile(), 1)
	assert.Len(t, defs, 4)

	_, _, err = protoschema.AnalyzeFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGoCamelCase(t *testing.T) {
	tests := map[string]string{
		"id":          "Id",
		"user_id":     "UserId",
		"email":       "Email",
		"_hidden":     "XHidden",
		"value2":      "Value2",
		"HTTPHeader":  "HTTPHeader",
		"foo_bar_baz": "FooBarBaz",
	}
	for in, want := range tests {
		assert.Equal(t, want, protoschema.GoCamelCase(in), in)
	}
}
