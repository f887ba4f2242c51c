package protoschema_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/andreyvit/pbdb/internal/pbdbtest"
	"github.com/andreyvit/pbdb/protoschema"
)

func TestOptionsFile(t *testing.T) {
	fd, err := protodesc.NewFile(protoschema.OptionsFile(), protoregistry.GlobalFiles)
	require.NoError(t, err)

	xds := fd.Extensions()
	require.Equal(t, 3, xds.Len())

	id := xds.ByName("pbdb_id")
	require.NotNil(t, id)
	assert.EqualValues(t, protoschema.IDFieldNumber, id.Number())
	assert.Equal(t, "google.protobuf.FieldOptions", string(id.ContainingMessage().FullName()))

	single := xds.ByName("pbdb_singleton")
	require.NotNil(t, single)
	assert.EqualValues(t, protoschema.SingletonNumber, single.Number())
	assert.Equal(t, "google.protobuf.MessageOptions", string(single.ContainingMessage().FullName()))

	ci := xds.ByName("pbdb_case_insensitive")
	require.NotNil(t, ci)
	assert.EqualValues(t, protoschema.CaseInsensitiveNumber, ci.Number())
}

func TestSetOptionsReadBackAsExtensions(t *testing.T) {
	xts, err := protoschema.OptionExtensions()
	require.NoError(t, err)

	fd := pbdbtest.IDField("id", 1)
	raw, err := proto.Marshal(fd.Options)
	require.NoError(t, err)

	var opts descriptorpb.FieldOptions
	require.NoError(t, proto.UnmarshalOptions{Resolver: resolverFor(t, xts)}.Unmarshal(raw, &opts))
	assert.Equal(t, true, proto.GetExtension(&opts, xts.ID))
}

func TestWriteOptionsProto(t *testing.T) {
	dir := t.TempDir()
	fn, err := protoschema.WriteOptionsProto(dir)
	require.NoError(t, err)

	raw, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, protoschema.OptionsProto, string(raw))
	assert.Contains(t, string(raw), "optional bool pbdb_id = 50601;")

	st1, err := os.Stat(fn)
	require.NoError(t, err)
	_, err = protoschema.WriteOptionsProto(dir)
	require.NoError(t, err)
	st2, err := os.Stat(fn)
	require.NoError(t, err)
	assert.Equal(t, st1.ModTime(), st2.ModTime())
}

func resolverFor(t *testing.T, xts *protoschema.Extensions) *protoregistry.Types {
	t.Helper()
	var types protoregistry.Types
	require.NoError(t, types.RegisterExtension(xts.ID))
	require.NoError(t, types.RegisterExtension(xts.Singleton))
	require.NoError(t, types.RegisterExtension(xts.CaseInsensitive))
	return &types
}
