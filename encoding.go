package pbdb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
)

// Records are stored as their protobuf wire encoding. Deterministic output
// keeps equal records byte-equal on disk.
var (
	recordMarshal   = proto.MarshalOptions{Deterministic: true}
	recordUnmarshal = proto.UnmarshalOptions{DiscardUnknown: false}
)

func marshalRecord(buf []byte, m proto.Message) ([]byte, error) {
	out, err := recordMarshal.MarshalAppend(buf[:0], m)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func unmarshalRecord(raw []byte, m proto.Message) error {
	return recordUnmarshal.Unmarshal(raw, m)
}

// Internal documents (partition state) use msgpack.

func encodeState(v any) []byte {
	var bb bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return bb.Bytes()
}

func decodeState(raw []byte, v any) error {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return fmt.Errorf("failed to decode msgpack into %T: %w", v, err)
	}
	return nil
}
