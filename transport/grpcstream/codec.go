package grpcstream

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype a client requests with
// grpc.CallContentSubtype so the server picks this codec for the stream,
// instead of the protobuf codec grpc registers by default.
const codecName = "parsolvebytes"

// frame is the only type rawCodec ever marshals or unmarshals: one already-
// framed wire.Message, pre-serialized by wire.Marshal. The codec itself does
// no interpretation of the bytes — a byte-passthrough stream with no
// generated stubs, skipping the protobuf encoding step entirely.
type frame []byte

// rawCodec implements encoding.Codec by copying bytes straight through,
// replacing the default protobuf codec so this transport can carry the
// module's own wire.Message framing without a .proto file or generated
// stubs.
type rawCodec struct{}

func (rawCodec) Name() string { return codecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("grpcstream: codec cannot marshal %T", v)
	}
	return []byte(*f), nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("grpcstream: codec cannot unmarshal into %T", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
