package codec

import (
	"github.com/scaly/core/pkg/message"
	"google.golang.org/protobuf/proto"
)

// protoUnmarshal and protoMarshal are variables so tests can force failures.
var (
	protoUnmarshal = proto.Unmarshal
	protoMarshal   = proto.Marshal
)

// ProtoCodec is a codec that uses Protocol Buffers for marshaling and unmarshaling.
type ProtoCodec[T proto.Message, U proto.Message] struct {
	newMessage func() T
}

// Decode decodes the request body into a new T from the codec's factory.
func (c *ProtoCodec[T, U]) Decode(req *message.ServerRequest) (T, error) {
	data := c.newMessage()

	body, err := readBody(req)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := protoUnmarshal(body, data); err != nil {
		var zero T
		return zero, err
	}
	return data, nil
}

// Encode marshals data and returns resp carrying it with the
// application/x-protobuf content type.
func (c *ProtoCodec[T, U]) Encode(resp *message.Response, data U) (*message.Response, error) {
	body, err := protoMarshal(data)
	if err != nil {
		return nil, err
	}
	return writeBody(resp, "application/x-protobuf", body)
}

// NewProtoCodec creates a new ProtoCodec. newMessage returns an empty
// request message to decode into, e.g. func() *pb.User { return &pb.User{} }.
func NewProtoCodec[T proto.Message, U proto.Message](newMessage func() T) *ProtoCodec[T, U] {
	return &ProtoCodec[T, U]{newMessage: newMessage}
}
