package codec

import (
	"encoding/json"

	"github.com/scaly/core/pkg/message"
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
type JSONCodec[T any, U any] struct{}

// Decode decodes the request body into a value of type T.
func (c *JSONCodec[T, U]) Decode(req *message.ServerRequest) (T, error) {
	var data T

	body, err := readBody(req)
	if err != nil {
		return data, err
	}

	err = json.Unmarshal(body, &data)
	if err != nil {
		return data, err
	}

	return data, nil
}

// Encode marshals data to JSON and returns resp carrying it with the
// application/json content type.
func (c *JSONCodec[T, U]) Encode(resp *message.Response, data U) (*message.Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return writeBody(resp, "application/json", body)
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
// T represents the request type and U represents the response type.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}
