// Package codec provides encoding and decoding functionality for different data formats.
// The codecs read ServerRequest bodies and write fresh Response bodies, and
// satisfy router.Codec.
package codec

import (
	"github.com/scaly/core/pkg/message"
	"github.com/scaly/core/pkg/stream"
)

// readBody returns the whole request body. Seekable bodies are rewound first
// so a stage that already read the body does not hide it from the codec.
func readBody(req *message.ServerRequest) ([]byte, error) {
	body := req.Body()
	if body.IsSeekable() {
		if err := body.Rewind(); err != nil {
			return nil, err
		}
	}
	contents, err := body.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(contents), nil
}

// writeBody returns resp with a new body holding data and the given content type.
func writeBody(resp *message.Response, contentType string, data []byte) (*message.Response, error) {
	body, err := stream.Memory("w+")
	if err != nil {
		return nil, err
	}
	if _, err := body.Write(data); err != nil {
		return nil, err
	}
	out, err := resp.WithHeader("Content-Type", contentType)
	if err != nil {
		return nil, err
	}
	return out.WithBody(body), nil
}
