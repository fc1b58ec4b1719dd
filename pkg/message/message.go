// Package message provides the immutable HTTP message model: a header bag,
// Request, ServerRequest and Response. Every With* method returns a new
// message and leaves the receiver untouched. The body Stream is the only
// mutable part and is shared by copies until one of them calls WithBody.
package message

import (
	"fmt"

	"github.com/scaly/core/pkg/stream"
)

// DefaultProtocolVersion is used by constructors when none is given.
const DefaultProtocolVersion = "1.1"

// supportedVersions lists protocol version tokens accepted by WithProtocolVersion.
var supportedVersions = map[string]bool{
	"1.0": true,
	"1.1": true,
	"2":   true,
	"2.0": true,
	"3":   true,
}

// InvalidProtocolVersionError is returned for unsupported protocol versions.
type InvalidProtocolVersionError struct {
	Version string
}

// Error implements the error interface.
func (e *InvalidProtocolVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %q", e.Version)
}

// Message is the read side shared by requests and responses.
type Message interface {
	ProtocolVersion() string
	Header() Header
	HasHeader(name string) bool
	HeaderValues(name string) []string
	HeaderLine(name string) string
	Body() *stream.Stream
}

// base holds the fields common to every message. Its with* helpers work on
// a copy since base is passed by value.
type base struct {
	protocol string
	header   Header
	body     *stream.Stream
}

func newBase() base {
	return base{protocol: DefaultProtocolVersion, body: emptyBody()}
}

// emptyBody returns a fresh readable and writable memory stream.
func emptyBody() *stream.Stream {
	s, err := stream.Memory("w+")
	if err != nil {
		panic(err)
	}
	return s
}

// ProtocolVersion returns the HTTP version token, e.g. "1.1".
func (b base) ProtocolVersion() string { return b.protocol }

// Header returns the header bag.
func (b base) Header() Header { return b.header }

// HasHeader reports whether the header name is present.
func (b base) HasHeader(name string) bool { return b.header.Has(name) }

// HeaderValues returns the values of name in order.
func (b base) HeaderValues(name string) []string { return b.header.Values(name) }

// HeaderLine returns the values of name joined by ", ".
func (b base) HeaderLine(name string) string { return b.header.Line(name) }

// Body returns the body stream.
func (b base) Body() *stream.Stream { return b.body }

func (b base) withProtocolVersion(version string) (base, error) {
	if !supportedVersions[version] {
		return base{}, &InvalidProtocolVersionError{Version: version}
	}
	b.protocol = version
	return b, nil
}

func (b base) withHeader(name, value string) (base, error) {
	h, err := b.header.with(name, value)
	if err != nil {
		return base{}, err
	}
	b.header = h
	return b, nil
}

func (b base) withAddedHeader(name, value string) (base, error) {
	h, err := b.header.withAdded(name, value)
	if err != nil {
		return base{}, err
	}
	b.header = h
	return b, nil
}

func (b base) withoutHeader(name string) base {
	b.header = b.header.without(name)
	return b
}

func (b base) withBody(body *stream.Stream) base {
	if body == nil {
		panic("message: nil body")
	}
	b.body = body
	return b
}
