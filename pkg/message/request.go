package message

import (
	"fmt"
	"strings"

	"github.com/scaly/core/pkg/stream"
	"github.com/scaly/core/pkg/uri"
)

// InvalidMethodError is returned when a method is not a valid token.
type InvalidMethodError struct {
	Method string
}

// Error implements the error interface.
func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf("invalid request method %q", e.Method)
}

// Request is an outgoing or generic HTTP request.
type Request struct {
	base
	method string
	uri    uri.URI
}

// NewRequest returns a request for method and u with an empty body. The
// method is upper-cased and a Host header is derived from u.
func NewRequest(method string, u uri.URI) (*Request, error) {
	m, err := normalizeMethod(method)
	if err != nil {
		return nil, err
	}
	r := &Request{base: newBase(), method: m, uri: u}
	if err := r.syncHost(); err != nil {
		return nil, err
	}
	return r, nil
}

func normalizeMethod(method string) (string, error) {
	if method == "" {
		return "", &InvalidMethodError{Method: method}
	}
	for i := 0; i < len(method); i++ {
		if !isTokenChar(method[i]) {
			return "", &InvalidMethodError{Method: method}
		}
	}
	return strings.ToUpper(method), nil
}

// syncHost sets the Host header from the URI when the URI has a host.
func (r *Request) syncHost() error {
	if r.uri.Host() == "" {
		return nil
	}
	host := r.uri.Host()
	if port, ok := r.uri.Port(); ok {
		host = fmt.Sprintf("%s:%d", host, port)
	}
	b, err := r.base.withHeader("Host", host)
	if err != nil {
		return err
	}
	r.base = b
	return nil
}

// Method returns the upper-case request method.
func (r *Request) Method() string { return r.method }

// URI returns the request URI.
func (r *Request) URI() uri.URI { return r.uri }

// RequestTarget returns the origin-form target derived from the URI.
func (r *Request) RequestTarget() string { return r.uri.RequestTarget() }

// WithMethod returns a copy with the method replaced.
func (r *Request) WithMethod(method string) (*Request, error) {
	m, err := normalizeMethod(method)
	if err != nil {
		return nil, err
	}
	c := *r
	c.method = m
	return &c, nil
}

// WithURI returns a copy with the URI replaced and the Host header updated.
func (r *Request) WithURI(u uri.URI) (*Request, error) {
	c := *r
	c.uri = u
	if err := c.syncHost(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WithProtocolVersion returns a copy with the protocol version replaced.
func (r *Request) WithProtocolVersion(version string) (*Request, error) {
	b, err := r.base.withProtocolVersion(version)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithHeader returns a copy where name holds only value.
func (r *Request) WithHeader(name, value string) (*Request, error) {
	b, err := r.base.withHeader(name, value)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithAddedHeader returns a copy with value appended to name.
func (r *Request) WithAddedHeader(name, value string) (*Request, error) {
	b, err := r.base.withAddedHeader(name, value)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithoutHeader returns a copy with name removed.
func (r *Request) WithoutHeader(name string) *Request {
	c := *r
	c.base = r.base.withoutHeader(name)
	return &c
}

// WithBody returns a copy that owns body.
func (r *Request) WithBody(body *stream.Stream) *Request {
	c := *r
	c.base = r.base.withBody(body)
	return &c
}
