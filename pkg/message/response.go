package message

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/scaly/core/pkg/stream"
)

// InvalidStatusCodeError is returned for status codes outside 100-599.
type InvalidStatusCodeError struct {
	Code int
}

// Error implements the error interface.
func (e *InvalidStatusCodeError) Error() string {
	return fmt.Sprintf("invalid status code %d: must be between 100 and 599", e.Code)
}

// Response is an HTTP response flowing back out through the chain.
type Response struct {
	base
	status     int
	reason     string
	attributes Attributes
}

// NewResponse returns a 200 response with an empty, writable body.
func NewResponse() *Response {
	return &Response{base: newBase(), status: http.StatusOK}
}

// StatusCode returns the status code.
func (r *Response) StatusCode() int { return r.status }

// ReasonPhrase returns the reason phrase, or the standard phrase for the
// status code when none was given.
func (r *Response) ReasonPhrase() string {
	if r.reason != "" {
		return r.reason
	}
	return http.StatusText(r.status)
}

// WithStatus returns a copy with the status and reason phrase replaced.
// An empty reason selects the standard phrase.
func (r *Response) WithStatus(code int, reason string) (*Response, error) {
	if code < 100 || code > 599 {
		return nil, &InvalidStatusCodeError{Code: code}
	}
	if strings.ContainsAny(reason, "\r\n") {
		return nil, &InvalidHeaderError{Name: "reason-phrase", Value: reason}
	}
	c := *r
	c.status = code
	c.reason = reason
	return &c, nil
}

// Attribute returns the response attribute stored under key.
func (r *Response) Attribute(key string) (Value, bool) { return r.attributes.Get(key) }

// HasAttribute reports whether key is set.
func (r *Response) HasAttribute(key string) bool { return r.attributes.Has(key) }

// Attributes returns the attribute bag.
func (r *Response) Attributes() Attributes { return r.attributes }

// WithAttribute returns a copy with key set to value. Response attributes
// let a handler pass hints such as a template name back to outer stages.
func (r *Response) WithAttribute(key string, value Value) *Response {
	c := *r
	c.attributes = r.attributes.With(key, value)
	return &c
}

// WithoutAttribute returns a copy with key removed.
func (r *Response) WithoutAttribute(key string) *Response {
	c := *r
	c.attributes = r.attributes.Without(key)
	return &c
}

// WithProtocolVersion returns a copy with the protocol version replaced.
func (r *Response) WithProtocolVersion(version string) (*Response, error) {
	b, err := r.base.withProtocolVersion(version)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithHeader returns a copy where name holds only value.
func (r *Response) WithHeader(name, value string) (*Response, error) {
	b, err := r.base.withHeader(name, value)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithAddedHeader returns a copy with value appended to name.
func (r *Response) WithAddedHeader(name, value string) (*Response, error) {
	b, err := r.base.withAddedHeader(name, value)
	if err != nil {
		return nil, err
	}
	c := *r
	c.base = b
	return &c, nil
}

// WithoutHeader returns a copy with name removed.
func (r *Response) WithoutHeader(name string) *Response {
	c := *r
	c.base = r.base.withoutHeader(name)
	return &c
}

// WithBody returns a copy that owns body.
func (r *Response) WithBody(body *stream.Stream) *Response {
	c := *r
	c.base = r.base.withBody(body)
	return &c
}

// Text returns a copy with a fresh body holding s and the given content type.
// It is a shorthand used by handlers and stock middleware.
func (r *Response) Text(code int, contentType, s string) (*Response, error) {
	body := emptyBody()
	if _, err := body.WriteString(s); err != nil {
		return nil, err
	}
	resp, err := r.WithStatus(code, "")
	if err != nil {
		return nil, err
	}
	resp, err = resp.WithHeader("Content-Type", contentType)
	if err != nil {
		return nil, err
	}
	return resp.WithBody(body), nil
}
