package message

import (
	"context"
	"maps"
	"net/http"
	"net/url"

	"github.com/scaly/core/pkg/stream"
	"github.com/scaly/core/pkg/uri"
)

// ServerRequest is an inbound request as seen by the middleware chain. On
// top of Request it carries server parameters supplied by the transport,
// parsed query and cookie values, a context for the handler's own I/O and
// the attribute bag stages use to talk to each other.
type ServerRequest struct {
	Request
	serverParams map[string]string
	query        url.Values
	cookies      map[string]string
	attributes   Attributes
	ctx          context.Context
}

// NewServerRequest builds a ServerRequest from transport-provided data. The
// header mapping keeps the value order of each name.
func NewServerRequest(method, uriString string, headers map[string][]string, serverParams map[string]string) (*ServerRequest, error) {
	u, err := uri.Parse(uriString)
	if err != nil {
		return nil, err
	}
	m, err := normalizeMethod(method)
	if err != nil {
		return nil, err
	}
	h, err := NewHeader(headers)
	if err != nil {
		return nil, err
	}

	r := &ServerRequest{
		Request:      Request{base: newBase(), method: m, uri: u},
		serverParams: maps.Clone(serverParams),
	}
	r.header = h
	if !h.Has("Host") {
		if err := r.Request.syncHost(); err != nil {
			return nil, err
		}
	}
	if version, ok := serverParams["SERVER_PROTOCOL"]; ok {
		b, err := r.base.withProtocolVersion(trimHTTPPrefix(version))
		if err != nil {
			return nil, err
		}
		r.base = b
	}
	r.query = parseQuery(u.Query())
	r.cookies = parseCookies(h.Line("Cookie"))
	return r, nil
}

func trimHTTPPrefix(version string) string {
	if len(version) > 5 && version[:5] == "HTTP/" {
		return version[5:]
	}
	return version
}

// parseQuery decodes the query, dropping pairs that fail to decode.
func parseQuery(raw string) url.Values {
	values, _ := url.ParseQuery(raw)
	return values
}

func parseCookies(line string) map[string]string {
	cookies := map[string]string{}
	if line == "" {
		return cookies
	}
	parsed, err := http.ParseCookie(line)
	if err != nil {
		return cookies
	}
	for _, c := range parsed {
		cookies[c.Name] = c.Value
	}
	return cookies
}

// Context returns the request context, or context.Background if none was set.
func (r *ServerRequest) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a copy carrying ctx. ctx must not be nil.
func (r *ServerRequest) WithContext(ctx context.Context) *ServerRequest {
	if ctx == nil {
		panic("message: nil context")
	}
	c := *r
	c.ctx = ctx
	return &c
}

// ServerParam returns a transport-provided server parameter.
func (r *ServerRequest) ServerParam(name string) (string, bool) {
	v, ok := r.serverParams[name]
	return v, ok
}

// ServerParams returns a copy of every server parameter.
func (r *ServerRequest) ServerParams() map[string]string { return maps.Clone(r.serverParams) }

// QueryParam returns the first value of the query parameter name.
func (r *ServerRequest) QueryParam(name string) string { return r.query.Get(name) }

// QueryParams returns a copy of the parsed query.
func (r *ServerRequest) QueryParams() url.Values {
	out := url.Values{}
	for k, v := range r.query {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Cookie returns the value of the named cookie from the Cookie header.
func (r *ServerRequest) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

// Attribute returns the attribute stored under key.
func (r *ServerRequest) Attribute(key string) (Value, bool) { return r.attributes.Get(key) }

// AttributeOr returns the attribute under key, or def when it is absent.
func (r *ServerRequest) AttributeOr(key string, def Value) Value {
	return r.attributes.GetOr(key, def)
}

// HasAttribute reports whether key is set.
func (r *ServerRequest) HasAttribute(key string) bool { return r.attributes.Has(key) }

// Attributes returns the attribute bag.
func (r *ServerRequest) Attributes() Attributes { return r.attributes }

// WithAttribute returns a copy with key set to value.
func (r *ServerRequest) WithAttribute(key string, value Value) *ServerRequest {
	c := *r
	c.attributes = r.attributes.With(key, value)
	return &c
}

// WithoutAttribute returns a copy with key removed.
func (r *ServerRequest) WithoutAttribute(key string) *ServerRequest {
	c := *r
	c.attributes = r.attributes.Without(key)
	return &c
}

// The methods below shadow the promoted Request methods so that every
// mutation keeps the ServerRequest type.

// WithMethod returns a copy with the method replaced.
func (r *ServerRequest) WithMethod(method string) (*ServerRequest, error) {
	req, err := r.Request.WithMethod(method)
	if err != nil {
		return nil, err
	}
	return r.withRequest(req), nil
}

// WithURI returns a copy with the URI replaced and the query re-parsed.
func (r *ServerRequest) WithURI(u uri.URI) (*ServerRequest, error) {
	req, err := r.Request.WithURI(u)
	if err != nil {
		return nil, err
	}
	c := r.withRequest(req)
	c.query = parseQuery(u.Query())
	return c, nil
}

// WithProtocolVersion returns a copy with the protocol version replaced.
func (r *ServerRequest) WithProtocolVersion(version string) (*ServerRequest, error) {
	req, err := r.Request.WithProtocolVersion(version)
	if err != nil {
		return nil, err
	}
	return r.withRequest(req), nil
}

// WithHeader returns a copy where name holds only value.
func (r *ServerRequest) WithHeader(name, value string) (*ServerRequest, error) {
	req, err := r.Request.WithHeader(name, value)
	if err != nil {
		return nil, err
	}
	return r.withRequest(req), nil
}

// WithAddedHeader returns a copy with value appended to name.
func (r *ServerRequest) WithAddedHeader(name, value string) (*ServerRequest, error) {
	req, err := r.Request.WithAddedHeader(name, value)
	if err != nil {
		return nil, err
	}
	return r.withRequest(req), nil
}

// WithoutHeader returns a copy with name removed.
func (r *ServerRequest) WithoutHeader(name string) *ServerRequest {
	return r.withRequest(r.Request.WithoutHeader(name))
}

// WithBody returns a copy that owns body.
func (r *ServerRequest) WithBody(body *stream.Stream) *ServerRequest {
	return r.withRequest(r.Request.WithBody(body))
}

func (r *ServerRequest) withRequest(req *Request) *ServerRequest {
	c := *r
	c.Request = *req
	c.cookies = parseCookies(req.header.Line("Cookie"))
	return &c
}
