// Package uri provides an immutable URI value for the scaly HTTP core.
// A URI is parsed once from its literal text and every With* call returns
// a modified copy, so a URI can be shared freely between requests.
package uri

import (
	"fmt"
	"strconv"
	"strings"
)

// MalformedURIError is returned when a literal cannot be decomposed into
// scheme, authority, path, query and fragment, or when a With* call is given
// a component that is not valid in its position.
type MalformedURIError struct {
	URI    string // Offending literal or component value
	Reason string // Short description of what is wrong
}

// Error implements the error interface.
func (e *MalformedURIError) Error() string {
	return fmt.Sprintf("malformed uri %q: %s", e.URI, e.Reason)
}

func malformed(literal, reason string) error {
	return &MalformedURIError{URI: literal, Reason: reason}
}

// URI is a parsed absolute URI of the form
// scheme://[userinfo@]host[:port][path][?query][#fragment].
// The zero value is an empty URI; use Parse to build one from text.
type URI struct {
	scheme   string
	userInfo string
	host     string
	port     int
	hasPort  bool
	path     string
	query    string
	fragment string

	// An empty "?" or "#" on input is kept so String reproduces it.
	forceQuery    bool
	forceFragment bool
}

// defaultPorts maps lower-case scheme names to their well-known port.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
	"ftp":   21,
	"sftp":  22,
	"ssh":   22,
}

// Parse decomposes a literal URI. Leading or trailing whitespace is not
// stripped and makes the literal malformed.
func Parse(s string) (URI, error) {
	var u URI

	i := strings.Index(s, "://")
	if i <= 0 {
		return URI{}, malformed(s, "missing scheme")
	}
	if !validScheme(s[:i]) {
		return URI{}, malformed(s, "invalid scheme")
	}
	u.scheme = s[:i]
	rest := s[i+3:]

	if j := strings.IndexByte(rest, '#'); j >= 0 {
		u.fragment = rest[j+1:]
		u.forceFragment = u.fragment == ""
		rest = rest[:j]
		if !validComponent(u.fragment, "/?") {
			return URI{}, malformed(s, "invalid character in fragment")
		}
	}
	if j := strings.IndexByte(rest, '?'); j >= 0 {
		u.query = rest[j+1:]
		u.forceQuery = u.query == ""
		rest = rest[:j]
		if !validComponent(u.query, "/?") {
			return URI{}, malformed(s, "invalid character in query")
		}
	}

	authority := rest
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		authority = rest[:j]
		u.path = rest[j:]
	}
	if !validComponent(u.path, "/") {
		return URI{}, malformed(s, "invalid character in path")
	}

	if err := u.parseAuthority(authority); err != nil {
		return URI{}, malformed(s, err.Error())
	}
	return u, nil
}

// MustParse is like Parse but panics on error. It is meant for literals
// known at compile time.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *URI) parseAuthority(authority string) error {
	hostport := authority
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		u.userInfo = authority[:at]
		hostport = authority[at+1:]
		if strings.IndexByte(u.userInfo, '@') >= 0 {
			return fmt.Errorf("unbalanced userinfo separator")
		}
		if !validComponent(u.userInfo, ":") {
			return fmt.Errorf("invalid character in userinfo")
		}
	}

	host, portText, hasPort, err := splitHostPort(hostport)
	if err != nil {
		return err
	}
	if !validHost(host) {
		return fmt.Errorf("invalid host")
	}
	if host == "" && (u.userInfo != "" || hasPort) {
		return fmt.Errorf("empty host")
	}
	u.host = host
	if hasPort {
		port, err := parsePort(portText)
		if err != nil {
			return err
		}
		u.port = port
		u.hasPort = true
	}
	return nil
}

func splitHostPort(hostport string) (host, port string, hasPort bool, err error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", false, fmt.Errorf("unterminated ip literal")
		}
		host = hostport[:end+1]
		rest := hostport[end+1:]
		switch {
		case rest == "":
			return host, "", false, nil
		case rest[0] == ':':
			return host, rest[1:], true, nil
		default:
			return "", "", false, fmt.Errorf("unexpected text after ip literal")
		}
	}
	if i := strings.IndexByte(hostport, ':'); i >= 0 {
		return hostport[:i], hostport[i+1:], true, nil
	}
	return hostport, "", false, nil
}

func parsePort(text string) (int, error) {
	if text == "" {
		return 0, fmt.Errorf("empty port")
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, fmt.Errorf("invalid port %q", text)
		}
	}
	port, err := strconv.Atoi(text)
	if err != nil || port > 65535 {
		return 0, fmt.Errorf("port %q out of range", text)
	}
	return port, nil
}

// Scheme returns the scheme exactly as it was given.
func (u URI) Scheme() string { return u.scheme }

// UserInfo returns the user information, or "" when absent.
func (u URI) UserInfo() string { return u.userInfo }

// Host returns the host, including brackets for IPv6 literals.
func (u URI) Host() string { return u.host }

// Port returns the explicit port and whether one was set.
func (u URI) Port() (int, bool) { return u.port, u.hasPort }

// EffectivePort returns the explicit port, or the well-known port of the
// scheme when none is set. It returns 0 for unknown schemes without a port.
func (u URI) EffectivePort() int {
	if u.hasPort {
		return u.port
	}
	return defaultPorts[strings.ToLower(u.scheme)]
}

// Path returns the path, "" when absent.
func (u URI) Path() string { return u.path }

// Query returns the query without the leading "?".
func (u URI) Query() string { return u.query }

// Fragment returns the fragment without the leading "#".
func (u URI) Fragment() string { return u.fragment }

// Authority returns [userinfo@]host[:port].
func (u URI) Authority() string {
	var b strings.Builder
	if u.userInfo != "" {
		b.WriteString(u.userInfo)
		b.WriteByte('@')
	}
	b.WriteString(u.host)
	if u.hasPort {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.port))
	}
	return b.String()
}

// RequestTarget returns the origin-form target: path (or "/") plus query.
func (u URI) RequestTarget() string {
	target := u.path
	if target == "" {
		target = "/"
	}
	if u.query != "" || u.forceQuery {
		target += "?" + u.query
	}
	return target
}

// String reconstructs the canonical text form. For a URI produced by Parse
// and left unchanged, String returns the original literal.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(u.scheme)
	b.WriteString("://")
	b.WriteString(u.Authority())
	b.WriteString(u.path)
	if u.query != "" || u.forceQuery {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	if u.fragment != "" || u.forceFragment {
		b.WriteByte('#')
		b.WriteString(u.fragment)
	}
	return b.String()
}

// Equal reports whether every component of u and other is equal. Scheme and
// host are compared case-insensitively; an absent port only equals an
// absent port.
func (u URI) Equal(other URI) bool {
	return strings.EqualFold(u.scheme, other.scheme) &&
		u.userInfo == other.userInfo &&
		strings.EqualFold(u.host, other.host) &&
		u.hasPort == other.hasPort &&
		u.port == other.port &&
		u.path == other.path &&
		u.query == other.query &&
		u.fragment == other.fragment
}

// MarshalText implements encoding.TextMarshaler.
func (u URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URI) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
