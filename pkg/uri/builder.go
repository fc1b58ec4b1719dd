package uri

import "strconv"

// WithScheme returns a copy of u with the scheme replaced.
func (u URI) WithScheme(scheme string) (URI, error) {
	if !validScheme(scheme) {
		return URI{}, malformed(scheme, "invalid scheme")
	}
	u.scheme = scheme
	return u, nil
}

// WithUserInfo returns a copy of u with the user information replaced.
// An empty value removes it.
func (u URI) WithUserInfo(userInfo string) (URI, error) {
	if !validComponent(userInfo, ":") {
		return URI{}, malformed(userInfo, "invalid character in userinfo")
	}
	if userInfo != "" && u.host == "" {
		return URI{}, malformed(userInfo, "userinfo requires a host")
	}
	u.userInfo = userInfo
	return u, nil
}

// WithHost returns a copy of u with the host replaced.
func (u URI) WithHost(host string) (URI, error) {
	if !validHost(host) {
		return URI{}, malformed(host, "invalid host")
	}
	if host == "" && (u.userInfo != "" || u.hasPort) {
		return URI{}, malformed(host, "empty host with userinfo or port")
	}
	u.host = host
	return u, nil
}

// WithPort returns a copy of u with an explicit port.
func (u URI) WithPort(port int) (URI, error) {
	if port < 0 || port > 65535 {
		return URI{}, malformed(strconv.Itoa(port), "port out of range")
	}
	if u.host == "" {
		return URI{}, malformed(strconv.Itoa(port), "port requires a host")
	}
	u.port = port
	u.hasPort = true
	return u, nil
}

// WithoutPort returns a copy of u with the port cleared, so the scheme
// default applies.
func (u URI) WithoutPort() URI {
	u.port = 0
	u.hasPort = false
	return u
}

// WithPath returns a copy of u with the path replaced. A non-empty path must
// start with "/" because the URI always has an authority.
func (u URI) WithPath(path string) (URI, error) {
	if path != "" && path[0] != '/' {
		return URI{}, malformed(path, "path must be empty or begin with /")
	}
	if !validComponent(path, "/") {
		return URI{}, malformed(path, "invalid character in path")
	}
	u.path = path
	return u, nil
}

// WithQuery returns a copy of u with the query (without "?") replaced.
func (u URI) WithQuery(query string) (URI, error) {
	if !validComponent(query, "/?") {
		return URI{}, malformed(query, "invalid character in query")
	}
	u.query = query
	u.forceQuery = false
	return u, nil
}

// WithFragment returns a copy of u with the fragment (without "#") replaced.
func (u URI) WithFragment(fragment string) (URI, error) {
	if !validComponent(fragment, "/?") {
		return URI{}, malformed(fragment, "invalid character in fragment")
	}
	u.fragment = fragment
	u.forceFragment = false
	return u, nil
}
