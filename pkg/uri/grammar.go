package uri

import (
	"fmt"
	"strings"
)

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isUnreserved(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '-' || c == '.' || c == '_' || c == '~'
}

func isSubDelim(c byte) bool {
	return strings.IndexByte("!$&'()*+,;=", c) >= 0
}

// validScheme checks ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ).
func validScheme(s string) bool {
	if s == "" || !isAlpha(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlpha(c) && !isDigit(c) && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// validEncoded accepts unreserved, sub-delims, percent-encoded octets and
// any byte in extra.
func validEncoded(s, extra string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return false
			}
			i += 2
		case isUnreserved(c), isSubDelim(c):
		case strings.IndexByte(extra, c) >= 0:
		default:
			return false
		}
	}
	return true
}

// validComponent checks path, query and fragment text: pchar plus extra.
// Userinfo is checked with extra ":" and must not contain "@".
func validComponent(s, extra string) bool {
	if extra == ":" {
		return validEncoded(s, ":")
	}
	return validEncoded(s, ":@"+extra)
}

// EscapePath percent-encodes every byte Parse would reject in a path.
// Well-formed %XX triplets are kept as they are.
func EscapePath(s string) string { return escape(s, ":@/") }

// EscapeQuery percent-encodes every byte Parse would reject in a query,
// such as the brackets in ids[]=1.
func EscapeQuery(s string) string { return escape(s, ":@/?") }

func escape(s, extra string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				b.WriteByte(c)
			} else {
				b.WriteString("%25")
			}
		case isUnreserved(c), isSubDelim(c), strings.IndexByte(extra, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func validHost(host string) bool {
	if strings.HasPrefix(host, "[") {
		if len(host) < 3 || host[len(host)-1] != ']' {
			return false
		}
		literal := host[1 : len(host)-1]
		if strings.IndexByte(literal, ':') < 0 {
			return false
		}
		for i := 0; i < len(literal); i++ {
			c := literal[i]
			if !isHex(c) && c != ':' && c != '.' {
				return false
			}
		}
		return true
	}
	return validEncoded(host, "")
}
