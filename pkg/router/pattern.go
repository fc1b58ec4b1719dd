package router

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// ErrInvalidPattern is wrapped by every pattern compilation failure.
var ErrInvalidPattern = errors.New("invalid route pattern")

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pattern is a compiled route path. Literal text must match exactly;
// {name} matches one path segment and {name:expr} matches expr.
type pattern struct {
	raw   string
	re    *regexp.Regexp
	names []string
}

func invalidPattern(raw, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidPattern, raw, reason)
}

func compilePattern(raw string) (*pattern, error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, invalidPattern(raw, "must begin with '/'")
	}

	var (
		expr  strings.Builder
		names []string
		seen  = make(map[string]bool)
	)
	expr.WriteString("^")

	for i := 0; i < len(raw); {
		switch raw[i] {
		case '}':
			return nil, invalidPattern(raw, "unbalanced '}'")
		case '{':
			end, err := closingBrace(raw, i)
			if err != nil {
				return nil, err
			}
			name, constraint, _ := strings.Cut(raw[i+1:end], ":")
			if !paramName.MatchString(name) {
				return nil, invalidPattern(raw, fmt.Sprintf("bad parameter name %q", name))
			}
			if seen[name] {
				return nil, invalidPattern(raw, fmt.Sprintf("duplicate parameter %q", name))
			}
			seen[name] = true
			names = append(names, name)

			if constraint == "" {
				constraint = "[^/]+"
			} else if _, err := regexp.Compile(constraint); err != nil {
				return nil, invalidPattern(raw, fmt.Sprintf("parameter %q: %v", name, err))
			}
			fmt.Fprintf(&expr, "(?P<%s>%s)", name, constraint)
			i = end + 1
		default:
			next := strings.IndexAny(raw[i:], "{}")
			if next < 0 {
				next = len(raw) - i
			}
			expr.WriteString(regexp.QuoteMeta(raw[i : i+next]))
			i += next
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, invalidPattern(raw, err.Error())
	}
	return &pattern{raw: raw, re: re, names: names}, nil
}

// closingBrace returns the index of the brace closing the one at start,
// allowing nested braces inside a constraint such as {id:[0-9]{3}}.
func closingBrace(raw string, start int) (int, error) {
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, invalidPattern(raw, "unbalanced '{'")
}

// match reports whether path matches and returns the captured parameters in
// the order they appear in the pattern. Matching runs on the escaped path so
// an encoded "/" stays inside its segment; captured values are unescaped.
func (p *pattern) match(path string) (Params, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	if len(p.names) == 0 {
		return Params{}, true
	}
	params := make(Params, 0, len(p.names))
	for _, name := range p.names {
		value := m[p.re.SubexpIndex(name)]
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		params = append(params, httprouter.Param{Key: name, Value: value})
	}
	return params, true
}
