package message

import (
	"strconv"
	"strings"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	// KindNone is the kind of the zero Value.
	KindNone Kind = iota
	// KindString holds a string.
	KindString
	// KindInt holds an int64.
	KindInt
	// KindBool holds a bool.
	KindBool
	// KindFloat holds a float64.
	KindFloat
	// KindStrings holds a []string.
	KindStrings
)

// Value is a tagged attribute value. Accessors return the zero value of
// their type when the kind does not match.
type Value struct {
	kind Kind
	s    string
	n    int64
	f    float64
	b    bool
	list []string
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue wraps an int64.
func IntValue(n int64) Value { return Value{kind: KindInt, n: n} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// FloatValue wraps a float64.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringsValue wraps a copy of list.
func StringsValue(list ...string) Value {
	return Value{kind: KindStrings, list: append([]string(nil), list...)}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string held by v.
func (v Value) Str() string { return v.s }

// Int returns the int64 held by v.
func (v Value) Int() int64 { return v.n }

// Bool returns the bool held by v.
func (v Value) Bool() bool { return v.b }

// Float returns the float64 held by v.
func (v Value) Float() float64 { return v.f }

// Strings returns a copy of the list held by v.
func (v Value) Strings() []string { return append([]string(nil), v.list...) }

// String formats v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindStrings:
		return strings.Join(v.list, ",")
	}
	return ""
}

type attribute struct {
	key   string
	value Value
}

// Attributes is an immutable ordered key/value overlay carried by requests
// and responses. It is never serialized onto the wire.
type Attributes struct {
	entries []attribute
}

func (a Attributes) index(key string) int {
	for i, e := range a.entries {
		if e.key == key {
			return i
		}
	}
	return -1
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (Value, bool) {
	if i := a.index(key); i >= 0 {
		return a.entries[i].value, true
	}
	return Value{}, false
}

// GetOr returns the value under key, or def when absent.
func (a Attributes) GetOr(key string, def Value) Value {
	if v, ok := a.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether key is set.
func (a Attributes) Has(key string) bool { return a.index(key) >= 0 }

// Keys returns keys in insertion order.
func (a Attributes) Keys() []string {
	keys := make([]string, len(a.entries))
	for i, e := range a.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of keys.
func (a Attributes) Len() int { return len(a.entries) }

// With returns a copy with key set to value.
func (a Attributes) With(key string, value Value) Attributes {
	out := Attributes{entries: make([]attribute, len(a.entries), len(a.entries)+1)}
	copy(out.entries, a.entries)
	if i := out.index(key); i >= 0 {
		out.entries[i].value = value
	} else {
		out.entries = append(out.entries, attribute{key: key, value: value})
	}
	return out
}

// Without returns a copy with key removed.
func (a Attributes) Without(key string) Attributes {
	i := a.index(key)
	if i < 0 {
		return a
	}
	out := Attributes{entries: make([]attribute, 0, len(a.entries)-1)}
	out.entries = append(out.entries, a.entries[:i]...)
	out.entries = append(out.entries, a.entries[i+1:]...)
	return out
}
