package message

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// InvalidHeaderError is returned when a header name is not a token or a
// value contains a line break or NUL byte.
type InvalidHeaderError struct {
	Name  string
	Value string
}

// Error implements the error interface.
func (e *InvalidHeaderError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid header name %q", e.Name)
	}
	return fmt.Sprintf("invalid value %q for header %q", e.Value, e.Name)
}

// Field is one header entry: the name as last set and its values in order.
type Field struct {
	Name   string
	Values []string
}

// Header is an immutable ordered header bag. Names compare
// case-insensitively. The zero value is an empty header.
type Header struct {
	fields []Field
}

// NewHeader builds a header from a transport mapping. Names are inserted in
// sorted order since Go maps are unordered.
func NewHeader(values map[string][]string) (Header, error) {
	h := Header{}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		for _, v := range values[name] {
			var err error
			if h, err = h.withAdded(name, v); err != nil {
				return Header{}, err
			}
		}
	}
	return h, nil
}

func (h Header) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Has reports whether a header with name exists.
func (h Header) Has(name string) bool { return h.index(name) >= 0 }

// Values returns a copy of the values for name, or nil if absent.
func (h Header) Values(name string) []string {
	i := h.index(name)
	if i < 0 {
		return nil
	}
	return append([]string(nil), h.fields[i].Values...)
}

// Line returns the values for name joined by ", ", or "" if absent.
func (h Header) Line(name string) string {
	i := h.index(name)
	if i < 0 {
		return ""
	}
	return strings.Join(h.fields[i].Values, ", ")
}

// Names returns header names in insertion order with their stored casing.
func (h Header) Names() []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of every entry in order.
func (h Header) Fields() []Field {
	fields := make([]Field, len(h.fields))
	for i, f := range h.fields {
		fields[i] = Field{Name: f.Name, Values: append([]string(nil), f.Values...)}
	}
	return fields
}

// Len returns the number of distinct header names.
func (h Header) Len() int { return len(h.fields) }

// with replaces all values for name with value. The stored name takes the
// casing given here.
func (h Header) with(name, value string) (Header, error) {
	if err := validateHeader(name, value); err != nil {
		return Header{}, err
	}
	out := h.clone()
	field := Field{Name: name, Values: []string{value}}
	if i := out.index(name); i >= 0 {
		out.fields[i] = field
	} else {
		out.fields = append(out.fields, field)
	}
	return out, nil
}

// withAdded appends value to the entry for name. An existing entry keeps
// the casing it was set with.
func (h Header) withAdded(name, value string) (Header, error) {
	if err := validateHeader(name, value); err != nil {
		return Header{}, err
	}
	out := h.clone()
	if i := out.index(name); i >= 0 {
		out.fields[i].Values = append(out.fields[i].Values, value)
	} else {
		out.fields = append(out.fields, Field{Name: name, Values: []string{value}})
	}
	return out, nil
}

// without removes name. Removing an absent name returns h unchanged.
func (h Header) without(name string) Header {
	i := h.index(name)
	if i < 0 {
		return h
	}
	out := Header{fields: make([]Field, 0, len(h.fields)-1)}
	out.fields = append(out.fields, h.fields[:i]...)
	out.fields = append(out.fields, h.fields[i+1:]...)
	return out
}

// clone copies the field slice and each value slice so appends on the copy
// never reach the receiver's backing arrays.
func (h Header) clone() Header {
	out := Header{fields: make([]Field, len(h.fields), len(h.fields)+1)}
	for i, f := range h.fields {
		out.fields[i] = Field{Name: f.Name, Values: append([]string(nil), f.Values...)}
	}
	return out
}

func validateHeader(name, value string) error {
	if name == "" {
		return &InvalidHeaderError{Name: name}
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return &InvalidHeaderError{Name: name}
		}
	}
	if strings.ContainsAny(value, "\r\n\x00") {
		return &InvalidHeaderError{Name: name, Value: value}
	}
	return nil
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
