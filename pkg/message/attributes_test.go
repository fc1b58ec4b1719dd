package message

import "testing"

// TestValueKinds tests each tagged variant and its accessors
func TestValueKinds(t *testing.T) {
	tests := []struct {
		value Value
		kind  Kind
		text  string
	}{
		{StringValue("a"), KindString, "a"},
		{IntValue(42), KindInt, "42"},
		{BoolValue(true), KindBool, "true"},
		{FloatValue(1.5), KindFloat, "1.5"},
		{StringsValue("x", "y"), KindStrings, "x,y"},
		{Value{}, KindNone, ""},
	}

	for _, tt := range tests {
		if tt.value.Kind() != tt.kind {
			t.Errorf("Expected kind %d, got %d", tt.kind, tt.value.Kind())
		}
		if tt.value.String() != tt.text {
			t.Errorf("Expected text %q, got %q", tt.text, tt.value.String())
		}
	}

	if IntValue(3).Str() != "" {
		t.Error("Expected mismatched accessor to return the zero value")
	}
}

// TestStringsValueCopies tests that list values are isolated from callers
func TestStringsValueCopies(t *testing.T) {
	list := []string{"a", "b"}
	v := StringsValue(list...)
	list[0] = "changed"

	got := v.Strings()
	if got[0] != "a" {
		t.Errorf("Expected stored list to be copied, got %v", got)
	}
	got[1] = "changed"
	if v.Strings()[1] != "b" {
		t.Error("Expected returned list to be a copy")
	}
}

// TestAttributesOrder tests insertion order and replacement
func TestAttributesOrder(t *testing.T) {
	var a Attributes
	a = a.With("first", IntValue(1))
	a = a.With("second", IntValue(2))
	a = a.With("first", IntValue(10))

	keys := a.Keys()
	if len(keys) != 2 || keys[0] != "first" || keys[1] != "second" {
		t.Errorf("Unexpected keys %v", keys)
	}
	if v, _ := a.Get("first"); v.Int() != 10 {
		t.Errorf("Expected replaced value 10, got %d", v.Int())
	}

	b := a.Without("first")
	if b.Len() != 1 || a.Len() != 2 {
		t.Errorf("Expected Without to copy, got lens %d and %d", b.Len(), a.Len())
	}
	if same := b.Without("missing"); same.Len() != 1 {
		t.Error("Expected removing a missing key to be a no-op")
	}
}
