package ids

import (
	"strings"
	"testing"
)

func TestNew_HasPrefixAndParses(t *testing.T) {
	id := New(PrefixProduct)
	if !strings.HasPrefix(id, "pr_") {
		t.Fatalf("expected pr_ prefix, got %s", id)
	}
	prefix, hex, ok := Split(id)
	if !ok {
		t.Fatalf("expected %s to split", id)
	}
	if prefix != PrefixProduct || len(hex) != 24 {
		t.Fatalf("unexpected split: %q %q", prefix, hex)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := New(PrefixCollection)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsID(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prefix string
		want   bool
	}{
		{name: "matching prefix", value: "col_65f1c0d2a4b5c6d7e8f90123", prefix: "col", want: true},
		{name: "any prefix", value: "col_65f1c0d2a4b5c6d7e8f90123", prefix: "", want: true},
		{name: "other prefix", value: "col_65f1c0d2a4b5c6d7e8f90123", prefix: "pr", want: false},
		{name: "handle", value: "summer-sale", prefix: "", want: false},
		{name: "bad hex", value: "col_zzz", prefix: "col", want: false},
		{name: "trailing underscore", value: "col_", prefix: "col", want: false},
		{name: "underscored handle", value: "my_handle", prefix: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsID(tt.value, tt.prefix); got != tt.want {
				t.Fatalf("IsID(%q, %q) = %v, want %v", tt.value, tt.prefix, got, tt.want)
			}
		})
	}
}
