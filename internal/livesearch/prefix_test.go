package livesearch

import "testing"

func TestIsPrefix(t *testing.T) {
	tests := []struct {
		previous, next string
		want           bool
	}{
		{"", "", true},
		{"", "abc", true},
		{"a", "ab", true},
		{"AB", "abc", true},
		{"abc", "ABC", true},
		{"ab", "ac", false},
		{"abc", "ab", false},
		{"abc", "", false},
		{"Straße", "straßenbahn", true},
		{"ÉTÉ", "été 2024", true},
		{"b", "ab", false},
	}
	for _, tt := range tests {
		if got := IsPrefix(tt.previous, tt.next); got != tt.want {
			t.Errorf("IsPrefix(%q, %q) = %v, want %v", tt.previous, tt.next, got, tt.want)
		}
	}
}
