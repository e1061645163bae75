package transport

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "short text unchanged",
			text: "hello",
			max:  10,
			want: []string{"hello"},
		},
		{
			name: "empty text",
			text: "",
			max:  10,
			want: []string{""},
		},
		{
			name: "splits at newline boundary",
			text: "first line\nsecond line",
			max:  15,
			want: []string{"first line", "second line"},
		},
		{
			name: "hard cut without newlines",
			text: "abcdefghij",
			max:  4,
			want: []string{"abcd", "efgh", "ij"},
		},
		{
			name: "exact fit",
			text: "abcd",
			max:  4,
			want: []string{"abcd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplit_EveryChunkWithinLimit(t *testing.T) {
	text := strings.Repeat("a paragraph of advice about rice paddies\n", 500)
	for _, chunk := range Split(text, MaxMessageLength) {
		if len(chunk) > MaxMessageLength {
			t.Errorf("chunk length %d exceeds cap %d", len(chunk), MaxMessageLength)
		}
	}
}

func TestSplit_DoesNotBreakRunes(t *testing.T) {
	text := strings.Repeat("ไทย", 100) // 9 bytes per word
	for _, chunk := range Split(text, 10) {
		if !isRuneStart(chunk[0]) {
			t.Errorf("chunk starts mid-rune: %q", chunk[:3])
		}
	}
}

func TestSplit_DefaultMax(t *testing.T) {
	text := strings.Repeat("x", MaxMessageLength+1)
	got := Split(text, 0)
	if len(got) != 2 {
		t.Errorf("Split() produced %d chunks, want 2", len(got))
	}
}
