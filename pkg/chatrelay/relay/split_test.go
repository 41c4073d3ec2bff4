package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  int
	}{
		{"empty", "", 10, 0},
		{"short", "hello", 10, 1},
		{"exact", strings.Repeat("a", 10), 10, 1},
		{"one over", strings.Repeat("a", 11), 10, 2},
		{"many", strings.Repeat("a", 4500), 2000, 3},
		{"multibyte", strings.Repeat("é", 25), 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chunks := SplitMessage(tt.text, tt.limit)
			if len(chunks) != tt.want {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.want)
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.limit {
					t.Errorf("chunk %d has %d runes, limit %d", i, n, tt.limit)
				}
				if !utf8.ValidString(c) {
					t.Errorf("chunk %d is not valid UTF-8", i)
				}
			}
			if got := strings.Join(chunks, ""); got != tt.text {
				t.Error("chunks do not reconstruct the original text")
			}
		})
	}
}
