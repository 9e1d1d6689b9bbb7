package textsplit

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

// reconstruct stitches chunks back together, verifying the shared prefix of
// every chunk matches the tail of the text assembled so far. The shared
// region is overlap runes, capped by how much text exists yet.
func reconstruct(t *testing.T, chunks []string, overlap int) string {
	t.Helper()

	if len(chunks) == 0 {
		return ""
	}

	res := []rune(chunks[0])
	for i, c := range chunks[1:] {
		cr := []rune(c)
		k := overlap
		if len(res) < k {
			k = len(res)
		}
		if len(cr) < k {
			t.Fatalf("chunk %d shorter than its shared prefix: %d < %d", i+1, len(cr), k)
		}
		if string(res[len(res)-k:]) != string(cr[:k]) {
			t.Fatalf("chunk %d does not share %d runes with its predecessor", i+1, k)
		}
		res = append(res, cr[k:]...)
	}
	return string(res)
}

// sampleText builds deterministic, non-repeating prose with paragraph, line
// and sentence structure so every separator class gets exercised.
func sampleText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d carries a few distinct words for splitting.", i)
		switch {
		case i%7 == 6:
			b.WriteString("\n\n")
		case i%3 == 2:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestSplitRoundTrip(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{1000, 200},
		{100, 20},
		{50, 0},
		{80, 79},
		{500, 100},
	}
	texts := map[string]string{
		"prose":         sampleText(120),
		"no separators": strings.Repeat("x", 2345),
		"short":         "tiny",
		"unicode":       strings.Repeat("Hyvää päivää! Tämä on testi. ", 80),
	}

	for name, text := range texts {
		for _, cfg := range configs {
			t.Run(fmt.Sprintf("%s_%d_%d", name, cfg.size, cfg.overlap), func(t *testing.T) {
				s, err := NewWithConfig(cfg.size, cfg.overlap, DefaultSeparators)
				if err != nil {
					t.Fatalf("NewWithConfig: %v", err)
				}

				chunks := s.Split(text)
				for i, c := range chunks {
					if n := utf8.RuneCountInString(c); n > cfg.size {
						t.Errorf("chunk %d has %d runes, limit %d", i, n, cfg.size)
					}
					if c == "" {
						t.Errorf("chunk %d is empty", i)
					}
				}

				if got := reconstruct(t, chunks, cfg.overlap); got != text {
					t.Errorf("round trip mismatch: got %d runes, want %d", len(got), len(text))
				}
			})
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := New()
	text := sampleText(200)

	a := s.Split(text)
	b := s.Split(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if chunks := New().Split(""); chunks != nil {
		t.Errorf("Split(\"\") = %v, want nil", chunks)
	}
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	chunks := New().Split("hello world")
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("Split short = %v", chunks)
	}
}

// A 2500-rune page with paragraph breaks at 650, 1300 and 1950 splits into
// four chunks of at most 1000 runes with 200 runes shared between neighbors.
func TestSplit2500CharPage(t *testing.T) {
	text := strings.Repeat("a", 650) + "\n\n" +
		strings.Repeat("b", 648) + "\n\n" +
		strings.Repeat("c", 648) + "\n\n" +
		strings.Repeat("d", 548)
	if n := utf8.RuneCountInString(text); n != 2500 {
		t.Fatalf("fixture is %d runes, want 2500", n)
	}

	s := New()
	chunks := s.Split(text)

	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d has %d chars, limit 1000", i, len(c))
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev[len(prev)-200:] != cur[:200] {
			t.Errorf("chunks %d and %d do not share 200 chars", i-1, i)
		}
	}
	if got := reconstruct(t, chunks, 200); got != text {
		t.Error("round trip mismatch")
	}
}

// Coarser separators must win over finer ones inside the same window.
func TestSplitPrefersCoarsestSeparator(t *testing.T) {
	// A paragraph break early in the window and sentence breaks later: the
	// paragraph break is still chosen.
	text := strings.Repeat("w ", 150) + "\n\n" + strings.Repeat("v. ", 400)
	s, err := NewWithConfig(400, 50, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}

	chunks := s.Split(text)
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk does not end at the paragraph break: %q", chunks[0][len(chunks[0])-10:])
	}
}

func TestSplitHardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("z", 250)
	s, err := NewWithConfig(100, 10, DefaultSeparators)
	if err != nil {
		t.Fatal(err)
	}

	chunks := s.Split(text)
	// Cuts at 100, then 90+100=190, then the 160..250 tail.
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 {
		t.Errorf("first chunk length %d, want 100", len(chunks[0]))
	}
	if got := reconstruct(t, chunks, 10); got != text {
		t.Error("round trip mismatch")
	}
}

func TestNewWithConfigRejectsBadParams(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-5, 0},
		{100, 100},
		{100, 150},
		{100, -1},
	}
	for _, c := range cases {
		if _, err := NewWithConfig(c.size, c.overlap, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewWithConfig(%d, %d) error = %v, want ErrInvalidConfig", c.size, c.overlap, err)
		}
	}
}
