// Package textsplit splits plain text into overlapping, bounded-length
// chunks for embedding.
//
// The splitter walks the text left to right. Each cut point is chosen inside
// a window of at most ChunkSize runes by trying the configured separators
// from coarsest (paragraph break) to finest (single space); the last
// occurrence of the first separator that yields forward progress wins, and
// when no separator helps the window is cut hard at ChunkSize. The next
// chunk starts ChunkOverlap runes before the previous cut, so adjacent
// chunks share that much context. Concatenating each chunk minus the runes
// it shares with its predecessor reconstructs the input exactly.
//
// Sizes are measured in runes so multi-byte text never splits mid-character.
package textsplit

import (
	"errors"
	"fmt"
)

// Defaults matching the ingestion configuration.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried coarsest to finest. The empty string means
// "cut anywhere" and must come last.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", " ", ""}

// ErrInvalidConfig indicates an unusable size/overlap combination.
var ErrInvalidConfig = errors.New("textsplit: invalid configuration")

// Splitter produces deterministic overlapping chunks.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   [][]rune
}

// New returns a Splitter with the default size, overlap and separators.
func New() *Splitter {
	s, err := NewWithConfig(DefaultChunkSize, DefaultChunkOverlap, DefaultSeparators)
	if err != nil {
		// Defaults are statically valid.
		panic(err)
	}
	return s
}

// NewWithConfig returns a Splitter with explicit parameters.
// overlap must be non-negative and strictly smaller than size; otherwise the
// splitter could not guarantee forward progress.
func NewWithConfig(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d with size %d", ErrInvalidConfig, overlap, size)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	seps := make([][]rune, len(separators))
	for i, sep := range separators {
		seps[i] = []rune(sep)
	}

	return &Splitter{
		chunkSize:    size,
		chunkOverlap: overlap,
		separators:   seps,
	}, nil
}

// Split divides text into chunks. Empty input yields no chunks.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	prevEnd := 0

	for {
		if n-start <= s.chunkSize {
			chunks = append(chunks, string(runes[start:n]))
			return chunks
		}

		end := s.cut(runes, start, prevEnd)
		chunks = append(chunks, string(runes[start:end]))

		prevEnd = end
		start = end - s.chunkOverlap
		if start < 0 {
			start = 0
		}
	}
}

// cut picks the end (exclusive) of the chunk starting at start. The result
// always satisfies prevEnd < end <= start+chunkSize, which guarantees both
// the size bound and termination.
func (s *Splitter) cut(runes []rune, start, prevEnd int) int {
	hi := start + s.chunkSize // hard upper bound, > prevEnd since overlap < size
	minEnd := prevEnd + 1
	if minEnd <= start {
		minEnd = start + 1
	}

	for _, sep := range s.separators {
		if len(sep) == 0 {
			return hi
		}
		if end := lastSplitPoint(runes, sep, minEnd, hi); end >= 0 {
			return end
		}
	}
	return hi
}

// lastSplitPoint finds the largest end in [minEnd, hi] such that sep ends
// exactly at end. Returns -1 when no occurrence qualifies.
func lastSplitPoint(runes []rune, sep []rune, minEnd, hi int) int {
	for end := hi; end >= minEnd; end-- {
		if end < len(sep) {
			break
		}
		if runesEqual(runes[end-len(sep):end], sep) {
			return end
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
