// Package chunk splits document text into overlapping, bounded-length
// segments suitable for embedding.
//
// Split is pure and deterministic: no side effects, no state. Boundaries are
// word-aligned where possible so a chunk never ends or begins mid-word, and
// consecutive chunks share at least the configured overlap so retrieval does
// not lose context at segment edges.
package chunk

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalidParams indicates size/overlap are out of range.
var ErrInvalidParams = errors.New("invalid chunking parameters")

// span is a half-open [start, end) range into the source rune slice.
// Kept internal; tests use it to verify coverage and overlap invariants.
type span struct {
	start, end int
}

// Split divides text into overlapping chunks of at least size characters
// (the last chunk may be shorter). Consecutive chunks share at least overlap
// characters. Chunk boundaries are shifted to the nearest whitespace so
// words are not split, whenever the text allows it.
//
// An empty input yields no chunks. A text no longer than size is returned
// as a single chunk, unchanged, so re-chunking a chunk is a no-op.
func Split(text string, size, overlap int) ([]string, error) {
	spans, err := split([]rune(text), size, overlap)
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.start:s.end])
	}
	return chunks, nil
}

// split computes chunk spans over the rune slice. Separated from Split so
// tests can check the positional invariants directly.
func split(runes []rune, size, overlap int) ([]span, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d (need 0 <= overlap < size)",
			ErrInvalidParams, size, overlap)
	}

	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= size {
		return []span{{0, n}}, nil
	}

	var spans []span
	start := 0
	for {
		end := start + size
		if end >= n {
			spans = append(spans, span{start, n})
			return spans, nil
		}

		// Extend forward so the chunk does not end mid-word.
		for end < n && !unicode.IsSpace(runes[end]) {
			end++
		}
		spans = append(spans, span{start, end})
		if end >= n {
			return spans, nil
		}

		// Next chunk begins overlap characters before this one ended,
		// shifted back to the start of the word it would otherwise split.
		next := end - overlap
		for next > 0 && !unicode.IsSpace(runes[next-1]) {
			next--
		}
		// A single unbroken word longer than size-overlap would walk the
		// start back into the previous chunk; give up word alignment
		// rather than stall.
		if next <= start {
			next = end - overlap
		}
		start = next
	}
}
