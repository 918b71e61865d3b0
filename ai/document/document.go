// Package document indexes the sentences of raw document text.
//
// All offsets exposed by this package are code point offsets, half-open.
// Sentence boundaries are found on a whitespace-normalized copy; slices are
// always taken from the raw text.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the document size limit applied when Options.MaxChars is unset.
const DefaultMaxChars = 1_000_000

// ErrMalformed is returned for empty or oversized documents.
var ErrMalformed = errors.New("malformed document")

// Range is a half-open [Start, End) code point range.
type Range struct {
	Start int
	End   int
}

// Len returns the number of code points in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos int) bool {
	return pos >= r.Start && pos < r.End
}

// Covers reports whether other lies entirely inside the range.
func (r Range) Covers(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// Options configures preprocessing.
type Options struct {
	// MaxChars bounds the document length in code points. Zero means DefaultMaxChars.
	MaxChars int
}

// Document is an immutable document with a sentence index.
type Document struct {
	raw        string
	normalized string
	length     int
	offsets    []int // code point -> byte offset in raw, nil when raw is ASCII
	sentences  []Range
}

// Preprocess builds the sentence index of raw.
//
// Normalization never changes the code point count, so sentence ranges found
// on the normalized copy index the raw text directly.
func Preprocess(raw string, opts Options) (*Document, error) {
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrMalformed)
	}

	// Invalid bytes decode to one RuneError each, matching normalize.
	length := utf8.RuneCountInString(raw)
	if length > maxChars {
		return nil, fmt.Errorf("%w: document has %d characters, limit is %d", ErrMalformed, length, maxChars)
	}

	d := &Document{raw: raw, length: length}
	if isASCII(raw) {
		d.normalized = normalizeASCII(raw)
	} else {
		d.normalized = normalizeUnicode(raw)
		d.offsets = runeOffsets(raw, length)
	}
	d.sentences = segment(d.normalized)
	return d, nil
}

// Text returns the raw text.
func (d *Document) Text() string {
	return d.raw
}

// Normalized returns the copy used for segmentation: every whitespace rune
// except '\n' becomes ' ' and invalid bytes become U+FFFD.
func (d *Document) Normalized() string {
	return d.normalized
}

// Len returns the document length in code points.
func (d *Document) Len() int {
	return d.length
}

// Sentences returns the sentence index. Callers must not modify it.
func (d *Document) Sentences() []Range {
	return d.sentences
}

// Slice returns the raw text of the code point range [start, end).
// The result shares memory with the document.
func (d *Document) Slice(start, end int) string {
	if d.offsets == nil {
		return d.raw[start:end]
	}
	return d.raw[d.offsets[start]:d.offsets[end]]
}

// SliceRange is Slice for a Range.
func (d *Document) SliceRange(r Range) string {
	return d.Slice(r.Start, r.End)
}

// SentenceAt returns the index of the sentence containing pos, or -1.
func (d *Document) SentenceAt(pos int) int {
	idx := sort.Search(len(d.sentences), func(i int) bool {
		return d.sentences[i].End > pos
	})
	if idx < len(d.sentences) && d.sentences[idx].Start <= pos {
		return idx
	}
	return -1
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func normalizeASCII(s string) string {
	if strings.IndexAny(s, "\r\t\v\f") < 0 {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '\r', '\t', '\v', '\f':
			b[i] = ' '
		}
	}
	return string(b)
}

func normalizeUnicode(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	// Each invalid byte arrives here as its own utf8.RuneError and is written as U+FFFD.
	for _, r := range s {
		switch {
		case r == '\n':
			sb.WriteByte('\n')
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// runeOffsets maps each code point of s to its byte offset, plus len(s).
// An invalid byte counts as one code point, as in utf8.RuneCountInString.
func runeOffsets(s string, length int) []int {
	offsets := make([]int, 0, length+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}
