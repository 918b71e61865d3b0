package document

import (
	"strings"
	"unicode"
)

// abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"gen": {}, "gov": {}, "sen": {}, "rep": {}, "lt": {}, "col": {}, "capt": {}, "sgt": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {}, "sep": {},
	"sept": {}, "oct": {}, "nov": {}, "dec": {},
	"no": {}, "vs": {}, "etc": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {}, "dept": {},
	"e.g": {}, "i.e": {}, "u.s": {}, "u.k": {}, "u.n": {}, "a.m": {}, "p.m": {},
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// isWideTerminator marks terminators that end a sentence without trailing whitespace.
func isWideTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’', '」', '』', '）':
		return true
	}
	return false
}

// segment splits text into sentence ranges covering every code point.
// Whitespace after a sentence belongs to that sentence.
func segment(text string) []Range {
	rs := []rune(text)
	n := len(rs)

	sentences := make([]Range, 0, n/64+1)
	start := 0
	i := 0
	for i < n {
		r := rs[i]
		switch {
		case r == '\n':
			j := skipSpace(rs, i+1, n)
			sentences = append(sentences, Range{Start: start, End: j})
			start, i = j, j

		case isTerminator(r):
			j := i + 1
			for j < n && (isTerminator(rs[j]) || isCloser(rs[j])) {
				j++
			}
			if j >= n {
				i = j
				continue
			}
			if !isWideTerminator(r) && !unicode.IsSpace(rs[j]) {
				i = j
				continue
			}
			if r == '.' && j == i+1 && !endsSentence(rs, start, i, j, n) {
				i = j
				continue
			}
			k := skipSpace(rs, j, n)
			sentences = append(sentences, Range{Start: start, End: k})
			start, i = k, k

		default:
			i++
		}
	}
	if start < n {
		sentences = append(sentences, Range{Start: start, End: n})
	}
	return sentences
}

// endsSentence decides whether the single period at dot closes a sentence.
func endsSentence(rs []rune, start, dot, after, n int) bool {
	wordStart := dot
	for wordStart > start && !unicode.IsSpace(rs[wordStart-1]) && rs[wordStart-1] != '(' {
		wordStart--
	}
	word := string(rs[wordStart:dot])
	if word == "" {
		return true
	}

	// Single capital initial, as in "J. Smith".
	if len([]rune(word)) == 1 && unicode.IsUpper(rs[wordStart]) {
		return false
	}
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return false
	}

	next := skipSpace(rs, after, n)
	if next < n && unicode.IsLower(rs[next]) {
		return false
	}
	return true
}

func skipSpace(rs []rune, i, n int) int {
	for i < n && unicode.IsSpace(rs[i]) {
		i++
	}
	return i
}
