package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// PersonIdentity is a named face registered for person-aware search.
type PersonIdentity struct {
	// ID is the unique identifier for the person.
	ID string

	// Name is the display name matched against query text.
	Name string

	// Aliases are alternative names matched against query text.
	Aliases []string

	// FaceVectors are reference embeddings from the registered photos.
	FaceVectors [][]float32

	// CreatedAt is when the person was registered.
	CreatedAt time.Time
}

// Names returns the name followed by its aliases, skipping blanks.
func (p PersonIdentity) Names() []string {
	names := make([]string, 0, 1+len(p.Aliases))
	for _, n := range append([]string{p.Name}, p.Aliases...) {
		if strings.TrimSpace(n) != "" {
			names = append(names, n)
		}
	}
	return names
}

// MentionedIn reports whether the name or an alias occurs in text as a whole word,
// ignoring case.
func (p PersonIdentity) MentionedIn(text string) bool {
	haystack := strings.ToLower(text)
	for _, name := range p.Names() {
		if containsWord(haystack, strings.ToLower(strings.TrimSpace(name))) {
			return true
		}
	}
	return false
}

func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		offset = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
