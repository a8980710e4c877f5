package retrieval

import (
	"strings"
	"unicode"
)

// #region span

// Span is a window of source text starting at a rune offset.
type Span struct {
	Offset int
	Text   string
}

// #endregion span

// #region chunk

// Chunk splits text into windows of size runes, each starting size-overlap runes
// after the previous one. Text no longer than size yields a single span, and the
// final span always ends at the end of the text, so dropping the first overlap
// runes of every span after the first reconstructs the input exactly.
func Chunk(text string, size, overlap int) ([]Span, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidWindow
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := size - overlap
	var spans []Span
	for start := 0; ; start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, Span{Offset: start, Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return spans, nil
}

// #endregion chunk

// #region clean-text

// CleanText strips control characters and collapses whitespace runs to one space.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// #endregion clean-text
