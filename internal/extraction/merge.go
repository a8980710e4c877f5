package extraction

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
)

// #region merge

const (
	transcriptLabel = "Transcript:"
	onScreenLabel   = "On-screen text:"
	emptyBlock      = "(none)"
)

// Merge renders the evidence as two labeled blocks, transcript first, each line
// prefixed with its timestamp. An empty block reads "(none)".
func Merge(transcript []Segment, onScreen []Snippet) string {
	var b strings.Builder
	b.WriteString(transcriptLabel)
	b.WriteByte('\n')
	if len(transcript) == 0 {
		b.WriteString(emptyBlock)
		b.WriteByte('\n')
	}
	for _, s := range transcript {
		fmt.Fprintf(&b, "[%.1fs-%.1fs] %s\n", s.Start, s.End, s.Text)
	}
	b.WriteByte('\n')
	b.WriteString(onScreenLabel)
	b.WriteByte('\n')
	if len(onScreen) == 0 {
		b.WriteString(emptyBlock)
		b.WriteByte('\n')
	}
	for _, s := range onScreen {
		fmt.Fprintf(&b, "[%.1fs] %s\n", s.At, s.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// #endregion merge

// #region normalize

// normalizeSegments cleans text, drops empty segments and orders by start time.
func normalizeSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, s := range in {
		s.Text = retrieval.CleanText(s.Text)
		if s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// normalizeSnippets cleans text, drops fragments of two runes or fewer, and keeps
// only the first occurrence of each text (case-insensitive), ordered by time.
func normalizeSnippets(in []Snippet) []Snippet {
	sorted := append([]Snippet(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	seen := make(map[string]bool, len(sorted))
	out := make([]Snippet, 0, len(sorted))
	for _, s := range sorted {
		s.Text = retrieval.CleanText(s.Text)
		if utf8.RuneCountInString(s.Text) <= 2 {
			continue
		}
		key := strings.ToLower(s.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// #endregion normalize
