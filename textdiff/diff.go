// Package textdiff renders the line diffs shown in tool-approval previews.
//
// The algorithm is a minimal patience diff: lines occurring exactly once in
// both texts become anchors, the longest order-preserving run of anchors is
// kept, and every gap is emitted as a naive block of removals followed by
// additions. It is a cheap, deterministic approximation, not a minimal edit
// script.
package textdiff

import (
	"sort"
	"strings"
)

// Kind tags one output line.
type Kind int

const (
	Unchanged Kind = iota
	Removed
	Added
)

// Line is one tagged line of diff output.
type Line struct {
	Kind Kind
	Text string
}

type anchor struct {
	ai int
	bi int
}

// Diff compares two texts line by line.
func Diff(oldText, newText string) []Line {
	a := splitLines(oldText)
	b := splitLines(newText)

	var out []Line
	anchors := computeAnchors(a, b)

	aPrev, bPrev := 0, 0
	for _, anc := range anchors {
		if aPrev < anc.ai || bPrev < anc.bi {
			out = naiveBlock(a, aPrev, anc.ai, b, bPrev, anc.bi, out)
		}
		out = append(out, Line{Kind: Unchanged, Text: a[anc.ai]})
		aPrev = anc.ai + 1
		bPrev = anc.bi + 1
	}
	if aPrev < len(a) || bPrev < len(b) {
		out = naiveBlock(a, aPrev, len(a), b, bPrev, len(b), out)
	}
	return out
}

// Render formats a diff the way the approval prompt displays it: two-column
// prefixes "  ", "- ", "+ " with no hunk headers.
func Render(oldText, newText string) string {
	lines := Diff(oldText, newText)
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch l.Kind {
		case Removed:
			sb.WriteString("- ")
		case Added:
			sb.WriteString("+ ")
		default:
			sb.WriteString("  ")
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// splitLines splits on CRLF, CR and LF, keeping the final line even without
// a trailing newline. Empty input is a single empty line.
func splitLines(text string) []string {
	if text == "" {
		return []string{""}
	}
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

func naiveBlock(a []string, aStart, aEnd int, b []string, bStart, bEnd int, out []Line) []Line {
	for i := aStart; i < aEnd; i++ {
		out = append(out, Line{Kind: Removed, Text: a[i]})
	}
	for j := bStart; j < bEnd; j++ {
		out = append(out, Line{Kind: Added, Text: b[j]})
	}
	return out
}

// computeAnchors pairs lines unique in both sequences and extracts the
// longest increasing subsequence over positions in b, so anchors preserve
// order in both texts.
func computeAnchors(a, b []string) []anchor {
	aCount := make(map[string]int, len(a))
	bCount := make(map[string]int, len(b))
	for _, s := range a {
		aCount[s]++
	}
	for _, s := range b {
		bCount[s]++
	}

	aPos := make(map[string]int)
	bPos := make(map[string]int)
	for i, s := range a {
		if aCount[s] == 1 {
			aPos[s] = i
		}
	}
	for j, s := range b {
		if bCount[s] == 1 {
			bPos[s] = j
		}
	}

	var pairs []anchor
	for line, ai := range aPos {
		if bj, ok := bPos[line]; ok && bCount[line] == 1 {
			pairs = append(pairs, anchor{ai: ai, bi: bj})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ai < pairs[j].ai })

	n := len(pairs)
	if n == 0 {
		return nil
	}

	// Longest increasing subsequence on bi via patience sorting.
	tails := make([]int, 0, n) // indices into pairs
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}
	for i := 0; i < n; i++ {
		bi := pairs[i].bi
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if pairs[tails[mid]].bi < bi {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	var anchors []anchor
	for k := tails[len(tails)-1]; k >= 0; k = prev[k] {
		anchors = append(anchors, pairs[k])
	}
	for i, j := 0, len(anchors)-1; i < j; i, j = i+1, j-1 {
		anchors[i], anchors[j] = anchors[j], anchors[i]
	}
	return anchors
}
