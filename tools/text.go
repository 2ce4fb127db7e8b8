package tools

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"lcoder/model"
)

// TextEdit is one exact-match replacement in an edit_text_file batch.
type TextEdit struct {
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
}

type editTextFileArgs struct {
	Path   string     `json:"path"`
	Edits  []TextEdit `json:"edits"`
	DryRun bool       `json:"dryRun"`
}

// editTextFile replaces every occurrence of each edit's OldText with its
// NewText against a single snapshot of the file. Content and edit texts are
// line-ending-normalized to LF before matching, so a literal can span what
// were CRLF or CR boundaries in the original; the file's detected ending
// style is reapplied on write, so untouched lines keep their endings. If
// any edit matches nothing the whole batch fails and the file is untouched.
func (ts *Toolset) editTextFile(args editTextFileArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}
	if len(args.Edits) == 0 {
		return model.ErrorResult(fmt.Sprintf("reason=edit_failed; not_found_indices=[]; path=%s", args.Path))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=file_read_error; path=%s; message=%q", args.Path, err.Error()))
	}
	original := normalizeLineEndings(string(data))

	type span struct {
		start, end int
		newText    string
	}
	var spans []span
	var notFound []int

	for i, edit := range args.Edits {
		oldText := normalizeLineEndings(edit.OldText)
		if oldText == "" {
			notFound = append(notFound, i)
			continue
		}
		newText := normalizeLineEndings(edit.NewText)
		found := false
		for start := 0; ; {
			idx := strings.Index(original[start:], oldText)
			if idx == -1 {
				break
			}
			idx += start
			found = true
			spans = append(spans, span{start: idx, end: idx + len(oldText), newText: newText})
			start = idx + len(oldText)
		}
		if !found {
			notFound = append(notFound, i)
		}
	}

	if len(notFound) > 0 {
		return model.ErrorResult(fmt.Sprintf("reason=edit_failed; not_found_indices=[%s]; path=%s", joinInts(notFound), args.Path))
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return model.ErrorResult(fmt.Sprintf("reason=overlapping_edits; path=%s", args.Path))
		}
	}

	// Apply highest offset first so earlier offsets stay valid.
	out := original
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		out = out[:s.start] + s.newText + out[s.end:]
	}

	// CRLF if any CRLF is present, matching the range editor's detection.
	if strings.Contains(string(data), "\r\n") {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}

	if !args.DryRun {
		if err := atomicWrite(abs, []byte(out)); err != nil {
			return model.ErrorResult(fmt.Sprintf("reason=file_write_error; path=%s; message=%q", args.Path, err.Error()))
		}
	}
	return model.SuccessResult(fmt.Sprintf("action=edit_text_file; replacements=%d; path=%s; dryRun=%t", len(spans), args.Path, args.DryRun))
}

// RangeEdit is one line-range replacement in an edit_text_file_by_range
// batch. StartLine is 1-based; LineCount 0 means pure insertion before
// StartLine.
type RangeEdit struct {
	StartLine int    `json:"startLine"`
	LineCount int    `json:"lineCount"`
	NewText   string `json:"newText"`
}

type editTextFileByRangeArgs struct {
	Path   string      `json:"path"`
	Edits  []RangeEdit `json:"edits"`
	DryRun bool        `json:"dryRun"`
}

// editTextFileByRange applies line-range edits against a single snapshot of
// the file's 1-based line numbering. Overlapping ranges reject the whole
// batch before anything is written; edits apply from the highest starting
// offset down so earlier offsets stay valid.
func (ts *Toolset) editTextFileByRange(args editTextFileByRangeArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}
	if len(args.Edits) == 0 {
		return model.ErrorResult(fmt.Sprintf("reason=invalid_arguments; path=%s; message=%q", args.Path, "no edits"))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=file_read_error; path=%s; message=%q", args.Path, err.Error()))
	}
	original := string(data)

	// The file's detected ending style wins: CRLF if any CRLF is present.
	eol := "\n"
	if strings.Contains(original, "\r\n") {
		eol = "\r\n"
	}

	lineStarts := []int{0}
	for i := 0; i < len(original); i++ {
		if original[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	totalLines := len(lineStarts)

	type rangeSpan struct {
		start, end int
		newText    string
		index      int
	}
	spans := make([]rangeSpan, 0, len(args.Edits))
	replacedLines := 0
	insertedLines := 0

	for i, e := range args.Edits {
		if e.StartLine < 1 || e.LineCount < 0 {
			return model.ErrorResult(fmt.Sprintf("reason=invalid_arguments; path=%s; index=%d; startLine=%d; lineCount=%d", args.Path, i, e.StartLine, e.LineCount))
		}
		// startLine may be totalLines+1 for insertion at end of file.
		if e.StartLine > totalLines+1 {
			return model.ErrorResult(fmt.Sprintf("reason=range_out_of_bounds; path=%s; index=%d; startLine=%d; totalLines=%d", args.Path, i, e.StartLine, totalLines))
		}

		start := len(original)
		if e.StartLine <= totalLines {
			start = lineStarts[e.StartLine-1]
		}
		end := start
		if e.LineCount > 0 {
			endLineExclusive := e.StartLine - 1 + e.LineCount
			if endLineExclusive > totalLines {
				return model.ErrorResult(fmt.Sprintf("reason=range_out_of_bounds; path=%s; index=%d; startLine=%d; lineCount=%d; totalLines=%d", args.Path, i, e.StartLine, e.LineCount, totalLines))
			}
			if endLineExclusive < totalLines {
				end = lineStarts[endLineExclusive]
			} else {
				end = len(original)
			}
		}

		newText := normalizeLineEndings(e.NewText)
		newText = strings.ReplaceAll(newText, "\n", eol)

		spans = append(spans, rangeSpan{start: start, end: end, newText: newText, index: i})
		if e.LineCount > 0 {
			replacedLines += e.LineCount
		} else if newText != "" {
			insertedLines += strings.Count(newText, eol) + 1
		}
	}

	sorted := append([]rangeSpan(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end < sorted[j].end
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].start < sorted[i-1].end {
			return model.ErrorResult(fmt.Sprintf("reason=overlapping_ranges; path=%s; atIndices=%d,%d", args.Path, sorted[i-1].index, sorted[i].index))
		}
	}

	out := original
	for i := len(sorted) - 1; i >= 0; i-- {
		s := sorted[i]
		out = out[:s.start] + s.newText + out[s.end:]
	}

	if !args.DryRun {
		if err := atomicWrite(abs, []byte(out)); err != nil {
			return model.ErrorResult(fmt.Sprintf("reason=file_write_error; path=%s; message=%q", args.Path, err.Error()))
		}
	}
	return model.SuccessResult(fmt.Sprintf("action=edit_text_file_by_range; path=%s; applied=%d; replacedLines=%d; insertedLines=%d; dryRun=%t", args.Path, len(spans), replacedLines, insertedLines, args.DryRun))
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
