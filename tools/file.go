package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danwakefield/fnmatch"

	"lcoder/model"
)

type readTextFileArgs struct {
	Path string `json:"path"`
	Head *int   `json:"head"`
	Tail *int   `json:"tail"`
}

func (ts *Toolset) readTextFile(args readTextFileArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}
	if args.Head != nil && args.Tail != nil {
		return model.ErrorResult(fmt.Sprintf("reason=head_and_tail_conflict; path=%s", args.Path))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=file_read_error; path=%s; message=%q", args.Path, err.Error()))
	}
	content := string(data)

	if args.Head != nil && *args.Head >= 0 {
		lines := splitFileLines(content)
		if *args.Head < len(lines) {
			lines = lines[:*args.Head]
		}
		return model.ToolResult{Text: strings.Join(lines, "\n")}
	}
	if args.Tail != nil && *args.Tail >= 0 {
		lines := splitFileLines(content)
		if *args.Tail < len(lines) {
			lines = lines[len(lines)-*args.Tail:]
		}
		return model.ToolResult{Text: strings.Join(lines, "\n")}
	}
	return model.ToolResult{Text: content}
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// writeFile overwrites atomically: the content lands in a temp file in the
// target's parent directory and is renamed into place. The parent directory
// must already exist; writes never auto-create directories.
func (ts *Toolset) writeFile(args writeFileArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}

	parent := filepath.Dir(abs)
	st, err := os.Stat(parent)
	if err != nil || !st.IsDir() {
		return model.ErrorResult(fmt.Sprintf("reason=parent_directory_missing; path=%s; parent=%s", args.Path, ts.root.Rel(parent)))
	}

	if err := atomicWrite(abs, []byte(args.Content)); err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=file_write_error; path=%s; message=%q", args.Path, err.Error()))
	}
	return model.SuccessResult(fmt.Sprintf("action=write_file; path=%s; bytes=%d", args.Path, len(args.Content)))
}

type createDirectoryArgs struct {
	Path string `json:"path"`
}

func (ts *Toolset) createDirectory(args createDirectoryArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=mkdir_error; path=%s; message=%q", args.Path, err.Error()))
	}
	return model.SuccessResult(fmt.Sprintf("action=create_directory; path=%s", args.Path))
}

type listDirectoryArgs struct {
	Path string `json:"path"`
}

func (ts *Toolset) listDirectory(args listDirectoryArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}

	st, err := os.Stat(abs)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=list_error; path=%s; message=%q", args.Path, err.Error()))
	}
	if !st.IsDir() {
		return model.ErrorResult(fmt.Sprintf("reason=not_a_directory; path=%s", args.Path))
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=list_error; path=%s; message=%q", args.Path, err.Error()))
	}

	// Directories first, then lexicographic by name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	items := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			items = append(items, "[DIR] "+e.Name()+"/")
		} else {
			items = append(items, "[FILE] "+e.Name())
		}
	}
	return model.ToolResult{Text: strings.Join(items, "\n")}
}

type moveFileArgs struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (ts *Toolset) moveFile(args moveFileArgs) model.ToolResult {
	srcAbs, err := ts.root.Resolve(args.Source)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Source))
	}
	dstAbs, err := ts.root.Resolve(args.Destination)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Destination))
	}

	if _, err := os.Stat(dstAbs); err == nil {
		return model.ErrorResult(fmt.Sprintf("reason=destination_exists; destination=%s", args.Destination))
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=move_error; source=%s; destination=%s; message=%q", args.Source, args.Destination, err.Error()))
	}
	return model.SuccessResult(fmt.Sprintf("action=move_file; source=%s; destination=%s", args.Source, args.Destination))
}

type searchFilesArgs struct {
	Path            string   `json:"path"`
	Pattern         string   `json:"pattern"`
	ExcludePatterns []string `json:"excludePatterns"`
}

// searchFiles walks the tree under the start path and matches each entry's
// path relative to the search root against a case-insensitive glob.
// Exclusion patterns suppress matching only; excluded directories are still
// traversed so nested matches surface. Unreadable directories are skipped.
func (ts *Toolset) searchFiles(args searchFilesArgs) model.ToolResult {
	abs, err := ts.root.Resolve(args.Path)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("reason=path_outside_cwd; path=%s", args.Path))
	}

	pattern := args.Pattern
	if pattern == "" {
		pattern = "*"
	}

	flags := fnmatch.FNM_CASEFOLD
	excluded := func(rel string) bool {
		for _, ex := range args.ExcludePatterns {
			if fnmatch.Match(ex, rel, flags) {
				return true
			}
		}
		return false
	}

	var results []string
	var walk func(dirAbs string)
	walk = func(dirAbs string) {
		entries, err := os.ReadDir(dirAbs)
		if err != nil {
			return
		}
		for _, ent := range entries {
			childAbs := filepath.Join(dirAbs, ent.Name())
			relFromBase, err := filepath.Rel(abs, childAbs)
			if err != nil {
				continue
			}
			relFromBase = filepath.ToSlash(relFromBase)
			if !excluded(relFromBase) && fnmatch.Match(pattern, relFromBase, flags) {
				results = append(results, ts.root.Rel(childAbs))
			}
			if ent.IsDir() {
				walk(childAbs)
			}
		}
	}
	walk(abs)

	return model.ToolResult{Text: strings.Join(results, "\n")}
}

// splitFileLines splits on LF, tolerating CRLF, for head/tail slicing.
func splitFileLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// atomicWrite writes via a temp file in the same directory plus rename.
func atomicWrite(abs string, data []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, ".lcoder-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
