// Package tools implements the builtin file and text tools, confined to a
// sandbox root. Every operation returns a model.ToolResult value; failures
// are error-flagged results, never panics or Go errors, so the orchestrator
// can fold them into conversation history.
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lcoder/model"
	"lcoder/sandbox"
	"lcoder/textdiff"
)

// Toolset binds the builtin tool handlers to one sandbox root.
type Toolset struct {
	root *sandbox.Root
}

func NewToolset(root *sandbox.Root) *Toolset {
	return &Toolset{root: root}
}

// IsBuiltin reports whether name belongs to the builtin tool set.
func (ts *Toolset) IsBuiltin(name string) bool {
	switch name {
	case "read_text_file", "write_file", "create_directory", "list_directory",
		"move_file", "search_files", "edit_text_file", "edit_text_file_by_range":
		return true
	}
	return false
}

// IsEditTool reports whether name is an edit-class tool whose approval
// prompt carries a diff preview.
func (ts *Toolset) IsEditTool(name string) bool {
	return name == "edit_text_file" || name == "edit_text_file_by_range"
}

// Call executes a builtin tool with raw JSON arguments.
func (ts *Toolset) Call(name, rawArgs string) model.ToolResult {
	if rawArgs == "" {
		rawArgs = "{}"
	}
	switch name {
	case "read_text_file":
		var args readTextFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.readTextFile(args)
	case "write_file":
		var args writeFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.writeFile(args)
	case "create_directory":
		var args createDirectoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.createDirectory(args)
	case "list_directory":
		var args listDirectoryArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.listDirectory(args)
	case "move_file":
		var args moveFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.moveFile(args)
	case "search_files":
		var args searchFilesArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.searchFiles(args)
	case "edit_text_file":
		var args editTextFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.editTextFile(args)
	case "edit_text_file_by_range":
		var args editTextFileByRangeArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return badArgs(name, err)
		}
		return ts.editTextFileByRange(args)
	}
	return model.ErrorResult(fmt.Sprintf("reason=tool_not_found; name=%s", name))
}

// DiffPreview renders per-edit line diffs for an edit-class tool call, for
// display during approval. It is best effort and purely presentational:
// any parse or read failure yields an empty preview, never an error.
func (ts *Toolset) DiffPreview(name, rawArgs string) string {
	switch name {
	case "edit_text_file":
		var args editTextFileArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return ""
		}
		previews := make([]string, 0, len(args.Edits))
		for i, edit := range args.Edits {
			previews = append(previews, fmt.Sprintf("edit %d:\n%s", i, textdiff.Render(edit.OldText, edit.NewText)))
		}
		return strings.Join(previews, "\n\n")
	case "edit_text_file_by_range":
		var args editTextFileByRangeArgs
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return ""
		}
		abs, err := ts.root.Resolve(args.Path)
		if err != nil {
			return ""
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return ""
		}
		lines := splitFileLines(string(data))
		previews := make([]string, 0, len(args.Edits))
		for i, edit := range args.Edits {
			oldBlock := ""
			if edit.StartLine >= 1 && edit.LineCount > 0 {
				from := edit.StartLine - 1
				to := from + edit.LineCount
				if from < len(lines) {
					if to > len(lines) {
						to = len(lines)
					}
					oldBlock = strings.Join(lines[from:to], "\n")
				}
			}
			previews = append(previews, fmt.Sprintf("edit %d:\n%s", i, textdiff.Render(oldBlock, edit.NewText)))
		}
		return strings.Join(previews, "\n\n")
	}
	return ""
}

func badArgs(name string, err error) model.ToolResult {
	return model.ErrorResult(fmt.Sprintf("reason=invalid_arguments; name=%s; message=%q", name, err.Error()))
}
