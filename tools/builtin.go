package tools

import "lcoder/model"

// BuiltinDefinitions returns the schema-complete definitions of the builtin
// file/text tools, in the order they are offered to the model.
func BuiltinDefinitions() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "read_text_file",
			Description: "Read a text file (UTF-8) from the working directory. head returns the first N lines, tail the last N lines; head and tail cannot be combined.",
			Parameters: objectSchema(map[string]any{
				"path": prop("string", "Working-directory-relative path to the file to read."),
				"head": prop("number", "Return only the first N lines. Cannot be used with tail."),
				"tail": prop("number", "Return only the last N lines. Cannot be used with head."),
			}, "path"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "write_file",
			Description: "Write text content (UTF-8) to a file, overwriting if it exists. Parent directory must already exist.",
			Parameters: objectSchema(map[string]any{
				"content": prop("string", "Text content to write (UTF-8)."),
				"path":    prop("string", "Working-directory-relative target file path. Parent directory must already exist."),
			}, "content", "path"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "create_directory",
			Description: "Create a directory (recursive). Succeeds if it already exists.",
			Parameters: objectSchema(map[string]any{
				"path": prop("string", "Working-directory-relative directory path to create (recursive)."),
			}, "path"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "list_directory",
			Description: "List direct children of a directory (no recursion), marking entries as [DIR] name/ or [FILE] name.",
			Parameters: objectSchema(map[string]any{
				"path": prop("string", "Working-directory-relative directory path whose direct children are listed."),
			}, "path"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "move_file",
			Description: "Move or rename a file/directory. Fails if destination exists.",
			Parameters: objectSchema(map[string]any{
				"source":      prop("string", "Working-directory-relative source file or directory path."),
				"destination": prop("string", "Working-directory-relative destination path. Must not already exist."),
			}, "source", "destination"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "search_files",
			Description: "Recursively search starting at a path using a case-insensitive glob pattern matched against paths relative to the start directory. excludePatterns suppress matches without stopping traversal.",
			Parameters: objectSchema(map[string]any{
				"path":    prop("string", "Working-directory-relative start directory for the search."),
				"pattern": prop("string", "Case-insensitive glob pattern matched against each item's relative path from start."),
				"excludePatterns": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional case-insensitive glob pattern(s) to exclude from matching.",
				},
			}, "path", "pattern"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "edit_text_file",
			Description: "Apply exact-match, all-occurrence text replacements to a file (UTF-8). If any oldText is not found, no changes are written. dryRun simulates without writing.",
			Parameters: objectSchema(map[string]any{
				"path": prop("string", "Working-directory-relative path of the file to edit."),
				"edits": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": objectSchema(map[string]any{
						"oldText": prop("string", "Exact text to find (all occurrences). No regex."),
						"newText": prop("string", "Replacement text for each occurrence of oldText."),
					}, "oldText", "newText"),
				},
				"dryRun": prop("boolean", "If true, do not write changes; only report status."),
			}, "path", "edits"),
		},
		{
			Kind:        model.ToolKindBuiltin,
			Name:        "edit_text_file_by_range",
			Description: "Replace or insert line ranges in a file against a single snapshot of its 1-based line numbering. lineCount 0 inserts before startLine; startLine may be totalLines+1 with lineCount 0 to append. Overlapping ranges reject the whole batch.",
			Parameters: objectSchema(map[string]any{
				"path": prop("string", "Working-directory-relative path of the file to edit."),
				"edits": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": objectSchema(map[string]any{
						"startLine": prop("number", "1-based first line of the range."),
						"lineCount": prop("number", "Number of lines to replace; 0 means pure insertion before startLine."),
						"newText":   prop("string", "Replacement or inserted text. Line endings are normalized to the file's style."),
					}, "startLine", "lineCount", "newText"),
				},
				"dryRun": prop("boolean", "If true, do not write changes; only report status."),
			}, "path", "edits"),
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
