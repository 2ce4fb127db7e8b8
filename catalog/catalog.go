// Package catalog merges builtin, configuration-defined and
// externally-discovered tool definitions into one conflict-free catalog.
package catalog

import (
	"fmt"
	"regexp"

	"lcoder/model"
)

// Tool names: at least two characters, alphanumeric at both ends, internal
// '_' or '-' only between alphanumerics.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9](?:[_-]?[A-Za-z0-9])+$`)

// ValidName reports whether name satisfies the catalog naming rule.
func ValidName(name string) bool {
	return nameRegexp.MatchString(name)
}

// Resolve builds the merged catalog for a turn. Builtins are always included
// in order; config tools are validated against the name rule and prior
// acceptances; external tools additionally lose to any builtin or config
// name. Every rejection produces a warning and processing continues —
// Resolve never fails.
func Resolve(builtins, configTools []model.ToolDefinition, externalByConnection [][]model.ToolDefinition) ([]model.ToolDefinition, []string) {
	catalog := make([]model.ToolDefinition, 0, len(builtins)+len(configTools))
	var warnings []string

	seen := make(map[string]bool, len(builtins))
	for _, t := range builtins {
		catalog = append(catalog, t)
		seen[t.Name] = true
	}

	for _, t := range configTools {
		if !ValidName(t.Name) {
			warnings = append(warnings, fmt.Sprintf("skipping config tool %q: invalid name", t.Name))
			continue
		}
		if seen[t.Name] {
			warnings = append(warnings, fmt.Sprintf("skipping duplicate config tool %q", t.Name))
			continue
		}
		seen[t.Name] = true
		catalog = append(catalog, t)
	}

	// Names claimed by builtins and config tools; an external tool that
	// collides with either is a cross-source conflict, not a duplicate.
	reserved := make(map[string]bool, len(seen))
	for name := range seen {
		reserved[name] = true
	}

	for _, conn := range externalByConnection {
		for _, t := range conn {
			if !ValidName(t.Name) {
				warnings = append(warnings, fmt.Sprintf("skipping external tool %q: invalid name", t.Name))
				continue
			}
			if reserved[t.Name] {
				warnings = append(warnings, fmt.Sprintf("skipping external tool %q: conflicts with config tool", t.Name))
				continue
			}
			if seen[t.Name] {
				warnings = append(warnings, fmt.Sprintf("skipping duplicate external tool %q", t.Name))
				continue
			}
			seen[t.Name] = true
			catalog = append(catalog, t)
		}
	}

	return catalog, warnings
}

// ConfigToolDefinition builds the ToolDefinition for a configuration-defined
// tool: a single required "text" argument forwarded as the user turn of a
// secondary model call.
func ConfigToolDefinition(name, description, modelKey, systemPrompt string) model.ToolDefinition {
	return model.ToolDefinition{
		Kind:         model.ToolKindConfig,
		Name:         name,
		Description:  description,
		ModelKey:     modelKey,
		SystemPrompt: systemPrompt,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "Input text passed to the tool's model as the user message.",
				},
			},
			"required":             []string{"text"},
			"additionalProperties": false,
		},
	}
}
