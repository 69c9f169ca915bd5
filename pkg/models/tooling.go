package models

import "encoding/json"

// ToolSummary is the list-view description of a registered tool.
type ToolSummary struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	ParameterCount int    `json:"parameter_count"`
	Group          string `json:"group,omitempty"`
}

// ToolParameter describes one parameter of a tool's signature.
type ToolParameter struct {
	Name        string          `json:"name"`
	TypeName    string          `json:"type_name"`
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required"`
	Default     json.RawMessage `json:"default,omitempty"`
}

// ToolSchema is the full introspected signature of a tool. JSONSchema, when
// present, is the tool's published JSON-schema document for its arguments.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	JSONSchema  json.RawMessage `json:"json_schema,omitempty"`
}

// InvokeResult is the outcome of a direct tool invocation. Tool-level
// failures are carried in-band: Success false with Error set.
type InvokeResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}
