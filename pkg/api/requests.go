package api

// CreateRunRequest is the HTTP request body for POST /testing/runs.
type CreateRunRequest struct {
	// Tests selects a subset of discovered tests; absent or empty means all.
	Tests []string `json:"tests,omitempty"`
}

// InvokeToolRequest is the HTTP request body for POST /tooling/tools/:name/invoke.
type InvokeToolRequest struct {
	Args map[string]any `json:"args"`
}

// CreateConversationRequest is the HTTP request body for POST /chatting/conversations.
type CreateConversationRequest struct {
	AgentID string `json:"agent_id"`
	Model   string `json:"model"`
	Title   string `json:"title,omitempty"`
}
