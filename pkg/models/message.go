package models

// ToolCall is a named, argument-bearing function invocation recorded on an
// AI message.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// TokenUsage carries per-message token accounting when the agent reports it.
type TokenUsage struct {
	Input  int `json:"input,omitempty"`
	Output int `json:"output,omitempty"`
	Total  int `json:"total"`
}

// Message is one conversation entry. Role follows the agent's convention:
// "human", "ai", "tool", "system".
type Message struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolName   string      `json:"tool_name,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
}

// AgentResponse is the structured record returned by the user agent.
// The core never inspects message text beyond extracting tool-call names.
type AgentResponse struct {
	Messages []Message `json:"messages"`
}

// ToolCallNames returns the observed tool-call names across all messages,
// in emission order. Duplicates are preserved (multiset semantics).
func (r *AgentResponse) ToolCallNames() []string {
	var names []string
	for _, msg := range r.Messages {
		for _, call := range msg.ToolCalls {
			names = append(names, call.Name)
		}
	}
	return names
}

// TotalTokens sums token usage across messages that carry it.
func (r *AgentResponse) TotalTokens() int {
	total := 0
	for _, msg := range r.Messages {
		if msg.TokenUsage != nil {
			total += msg.TokenUsage.Total
		}
	}
	return total
}
