package models

// ErrorType classifies why a test failed. Absent on passing results.
type ErrorType string

// Stable failure classification labels.
const (
	// ErrorTypeExpectation: the validator reported unmet expectations.
	ErrorTypeExpectation ErrorType = "expectation"
	// ErrorTypeToolCall: the observed tool calls do not cover the expected multiset.
	ErrorTypeToolCall ErrorType = "tool_call"
	// ErrorTypeValidation: the validator rejected the run without naming
	// which expectations failed.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnexpected: an uncaught failure anywhere in the pipeline.
	ErrorTypeUnexpected ErrorType = "unexpected"
)

// ValidationVerdict is the validator collaborator's judgment of an agent
// response against a test's expectations.
type ValidationVerdict struct {
	Success        bool              `json:"success"`
	Reasoning      string            `json:"reasoning"`
	Unmet          []string          `json:"unmet"`
	FailureReasons map[string]string `json:"failure_reasons,omitempty"`
}

// TestResult is one execution outcome for a single test.
type TestResult struct {
	QualifiedName   string `json:"qualified_name"`
	Module          string `json:"module"`
	Name            string `json:"name"`
	Passed          bool   `json:"passed"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalTokens     int     `json:"total_tokens"`

	ErrorType ErrorType `json:"error_type,omitempty"`
	ErrorText string    `json:"error_text,omitempty"`

	Prompt            string            `json:"prompt"`
	Expectations      []string          `json:"expectations"`
	Unmet             []string          `json:"unmet"`
	FailureReasons    map[string]string `json:"failure_reasons,omitempty"`
	ExpectedToolCalls []string          `json:"expected_tool_calls"`
	Response          *AgentResponse    `json:"response,omitempty"`
}
