// Package models contains the shared domain types exchanged between the
// discovery, queue, history, and API layers.
package models

import "strings"

// QualifiedNameSeparator joins a test's module and function name into the
// stable identifier used across the API, the history store, and job state.
const QualifiedNameSeparator = "::"

// QualifiedName builds the canonical "<module>::<name>" identifier.
func QualifiedName(module, name string) string {
	return module + QualifiedNameSeparator + name
}

// SplitQualifiedName splits a qualified name into module and function name.
// The second return value is false when the separator is missing.
func SplitQualifiedName(qualifiedName string) (module, name string, ok bool) {
	idx := strings.LastIndex(qualifiedName, QualifiedNameSeparator)
	if idx <= 0 || idx+len(QualifiedNameSeparator) >= len(qualifiedName) {
		return "", "", false
	}
	return qualifiedName[:idx], qualifiedName[idx+len(QualifiedNameSeparator):], true
}

// TestDescriptor identifies one discovered test function.
type TestDescriptor struct {
	QualifiedName string `json:"qualified_name"`
	Module        string `json:"module"`
	Name          string `json:"name"`
	// Docstring is the first line of the test function's documentation,
	// empty when the function has none.
	Docstring string `json:"docstring,omitempty"`
}

// DiscoverySnapshot is one consistent view of the discovered test set.
// ErrorText carries import/scan failures for files that could not be loaded;
// Tests still contains descriptors from files that loaded successfully.
type DiscoverySnapshot struct {
	Tests     []TestDescriptor `json:"tests"`
	ErrorText string           `json:"error_text,omitempty"`
}

// Descriptor returns the descriptor for a qualified name, if present.
func (s *DiscoverySnapshot) Descriptor(qualifiedName string) (TestDescriptor, bool) {
	for _, d := range s.Tests {
		if d.QualifiedName == qualifiedName {
			return d, true
		}
	}
	return TestDescriptor{}, false
}

// CaseSpec is the structured form of a test's single case: the prompt sent
// to the agent, the free-text expectations judged by the validator, and the
// multiset of tool names the agent is expected to call.
type CaseSpec struct {
	Prompt            string   `json:"prompt"`
	Expectations      []string `json:"expectations"`
	ExpectedToolCalls []string `json:"expected_tool_calls"`
}
