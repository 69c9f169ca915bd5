// Package runner is the Go-side seam to the out-of-process test runner: the
// helper that hosts the user project's test functions, agent callable,
// validator, and tools. The core never assumes in-process code mutation —
// hot reload is a runner operation.
package runner

import (
	"context"
	"errors"

	"github.com/gooseworks/goose/pkg/models"
)

// ErrNotFound is returned when the runner does not know the requested test,
// tool, or agent.
var ErrNotFound = errors.New("runner: not found")

// Client is the interface the core consumes. All blocking operations accept
// a context; implementations must be safe for concurrent use — workers call
// QueryAgent and Judge in parallel.
type Client interface {
	// ListTests scans the configured project root. Partial results are
	// returned alongside ErrorText when individual test files fail to load.
	ListTests(ctx context.Context) (models.DiscoverySnapshot, error)

	// Reload drops the runner's cached source modules so the next discovery
	// or execution observes fresh user code.
	Reload(ctx context.Context) error

	// CaptureCases executes the named test function inside the runner's
	// harness and returns every case it emitted. The pipeline enforces the
	// exactly-one-case contract.
	CaptureCases(ctx context.Context, module, name string) ([]models.CaseSpec, error)

	// QueryAgent invokes the user agent callable with a prompt.
	QueryAgent(ctx context.Context, prompt string) (models.AgentResponse, error)

	// Judge asks the validator to assess a response against expectations.
	Judge(ctx context.Context, response models.AgentResponse, expectations []string) (models.ValidationVerdict, error)

	// ListTools returns the agent-visible tool catalog.
	ListTools(ctx context.Context) ([]models.ToolSummary, error)

	// ToolSchema returns the introspected signature of one tool.
	ToolSchema(ctx context.Context, name string) (models.ToolSchema, error)

	// InvokeTool executes one tool with already-coerced arguments.
	// Tool-level failures are carried in the result, not the error.
	InvokeTool(ctx context.Context, name string, args map[string]any) (models.InvokeResult, error)

	// ReloadTools invalidates the cached source of tool-bearing modules.
	ReloadTools(ctx context.Context) error

	// ListAgents returns the chat-capable agents the runner publishes.
	ListAgents(ctx context.Context) ([]models.AgentInfo, error)

	// StreamChat starts a streaming agent turn over the full conversation
	// history. The returned channel preserves the agent's emission order and
	// is closed when the stream ends; failures arrive as ErrorChunk values.
	StreamChat(ctx context.Context, agentID, model string, messages []models.Message) (<-chan ChatChunk, error)

	// Close releases the connection.
	Close() error
}

// ChatChunk is one streamed fragment of an agent turn.
type ChatChunk interface {
	chatChunk()
}

// TokenChunk is an incremental piece of assistant text.
type TokenChunk struct {
	Content string
}

// ToolCallChunk signals the agent invoked a tool.
type ToolCallChunk struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolOutputChunk carries a tool execution result.
type ToolOutputChunk struct {
	ToolName   string
	ToolCallID string
	Content    string
}

// ErrorChunk terminates a stream with a failure message.
type ErrorChunk struct {
	Message string
}

func (TokenChunk) chatChunk()      {}
func (ToolCallChunk) chatChunk()   {}
func (ToolOutputChunk) chatChunk() {}
func (ErrorChunk) chatChunk()      {}
