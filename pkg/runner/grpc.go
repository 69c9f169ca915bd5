package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gooseworks/goose/pkg/models"
)

// Runner service method names. The protocol is deliberately schemaless:
// every message is a structpb.Struct, because the Python side's payloads
// (agent responses, tool arguments, captured cases) are dynamically shaped
// and would force a stub regeneration on every field the user code grows.
const (
	methodListTests    = "/goose.runner.v1.Runner/ListTests"
	methodReload       = "/goose.runner.v1.Runner/Reload"
	methodCaptureCases = "/goose.runner.v1.Runner/CaptureCases"
	methodQueryAgent   = "/goose.runner.v1.Runner/QueryAgent"
	methodJudge        = "/goose.runner.v1.Runner/Judge"
	methodListTools    = "/goose.runner.v1.Runner/ListTools"
	methodToolSchema   = "/goose.runner.v1.Runner/ToolSchema"
	methodInvokeTool   = "/goose.runner.v1.Runner/InvokeTool"
	methodReloadTools  = "/goose.runner.v1.Runner/ReloadTools"
	methodListAgents   = "/goose.runner.v1.Runner/ListAgents"
	methodStreamChat   = "/goose.runner.v1.Runner/StreamChat"
)

var streamChatDesc = &grpc.StreamDesc{
	StreamName:    "StreamChat",
	ServerStreams: true,
}

// GRPCClient implements Client by calling the Python runner service via gRPC.
type GRPCClient struct {
	conn *grpc.ClientConn
	opts GRPCOptions
}

// GRPCOptions carries the project settings the runner needs on every scan
// and the timeout budget for calls that never wait on model inference.
type GRPCOptions struct {
	// ProjectRoot is the directory the runner discovers tests beneath.
	ProjectRoot string
	// ReloadExclude lists module prefixes a reload must never drop.
	ReloadExclude []string
	// CallTimeout bounds discovery, reload, and introspection calls so a
	// hung runner cannot block them indefinitely. Zero disables the bound.
	CallTimeout time.Duration
}

// NewGRPCClient creates a runner client. grpc.NewClient dials lazily; the
// actual connection is established on the first RPC.
func NewGRPCClient(addr string, opts GRPCOptions) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to runner at %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, opts: opts}, nil
}

// callCtx bounds a non-inference unary call by the configured timeout.
func (c *GRPCClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// listTestsRequest carries the configured project root so the runner scans
// the right tree.
func (c *GRPCClient) listTestsRequest() map[string]any {
	return map[string]any{"root": c.opts.ProjectRoot}
}

// reloadRequest names the root plus the module prefixes the reload must
// leave loaded.
func (c *GRPCClient) reloadRequest() map[string]any {
	req := map[string]any{"root": c.opts.ProjectRoot}
	if len(c.opts.ReloadExclude) > 0 {
		req["exclude"] = c.opts.ReloadExclude
	}
	return req
}

// ListTests implements Client.
func (c *GRPCClient) ListTests(ctx context.Context) (models.DiscoverySnapshot, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var snapshot models.DiscoverySnapshot
	if err := c.invoke(ctx, methodListTests, c.listTestsRequest(), &snapshot); err != nil {
		return models.DiscoverySnapshot{}, err
	}
	return snapshot, nil
}

// Reload implements Client.
func (c *GRPCClient) Reload(ctx context.Context) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.invoke(ctx, methodReload, c.reloadRequest(), nil)
}

// CaptureCases implements Client.
func (c *GRPCClient) CaptureCases(ctx context.Context, module, name string) ([]models.CaseSpec, error) {
	req := map[string]any{"module": module, "name": name}
	var resp struct {
		Cases []models.CaseSpec `json:"cases"`
	}
	if err := c.invoke(ctx, methodCaptureCases, req, &resp); err != nil {
		return nil, err
	}
	return resp.Cases, nil
}

// QueryAgent implements Client.
func (c *GRPCClient) QueryAgent(ctx context.Context, prompt string) (models.AgentResponse, error) {
	req := map[string]any{"prompt": prompt}
	var resp models.AgentResponse
	if err := c.invoke(ctx, methodQueryAgent, req, &resp); err != nil {
		return models.AgentResponse{}, err
	}
	return resp, nil
}

// Judge implements Client.
func (c *GRPCClient) Judge(ctx context.Context, response models.AgentResponse, expectations []string) (models.ValidationVerdict, error) {
	req := map[string]any{
		"response":     response,
		"expectations": expectations,
	}
	var verdict models.ValidationVerdict
	if err := c.invoke(ctx, methodJudge, req, &verdict); err != nil {
		return models.ValidationVerdict{}, err
	}
	return verdict, nil
}

// ListTools implements Client.
func (c *GRPCClient) ListTools(ctx context.Context) ([]models.ToolSummary, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var resp struct {
		Tools []models.ToolSummary `json:"tools"`
	}
	if err := c.invoke(ctx, methodListTools, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// ToolSchema implements Client.
func (c *GRPCClient) ToolSchema(ctx context.Context, name string) (models.ToolSchema, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	req := map[string]any{"name": name}
	var schema models.ToolSchema
	if err := c.invoke(ctx, methodToolSchema, req, &schema); err != nil {
		return models.ToolSchema{}, err
	}
	return schema, nil
}

// InvokeTool implements Client.
func (c *GRPCClient) InvokeTool(ctx context.Context, name string, args map[string]any) (models.InvokeResult, error) {
	req := map[string]any{"name": name, "args": args}
	var result models.InvokeResult
	if err := c.invoke(ctx, methodInvokeTool, req, &result); err != nil {
		return models.InvokeResult{}, err
	}
	return result, nil
}

// ReloadTools implements Client.
func (c *GRPCClient) ReloadTools(ctx context.Context) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.invoke(ctx, methodReloadTools, nil, nil)
}

// ListAgents implements Client.
func (c *GRPCClient) ListAgents(ctx context.Context) ([]models.AgentInfo, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	var resp struct {
		Agents []models.AgentInfo `json:"agents"`
	}
	if err := c.invoke(ctx, methodListAgents, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// StreamChat implements Client.
func (c *GRPCClient) StreamChat(ctx context.Context, agentID, model string, messages []models.Message) (<-chan ChatChunk, error) {
	req, err := encodeStruct(map[string]any{
		"agent_id": agentID,
		"model":    model,
		"messages": messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	stream, err := c.conn.NewStream(ctx, streamChatDesc, methodStreamChat)
	if err != nil {
		return nil, fmt.Errorf("gRPC StreamChat call failed: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("closing chat send side: %w", err)
	}

	ch := make(chan ChatChunk, 32)
	go func() {
		defer close(ch)
		for {
			msg := new(structpb.Struct)
			err := stream.RecvMsg(msg)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case ch <- ErrorChunk{Message: err.Error()}:
				case <-ctx.Done():
				}
				return
			}
			chunk := decodeChatChunk(msg)
			if chunk == nil {
				continue
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// invoke performs a unary call. req may be nil (empty message); out may be
// nil when the response carries no data.
func (c *GRPCClient) invoke(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := encodeStruct(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
		}
		return fmt.Errorf("runner call %s: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := decodeStruct(resp, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// encodeStruct converts a request map into a structpb message via a JSON
// round-trip, so nested domain structs keep their json tags.
func encodeStruct(v map[string]any) (*structpb.Struct, error) {
	if v == nil {
		return &structpb.Struct{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return structpb.NewStruct(plain)
}

// decodeStruct unmarshals a structpb message into a typed domain value.
func decodeStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// decodeChatChunk maps a streamed runner message onto a ChatChunk variant.
// Unknown chunk types are skipped so the protocol can grow without breaking
// older cores.
func decodeChatChunk(msg *structpb.Struct) ChatChunk {
	fields := msg.AsMap()
	chunkType, _ := fields["type"].(string)
	switch chunkType {
	case "token":
		content, _ := fields["content"].(string)
		return TokenChunk{Content: content}
	case "tool_call":
		name, _ := fields["name"].(string)
		id, _ := fields["id"].(string)
		args, _ := fields["args"].(map[string]any)
		return ToolCallChunk{ID: id, Name: name, Args: args}
	case "tool_output":
		toolName, _ := fields["tool_name"].(string)
		callID, _ := fields["tool_call_id"].(string)
		content, _ := fields["content"].(string)
		return ToolOutputChunk{ToolName: toolName, ToolCallID: callID, Content: content}
	case "error":
		message, _ := fields["message"].(string)
		return ErrorChunk{Message: message}
	default:
		return nil
	}
}
