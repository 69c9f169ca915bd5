// Package tooling exposes the agent-visible tools for direct interactive
// execution: catalog, schema introspection, and single-tool invocation with
// argument coercion and validation.
package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

// Service fronts the runner's tool registry. Argument coercion and schema
// validation happen here so a malformed invocation never reaches the tool.
type Service struct {
	runner runner.Client
	logger *slog.Logger
}

// NewService creates the tooling service.
func NewService(runnerClient runner.Client, logger *slog.Logger) *Service {
	return &Service{
		runner: runnerClient,
		logger: logger.With("component", "tooling"),
	}
}

// ListTools returns the tool catalog.
func (s *Service) ListTools(ctx context.Context) ([]models.ToolSummary, error) {
	return s.runner.ListTools(ctx)
}

// Schema returns the introspected signature of one tool. Unknown names
// surface runner.ErrNotFound.
func (s *Service) Schema(ctx context.Context, name string) (models.ToolSchema, error) {
	return s.runner.ToolSchema(ctx, name)
}

// Reload invalidates the cached source of tool-bearing modules.
func (s *Service) Reload(ctx context.Context) error {
	return s.runner.ReloadTools(ctx)
}

// Invoke executes one tool. String argument values are coerced using the
// declared parameter types; when the tool publishes a JSON schema the
// coerced arguments are validated against it before the call goes out.
// Argument-level failures come back as {success:false} with the tool never
// called; only transport faults return an error.
func (s *Service) Invoke(ctx context.Context, name string, args map[string]any) (models.InvokeResult, error) {
	schema, err := s.runner.ToolSchema(ctx, name)
	if err != nil {
		return models.InvokeResult{}, err
	}

	coerced, err := coerceArgs(schema.Parameters, args)
	if err != nil {
		return models.InvokeResult{Success: false, Error: err.Error()}, nil
	}

	if len(schema.JSONSchema) > 0 {
		if err := validateArgs(schema.JSONSchema, coerced); err != nil {
			return models.InvokeResult{Success: false, Error: err.Error()}, nil
		}
	}

	result, err := s.runner.InvokeTool(ctx, name, coerced)
	if err != nil {
		return models.InvokeResult{}, fmt.Errorf("invoking tool %s: %w", name, err)
	}
	if !result.Success {
		s.logger.Debug("Tool invocation failed", "tool", name, "error", result.Error)
	}
	return result, nil
}

// coerceArgs converts string-typed argument values to the declared parameter
// types. Arguments without a declared parameter pass through untouched.
func coerceArgs(parameters []models.ToolParameter, args map[string]any) (map[string]any, error) {
	types := make(map[string]string, len(parameters))
	for _, param := range parameters {
		types[param.Name] = param.TypeName
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		text, isString := value.(string)
		typeName, declared := types[key]
		if !isString || !declared {
			out[key] = value
			continue
		}
		coerced, err := coerceValue(text, typeName)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		out[key] = coerced
	}
	return out, nil
}

func coerceValue(text, typeName string) (any, error) {
	switch normalizeTypeName(typeName) {
	case "int":
		n, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", text)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", text)
		}
		return f, nil
	case "bool":
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("expected \"true\" or \"false\", got %q", text)
		}
	case "collection":
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("expected JSON for %s value: %w", typeName, err)
		}
		return v, nil
	default:
		return text, nil
	}
}

func normalizeTypeName(typeName string) string {
	switch strings.ToLower(typeName) {
	case "int", "integer":
		return "int"
	case "float", "number", "double":
		return "float"
	case "bool", "boolean":
		return "bool"
	case "list", "array", "dict", "object", "map", "set", "tuple":
		return "collection"
	default:
		return "string"
	}
}

// validateArgs checks the coerced arguments against the tool's published
// JSON schema.
func validateArgs(schemaDoc json.RawMessage, args map[string]any) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return fmt.Errorf("tool schema is not valid JSON: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", doc); err != nil {
		return fmt.Errorf("loading tool schema: %w", err)
	}
	compiled, err := compiler.Compile("tool.json")
	if err != nil {
		return fmt.Errorf("compiling tool schema: %w", err)
	}

	// The validator wants plain JSON types; the coerced map may hold typed
	// Go values like int, so round-trip through JSON first.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not match tool schema: %w", err)
	}
	return nil
}
