package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

// Pipeline is the per-test execution pipeline: capture the case, query the
// agent, compare tool calls, ask the validator, classify the outcome.
type Pipeline struct {
	runner runner.Client
	logger *slog.Logger
}

// NewPipeline creates the pipeline over a runner client. The client is
// shared across workers and must be safe for parallel calls.
func NewPipeline(runnerClient runner.Client, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		runner: runnerClient,
		logger: logger.With("component", "pipeline"),
	}
}

// Execute runs one test. Failures never escape as errors: each is captured,
// classified, and carried in the returned result. Classification order when
// several checks could fail: pipeline faults are unexpected, then the
// tool-call comparison, then the validator verdict.
func (p *Pipeline) Execute(ctx context.Context, test models.TestDescriptor) (result models.TestResult) {
	start := time.Now()
	result = models.TestResult{
		QualifiedName:     test.QualifiedName,
		Module:            test.Module,
		Name:              test.Name,
		Expectations:      []string{},
		Unmet:             []string{},
		ExpectedToolCalls: []string{},
	}
	// Named return: the deferred write lands on every exit path, including
	// the early classification failures.
	defer func() {
		result.DurationSeconds = time.Since(start).Seconds()
	}()

	cases, err := p.runner.CaptureCases(ctx, test.Module, test.Name)
	if err != nil {
		return p.fail(&result, models.ErrorTypeUnexpected, fmt.Sprintf("capturing case: %v", err))
	}
	switch {
	case len(cases) == 0:
		return p.fail(&result, models.ErrorTypeUnexpected, "no case emitted")
	case len(cases) > 1:
		return p.fail(&result, models.ErrorTypeUnexpected, "multiple cases not supported")
	}

	testCase := cases[0]
	result.Prompt = testCase.Prompt
	if testCase.Expectations != nil {
		result.Expectations = testCase.Expectations
	}
	if testCase.ExpectedToolCalls != nil {
		result.ExpectedToolCalls = testCase.ExpectedToolCalls
	}

	response, err := p.runner.QueryAgent(ctx, testCase.Prompt)
	if err != nil {
		return p.fail(&result, models.ErrorTypeUnexpected, err.Error())
	}
	result.Response = &response
	result.TotalTokens = response.TotalTokens()

	// Expected tool calls must be covered by the observed multiset; extra
	// observed calls are fine.
	if missing := missingToolCalls(result.ExpectedToolCalls, response.ToolCallNames()); len(missing) > 0 {
		return p.fail(&result, models.ErrorTypeToolCall,
			fmt.Sprintf("missing expected tool calls: %s", strings.Join(missing, ", ")))
	}

	verdict, err := p.runner.Judge(ctx, response, result.Expectations)
	if err != nil {
		return p.fail(&result, models.ErrorTypeUnexpected, fmt.Sprintf("validator call failed: %v", err))
	}
	if verdict.Unmet != nil {
		result.Unmet = verdict.Unmet
	}
	result.FailureReasons = verdict.FailureReasons

	// A verdict naming unmet expectations fails the test even if the
	// validator's boolean says success: unmet non-empty never passes.
	if !verdict.Success || len(result.Unmet) > 0 {
		if len(result.Unmet) > 0 {
			return p.fail(&result, models.ErrorTypeExpectation,
				fmt.Sprintf("unmet expectations: %s", strings.Join(result.Unmet, "; ")))
		}
		errText := verdict.Reasoning
		if errText == "" {
			errText = "validator rejected the run"
		}
		return p.fail(&result, models.ErrorTypeValidation, errText)
	}

	result.Passed = true
	return result
}

func (p *Pipeline) fail(result *models.TestResult, errorType models.ErrorType, errorText string) models.TestResult {
	result.Passed = false
	result.ErrorType = errorType
	result.ErrorText = errorText
	p.logger.Debug("Test failed",
		"test", result.QualifiedName,
		"error_type", errorType,
		"error", errorText)
	return *result
}

// missingToolCalls subtracts the observed tool-call multiset from the
// expected one and returns what remains uncovered, in expected order.
func missingToolCalls(expected, observed []string) []string {
	remaining := make(map[string]int, len(observed))
	for _, name := range observed {
		remaining[name]++
	}
	var missing []string
	for _, name := range expected {
		if remaining[name] > 0 {
			remaining[name]--
			continue
		}
		missing = append(missing, name)
	}
	return missing
}
