package channel

import (
	"fmt"

	"github.com/playforge/liveops/pkg/bundle"
)

// TransitionError is a structured error for illegal promotion directions.
type TransitionError struct {
	Code    string  `json:"code"`
	From    ToolEnv `json:"from"`
	To      ToolEnv `json:"to"`
	Message string  `json:"message"`
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WorkflowError reports an operation rejected before any persistence:
// editing outside development, schema or game mismatches, bad selections,
// or a lost optimistic concurrency race on the channel version.
type WorkflowError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func workflowError(code, format string, args ...any) *WorkflowError {
	return &WorkflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationError carries the full ordered issue list from row, constraint,
// or relation validation. The caller gets every problem in one pass.
type ValidationError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Issues  []bundle.Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%d issues)", e.Code, e.Message, len(e.Issues))
}

func validationError(message string, issues []bundle.Issue) *ValidationError {
	return &ValidationError{Code: "VALIDATION_FAILED", Message: message, Issues: issues}
}
