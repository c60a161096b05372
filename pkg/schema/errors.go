package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that a revision does not exist.
var ErrNotFound = errors.New("schema revision not found")

// ChannelRef identifies a channel bound to a schema revision.
type ChannelRef struct {
	ID              string `json:"id"`
	GameID          string `json:"gameId"`
	ToolEnvironment string `json:"toolEnvironment"`
	EnvName         string `json:"envName"`
}

// ConflictError reports a destructive operation blocked by live bindings.
// Callers retry with force=true to confirm the destruction.
type ConflictError struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Channels []ChannelRef `json:"channels,omitempty"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// newInUseError builds the conflict returned when a revision still has
// bound channels and the caller did not pass force.
func newInUseError(revisionID string, channels []ChannelRef) *ConflictError {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = fmt.Sprintf("%s/%s", c.ToolEnvironment, c.EnvName)
	}
	return &ConflictError{
		Code:     "SCHEMA_IN_USE",
		Message:  fmt.Sprintf("schema revision %s is bound to channels %s; pass force to destroy them", revisionID, strings.Join(names, ", ")),
		Channels: channels,
	}
}

// InvalidRevisionError reports a revision payload that fails structural
// validation before anything is persisted.
type InvalidRevisionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *InvalidRevisionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidRevision(code, format string, args ...any) *InvalidRevisionError {
	return &InvalidRevisionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
