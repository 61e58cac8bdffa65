package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for callers that need to decide whether
// to retry, fix input, or escalate.
type Kind string

const (
	// KindOutOfOrder indicates the requested stage does not match the
	// entity's current state. Never retried automatically: it signals a
	// caller bug or a stale view of the entity.
	KindOutOfOrder Kind = "out_of_order"

	// KindUnknownStage indicates the requested stage name is not part of
	// the pipeline definition.
	KindUnknownStage Kind = "unknown_stage"

	// KindMissingParameter indicates a required runtime parameter was not
	// supplied by the caller.
	KindMissingParameter Kind = "missing_parameter"

	// KindCredentialsRequired indicates a step needs an access credential
	// that the caller did not supply.
	KindCredentialsRequired Kind = "credentials_required"

	// KindRemoteAPI indicates the git hosting API returned an error status.
	// Safe to retry once the underlying condition is fixed.
	KindRemoteAPI Kind = "remote_api"

	// KindOrchestratorAPI indicates the orchestrator API returned an error
	// status. Safe to retry once the underlying condition is fixed.
	KindOrchestratorAPI Kind = "orchestrator_api"

	// KindMergeConflict indicates a content-level conflict while merging
	// upstream history. Requires external intervention.
	KindMergeConflict Kind = "merge_conflict"

	// KindProcessExec indicates an external command exited non-zero.
	KindProcessExec Kind = "process_exec"

	// KindTerminalState indicates an attempt to advance past the pipeline's
	// final stage. Not a mid-pipeline failure; idempotent callers may treat
	// it as success.
	KindTerminalState Kind = "terminal_state"

	// KindStateConflict indicates the persisted state changed between
	// validation and persistence, i.e. a concurrent caller won the
	// transition. The losing caller must re-read and retry.
	KindStateConflict Kind = "state_conflict"
)

// Error is the classified failure type shared by the engine, the capability
// steps, and the external clients. Every failure from a step propagates to
// the caller unchanged; the engine never swallows or reinterprets one.
type Error struct {
	// Kind is the failure classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable failure message.
	Message string `json:"message"`

	// Entity is the entity identifier, when known.
	Entity string `json:"entity,omitempty"`

	// Stage is the stage being executed, when known.
	Stage string `json:"stage,omitempty"`

	// Parameter is the offending parameter name for missing-input failures.
	Parameter string `json:"parameter,omitempty"`

	// Status is the HTTP status for remote/orchestrator API failures.
	Status int `json:"status,omitempty"`

	// ExitCode is the exit code for process execution failures.
	ExitCode int `json:"exit_code,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] stage %s: %s", e.Kind, e.Stage, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by Kind so callers can use errors.Is with a bare
// &Error{Kind: ...} target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithEntity adds entity context to the error.
func (e *Error) WithEntity(entityID string) *Error {
	e.Entity = entityID
	return e
}

// WithStage adds stage context to the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// NewOutOfOrder reports a stage requested against the wrong current state.
func NewOutOfOrder(stage string, want, got State) *Error {
	return &Error{
		Kind:    KindOutOfOrder,
		Stage:   stage,
		Message: fmt.Sprintf("requires state %q but entity is in state %q", want, got),
	}
}

// NewUnknownStage reports a stage name absent from the definition.
func NewUnknownStage(stage string) *Error {
	return &Error{
		Kind:    KindUnknownStage,
		Stage:   stage,
		Message: "stage is not part of the pipeline definition",
	}
}

// NewMissingParameter reports a required parameter the caller omitted.
func NewMissingParameter(stage, parameter string) *Error {
	return &Error{
		Kind:      KindMissingParameter,
		Stage:     stage,
		Parameter: parameter,
		Message:   fmt.Sprintf("required parameter %q not supplied", parameter),
	}
}

// NewCredentialsRequired reports a missing access credential.
func NewCredentialsRequired(parameter string) *Error {
	return &Error{
		Kind:      KindCredentialsRequired,
		Parameter: parameter,
		Message:   fmt.Sprintf("credential %q is required", parameter),
	}
}

// NewRemoteAPIError reports an error status from the git hosting API.
func NewRemoteAPIError(status int, message string) *Error {
	return &Error{
		Kind:    KindRemoteAPI,
		Status:  status,
		Message: fmt.Sprintf("hosting API returned %d: %s", status, message),
	}
}

// NewOrchestratorAPIError reports an error status from the orchestrator API.
func NewOrchestratorAPIError(status int, message string) *Error {
	return &Error{
		Kind:    KindOrchestratorAPI,
		Status:  status,
		Message: fmt.Sprintf("orchestrator API returned %d: %s", status, message),
	}
}

// NewMergeConflict reports a merge that cannot be completed automatically.
func NewMergeConflict(message string, err error) *Error {
	return &Error{
		Kind:    KindMergeConflict,
		Message: message,
		Err:     err,
	}
}

// NewProcessExecError reports an external command that exited non-zero.
func NewProcessExecError(exitCode int, message string) *Error {
	return &Error{
		Kind:     KindProcessExec,
		ExitCode: exitCode,
		Message:  message,
	}
}

// NewTerminalState reports an advance attempted from the terminal state.
func NewTerminalState(state State) *Error {
	return &Error{
		Kind:    KindTerminalState,
		Message: fmt.Sprintf("entity is already in terminal state %q", state),
	}
}

// NewStateConflict reports a lost compare-and-set on the persisted state.
func NewStateConflict(entityID string, from, to State) *Error {
	return &Error{
		Kind:    KindStateConflict,
		Entity:  entityID,
		Message: fmt.Sprintf("state changed concurrently while persisting %q -> %q", from, to),
	}
}

// kindOf extracts the Kind from an error chain, or "" if the chain contains
// no classified pipeline error.
func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsOutOfOrder returns true if the error is an out-of-order transition.
func IsOutOfOrder(err error) bool { return kindOf(err) == KindOutOfOrder }

// IsMissingParameter returns true if the error is a missing parameter.
func IsMissingParameter(err error) bool { return kindOf(err) == KindMissingParameter }

// IsCredentialsRequired returns true if the error is a missing credential.
func IsCredentialsRequired(err error) bool { return kindOf(err) == KindCredentialsRequired }

// IsRemoteAPI returns true if the error is a hosting API failure.
func IsRemoteAPI(err error) bool { return kindOf(err) == KindRemoteAPI }

// IsOrchestratorAPI returns true if the error is an orchestrator API failure.
func IsOrchestratorAPI(err error) bool { return kindOf(err) == KindOrchestratorAPI }

// IsMergeConflict returns true if the error is a merge conflict.
func IsMergeConflict(err error) bool { return kindOf(err) == KindMergeConflict }

// IsProcessExec returns true if the error is a process execution failure.
func IsProcessExec(err error) bool { return kindOf(err) == KindProcessExec }

// IsTerminalState returns true if the error is a terminal-state signal.
func IsTerminalState(err error) bool { return kindOf(err) == KindTerminalState }

// IsStateConflict returns true if the error is a lost state compare-and-set.
func IsStateConflict(err error) bool { return kindOf(err) == KindStateConflict }
