package engine

import (
	"fmt"
	"strings"
)

// PhaseOrderViolation is returned when a requested transition does not match
// the single legal successor of the directive's current phase. It never
// mutates state and is never auto-corrected.
type PhaseOrderViolation struct {
	DirectiveKey string
	CurrentPhase string
	Submitted    string
	Expected     string
}

func (e PhaseOrderViolation) Error() string {
	return fmt.Sprintf("directive %s is in phase %s; expected handoff %s, got %s",
		e.DirectiveKey, e.CurrentPhase, e.Expected, e.Submitted)
}

// HandoffIntegrityViolation is returned for duplicate-type or otherwise
// illegal handoffs, including the loser of a concurrent duplicate submission.
type HandoffIntegrityViolation struct {
	DirectiveKey string
	HandoffType  string
	Reason       string
}

func (e HandoffIntegrityViolation) Error() string {
	return fmt.Sprintf("handoff %s for directive %s: %s", e.HandoffType, e.DirectiveKey, e.Reason)
}

// ContentValidationFailure carries per-field reasons for a handoff whose
// content did not meet the required thresholds.
type ContentValidationFailure struct {
	DirectiveKey string
	HandoffType  string
	Score        int
	Reasons      []string
}

func (e ContentValidationFailure) Error() string {
	return fmt.Sprintf("handoff %s for directive %s failed content validation (score %d): %s",
		e.HandoffType, e.DirectiveKey, e.Score, strings.Join(e.Reasons, "; "))
}

// ProgressMismatchError blocks a completion whose recomputed progress
// disagrees with the request, or reports stored/derived drift.
type ProgressMismatchError struct {
	DirectiveKey       string
	Percent            int
	MissingTypes       []string
	IncompleteChildren []string
}

func (e ProgressMismatchError) Error() string {
	msg := fmt.Sprintf("directive %s cannot complete: progress %d%%", e.DirectiveKey, e.Percent)
	if len(e.MissingTypes) > 0 {
		msg += "; missing handoffs: " + strings.Join(e.MissingTypes, ", ")
	}
	if len(e.IncompleteChildren) > 0 {
		msg += "; incomplete children: " + strings.Join(e.IncompleteChildren, ", ")
	}
	return msg
}

// DecisionProcessingError is a per-decision failure collected during an
// escalation sweep. It never aborts the batch.
type DecisionProcessingError struct {
	DecisionID string
	Err        error
}

func (e DecisionProcessingError) Error() string {
	return fmt.Sprintf("decision %s: %v", e.DecisionID, e.Err)
}

func (e DecisionProcessingError) Unwrap() error { return e.Err }

// TaskExecutionError is recorded on a work-queue task whose handler failed.
type TaskExecutionError struct {
	TaskID string
	Kind   string
	Err    error
}

func (e TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Kind, e.Err)
}

func (e TaskExecutionError) Unwrap() error { return e.Err }
