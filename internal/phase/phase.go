// Package phase defines the canonical directive lifecycle: the ordered phase
// sequence and the handoff types that advance it.
package phase

import "fmt"

const (
	LeadApproval       = "LEAD_APPROVAL"
	PlanDesign         = "PLAN_DESIGN"
	ExecImplementation = "EXEC_IMPLEMENTATION"
	PlanVerification   = "PLAN_VERIFICATION"
	LeadFinalApproval  = "LEAD_FINAL_APPROVAL"
	Completed          = "COMPLETED"
	Abandoned          = "ABANDONED"
)

const (
	HandoffLeadToPlan        = "LEAD-TO-PLAN"
	HandoffPlanToExec        = "PLAN-TO-EXEC"
	HandoffExecToPlan        = "EXEC-TO-PLAN"
	HandoffPlanToLead        = "PLAN-TO-LEAD"
	HandoffLeadFinalApproval = "LEAD-FINAL-APPROVAL"
)

// sequence is the only legal ordering of working phases. Completed is the
// terminal phase reached through the final handoff; Abandoned is reachable
// from any non-terminal phase but never through a handoff.
var sequence = []string{
	LeadApproval,
	PlanDesign,
	ExecImplementation,
	PlanVerification,
	LeadFinalApproval,
	Completed,
}

// handoffByFromPhase maps a directive's current phase to the single handoff
// type that may complete it.
var handoffByFromPhase = map[string]string{
	LeadApproval:       HandoffLeadToPlan,
	PlanDesign:         HandoffPlanToExec,
	ExecImplementation: HandoffExecToPlan,
	PlanVerification:   HandoffPlanToLead,
	LeadFinalApproval:  HandoffLeadFinalApproval,
}

// Sequence returns the ordered working phases plus the Completed terminal.
func Sequence() []string {
	out := make([]string, len(sequence))
	copy(out, sequence)
	return out
}

// Working returns the five phases that carry progress weight.
func Working() []string {
	return Sequence()[:len(sequence)-1]
}

// Valid reports whether p is a known phase, terminal states included.
func Valid(p string) bool {
	if p == Abandoned {
		return true
	}
	for _, s := range sequence {
		if s == p {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are legal from p.
func Terminal(p string) bool {
	return p == Completed || p == Abandoned
}

// Next returns the single legal successor of p, or an error if p is terminal
// or unknown.
func Next(p string) (string, error) {
	for i, s := range sequence {
		if s != p {
			continue
		}
		if i == len(sequence)-1 {
			return "", fmt.Errorf("phase %s is terminal", p)
		}
		return sequence[i+1], nil
	}
	return "", fmt.Errorf("unknown phase %s", p)
}

// HandoffTypeFor returns the handoff type that completes phase from.
func HandoffTypeFor(from string) (string, error) {
	t, ok := handoffByFromPhase[from]
	if !ok {
		return "", fmt.Errorf("no handoff completes phase %s", from)
	}
	return t, nil
}

// FromPhaseOf returns the phase a given handoff type completes.
func FromPhaseOf(handoffType string) (string, error) {
	for p, t := range handoffByFromPhase {
		if t == handoffType {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown handoff type %s", handoffType)
}

// KnownHandoffType reports whether t is one of the closed handoff enumeration.
func KnownHandoffType(t string) bool {
	_, err := FromPhaseOf(t)
	return err == nil
}
