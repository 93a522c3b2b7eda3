package server

import (
	"steward/internal/domain"
)

// Request payloads

type CreateDirectiveRequest struct {
	Key         *string `json:"key,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Kind        string  `json:"kind,omitempty" enum:"standalone,orchestrator,child"`
	ParentID    *string `json:"parent_id,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	Category    *string `json:"category,omitempty"`
	ActorID     string  `json:"actor_id,omitempty"`
}

type AbandonDirectiveRequest struct {
	Reason  string `json:"reason,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type OverrideCompleteRequest struct {
	Justification string `json:"justification"`
	ActorID       string `json:"actor_id,omitempty"`
}

type HandoffContentRequest struct {
	ExecutiveSummary     string `json:"executive_summary,omitempty"`
	DeliverablesManifest string `json:"deliverables_manifest,omitempty"`
	KeyDecisions         string `json:"key_decisions,omitempty"`
	KnownIssues          string `json:"known_issues,omitempty"`
	ResourceUtilization  string `json:"resource_utilization,omitempty"`
	ActionItems          string `json:"action_items,omitempty"`
	CompletenessReport   string `json:"completeness_report,omitempty"`
}

type SubmitHandoffRequest struct {
	Type    string                `json:"handoff_type" enum:"LEAD-TO-PLAN,PLAN-TO-EXEC,EXEC-TO-PLAN,PLAN-TO-LEAD,LEAD-FINAL-APPROVAL"`
	Content HandoffContentRequest `json:"content"`
	Force   bool                  `json:"force,omitempty"`
	ActorID string                `json:"actor_id,omitempty"`
}

type ReconcileRequest struct {
	Remediate bool   `json:"remediate,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

type CreateDecisionRequest struct {
	DirectiveID string  `json:"directive_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Blocking    bool    `json:"blocking,omitempty"`
	ActorID     string  `json:"actor_id,omitempty"`
}

type ResolveDecisionRequest struct {
	Verdict string `json:"verdict" enum:"approved,rejected"`
	ActorID string `json:"actor_id,omitempty"`
}

type SweepRequest struct {
	TimeoutHours *int   `json:"timeout_hours,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
}

type EnqueueTaskRequest struct {
	DirectiveID string `json:"directive_id"`
	Kind        string `json:"kind"`
	Priority    int    `json:"priority,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
}

// Response payloads

type DirectiveResponse struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Kind        string  `json:"kind" enum:"standalone,orchestrator,child"`
	Phase       string  `json:"phase"`
	Status      string  `json:"status" enum:"draft,active,completed,abandoned"`
	Progress    int     `json:"progress"`
	Priority    *int    `json:"priority,omitempty"`
	Category    string  `json:"category,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type HandoffResponse struct {
	ID               string                `json:"id"`
	DirectiveID      string                `json:"directive_id"`
	Type             string                `json:"handoff_type"`
	FromPhase        string                `json:"from_phase"`
	ToPhase          string                `json:"to_phase"`
	Status           string                `json:"status" enum:"pending_acceptance,accepted,rejected"`
	Content          HandoffContentRequest `json:"content"`
	ValidationScore  int                   `json:"validation_score"`
	ValidationPassed bool                  `json:"validation_passed"`
	Reasons          []string              `json:"reasons,omitempty"`
	CreatedBy        string                `json:"created_by"`
	CreatedAt        string                `json:"created_at" format:"date-time"`
}

type DecisionResponse struct {
	ID                   string  `json:"id"`
	DirectiveID          string  `json:"directive_id"`
	Title                string  `json:"title"`
	Description          string  `json:"description,omitempty"`
	Status               string  `json:"status" enum:"pending,approved,rejected"`
	Blocking             bool    `json:"blocking"`
	RequiresUrgentReview bool    `json:"requires_urgent_review"`
	EscalationJSON       *string `json:"escalation_json,omitempty"`
	DeciderID            *string `json:"decider_id,omitempty"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	ResolvedAt           *string `json:"resolved_at,omitempty" format:"date-time"`
}

type WorkTaskResponse struct {
	ID          string  `json:"id"`
	DirectiveID string  `json:"directive_id"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status" enum:"pending,in_progress,completed,failed"`
	Priority    int     `json:"priority"`
	PayloadJSON *string `json:"payload_json,omitempty"`
	ResultJSON  *string `json:"result_json,omitempty"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	FinishedAt  *string `json:"finished_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type DirectiveTreeResponse struct {
	Directive DirectiveResponse   `json:"directive"`
	Children  []DirectiveResponse `json:"children,omitempty"`
}

// Mappers

func directiveResponse(d domain.Directive) DirectiveResponse {
	return DirectiveResponse{
		ID: d.ID, Key: d.Key, Title: d.Title, Description: d.Description,
		Kind: d.Kind, Phase: d.Phase, Status: d.Status, Progress: d.Progress,
		Priority: d.Priority, Category: d.Category, ParentID: d.ParentID,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, CompletedAt: d.CompletedAt,
	}
}

func mapDirectives(items []domain.Directive) []DirectiveResponse {
	out := make([]DirectiveResponse, 0, len(items))
	for _, d := range items {
		out = append(out, directiveResponse(d))
	}
	return out
}

func handoffContent(c HandoffContentRequest) domain.HandoffContent {
	return domain.HandoffContent(c)
}

func handoffResponse(h domain.Handoff) HandoffResponse {
	return HandoffResponse{
		ID: h.ID, DirectiveID: h.DirectiveID, Type: h.Type,
		FromPhase: h.FromPhase, ToPhase: h.ToPhase, Status: h.Status,
		Content:         HandoffContentRequest(h.Content),
		ValidationScore: h.ValidationScore, ValidationPassed: h.ValidationPassed,
		Reasons: h.Reasons, CreatedBy: h.CreatedBy, CreatedAt: h.CreatedAt,
	}
}

func mapHandoffs(items []domain.Handoff) []HandoffResponse {
	out := make([]HandoffResponse, 0, len(items))
	for _, h := range items {
		out = append(out, handoffResponse(h))
	}
	return out
}

func decisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		ID: d.ID, DirectiveID: d.DirectiveID, Title: d.Title, Description: d.Description,
		Status: d.Status, Blocking: d.Blocking, RequiresUrgentReview: d.RequiresUrgentReview,
		EscalationJSON: d.EscalationJSON, DeciderID: d.DeciderID,
		CreatedAt: d.CreatedAt, ResolvedAt: d.ResolvedAt,
	}
}

func mapDecisions(items []domain.Decision) []DecisionResponse {
	out := make([]DecisionResponse, 0, len(items))
	for _, d := range items {
		out = append(out, decisionResponse(d))
	}
	return out
}

func workTaskResponse(t domain.WorkTask) WorkTaskResponse {
	return WorkTaskResponse{
		ID: t.ID, DirectiveID: t.DirectiveID, Kind: t.Kind, Status: t.Status,
		Priority: t.Priority, PayloadJSON: t.PayloadJSON, ResultJSON: t.ResultJSON,
		Error: t.Error, CreatedAt: t.CreatedAt, StartedAt: t.StartedAt, FinishedAt: t.FinishedAt,
	}
}

func mapWorkTasks(items []domain.WorkTask) []WorkTaskResponse {
	out := make([]WorkTaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, workTaskResponse(t))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID: e.ID, TS: e.TS, Type: e.Type, EntityKind: e.EntityKind,
		EntityID: e.EntityID, ActorID: e.ActorID, Payload: e.Payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
