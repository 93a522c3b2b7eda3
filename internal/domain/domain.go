package domain

type Directive struct {
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

// HandoffContent holds the seven required elements of a handoff record.
type HandoffContent struct {
	ExecutiveSummary     string `json:"executive_summary"`
	DeliverablesManifest string `json:"deliverables_manifest"`
	KeyDecisions         string `json:"key_decisions"`
	KnownIssues          string `json:"known_issues"`
	ResourceUtilization  string `json:"resource_utilization"`
	ActionItems          string `json:"action_items"`
	CompletenessReport   string `json:"completeness_report"`
}

type Handoff struct {
	ID               string         `json:"id"`
	DirectiveID      string         `json:"directive_id"`
	Type             string         `json:"handoff_type"`
	FromPhase        string         `json:"from_phase"`
	ToPhase          string         `json:"to_phase"`
	Status           string         `json:"status" enum:"pending_acceptance,accepted,rejected"`
	Content          HandoffContent `json:"content"`
	ValidationScore  int            `json:"validation_score"`
	ValidationPassed bool           `json:"validation_passed"`
	Reasons          []string       `json:"reasons,omitempty"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	ResolvedAt       *string        `json:"resolved_at,omitempty" format:"date-time"`
}

type Decision struct {
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

// Escalation is the metadata attached to an aged pending decision. Attaching
// it never changes the decision's status.
type Escalation struct {
	Strategy    string  `json:"strategy"`
	EscalatedAt string  `json:"escalated_at" format:"date-time"`
	AgeHours    float64 `json:"age_hours"`
	Urgency     string  `json:"urgency"`
}

type WorkTask struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
