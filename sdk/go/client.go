package stewardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Steward HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Directive represents the API directive model.
type Directive struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	Phase       string `json:"phase"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	ParentID    string `json:"parent_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// HandoffContent carries the seven required content elements.
type HandoffContent struct {
	ExecutiveSummary     string `json:"executive_summary"`
	DeliverablesManifest string `json:"deliverables_manifest"`
	KeyDecisions         string `json:"key_decisions"`
	KnownIssues          string `json:"known_issues"`
	ResourceUtilization  string `json:"resource_utilization"`
	ActionItems          string `json:"action_items"`
	CompletenessReport   string `json:"completeness_report"`
}

// Handoff represents an accepted or rejected phase handoff.
type Handoff struct {
	ID               string   `json:"id"`
	DirectiveID      string   `json:"directive_id"`
	Type             string   `json:"handoff_type"`
	FromPhase        string   `json:"from_phase"`
	ToPhase          string   `json:"to_phase"`
	Status           string   `json:"status"`
	ValidationScore  int      `json:"validation_score"`
	ValidationPassed bool     `json:"validation_passed"`
	Reasons          []string `json:"reasons,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

// Decision represents an authority decision.
type Decision struct {
	ID                   string `json:"id"`
	DirectiveID          string `json:"directive_id"`
	Title                string `json:"title"`
	Status               string `json:"status"`
	Blocking             bool   `json:"blocking"`
	RequiresUrgentReview bool   `json:"requires_urgent_review"`
	CreatedAt            string `json:"created_at"`
}

// ChildProgress is one child's contribution to an orchestrator rollup.
type ChildProgress struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Phase       string `json:"phase"`
	Status      string `json:"status"`
	Percent     int    `json:"percent"`
	CanComplete bool   `json:"can_complete"`
}

// ProgressReport is the derived progress of a directive.
type ProgressReport struct {
	DirectiveKey string          `json:"directive_key"`
	Kind         string          `json:"kind"`
	Percent      int             `json:"percent"`
	Breakdown    map[string]int  `json:"breakdown,omitempty"`
	CanComplete  bool            `json:"can_complete"`
	MissingTypes []string        `json:"missing_handoffs,omitempty"`
	Children     []ChildProgress `json:"children,omitempty"`
}

// Mismatch is one stored-vs-derived discrepancy found by reconciliation.
type Mismatch struct {
	Kind       string `json:"kind"`
	Stored     int    `json:"stored"`
	Derived    int    `json:"derived"`
	Critical   bool   `json:"critical"`
	Remediated bool   `json:"remediated"`
	Detail     string `json:"detail,omitempty"`
}

// ReconcileReport summarizes a reconciliation run.
type ReconcileReport struct {
	DirectiveKey string         `json:"directive_key"`
	Progress     ProgressReport `json:"progress"`
	Mismatches   []Mismatch     `json:"mismatches,omitempty"`
	Clean        bool           `json:"clean"`
}

// SweepError is one per-decision failure collected during a sweep.
type SweepError struct {
	DecisionID string `json:"decision_id"`
	Error      string `json:"error"`
}

// SweepResult summarizes an escalation sweep.
type SweepResult struct {
	Checked          int          `json:"checked"`
	Escalated        int          `json:"escalated"`
	AlreadyEscalated int          `json:"already_escalated"`
	SkippedBlocking  []string     `json:"skipped_blocking,omitempty"`
	DryRun           bool         `json:"dry_run"`
	Errors           []SweepError `json:"errors,omitempty"`
}

// WorkTask represents a queued background task.
type WorkTask struct {
	ID          string `json:"id"`
	DirectiveID string `json:"directive_id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry. Payload is the raw JSON payload.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDirective creates a directive.
func (c *Client) CreateDirective(ctx context.Context, title, kind, parentID string) (Directive, error) {
	body := map[string]any{
		"title":    title,
		"kind":     kind,
		"actor_id": c.ActorID,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var resp Directive
	err := c.do(ctx, http.MethodPost, "directives", body, &resp)
	return resp, err
}

// GetDirective fetches a directive by id or key.
func (c *Client) GetDirective(ctx context.Context, idOrKey string) (Directive, error) {
	var resp Directive
	err := c.do(ctx, http.MethodGet, "directives/"+url.PathEscape(idOrKey), nil, &resp)
	return resp, err
}

// SubmitHandoff submits a phase handoff for a directive.
func (c *Client) SubmitHandoff(ctx context.Context, directive, handoffType string, content HandoffContent, force bool) (Handoff, error) {
	body := map[string]any{
		"handoff_type": handoffType,
		"content":      content,
		"force":        force,
		"actor_id":     c.ActorID,
	}
	var resp Handoff
	endpoint := fmt.Sprintf("directives/%s/handoffs", url.PathEscape(directive))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Progress returns the derived progress report for a directive.
func (c *Client) Progress(ctx context.Context, directive string) (ProgressReport, error) {
	var resp ProgressReport
	endpoint := fmt.Sprintf("directives/%s/progress", url.PathEscape(directive))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Reconcile audits a directive's stored progress against derived values.
func (c *Client) Reconcile(ctx context.Context, directive string, remediate bool) (ReconcileReport, error) {
	body := map[string]any{
		"remediate": remediate,
		"actor_id":  c.ActorID,
	}
	var resp ReconcileReport
	endpoint := fmt.Sprintf("directives/%s/reconcile", url.PathEscape(directive))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateDecision raises a decision on a directive.
func (c *Client) CreateDecision(ctx context.Context, directive, title string, blocking bool) (Decision, error) {
	body := map[string]any{
		"directive_id": directive,
		"title":        title,
		"blocking":     blocking,
		"actor_id":     c.ActorID,
	}
	var resp Decision
	err := c.do(ctx, http.MethodPost, "decisions", body, &resp)
	return resp, err
}

// ResolveDecision records the authority verdict on a pending decision.
func (c *Client) ResolveDecision(ctx context.Context, decisionID, verdict string) (Decision, error) {
	body := map[string]any{
		"verdict":  verdict,
		"actor_id": c.ActorID,
	}
	var resp Decision
	endpoint := fmt.Sprintf("decisions/%s/resolve", url.PathEscape(decisionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SweepEscalations runs an escalation sweep over pending decisions.
func (c *Client) SweepEscalations(ctx context.Context, timeoutHours int, dryRun bool) (SweepResult, error) {
	body := map[string]any{
		"dry_run":  dryRun,
		"actor_id": c.ActorID,
	}
	if timeoutHours > 0 {
		body["timeout_hours"] = timeoutHours
	}
	var resp SweepResult
	err := c.do(ctx, http.MethodPost, "escalations/sweep", body, &resp)
	return resp, err
}

// EnqueueTask adds a work task to the queue.
func (c *Client) EnqueueTask(ctx context.Context, directive, kind string, priority int) (WorkTask, error) {
	body := map[string]any{
		"directive_id": directive,
		"kind":         kind,
		"priority":     priority,
		"actor_id":     c.ActorID,
	}
	var resp WorkTask
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// Events returns recent log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
