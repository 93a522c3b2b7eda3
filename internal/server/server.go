package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"steward/internal/engine"
	"steward/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"phase_order_violation"`
	Message string         `json:"message" example:"directive SD-001 is in phase LEAD_APPROVAL; expected handoff LEAD-TO-PLAN, got PLAN-TO-EXEC"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Steward API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Steward API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerDirectives(group, cfg.Engine)
	registerHandoffs(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerDecisions(group, cfg.Engine)
	registerEscalations(group, cfg.Engine)
	registerWorkTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerConfig(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pov engine.PhaseOrderViolation
	if errors.As(err, &pov) {
		return newAPIError(http.StatusConflict, "phase_order_violation", err.Error(), map[string]any{
			"current_phase": pov.CurrentPhase, "expected": pov.Expected, "submitted": pov.Submitted,
		})
	}
	var iv engine.HandoffIntegrityViolation
	if errors.As(err, &iv) {
		return newAPIError(http.StatusConflict, "handoff_integrity_violation", err.Error(), map[string]any{
			"handoff_type": iv.HandoffType,
		})
	}
	var cvf engine.ContentValidationFailure
	if errors.As(err, &cvf) {
		return newAPIError(http.StatusUnprocessableEntity, "content_validation_failed", err.Error(), map[string]any{
			"score": cvf.Score, "reasons": cvf.Reasons,
		})
	}
	var pme engine.ProgressMismatchError
	if errors.As(err, &pme) {
		details := map[string]any{"progress": pme.Percent}
		if len(pme.MissingTypes) > 0 {
			details["missing_handoffs"] = pme.MissingTypes
		}
		if len(pme.IncompleteChildren) > 0 {
			details["incomplete_children"] = pme.IncompleteChildren
		}
		return newAPIError(http.StatusConflict, "progress_mismatch", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "cannot"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Steward API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Directive counts by status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		counts, err := e.Repo.CountDirectivesByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"directive_counts": counts}}, nil
	})
}

func registerDirectives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-directive",
		Method:        http.MethodPost,
		Path:          "/directives",
		Summary:       "Create directive",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDirectiveRequest `json:"body"`
	}) (*struct {
		Body DirectiveResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		opts := engine.DirectiveCreateOptions{
			Title:   input.Body.Title,
			Kind:    input.Body.Kind,
			ActorID: actorOr(input.Body.ActorID, "api"),
		}
		if input.Body.Key != nil {
			opts.Key = *input.Body.Key
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.ParentID != nil {
			opts.ParentID = *input.Body.ParentID
		}
		if input.Body.Category != nil {
			opts.Category = *input.Body.Category
		}
		opts.Priority = input.Body.Priority
		d, err := e.CreateDirective(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DirectiveResponse `json:"body"`
		}{Body: directiveResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-directives",
		Method:      http.MethodGet,
		Path:        "/directives",
		Summary:     "List directives",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,active,completed,abandoned"`
		Kind   string `query:"kind" enum:"standalone,orchestrator,child"`
		Phase  string `query:"phase"`
		Limit  int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []DirectiveResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListDirectives(ctx, repo.DirectiveFilters{
			Status: input.Status, Kind: input.Kind, Phase: input.Phase, Limit: input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DirectiveResponse `json:"body"`
		}{Body: mapDirectives(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-directive",
		Method:      http.MethodGet,
		Path:        "/directives/{directive}",
		Summary:     "Get directive by id or key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Directive string `path:"directive"`
	}) (*struct {
		Body DirectiveResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDirective(ctx, input.Directive)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DirectiveResponse `json:"body"`
		}{Body: directiveResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-directive-tree",
		Method:      http.MethodGet,
		Path:        "/directives/{directive}/tree",
		Summary:     "Get directive with children",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Directive string `path:"directive"`
	}) (*struct {
		Body DirectiveTreeResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDirective(ctx, input.Directive)
		if err != nil {
			return nil, handleError(err)
		}
		children, err := e.Repo.ListChildren(ctx, d.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DirectiveTreeResponse `json:"body"`
		}{Body: DirectiveTreeResponse{
			Directive: directiveResponse(d),
			Children:  mapDirectives(children),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-directive",
		Method:      http.MethodPost,
		Path:        "/directives/{directive}/abandon",
		Summary:     "Abandon directive",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Directive string                  `path:"directive"`
		Body      AbandonDirectiveRequest `json:"body"`
	}) (*struct {
		Body DirectiveResponse `json:"body"`
	}, error) {
		d, err := e.AbandonDirective(ctx, input.Directive, input.Body.Reason, actorOr(input.Body.ActorID, "api"))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DirectiveResponse `json:"body"`
		}{Body: directiveResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-complete-directive",
		Method:      http.MethodPost,
		Path:        "/directives/{directive}/override-complete",
		Summary:     "Force-complete directive with justification",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Directive string                  `path:"directive"`
		Body      OverrideCompleteRequest `json:"body"`
	}) (*struct {
		Body DirectiveResponse `json:"body"`
	}, error) {
		if input.Body.Justification == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "justification is required", nil)
		}
		d, err := e.OverrideComplete(ctx, input.Directive, input.Body.Justification, actorOr(input.Body.ActorID, "api"))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DirectiveResponse `json:"body"`
		}{Body: directiveResponse(d)}, nil
	})
}

func registerHandoffs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-handoff",
		Method:        http.MethodPost,
		Path:          "/directives/{directive}/handoffs",
		Summary:       "Submit phase handoff",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Directive string               `path:"directive"`
		Body      SubmitHandoffRequest `json:"body"`
	}) (*struct {
		Body HandoffResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "handoff_type is required", nil)
		}
		h, err := e.SubmitHandoff(ctx, engine.HandoffSubmitOptions{
			DirectiveID: input.Directive,
			Type:        input.Body.Type,
			Content:     handoffContent(input.Body.Content),
			Force:       input.Body.Force,
			ActorID:     actorOr(input.Body.ActorID, "api"),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HandoffResponse `json:"body"`
		}{Body: handoffResponse(h)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-handoffs",
		Method:      http.MethodGet,
		Path:        "/directives/{directive}/handoffs",
		Summary:     "List handoffs for directive",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Directive string `path:"directive"`
	}) (*struct {
		Body []HandoffResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDirective(ctx, input.Directive)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListHandoffs(ctx, d.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HandoffResponse `json:"body"`
		}{Body: mapHandoffs(items)}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/directives/{directive}/progress",
		Summary:     "Derived progress report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Directive string `path:"directive"`
	}) (*struct {
		Body engine.ProgressReport `json:"body"`
	}, error) {
		rep, err := e.ComputeProgress(ctx, input.Directive)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProgressReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-directive",
		Method:      http.MethodPost,
		Path:        "/directives/{directive}/reconcile",
		Summary:     "Audit stored progress against derived",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Directive string           `path:"directive"`
		Body      ReconcileRequest `json:"body"`
	}) (*struct {
		Body engine.ReconcileReport `json:"body"`
	}, error) {
		rep, err := e.Reconcile(ctx, input.Directive, input.Body.Remediate, actorOr(input.Body.ActorID, "api"))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReconcileReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-decision",
		Method:        http.MethodPost,
		Path:          "/decisions",
		Summary:       "Raise decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateDecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.DirectiveID == "" || input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "directive_id and title are required", nil)
		}
		opts := engine.DecisionCreateOptions{
			DirectiveID: input.Body.DirectiveID,
			Title:       input.Body.Title,
			Blocking:    input.Body.Blocking,
			ActorID:     actorOr(input.Body.ActorID, "api"),
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		d, err := e.CreateDecision(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions",
	}, func(ctx context.Context, input *struct {
		Directive string `query:"directive"`
		Status    string `query:"status" enum:"pending,approved,rejected"`
		Limit     int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []DecisionResponse `json:"body"`
	}, error) {
		f := repo.DecisionFilters{Status: input.Status, Limit: input.Limit}
		if input.Directive != "" {
			d, err := e.Repo.GetDirective(ctx, input.Directive)
			if err != nil {
				return nil, handleError(err)
			}
			f.DirectiveID = d.ID
		}
		items, err := e.Repo.ListDecisions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DecisionResponse `json:"body"`
		}{Body: mapDecisions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision",
		Method:      http.MethodGet,
		Path:        "/decisions/{decision_id}",
		Summary:     "Get decision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDecision(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-decision",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/resolve",
		Summary:     "Resolve decision",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		DecisionID string                 `path:"decision_id"`
		Body       ResolveDecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		if input.Body.Verdict == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "verdict is required", nil)
		}
		d, err := e.ResolveDecision(ctx, input.DecisionID, input.Body.Verdict, actorOr(input.Body.ActorID, "api"))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})
}

func registerEscalations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sweep-escalations",
		Method:      http.MethodPost,
		Path:        "/escalations/sweep",
		Summary:     "Annotate aged pending decisions",
	}, func(ctx context.Context, input *struct {
		Body SweepRequest `json:"body"`
	}) (*struct {
		Body engine.SweepResult `json:"body"`
	}, error) {
		opts := engine.SweepOptions{
			DryRun:  input.Body.DryRun,
			ActorID: actorOr(input.Body.ActorID, "api"),
		}
		if input.Body.TimeoutHours != nil {
			opts.Timeout = time.Duration(*input.Body.TimeoutHours) * time.Hour
		}
		res, err := e.SweepEscalations(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SweepResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerWorkTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "enqueue-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Enqueue work task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body EnqueueTaskRequest `json:"body"`
	}) (*struct {
		Body WorkTaskResponse `json:"body"`
	}, error) {
		if input.Body.DirectiveID == "" || input.Body.Kind == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "directive_id and kind are required", nil)
		}
		t, err := e.EnqueueWorkTask(ctx, input.Body.DirectiveID, input.Body.Kind,
			input.Body.Priority, input.Body.Payload, actorOr(input.Body.ActorID, "api"))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkTaskResponse `json:"body"`
		}{Body: workTaskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List work tasks",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,in_progress,completed,failed"`
		Limit  int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []WorkTaskResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkTasks(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkTaskResponse `json:"body"`
		}{Body: mapWorkTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "requeue-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/requeue",
		Summary:     "Requeue failed task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body WorkTaskResponse `json:"body"`
	}, error) {
		if err := e.RequeueWorkTask(ctx, input.TaskID, "api"); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetWorkTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkTaskResponse `json:"body"`
		}{Body: workTaskResponse(t)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Effective governance config",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		data, err := json.Marshal(e.Config)
		if err != nil {
			return nil, handleError(err)
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: out}, nil
	})
}
