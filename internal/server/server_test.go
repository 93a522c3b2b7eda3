package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"steward/internal/config"
	"steward/internal/db"
	"steward/internal/engine"
	"steward/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func longText() string {
	return strings.Repeat("Everything delivered and verified against the run checklist. ", 5)
}

func fullContent() map[string]any {
	return map[string]any{
		"executive_summary":     longText(),
		"deliverables_manifest": longText(),
		"key_decisions":         longText(),
		"known_issues":          longText(),
		"resource_utilization":  longText(),
		"action_items":          longText(),
		"completeness_report":   longText(),
	}
}

func TestDirectiveLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives", map[string]any{
		"title": "Migrate the billing exports",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create directive: %d %s", res.StatusCode, string(data))
	}
	var created DirectiveResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal directive: %v", err)
	}
	if created.Key == "" || created.Phase != "LEAD_APPROVAL" {
		t.Fatalf("created = %+v", created)
	}

	for _, ht := range []string{"LEAD-TO-PLAN", "PLAN-TO-EXEC", "EXEC-TO-PLAN", "PLAN-TO-LEAD", "LEAD-FINAL-APPROVAL"} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives/"+created.Key+"/handoffs", map[string]any{
			"handoff_type": ht,
			"content":      fullContent(),
		})
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("handoff %s: %d %s", ht, res.StatusCode, string(body))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/directives/"+created.Key, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get directive: %d %s", res.StatusCode, string(data))
	}
	var done DirectiveResponse
	_ = json.Unmarshal(data, &done)
	if done.Status != "completed" || done.Progress != 100 {
		t.Fatalf("directive = %+v", done)
	}
}

func TestOutOfOrderHandoffConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives", map[string]any{
		"title": "Out of order check",
	})
	var created DirectiveResponse
	_ = json.Unmarshal(data, &created)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives/"+created.Key+"/handoffs", map[string]any{
		"handoff_type": "PLAN-TO-EXEC",
		"content":      fullContent(),
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "phase_order_violation" {
		t.Fatalf("envelope = %+v", envelope)
	}
	if envelope.Error.Details["expected"] != "LEAD-TO-PLAN" {
		t.Fatalf("details = %+v", envelope.Error.Details)
	}
}

func TestThinHandoffRejectedWith422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives", map[string]any{
		"title": "Thin handoff check",
	})
	var created DirectiveResponse
	_ = json.Unmarshal(data, &created)

	content := fullContent()
	content["executive_summary"] = "done"
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives/"+created.Key+"/handoffs", map[string]any{
		"handoff_type": "LEAD-TO-PLAN",
		"content":      content,
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	if envelope.Error.Code != "content_validation_failed" {
		t.Fatalf("envelope = %+v", envelope)
	}
}

func TestProgressAndReconcileEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives", map[string]any{
		"title": "Progress check",
	})
	var created DirectiveResponse
	_ = json.Unmarshal(data, &created)

	for _, ht := range []string{"LEAD-TO-PLAN", "PLAN-TO-EXEC"} {
		doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives/"+created.Key+"/handoffs", map[string]any{
			"handoff_type": ht,
			"content":      fullContent(),
		})
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/directives/"+created.Key+"/progress", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress: %d %s", res.StatusCode, string(body))
	}
	var rep engine.ProgressReport
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Percent != 40 {
		t.Fatalf("report = %+v", rep)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives/"+created.Key+"/reconcile", map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reconcile: %d %s", res.StatusCode, string(body))
	}
	var rec engine.ReconcileReport
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatal(err)
	}
	if !rec.Clean {
		t.Fatalf("reconcile report = %+v", rec)
	}
}

func TestDecisionEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/directives", map[string]any{
		"title": "Decision host",
	})
	var created DirectiveResponse
	_ = json.Unmarshal(data, &created)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"directive_id": created.Key,
		"title":        "Approve schema change",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision: %d %s", res.StatusCode, string(body))
	}
	var dec DecisionResponse
	_ = json.Unmarshal(body, &dec)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/"+dec.ID+"/resolve", map[string]any{
		"verdict":  "approved",
		"actor_id": "lead-1",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/"+dec.ID+"/resolve", map[string]any{
		"verdict": "rejected",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("double resolve: %d %s", res.StatusCode, string(body))
	}
}

func TestSweepEndpointDryRun(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/escalations/sweep", map[string]any{
		"dry_run": true,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sweep: %d %s", res.StatusCode, string(body))
	}
	var result engine.SweepResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if !result.DryRun {
		t.Fatalf("result = %+v", result)
	}
}
