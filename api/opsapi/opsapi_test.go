package opsapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/ledger"
	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/storage"
	"github.com/defensechain/defensechain/storage/model"
)

type fakeGateway struct {
	down bool
}

func (g fakeGateway) HealthCheck(context.Context) (*ledger.Health, error) {
	if g.down {
		return nil, model.DependencyUnavailableError{Dependency: "ledger gateway"}
	}
	return &ledger.Health{Status: "ok", Message: "peer connected"}, nil
}

func (fakeGateway) RegisterDocument(context.Context, ledger.DocumentRecord) (*ledger.Receipt, error) {
	return &ledger.Receipt{TxID: "tx-1"}, nil
}

func (fakeGateway) VerifyDocument(context.Context, string, string) (*ledger.Verification, error) {
	return &ledger.Verification{Valid: false}, nil
}

type testAPI struct {
	app      *fiber.App
	backends model.Backends
	content  *contentstore.Memory
}

func newTestAPI(t *testing.T, gateway fakeGateway) *testAPI {
	t.Helper()
	s, err := storage.NewStorage(
		storage.Config{
			Driver: storage.DriverSQLite,
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		},
	)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	backends := s.Backends()
	content := contentstore.NewMemory()
	wf := defensechain.NewWorkflow(
		backends, resilience.NewQueue(content, backends.UploadJobs, resilience.Policy{}),
		nil, nil, gateway, nil, defensechain.Config{},
	)
	app := fiber.New()
	if err = Register(app, "", wf, &Options{UsersEnabled: true, Ping: s.Ping}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &testAPI{
		app:      app,
		backends: backends,
		content:  content,
	}
}

func (a *testAPI) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, fakeGateway{})
	resp, body := api.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var h healthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Dependencies["storage_network"].PeerID != "memory" || h.Dependencies["database"].Status != "ok" {
		t.Fatalf("unexpected health %+v", h)
	}
	if h.Dependencies["ledger"].Message != "peer connected" {
		t.Fatalf("ledger health message not passed through: %+v", h.Dependencies["ledger"])
	}

	api.content.SetOffline(true)
	resp, body = api.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unreachable storage network must not fail the health check: %d", resp.StatusCode)
	}
	_ = json.Unmarshal(body, &h)
	if h.Status != "degraded" || h.Dependencies["storage_network"].Status != "unavailable" {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestFailedWorkAndRetry(t *testing.T) {
	api := newTestAPI(t, fakeGateway{down: true})
	now := time.Now().UTC()
	task, err := model.NewTask("t1", model.TaskKindAnchorDocument, "d1", model.AnchorDocumentPayload{DocumentID: "d1"}, 1, now)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err = api.backends.Tasks.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err = api.backends.Tasks.Claim(task, now, model.DefaultTaskLease); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err = api.backends.Tasks.Fail("t1", 1, true, now, "ledger gateway unavailable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	resp, body := api.do(t, httptest.NewRequest(http.MethodGet, "/failed", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	var failed defensechain.FailedWork
	if err = json.Unmarshal(body, &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(failed.Tasks) != 1 || failed.Tasks[0].LastError != "ledger gateway unavailable" {
		t.Fatalf("unexpected failed work %+v", failed)
	}

	resp, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/tasks?status=BOGUS", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown status, got %d", resp.StatusCode)
	}
	resp, _ = api.do(t, httptest.NewRequest(http.MethodPost, "/tasks/t1/retry", nil))
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	resp, _ = api.do(t, httptest.NewRequest(http.MethodPost, "/tasks/t1/retry", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for a task that has not failed, got %d", resp.StatusCode)
	}
	stored, _ := api.backends.Tasks.Get("t1")
	if stored.Status != model.TaskPending {
		t.Fatalf("task not reset: %+v", stored)
	}
	resp, _ = api.do(t, httptest.NewRequest(http.MethodPost, "/uploads/missing/retry", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDocumentViews(t *testing.T) {
	api := newTestAPI(t, fakeGateway{})
	resp, body := api.do(t, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error != "not_found" {
		t.Fatalf("unexpected error body %s", body)
	}
	resp, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/verify/not-a-cid", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid address, got %d", resp.StatusCode)
	}
	resp, body = api.do(t, httptest.NewRequest(http.MethodPost, "/anchoring/reconcile", nil))
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"scheduled":0`) {
		t.Fatalf("unexpected reconcile response %d %s", resp.StatusCode, body)
	}
}

func TestBasicAuth(t *testing.T) {
	api := newTestAPI(t, fakeGateway{})
	req := httptest.NewRequest(
		http.MethodPost, "/users/", strings.NewReader(`{"username":"ops","password":"s3cret"}`),
	)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, body := api.do(t, req)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}

	resp, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/failed", nil))
	if resp.StatusCode != fiber.StatusUnauthorized || resp.Header.Get(fiber.HeaderWWWAuthenticate) == "" {
		t.Fatalf("expected 401 with challenge, got %d", resp.StatusCode)
	}
	req = httptest.NewRequest(http.MethodGet, "/failed", nil)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("ops", "wrong"))
	if resp, _ = api.do(t, req); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d", resp.StatusCode)
	}
	req = httptest.NewRequest(http.MethodGet, "/failed", nil)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("ops", "s3cret"))
	if resp, _ = api.do(t, req); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with valid credentials, got %d", resp.StatusCode)
	}
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestOperatorRoles(t *testing.T) {
	api := newTestAPI(t, fakeGateway{})
	if _, err := api.backends.Users.Create(model.NewUser{Username: "admin", Password: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := api.backends.Users.Create(model.NewUser{Username: "auditor", Password: "v", Role: model.OperatorViewer}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		password string
		status   int
	}{
		{"viewer reads failed work", http.MethodGet, "/failed", "auditor", "v", fiber.StatusOK},
		{"viewer cannot reconcile", http.MethodPost, "/anchoring/reconcile", "auditor", "v", fiber.StatusForbidden},
		{"viewer cannot retry", http.MethodPost, "/tasks/t1/retry", "auditor", "v", fiber.StatusForbidden},
		{"viewer cannot list operators", http.MethodGet, "/users/", "auditor", "v", fiber.StatusForbidden},
		{"viewer sees itself", http.MethodGet, "/me", "auditor", "v", fiber.StatusOK},
		{"admin reconciles", http.MethodPost, "/anchoring/reconcile", "admin", "a", fiber.StatusOK},
		{"admin lists operators", http.MethodGet, "/users/", "admin", "a", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				req := httptest.NewRequest(tt.method, tt.path, nil)
				req.Header.Set(fiber.HeaderAuthorization, basicAuth(tt.user, tt.password))
				if resp, body := api.do(t, req); resp.StatusCode != tt.status {
					t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
				}
			},
		)
	}

	req := httptest.NewRequest(http.MethodPut, "/users/admin", strings.NewReader(`{"disabled":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("admin", "a"))
	if resp, body := api.do(t, req); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 when disabling the last admin, got %d: %s", resp.StatusCode, body)
	}
	req = httptest.NewRequest(http.MethodPost, "/users/", strings.NewReader(`{"username":"x","password":"y","role":"root"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("admin", "a"))
	if resp, _ := api.do(t, req); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown role, got %d", resp.StatusCode)
	}
}

func TestAdaptServerURLPort(t *testing.T) {
	tests := map[string]string{
		"https://ops.example.org":      "https://ops.example.org:8080",
		"https://ops.example.org:9000": "https://ops.example.org:8080",
		"":                             "",
	}
	for in, expected := range tests {
		if got := adaptServerURLPort(in, 8080); got != expected {
			t.Errorf("adaptServerURLPort(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestUpdateOpenAPIServers(t *testing.T) {
	doc, err := assets.ReadFile("openapi.yaml")
	if err != nil {
		t.Fatal(err)
	}
	out := string(updateOpenAPIServers(doc, "https://ops.uni.test:9000"))
	if !strings.Contains(out, "https://ops.uni.test:9000") || !strings.Contains(out, "basicAuth") {
		t.Fatalf("unexpected document:\n%s", out)
	}
	if got := updateOpenAPIServers(doc, ""); string(got) != string(doc) {
		t.Fatal("document must be unchanged without a server url")
	}
}
