package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/internal/version"
)

func TestHandleError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handleError})
	app.Get(
		"/missing", func(*fiber.Ctx) error {
			return fiber.NewError(fiber.StatusNotFound, "no such thing")
		},
	)
	app.Get(
		"/broken", func(*fiber.Ctx) error {
			return errors.New("database password is hunter2")
		},
	)

	tests := []struct {
		path        string
		status      int
		code        string
		description string
	}{
		{"/missing", fiber.StatusNotFound, "invalid_request", "no such thing"},
		{"/broken", fiber.StatusInternalServerError, "server_error", "internal server error"},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil))
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: expected status %d, got %d", tt.path, tt.status, resp.StatusCode)
		}
		var body map[string]string
		if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if body["error"] != tt.code || body["error_description"] != tt.description {
			t.Fatalf("%s: unexpected body %v", tt.path, body)
		}
	}
}

func TestNewServer_OpsDisabled(t *testing.T) {
	var c config.Config
	c.Server.Port = 8765
	s, err := newServer(c, nil, nil)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if s.ops != nil {
		t.Fatal("no separate ops server expected")
	}
	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/version", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["version"] != version.VERSION {
		t.Fatalf("unexpected version response %v", body)
	}
	resp, err = s.app.Test(httptest.NewRequest(fiber.MethodGet, opsAPIPrefix+"/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected ops api to be absent, got status %d", resp.StatusCode)
	}
}
