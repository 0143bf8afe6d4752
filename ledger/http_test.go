package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/defensechain/defensechain/storage/model"
)

func TestHTTPGateway_RegisterDocument(t *testing.T) {
	var got DocumentRecord
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/documents" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"transactionId":"tx-42"}`))
			},
		),
	)
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", time.Second)
	record := DocumentRecord{
		User:                 "coord@uni.test",
		MinutesHash:          "abc",
		MinutesCID:           "bafk",
		StudentRegistrations: []string{"2020001"},
		FinalGrade:           8.5,
		Result:               model.ResultApproved,
		Signatures: []Signature{
			{Role: model.RoleCoordinator, Signature: "c"},
			{Role: model.RoleAdvisor, Signature: "a"},
			{Role: model.RoleStudent, Signature: "s"},
		},
	}
	receipt, err := g.RegisterDocument(context.Background(), record)
	if err != nil {
		t.Fatalf("RegisterDocument: %v", err)
	}
	if receipt.TxID != "tx-42" {
		t.Fatalf("unexpected tx id %q", receipt.TxID)
	}
	if got.MinutesHash != "abc" || len(got.Signatures) != 3 || got.StudentRegistrations[0] != "2020001" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestHTTPGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   model.Kind
	}{
		{"server error", http.StatusBadGateway, model.KindDependencyUnavailable},
		{"rejected", http.StatusUnprocessableEntity, model.KindInvalidState},
		{"conflict", http.StatusConflict, model.KindAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				srv := httptest.NewServer(
					http.HandlerFunc(
						func(w http.ResponseWriter, _ *http.Request) {
							w.Header().Set("Content-Type", "application/json")
							w.WriteHeader(tt.status)
							_, _ = w.Write([]byte(`{"error":"nope"}`))
						},
					),
				)
				defer srv.Close()
				_, err := NewHTTPGateway(srv.URL, time.Second).RegisterDocument(context.Background(), DocumentRecord{})
				if got := model.KindOf(err); got != tt.kind {
					t.Fatalf("expected %s, got %s (%v)", tt.kind, got, err)
				}
			},
		)
	}
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewHTTPGateway(url, time.Second)
	if _, err := g.HealthCheck(context.Background()); !model.IsKind(err, model.KindDependencyUnavailable) {
		t.Fatalf("expected DependencyUnavailable, got %v", err)
	}
	if _, err := g.RegisterDocument(context.Background(), DocumentRecord{}); !model.IsKind(err, model.KindDependencyUnavailable) {
		t.Fatalf("expected DependencyUnavailable, got %v", err)
	}
}

func TestHTTPGateway_VerifyDocument(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.URL.Path {
				case "/documents/bafk-known/verify":
					if r.URL.Query().Get("user") != "adv@uni.test" {
						t.Errorf("missing user query parameter")
					}
					_, _ = w.Write([]byte(`{"valid":true,"documentType":"minutes","transactionId":"tx-1","document":{"minutesHash":"abc"}}`))
				case "/documents/bafk-unknown/verify":
					w.WriteHeader(http.StatusNotFound)
					_, _ = w.Write([]byte(`{"error":"not_found","message":"no document with this content address"}`))
				default:
					w.WriteHeader(http.StatusNotFound)
					_, _ = w.Write([]byte(`{}`))
				}
			},
		),
	)
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second)
	v, err := g.VerifyDocument(context.Background(), "adv@uni.test", "bafk-known")
	if err != nil {
		t.Fatalf("VerifyDocument: %v", err)
	}
	if !v.Valid || v.TxID != "tx-1" || v.DocumentType != "minutes" || v.Document == nil || v.Document.MinutesHash != "abc" {
		t.Fatalf("unexpected verification %+v", v)
	}
	v, err = g.VerifyDocument(context.Background(), "adv@uni.test", "bafk-unknown")
	if err != nil {
		t.Fatalf("VerifyDocument unknown: %v", err)
	}
	if v.Valid {
		t.Fatal("unknown content address reported as valid")
	}
	if v.Reason != "no document with this content address" {
		t.Fatalf("gateway reason dropped: %q", v.Reason)
	}

	v, err = g.VerifyDocument(context.Background(), "adv@uni.test", "bafk-bare")
	if err != nil {
		t.Fatalf("VerifyDocument bare 404: %v", err)
	}
	if v.Valid || v.Reason == "" {
		t.Fatalf("expected an invalid verification with a reason, got %+v", v)
	}
}

func TestHTTPGateway_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"ok","message":"connected to 4 peers"}`))
			},
		),
	)
	defer srv.Close()

	h, err := NewHTTPGateway(srv.URL, time.Second).HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if h.Status != "ok" || h.Message != "connected to 4 peers" {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestSignature_JSONKeys(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(
		Signature{
			Role:           model.RoleStudent,
			Email:          "stu@uni.test",
			OrganizationID: "students",
			Signature:      "s",
			Timestamp:      at,
			Status:         model.ApprovalApproved,
		},
	)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keys map[string]any
	if err = json.Unmarshal(raw, &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"role", "email", "organizationId", "signature", "timestamp", "status"} {
		if _, ok := keys[k]; !ok {
			t.Fatalf("missing key %q in %s", k, raw)
		}
	}
	if _, ok := keys["justification"]; ok {
		t.Fatalf("empty justification must be omitted: %s", raw)
	}
}
