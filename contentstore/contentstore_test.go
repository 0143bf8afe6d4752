package contentstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/defensechain/defensechain/storage/model"
)

func TestRawAddress(t *testing.T) {
	a, err := RawAddress([]byte("minutes"))
	if err != nil {
		t.Fatalf("RawAddress: %v", err)
	}
	b, _ := RawAddress([]byte("minutes"))
	c, _ := RawAddress([]byte("minutes v2"))
	if a != b {
		t.Fatal("address is not deterministic")
	}
	if a == c {
		t.Fatal("different content yields the same address")
	}
	if _, err = ParseAddress(a); err != nil {
		t.Fatalf("generated address does not parse: %v", err)
	}
	if _, err = ParseAddress("not-a-cid"); !model.IsKind(err, model.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	res, err := m.Upload(ctx, []byte("pdf"), "ata.pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Name != "ata.pdf" || res.Size != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	addr, err := m.CalculateAddress(ctx, []byte("pdf"))
	if err != nil {
		t.Fatalf("CalculateAddress: %v", err)
	}
	if addr != res.Address {
		t.Fatalf("calculated address %s differs from uploaded %s", addr, res.Address)
	}
	data, err := m.Download(ctx, res.Address)
	if err != nil || string(data) != "pdf" {
		t.Fatalf("Download: %q %v", data, err)
	}
	other, _ := RawAddress([]byte("other"))
	if _, err = m.Download(ctx, other); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	m.SetOffline(true)
	if _, err = m.Upload(ctx, []byte("x"), "x"); !model.IsKind(err, model.KindDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if _, err = m.HealthCheck(ctx); !model.IsKind(err, model.KindDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if m.Uploads() != 1 {
		t.Fatalf("expected 1 upload, got %d", m.Uploads())
	}
}

func TestKuboClient(t *testing.T) {
	addr, _ := RawAddress([]byte("hello"))
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.URL.Path {
				case "/api/v0/add":
					if r.URL.Query().Get("cid-version") != "1" {
						t.Errorf("missing cid-version")
					}
					f, _, err := r.FormFile("file")
					if err != nil {
						t.Errorf("FormFile: %v", err)
						return
					}
					body, _ := io.ReadAll(f)
					if string(body) != "hello" {
						t.Errorf("unexpected upload body %q", body)
					}
					_, _ = w.Write([]byte(`{"Name":"f","Hash":"` + addr + `","Size":"5"}`))
				case "/api/v0/cat":
					if r.URL.Query().Get("arg") != addr {
						w.WriteHeader(http.StatusInternalServerError)
						_, _ = w.Write([]byte(`{"Message":"block not found","Code":0}`))
						return
					}
					w.Header().Set("Content-Type", "text/plain")
					_, _ = w.Write([]byte("hello"))
				case "/api/v0/id":
					_, _ = w.Write([]byte(`{"ID":"12D3KooW"}`))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			},
		),
	)
	defer srv.Close()

	ctx := context.Background()
	k := NewKuboClient(srv.URL, time.Second)
	res, err := k.Upload(ctx, []byte("hello"), "ata.pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Address != addr || res.Size != 5 || res.Name != "ata.pdf" {
		t.Fatalf("unexpected result %+v", res)
	}
	data, err := k.Download(ctx, addr)
	if err != nil || string(data) != "hello" {
		t.Fatalf("Download: %q %v", data, err)
	}
	other, _ := RawAddress([]byte("other"))
	if _, err = k.Download(ctx, other); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	h, err := k.HealthCheck(ctx)
	if err != nil || h.PeerID != "12D3KooW" {
		t.Fatalf("HealthCheck: %+v %v", h, err)
	}
}

func TestKuboClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	k := NewKuboClient(url, time.Second)
	if _, err := k.Upload(context.Background(), []byte("x"), "x"); !model.IsKind(
		err, model.KindDependencyUnavailable,
	) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c, err := NewBadgerCache(mem, t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerCache: %v", err)
	}
	defer c.Close()

	res, err := c.Upload(ctx, []byte("evaluation"), "eval.pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	mem.SetOffline(true)
	data, err := c.Download(ctx, res.Address)
	if err != nil {
		t.Fatalf("cached Download while offline: %v", err)
	}
	if string(data) != "evaluation" {
		t.Fatalf("unexpected data %q", data)
	}
	n, err := c.Cached()
	if err != nil || n != 1 {
		t.Fatalf("Cached: %d %v", n, err)
	}
	other, _ := RawAddress([]byte("other"))
	if _, err = c.Download(ctx, other); !model.IsKind(err, model.KindDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}
