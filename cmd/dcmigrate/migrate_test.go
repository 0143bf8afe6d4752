package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage"
	"github.com/defensechain/defensechain/storage/model"
)

func newBackends(t *testing.T, suffix string) model.Backends {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_") + suffix
	s, err := storage.NewStorage(
		storage.Config{
			Driver: storage.DriverSQLite,
			DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		},
	)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.Backends()
}

func writeOrgKey(t *testing.T, dir, org string) {
	t.Helper()
	key, err := signing.GenerateKey(jwa.ES256())
	if err != nil {
		t.Fatal(err)
	}
	cert, err := signing.SelfSignedCertificate(org, key, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	var raw any
	if err = jwk.Export(key, &raw); err != nil {
		t.Fatal(err)
	}
	priv, ok := raw.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("unexpected key type %T", raw)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	orgDir := filepath.Join(dir, org)
	if err = os.MkdirAll(orgDir, 0o700); err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err = os.WriteFile(filepath.Join(orgDir, "key.pem"), keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(orgDir, "cert.pem"), []byte(signing.EncodeCertificatePEM(cert)), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestImportKeys(t *testing.T) {
	dir := t.TempDir()
	writeOrgKey(t, dir, "advisors")
	writeOrgKey(t, dir, "students")

	backs := newBackends(t, "")
	dst := signing.NewStoredKeyProvider(backs.KV, jwa.ES256(), false, time.Hour)
	n, err := importKeys(signing.NewFilesystemKeyProvider(dir), dst, []string{"coordination", "advisors", "students"})
	if err != nil {
		t.Fatalf("importKeys: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported keys, got %d", n)
	}
	cert, err := dst.Certificate(context.Background(), "advisors")
	if err != nil {
		t.Fatalf("Certificate: %v", err)
	}
	if cert.Subject.Organization[0] != "advisors" {
		t.Fatalf("unexpected certificate subject %v", cert.Subject)
	}
	if _, err = dst.SigningKey(context.Background(), "coordination"); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected no key for coordination, got %v", err)
	}
}

func TestMoveUploadJobs(t *testing.T) {
	src := newBackends(t, "_src").UploadJobs
	dst := newBackends(t, "_dst").UploadJobs
	now := time.Now().UTC()
	for i, status := range []model.UploadJobStatus{model.UploadJobWaiting, model.UploadJobFailed, model.UploadJobActive} {
		job := model.UploadJob{
			ID:             fmt.Sprintf("job-%d", i),
			FileBytes:      []byte("minutes"),
			Filename:       "minutes.pdf",
			Size:           7,
			AttemptNumber:  1,
			MaxAttempts:    5,
			BackoffType:    model.UploadBackoffExponential,
			InitialDelayMs: 10000,
			NextAttemptAt:  now,
			Status:         status,
		}
		if err := src.Add(job); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	n, err := moveUploadJobs(src, dst)
	if err != nil {
		t.Fatalf("moveUploadJobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 moved jobs, got %d", n)
	}
	moved, err := dst.Get("job-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(moved.FileBytes, []byte("minutes")) || moved.Status != model.UploadJobWaiting {
		t.Fatalf("unexpected moved job %+v", moved)
	}
	if _, err = src.Get("job-1"); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected job-1 to be removed from the source, got %v", err)
	}
	if _, err = src.Get("job-2"); err != nil {
		t.Fatalf("active job must stay in the source: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" advisors, ,students,")
	if !reflect.DeepEqual(got, []string{"advisors", "students"}) {
		t.Fatalf("unexpected list %v", got)
	}
	if splitList("") != nil {
		t.Fatal("expected nil for an empty list")
	}
}
