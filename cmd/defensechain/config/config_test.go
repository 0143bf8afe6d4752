package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"

	"github.com/defensechain/defensechain/notification"
)

func minimalConfig(dataDir string) string {
	return fmt.Sprintf("storage:\n  data_dir: %s\n", dataDir)
}

func TestLoad_Defaults(t *testing.T) {
	conf, err := load([]byte(minimalConfig(t.TempDir())))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Server.Port != 8765 {
		t.Errorf("expected default port 8765, got %d", conf.Server.Port)
	}
	if conf.Signing.Algorithm.String() != jwa.ES256().String() {
		t.Errorf("expected ES256, got %s", conf.Signing.Algorithm)
	}
	if conf.Uploads.InitialDelay.Duration() != 10*time.Second || conf.Uploads.MaxAttempts != 5 {
		t.Errorf("unexpected upload defaults: %+v", conf.Uploads)
	}
	if conf.Notifications.MaxRetries != 3 {
		t.Errorf("expected 3 notification retries, got %d", conf.Notifications.MaxRetries)
	}
	if _, ok := conf.Notifications.NewMailer().(notification.LogMailer); !ok {
		t.Errorf("expected the log mailer by default")
	}
	if conf.Workflow.PassingGrade != 6 {
		t.Errorf("expected passing grade 6, got %v", conf.Workflow.PassingGrade)
	}
	if conf.OutboxOptions().Lease != 10*time.Minute || conf.WorkflowConfig().TaskLease != 10*time.Minute {
		t.Errorf("outbox and workflow must share the task lease")
	}
}

func TestLoad_Overrides(t *testing.T) {
	data := minimalConfig(t.TempDir()) + `
ledger:
  url: https://gateway.uni.test
  timeout: 10s
anchoring:
  max_attempts: 3
  lease: 1m
  reconcile_schedule: "*/5 * * * *"
notifications:
  mailer: smtp
  smtp:
    host: mail.uni.test
    from: defense@uni.test
`
	conf, err := load([]byte(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Ledger.URL != "https://gateway.uni.test" || conf.Ledger.Timeout.Duration() != 10*time.Second {
		t.Errorf("unexpected ledger conf: %+v", conf.Ledger)
	}
	if conf.Anchoring.MaxAttempts != 3 || conf.Anchoring.Lease.Duration() != time.Minute {
		t.Errorf("unexpected anchoring conf: %+v", conf.Anchoring)
	}
	if conf.Notifications.SMTP.Port != 587 {
		t.Errorf("expected smtp port to default to 587, got %d", conf.Notifications.SMTP.Port)
	}
	if _, ok := conf.Notifications.NewMailer().(notification.SMTPMailer); !ok {
		t.Errorf("expected the smtp mailer")
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		extra string
	}{
		{"unknown algorithm", "signing:\n  alg: none\n"},
		{"filesystem keys without dir", "signing:\n  key_provider: filesystem\n"},
		{"unknown mailer", "notifications:\n  mailer: pigeon\n"},
		{"zero outbox lease", "outbox:\n  lease: 0s\n"},
		{"smtp without host", "notifications:\n  mailer: smtp\n"},
		{"bad schedule", "anchoring:\n  reconcile_schedule: sometimes\n"},
		{"redis without addr", "uploads:\n  backend: redis\n  redis:\n    addr: \"\"\n"},
		{"missing logging dir", "logging:\n  internal:\n    dir: " + filepath.Join(dir, "missing") + "\n"},
		{"bad ledger url", "ledger:\n  url: ftp://gateway\n"},
		{"grade out of range", "workflow:\n  passing_grade: 11\n"},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				if _, err := load([]byte(minimalConfig(dir) + tt.extra)); err == nil {
					t.Fatal("expected an error")
				}
			},
		)
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	if _, err := load([]byte("storage:\n  driver: oracle\n  dsn: x\n")); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestLoad_SQLiteNeedsDataDir(t *testing.T) {
	if _, err := load([]byte("server:\n  port: 8080\n")); err == nil {
		t.Fatal("expected an error without storage.data_dir")
	}
}

func TestLoad_EnvSecrets(t *testing.T) {
	t.Setenv(EnvDBPassword, "db-secret")
	t.Setenv(EnvSMTPPassword, "smtp-secret")
	t.Setenv(EnvRedisPassword, "redis-secret")
	data := `
storage:
  driver: postgres
  host: db
  password: from-file
`
	conf, err := load([]byte(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Storage.Password != "db-secret" {
		t.Errorf("expected db password from env, got %q", conf.Storage.Password)
	}
	expectedDSN := "host=db user=defensechain password=db-secret dbname=defensechain port=5432 sslmode=disable TimeZone=UTC"
	if conf.Storage.DSN != expectedDSN {
		t.Errorf("unexpected dsn %q", conf.Storage.DSN)
	}
	if conf.Notifications.SMTP.Password != "smtp-secret" || conf.Uploads.Redis.Password != "redis-secret" {
		t.Errorf("secrets not applied: %+v %+v", conf.Notifications.SMTP, conf.Uploads.Redis)
	}
}

func TestUnknownSections(t *testing.T) {
	got := unknownSections([]byte("server: {}\nfederation: {}\ncache: {}\n"))
	expected := []string{"cache", "federation"}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte(minimalConfig(dir)), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Load(file); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Get().Storage.DataDir != dir {
		t.Fatalf("expected data_dir %q, got %q", dir, Get().Storage.DataDir)
	}
	if err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
