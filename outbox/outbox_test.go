package outbox

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage"
	"github.com/defensechain/defensechain/storage/model"
)

var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T) (*Dispatcher, model.TasksStore, *time.Time) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
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
	tasks := s.TasksStorage()
	now := testNow
	d := NewDispatcher(
		tasks, Options{
			InitialDelay: time.Second,
			Lease:        time.Minute,
			Now:          func() time.Time { return now },
		},
	)
	return d, tasks, &now
}

func enqueue(t *testing.T, store model.TasksStore, id, kind string, maxAttempts int) {
	t.Helper()
	task, err := model.NewTask(id, kind, "doc-1", model.AnchorDocumentPayload{DocumentID: "doc-1"}, maxAttempts, testNow)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err = store.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func TestDispatcher_RunsHandler(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	var got model.AnchorDocumentPayload
	d.Register(
		model.TaskKindAnchorDocument, func(_ context.Context, task model.Task) error {
			return task.Decode(&got)
		},
	)
	enqueue(t, store, "t-1", model.TaskKindAnchorDocument, 3)

	n, err := d.RunDue(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("RunDue: %d %v", n, err)
	}
	if got.DocumentID != "doc-1" {
		t.Fatalf("payload not decoded: %+v", got)
	}
	task, err := store.Get("t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != model.TaskDone {
		t.Fatalf("expected DONE, got %s", task.Status)
	}
	if n, _ = d.RunDue(context.Background()); n != 0 {
		t.Fatal("completed task ran twice")
	}
}

func TestDispatcher_RetriesWithBackoffThenFails(t *testing.T) {
	d, store, now := newTestDispatcher(t)
	calls := 0
	d.Register(
		model.TaskKindAnchorDocument, func(context.Context, model.Task) error {
			calls++
			return errors.New("ledger gateway unavailable")
		},
	)
	enqueue(t, store, "t-1", model.TaskKindAnchorDocument, 3)

	ctx := context.Background()
	for i, delay := range []time.Duration{time.Second, 2 * time.Second} {
		if _, err := d.RunDue(ctx); err != nil {
			t.Fatalf("RunDue: %v", err)
		}
		task, _ := store.Get("t-1")
		if task.Status != model.TaskRetry || task.Attempts != i+1 {
			t.Fatalf("attempt %d: unexpected task %s/%d", i+1, task.Status, task.Attempts)
		}
		if got := task.NextRunAt.Sub(*now); got != delay {
			t.Fatalf("attempt %d: expected delay %s, got %s", i+1, delay, got)
		}
		*now = task.NextRunAt
	}
	if _, err := d.RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	task, _ := store.Get("t-1")
	if task.Status != model.TaskFailed || task.Attempts != 3 || task.LastError == "" {
		t.Fatalf("expected FAILED after 3 attempts, got %+v", task)
	}
	if calls != 3 {
		t.Fatalf("expected 3 handler calls, got %d", calls)
	}

	if err := store.Retry("t-1", *now); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	task, _ = store.Get("t-1")
	if task.Status != model.TaskPending || task.Attempts != 0 {
		t.Fatalf("unexpected task after retry: %+v", task)
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	d.Register(
		model.TaskKindIssueCertificate, func(context.Context, model.Task) error {
			panic("boom")
		},
	)
	enqueue(t, store, "t-1", model.TaskKindIssueCertificate, 1)
	if _, err := d.RunDue(context.Background()); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	task, _ := store.Get("t-1")
	if task.Status != model.TaskFailed || !strings.Contains(task.LastError, "boom") {
		t.Fatalf("panic not recorded: %+v", task)
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	enqueue(t, store, "t-1", "unknown", 1)
	if _, err := d.RunDue(context.Background()); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	task, _ := store.Get("t-1")
	if task.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %s", task.Status)
	}
}

func TestDispatcher_ReclaimsAbandonedTask(t *testing.T) {
	d, store, now := newTestDispatcher(t)
	calls := 0
	d.Register(
		model.TaskKindAnchorDocument, func(context.Context, model.Task) error {
			calls++
			return nil
		},
	)
	enqueue(t, store, "t-1", model.TaskKindAnchorDocument, 3)
	task, _ := store.Get("t-1")
	if ok, err := store.Claim(*task, *now, time.Minute); err != nil || !ok {
		t.Fatalf("Claim: %v %v", ok, err)
	}

	if n, _ := d.RunDue(context.Background()); n != 0 || calls != 0 {
		t.Fatal("task ran while another dispatcher held its lease")
	}
	*now = now.Add(time.Minute + time.Second)
	if n, err := d.RunDue(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunDue after lease expiry: %d %v", n, err)
	}
	task, _ = store.Get("t-1")
	if task.Status != model.TaskDone || calls != 1 {
		t.Fatalf("abandoned task not reclaimed: %+v", task)
	}
}

func TestDispatcher_WaitDrainsLoop(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	started := make(chan struct{})
	release := make(chan struct{})
	finished := false
	d.Register(
		model.TaskKindAnchorDocument, func(context.Context, model.Task) error {
			close(started)
			<-release
			finished = true
			return nil
		},
	)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	enqueue(t, store, "t-1", model.TaskKindAnchorDocument, 1)
	d.Kick()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("kicked dispatcher did not run the task")
	}
	cancel()
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	d.Wait()
	if !finished {
		t.Fatal("Wait returned before the running handler finished")
	}
	task, _ := store.Get("t-1")
	if task.Status != model.TaskDone {
		t.Fatalf("expected DONE, got %s", task.Status)
	}
}

func TestDispatcher_Start(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	done := make(chan struct{})
	d.Register(
		model.TaskKindAnchorDocument, func(context.Context, model.Task) error {
			close(done)
			return nil
		},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	enqueue(t, store, "t-1", model.TaskKindAnchorDocument, 1)
	d.Kick()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("kicked dispatcher did not run the task")
	}
}
