// Package resilience keeps artifact uploads alive while the storage network
// is unreachable. Failed uploads are persisted as jobs and retried with
// exponential backoff by a Worker.
package resilience

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/storage/model"
)

// Policy is the retry policy applied to new jobs
type Policy struct {
	InitialDelay time.Duration
	MaxAttempts  int
	// Lease is how long a worker may hold a claimed job
	Lease time.Duration
}

// DefaultPolicy is used for zero-valued Policy fields
var DefaultPolicy = Policy{
	InitialDelay: model.DefaultUploadInitialDelay,
	MaxAttempts:  model.DefaultUploadMaxAttempts,
	Lease:        model.DefaultUploadLease,
}

func (p Policy) withDefaults() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Lease <= 0 {
		p.Lease = DefaultPolicy.Lease
	}
	return p
}

// Reference points to the document artifact that an upload belongs to
type Reference struct {
	DocumentID string
	Artifact   model.ArtifactKind
}

// UploadResult is the outcome of Queue.Upload. If Queued is set, the upload
// was deferred, Address is empty and JobID identifies the job.
type UploadResult struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name"`
	Size    int    `json:"size"`
	Queued  bool   `json:"queued"`
	JobID   string `json:"job_id,omitempty"`
}

// Queue uploads through a contentstore.Client and falls back to a persisted
// job when the storage network is unavailable
type Queue struct {
	client contentstore.Client
	jobs   model.UploadJobStore
	policy Policy
	now    func() time.Time
	kick   chan struct{}
}

// NewQueue creates a new Queue
func NewQueue(client contentstore.Client, jobs model.UploadJobStore, policy Policy) *Queue {
	return &Queue{
		client: client,
		jobs:   jobs,
		policy: policy.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		kick:   make(chan struct{}, 1),
	}
}

// Jobs returns the job store
func (q *Queue) Jobs() model.UploadJobStore {
	return q.jobs
}

// Policy returns the effective retry policy
func (q *Queue) Policy() Policy {
	return q.policy
}

// Upload stores data in the storage network. If the network is unavailable
// the file is queued and the result carries Queued and the job id; any other
// error is returned unchanged.
func (q *Queue) Upload(ctx context.Context, data []byte, filename string, ref *Reference) (*UploadResult, error) {
	res, err := q.client.Upload(ctx, data, filename)
	if err == nil {
		return &UploadResult{
			Address: res.Address,
			Name:    res.Name,
			Size:    res.Size,
		}, nil
	}
	if !model.IsKind(err, model.KindDependencyUnavailable) {
		return nil, err
	}
	job := q.newJob(data, filename, ref, err)
	if err = q.jobs.Add(job); err != nil {
		return nil, errors.Wrap(err, "resilience: failed to queue upload")
	}
	log.WithFields(
		log.Fields{
			"job":      job.ID,
			"filename": filename,
			"size":     job.Size,
		},
	).Warn("storage network unavailable, upload queued")
	return &UploadResult{
		Name:   filename,
		Size:   len(data),
		Queued: true,
		JobID:  job.ID,
	}, nil
}

func (q *Queue) newJob(data []byte, filename string, ref *Reference, cause error) model.UploadJob {
	now := q.now()
	job := model.UploadJob{
		ID:             uuid.NewString(),
		FileBytes:      append([]byte(nil), data...),
		Filename:       filename,
		Size:           len(data),
		AttemptNumber:  1,
		MaxAttempts:    q.policy.MaxAttempts,
		BackoffType:    model.UploadBackoffExponential,
		InitialDelayMs: q.policy.InitialDelay.Milliseconds(),
		NextAttemptAt:  now,
		Status:         model.UploadJobWaiting,
		LastError:      cause.Error(),
	}
	if ref != nil {
		docID := ref.DocumentID
		job.DocumentID = &docID
		job.Artifact = ref.Artifact
	}
	return job
}

// CalculateAddress returns the content address data would be stored under
func (q *Queue) CalculateAddress(ctx context.Context, data []byte) (string, error) {
	return q.client.CalculateAddress(ctx, data)
}

// Download fetches an artifact from the storage network
func (q *Queue) Download(ctx context.Context, address string) ([]byte, error) {
	return q.client.Download(ctx, address)
}

// HealthCheck reports the connectivity of the storage network
func (q *Queue) HealthCheck(ctx context.Context) (*contentstore.Health, error) {
	return q.client.HealthCheck(ctx)
}

// Retry resets a FAILED job so that the worker picks it up again
func (q *Queue) Retry(jobID string) error {
	if err := q.jobs.Reset(jobID, q.now()); err != nil {
		return err
	}
	q.Kick()
	return nil
}

// Kick wakes up a started Worker
func (q *Queue) Kick() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// LogHealth runs a health check and logs the outcome. A failing check is not
// fatal; uploads are queued until the network comes back.
func (q *Queue) LogHealth(ctx context.Context) {
	h, err := q.HealthCheck(ctx)
	if err != nil {
		log.WithError(err).Warn("storage network health check failed; uploads will be queued")
		return
	}
	log.WithFields(
		log.Fields{
			"status": h.Status,
			"peer":   h.PeerID,
		},
	).Info("storage network reachable")
}
