package resilience

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/defensechain/defensechain/storage/model"
)

// RedisJobStore implements model.UploadJobStore in redis. Jobs are stored
// msgpack-encoded under their own key. WAITING jobs are additionally kept in a
// sorted set scored by their next attempt time and ACTIVE jobs by the expiry
// of their lease.
type RedisJobStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisJobStore returns a RedisJobStore using the passed client. All keys
// are prefixed with prefix.
func NewRedisJobStore(client *redis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = "defensechain:uploads"
	}
	return &RedisJobStore{
		client:  client,
		prefix:  prefix,
		timeout: 5 * time.Second,
	}
}

func (s *RedisJobStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *RedisJobStore) jobKey(id string) string {
	return s.prefix + ":job:" + id
}

func (s *RedisJobStore) dueKey() string {
	return s.prefix + ":due"
}

func (s *RedisJobStore) idsKey() string {
	return s.prefix + ":ids"
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *RedisJobStore) save(ctx context.Context, job model.UploadJob) error {
	data, err := msgpack.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, 0)
	pipe.SAdd(ctx, s.idsKey(), job.ID)
	if job.Status == model.UploadJobWaiting {
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: score(job.NextAttemptAt), Member: job.ID})
	} else {
		pipe.ZRem(ctx, s.dueKey(), job.ID)
	}
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "redis upload jobs: save failed")
}

func (s *RedisJobStore) load(ctx context.Context, id string) (*model.UploadJob, error) {
	return s.loadWith(ctx, s.client.Get, id)
}

func (s *RedisJobStore) loadWith(
	ctx context.Context, get func(ctx context.Context, key string) *redis.StringCmd, id string,
) (*model.UploadJob, error) {
	data, err := get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.NotFoundErrorFmt("upload job not found: %s", id)
		}
		return nil, errors.Wrap(err, "redis upload jobs: get failed")
	}
	var job model.UploadJob
	if err = msgpack.Unmarshal(data, &job); err != nil {
		return nil, errors.WithStack(err)
	}
	return &job, nil
}

// Add implements model.UploadJobStore
func (s *RedisJobStore) Add(job model.UploadJob) error {
	ctx, cancel := s.ctx()
	defer cancel()
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	return s.save(ctx, job)
}

// Get implements model.UploadJobStore
func (s *RedisJobStore) Get(id string) (*model.UploadJob, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.load(ctx, id)
}

// Due implements model.UploadJobStore. The lease is already part of the score
// of ACTIVE jobs.
func (s *RedisJobStore) Due(now time.Time, _ time.Duration, limit int) ([]model.UploadJob, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	ids, err := s.client.ZRangeByScore(
		ctx, s.dueKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: int64(limit),
		},
	).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis upload jobs: list due failed")
	}
	jobs := make([]model.UploadJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.load(ctx, id)
		if err != nil {
			if model.IsKind(err, model.KindNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// Claim implements model.UploadJobStore. The job key is watched, so only one
// of several concurrent claims commits.
func (s *RedisJobStore) Claim(job model.UploadJob, now time.Time, lease time.Duration) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	claimed := false
	err := s.client.Watch(
		ctx, func(tx *redis.Tx) error {
			current, err := s.loadWith(ctx, tx.Get, job.ID)
			if err != nil {
				return err
			}
			switch current.Status {
			case model.UploadJobWaiting:
				if current.NextAttemptAt.After(now) {
					return nil
				}
			case model.UploadJobActive:
				if current.ProcessingSince != nil && !current.ProcessingSince.Before(now.Add(-lease)) {
					return nil
				}
			default:
				return nil
			}
			current.Status = model.UploadJobActive
			current.ProcessingSince = &now
			current.UpdatedAt = time.Now().UTC()
			data, err := msgpack.Marshal(current)
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = tx.TxPipelined(
				ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, s.jobKey(job.ID), data, 0)
					pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: score(now.Add(lease)), Member: job.ID})
					return nil
				},
			)
			if err != nil {
				return err
			}
			claimed = true
			return nil
		}, s.jobKey(job.ID),
	)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "redis upload jobs: claim failed")
	}
	return claimed, nil
}

func (s *RedisJobStore) update(id string, fn func(job *model.UploadJob) error) error {
	ctx, cancel := s.ctx()
	defer cancel()
	job, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err = fn(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	return s.save(ctx, *job)
}

// Reschedule implements model.UploadJobStore
func (s *RedisJobStore) Reschedule(id string, attempt int, next time.Time, lastError string) error {
	return s.update(
		id, func(job *model.UploadJob) error {
			job.Status = model.UploadJobWaiting
			job.AttemptNumber = attempt
			job.NextAttemptAt = next
			job.LastError = lastError
			job.ProcessingSince = nil
			return nil
		},
	)
}

// MarkFailed implements model.UploadJobStore
func (s *RedisJobStore) MarkFailed(id string, attempt int, lastError string) error {
	return s.update(
		id, func(job *model.UploadJob) error {
			job.Status = model.UploadJobFailed
			job.AttemptNumber = attempt
			job.LastError = lastError
			job.ProcessingSince = nil
			return nil
		},
	)
}

// Reset implements model.UploadJobStore
func (s *RedisJobStore) Reset(id string, now time.Time) error {
	return s.update(
		id, func(job *model.UploadJob) error {
			if job.Status != model.UploadJobFailed {
				return model.InvalidStateErrorFmt("upload job %s has not failed", id)
			}
			job.Status = model.UploadJobWaiting
			job.AttemptNumber = 1
			job.NextAttemptAt = now
			return nil
		},
	)
}

// Remove implements model.UploadJobStore
func (s *RedisJobStore) Remove(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.jobKey(id))
	pipe.SRem(ctx, s.idsKey(), id)
	pipe.ZRem(ctx, s.dueKey(), id)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "redis upload jobs: remove failed")
}

// List implements model.UploadJobStore
func (s *RedisJobStore) List(status model.UploadJobStatus) ([]model.UploadJob, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis upload jobs: list failed")
	}
	var jobs []model.UploadJob
	for _, id := range ids {
		job, err := s.load(ctx, id)
		if err != nil {
			if model.IsKind(err, model.KindNotFound) {
				continue
			}
			return nil, err
		}
		if status == "" || job.Status == status {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}
