package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
)

const (
	redisJobKeyPrefix    = "pipeline:job:"
	redisJobIndexKey     = "pipeline:jobs"
	redisStatusKeyPrefix = "pipeline:jobs:status:"
	redisMaxTxRetries    = 10
)

// RedisJobStore keeps every job as a json document, indexed by creation time
// in a sorted set and by status in one set per status. Writes are optimistic
// transactions on the job key and are retried when another writer won.
type RedisJobStore struct {
	client  redis.UniversalClient
	catalog *catalog.Catalog
	now     func() time.Time
}

var _ Job = (*RedisJobStore)(nil)

func NewRedisJobStore(client redis.UniversalClient, c *catalog.Catalog) *RedisJobStore {
	return &RedisJobStore{client: client, catalog: c, now: time.Now}
}

func redisJobKey(id string) string {
	return redisJobKeyPrefix + id
}

func redisStatusKey(status catalog.JobStatus) string {
	return redisStatusKeyPrefix + string(status)
}

func (s *RedisJobStore) Create(ctx context.Context, id string, input json.RawMessage) (*model.Job, error) {
	job := newJob(id, input, s.now())
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}

	key := redisJobKey(id)
	err = s.withRetries(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("creating job: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("job %s: %w", id, ErrDuplicateJob)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, redisJobIndexKey, redis.Z{Score: float64(job.CreatedAt.UnixMicro()), Member: id})
			pipe.SAdd(ctx, redisStatusKey(job.Status), id)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisJobStore) RecordStageResult(ctx context.Context, id string, step catalog.StepID, payload json.RawMessage) (*model.Job, error) {
	return s.mutate(ctx, id, recordResult(s.catalog, step, payload))
}

func (s *RedisJobStore) RecordStageSkipped(ctx context.Context, id string, step catalog.StepID) (*model.Job, error) {
	return s.mutate(ctx, id, recordSkipped(s.catalog, step))
}

func (s *RedisJobStore) SetPromptProvenance(ctx context.Context, id string, p prompt.Provenance) (*model.Job, error) {
	return s.mutate(ctx, id, setProvenance(p))
}

func (s *RedisJobStore) MarkCompleted(ctx context.Context, id string) (*model.Job, error) {
	return s.mutate(ctx, id, markCompleted())
}

func (s *RedisJobStore) MarkFailed(ctx context.Context, id string, errorMessage string) (*model.Job, error) {
	return s.mutate(ctx, id, markFailed(errorMessage))
}

func (s *RedisJobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error) {
	ids, err := s.client.ZRange(ctx, redisJobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	if len(ids) == 0 {
		return model.JobList{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, redisJobKey(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	jobs := make(model.JobList, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between the two calls
			continue
		}
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decoding job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}

	return filter.apply(jobs), nil
}

func (s *RedisJobStore) CountByStatus(ctx context.Context) (map[catalog.JobStatus]int, error) {
	statuses := catalog.JobStatuses()
	cmds := make([]*redis.IntCmd, len(statuses))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, status := range statuses {
			cmds[i] = pipe.SCard(ctx, redisStatusKey(status))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	counts := make(map[catalog.JobStatus]int, len(statuses))
	for i, status := range statuses {
		if n := cmds[i].Val(); n > 0 {
			counts[status] = int(n)
		}
	}
	return counts, nil
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	key := redisJobKey(id)
	return s.withRetries(ctx, key, func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !job.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, job.Status, ErrJobNotTerminal)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, redisJobIndexKey, id)
			pipe.SRem(ctx, redisStatusKey(job.Status), id)
			return nil
		})
		return err
	})
}

func (s *RedisJobStore) mutate(ctx context.Context, id string, fn mutation) (*model.Job, error) {
	var result *model.Job
	key := redisJobKey(id)

	err := s.withRetries(ctx, key, func(tx *redis.Tx) error {
		job, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		previous := job.Status
		if err := fn(job, s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encoding job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if job.Status != previous {
				pipe.SRem(ctx, redisStatusKey(previous), id)
				pipe.SAdd(ctx, redisStatusKey(job.Status), id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *RedisJobStore) withRetries(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("updating %s: too many concurrent writers", key)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisJobStore) load(ctx context.Context, c redisGetter, id string) (*model.Job, error) {
	data, err := c.Get(ctx, redisJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}
