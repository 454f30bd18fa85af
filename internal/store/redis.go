package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamstudio/brandrender/internal/model"
)

const (
	jobKeyPrefix = "render:job:"
	jobIndexKey  = "render:jobs"

	maxPatchRetries = 10
)

// RedisStore keeps jobs as JSON strings so several processes can share them.
// Patches run inside WATCH/MULTI so a reader sees either the old or the new record.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore builds a store. With a non-zero retention, terminal jobs get a
// TTL of twice the retention so the janitor sweeps them (and their artifacts)
// before Redis drops the record.
func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
		now:       time.Now,
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, req model.RenderRequest) (model.Job, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job := model.NewJob(uuid.NewString(), req, s.now().UTC())
		data, err := json.Marshal(job)
		if err != nil {
			return model.Job{}, err
		}

		ok, err := s.redis.SetNX(ctx, jobKey(job.ID), data, 0).Result()
		if err != nil {
			return model.Job{}, fmt.Errorf("create job: %w", err)
		}
		if !ok {
			continue
		}

		if err := s.redis.ZAdd(ctx, jobIndexKey, redis.Z{
			Score:  float64(job.UpdatedAt.UnixMilli()),
			Member: job.ID,
		}).Err(); err != nil {
			return model.Job{}, fmt.Errorf("index job: %w", err)
		}
		return job, nil
	}
	return model.Job{}, errors.New("create job: could not allocate a unique id")
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Job, error) {
	return s.load(ctx, s.redis, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, r getter, id string) (model.Job, error) {
	data, err := r.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Job{}, ErrNotFound
		}
		return model.Job{}, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return model.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) Patch(ctx context.Context, id string, p model.JobPatch) (model.Job, error) {
	key := jobKey(id)

	for attempt := 0; attempt < maxPatchRetries; attempt++ {
		var result model.Job

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			job, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}

			next, err := job.Apply(p, s.now().UTC())
			if errors.Is(err, model.ErrJobFrozen) {
				result = job
				return nil
			}
			if err != nil {
				result = job
				return err
			}

			data, err := json.Marshal(next)
			if err != nil {
				return err
			}

			ttl := time.Duration(0)
			if next.IsTerminal() {
				ttl = 2 * s.retention
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				pipe.ZAdd(ctx, jobIndexKey, redis.Z{
					Score:  float64(next.UpdatedAt.UnixMilli()),
					Member: id,
				})
				return nil
			})
			if err == nil {
				result = next
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return model.Job{}, fmt.Errorf("patch job %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return err
	}
	if err := s.redis.ZRem(ctx, jobIndexKey, id).Err(); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]model.Job, error) {
	ids, err := s.redis.ZRangeByScore(ctx, jobIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []model.Job
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Expired through its TTL; drop the dangling index entry.
			s.redis.ZRem(ctx, jobIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}
