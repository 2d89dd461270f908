package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

const (
	redisKeyPrefix = "shortify:job:"
	redisIndexKey  = "shortify:jobs"

	// maxUpdateAttempts bounds optimistic retries when a watched key
	// changes under an Update.
	maxUpdateAttempts = 10
)

// Redis stores each record as a JSON value with a TTL and keeps a sorted
// set of ids by creation time for listing.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedis(ctx context.Context, addr string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Redis{rdb: rdb, ttl: ttl, log: logger.OrNop(log).With("service", "RedisJobStore")}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Put(ctx context.Context, rec types.JobRecord) error {
	if rec.ID == "" {
		return apperr.New(apperr.KindInvalidArgument, "job id is required")
	}
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		return r.write(ctx, p, rec)
	})
	if err != nil {
		return fmt.Errorf("redis put job %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Redis) write(ctx context.Context, p goredis.Pipeliner, rec types.JobRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	p.Set(ctx, redisKeyPrefix+rec.ID, raw, r.ttl)
	p.ZAdd(ctx, redisIndexKey, goredis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.ID})
	return nil
}

// Update runs fn under WATCH on the job key and retries when another
// writer got in first.
func (r *Redis) Update(ctx context.Context, id string, fn func(types.JobRecord) (types.JobRecord, error)) (types.JobRecord, error) {
	key := redisKeyPrefix + id
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var out types.JobRecord
		err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			cur, err := r.get(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if errors.Is(err, ports.ErrSkipUpdate) {
				out = cur
				return nil
			}
			if err != nil {
				return err
			}
			next.ID = id
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				return r.write(ctx, p, next)
			})
			out = next
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return types.JobRecord{}, err
		}
		return out, nil
	}
	return types.JobRecord{}, fmt.Errorf("redis update job %s: too much contention", id)
}

func (r *Redis) Get(ctx context.Context, id string) (types.JobRecord, error) {
	return r.get(ctx, r.rdb, id)
}

func (r *Redis) get(ctx context.Context, c goredis.Cmdable, id string) (types.JobRecord, error) {
	raw, err := c.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return types.JobRecord{}, apperr.New(apperr.KindNotFound, "job %q", id)
	}
	if err != nil {
		return types.JobRecord{}, fmt.Errorf("redis get job %s: %w", id, err)
	}
	var rec types.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.JobRecord{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return rec, nil
}

func (r *Redis) List(ctx context.Context, limit int) ([]types.JobRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []types.JobRecord{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget jobs: %w", err)
	}

	out := make([]types.JobRecord, 0, len(vals))
	var expired []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var rec types.JobRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.log.Warn("skipping undecodable job", "id", ids[i], "error", err)
			continue
		}
		out = append(out, rec)
	}
	if len(expired) > 0 {
		if err := r.rdb.ZRem(ctx, redisIndexKey, expired...).Err(); err != nil {
			r.log.Warn("prune expired job ids", "error", err)
		}
	}
	return out, nil
}
