package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	scheduleKey   = "jobs:schedule"
	jobBodyPrefix = "jobs:body:"
)

// RedisStore keeps the schedule in a sorted set scored by fire time, with
// job bodies in plain keys. The claim script removes a member before its
// body is handed out, so concurrent workers fire each job exactly once.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobBodyPrefix+job.ID.String(), body, 0)
	pipe.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(job.FireAt.Unix()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (s *RedisStore) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	pipe := s.client.TxPipeline()
	removed := pipe.ZRem(ctx, scheduleKey, id.String())
	pipe.Del(ctx, jobBodyPrefix+id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	return removed.Val() == 1, nil
}

var claimScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(due) do
  if redis.call("ZREM", KEYS[1], id) == 1 then
    local body = redis.call("GET", ARGV[3] .. id)
    if body then
      table.insert(out, body)
    end
    redis.call("DEL", ARGV[3] .. id)
  end
end
return out
`)

func (s *RedisStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{scheduleKey},
		strconv.FormatInt(now.Unix(), 10),
		strconv.Itoa(limit),
		jobBodyPrefix,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	raw, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("claim due jobs: unexpected reply type %T", res)
	}

	jobs := make([]Job, 0, len(raw))
	for _, item := range raw {
		body, ok := item.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return nil, fmt.Errorf("decode claimed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
