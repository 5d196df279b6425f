package redis

import (
	"context"
	"encoding/json"
	"time"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/infra/metrics"
	"coursegen-pipeline/internal/usecase"
)

var _ usecase.StatusCache = (*StatusCache)(nil)

// StatusCache keeps job snapshots for the status endpoint. Best-effort: a
// miss or a write failure just falls through to Postgres.
type StatusCache struct {
	client *Client
	ttl    time.Duration
}

func NewStatusCache(client *Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func key(jobID string) string { return "run_status:" + jobID }

func (c *StatusCache) Put(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(job.ID), data, c.ttl)
}

func (c *StatusCache) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := c.client.Get(ctx, key(jobID))
	if err != nil {
		metrics.IncCacheRequest("run_status", "miss")
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	metrics.IncCacheRequest("run_status", "hit")
	return &job, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, key(jobID))
}
