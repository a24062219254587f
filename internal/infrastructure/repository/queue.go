package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/passportlabs/scorer/internal/domain"
)

const dequeueBlock = 5 * time.Second

// JobQueueRepository is a redis list used as a fire-and-forget work queue.
// Jobs are idempotent, so at-least-once delivery is enough.
type JobQueueRepository struct {
	rdb *redis.Client
}

func NewJobQueueRepository(rdb *redis.Client) *JobQueueRepository {
	return &JobQueueRepository{rdb: rdb}
}

func (r *JobQueueRepository) Enqueue(ctx context.Context, job domain.RescoreJob) error {

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return r.rdb.LPush(ctx, domain.RescoreQueue, payload).Err()
}

// Dequeue blocks for a bounded interval and fails with NotFoundError when
// the queue stayed empty, letting the worker loop re-check its context.
func (r *JobQueueRepository) Dequeue(ctx context.Context) (domain.RescoreJob, error) {

	result, err := r.rdb.BRPop(ctx, dequeueBlock, domain.RescoreQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RescoreJob{}, domain.NotFoundError{Resource: "job"}
		}
		return domain.RescoreJob{}, err
	}
	if len(result) != 2 {
		return domain.RescoreJob{}, domain.NotFoundError{Resource: "job"}
	}

	var job domain.RescoreJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return domain.RescoreJob{}, err
	}

	return job, nil
}
