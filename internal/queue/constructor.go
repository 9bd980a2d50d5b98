package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const sweepMaxRetry = 3

// Enqueuer schedules sweep tasks on the asynq client.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func NewSweepTask(postID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPostPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSweepPost, payload, asynq.MaxRetry(sweepMaxRetry)), nil
}

func (e *Enqueuer) EnqueueSweep(ctx context.Context, postID int64, processAt time.Time) error {
	task, err := NewSweepTask(postID)
	if err != nil {
		return err
	}

	if _, err := e.client.EnqueueContext(ctx, task, asynq.ProcessAt(processAt)); err != nil {
		return fmt.Errorf("error enqueueing sweep for post %d: %w", postID, err)
	}
	return nil
}
