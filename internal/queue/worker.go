package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postdispatch/internal/service"
)

func (q *Queue) HandleSweepPostTask(ctx context.Context, task *asynq.Task) error {
	var payload SweepPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	report, err := q.scheduler.SweepPost(ctx, payload.PostID)
	if errors.Is(err, service.ErrPostNotFound) {
		q.log.Warn("post for sweep task no longer exists", "event", "sweep_task_orphaned", "post_id", payload.PostID)
		return nil
	}
	if err != nil {
		return err
	}

	q.log.Info("sweep task done", "event", "sweep_task_done", "post_id", payload.PostID,
		"processed", report.EntriesProcessed, "published", len(report.PostsPublished) > 0)
	return nil
}

// Mux routes every task type this package handles.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSweepPost, q.HandleSweepPostTask)
	return mux
}
