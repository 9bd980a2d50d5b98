package queue

import (
	"log/slog"

	"github.com/maheshrc27/postdispatch/internal/service"
)

// Queue handles the delayed tasks that complete scheduled posts on time.
// The periodic sweep picks up anything a lost task misses.
type Queue struct {
	scheduler service.SchedulerService
	log       *slog.Logger
}

func NewQueue(scheduler service.SchedulerService, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		scheduler: scheduler,
		log:       logger.With("module", "queue"),
	}
}

const TaskTypeSweepPost = "sweep:post"

type SweepPostPayload struct {
	PostID int64 `json:"post_id"`
}
