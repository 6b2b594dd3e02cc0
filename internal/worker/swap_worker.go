package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/faceswaplab/api/internal/executor"
)

// SwapWorker processes face-swap tasks from the queue.
type SwapWorker struct {
	executor *executor.Executor
}

// NewSwapWorker creates a new swap worker.
func NewSwapWorker(exec *executor.Executor) *SwapWorker {
	return &SwapWorker{executor: exec}
}

// ProcessTask handles one queued face-swap job. The executor persists the
// terminal outcome itself; an error here only means the record could not be
// driven at all.
func (w *SwapWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		ReferenceID string `json:"reference_id"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	log.Printf("Starting face-swap job: %s", payload.ReferenceID)
	if err := w.executor.Run(ctx, payload.ReferenceID); err != nil {
		log.Printf("Face-swap job %s aborted: %v", payload.ReferenceID, err)
		return err
	}
	return nil
}
