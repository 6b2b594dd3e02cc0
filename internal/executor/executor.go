package executor

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/faceswaplab/api/internal/client"
	"github.com/faceswaplab/api/internal/config"
	"github.com/faceswaplab/api/internal/model"
	"github.com/faceswaplab/api/internal/storage"
	"github.com/faceswaplab/api/internal/store"
)

// Executor drives a single job through processing to a terminal state. The
// retry budget applies to the provider call only; validation and persistence
// are deterministic and never retried.
type Executor struct {
	store          *store.JobStore
	provider       client.SwapProvider
	artifacts      storage.ArtifactStore
	layout         *storage.Layout
	retry          config.RetryConfig
	attemptTimeout time.Duration
}

func New(jobStore *store.JobStore, provider client.SwapProvider, artifacts storage.ArtifactStore,
	layout *storage.Layout, retry config.RetryConfig, attemptTimeout time.Duration) *Executor {
	return &Executor{
		store:          jobStore,
		provider:       provider,
		artifacts:      artifacts,
		layout:         layout,
		retry:          retry,
		attemptTimeout: attemptTimeout,
	}
}

// Run executes one job. Whatever happens inside, the record ends in a
// terminal state; a job is never left stuck in processing.
func (e *Executor) Run(ctx context.Context, referenceID string) error {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[job %s] panic during execution: %v", referenceID, r)
			e.fail(referenceID, fmt.Sprintf("internal error: %v", r), elapsedMs(start))
		}
	}()

	if err := e.store.SetStatus(ctx, referenceID, model.JobStatusProcessing, store.Update{}); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	log.Printf("[job %s] started: status -> processing", referenceID)

	base, selfie, err := e.layout.ReadInputs(referenceID)
	if err != nil {
		e.fail(referenceID, err.Error(), elapsedMs(start))
		return nil
	}

	result := e.swapWithRetry(ctx, referenceID, base, selfie)

	switch result.Outcome {
	case client.SwapSuccess:
		resultPath, err := e.artifacts.SaveOutput(ctx, referenceID, result.Image, result.MimeType)
		if err != nil {
			e.fail(referenceID, err.Error(), elapsedMs(start))
			return nil
		}
		ms := elapsedMs(start)
		err = e.store.SetStatus(context.Background(), referenceID, model.JobStatusCompleted, store.Update{
			ResultPath:   &resultPath,
			ProcessingMs: &ms,
		})
		if err != nil {
			return fmt.Errorf("failed to mark job completed: %w", err)
		}
		log.Printf("[job %s] completed in %d ms output=%s", referenceID, ms, resultPath)

	case client.SwapNoFace:
		e.fail(referenceID, result.Message, elapsedMs(start))

	case client.SwapTransient:
		e.fail(referenceID, fmt.Sprintf("giving up after %d attempts: %s", e.retry.MaxAttempts, result.Message), elapsedMs(start))

	default:
		e.fail(referenceID, result.Message, elapsedMs(start))
	}

	return nil
}

// swapWithRetry calls the provider up to MaxAttempts times, backing off
// between attempts on transient failures only. The returned result is either
// non-transient or the last transient failure after the budget is spent.
func (e *Executor) swapWithRetry(ctx context.Context, referenceID string, base, selfie []byte) *client.SwapResult {
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		result, err := e.provider.Swap(attemptCtx, base, selfie)
		cancel()

		if err != nil {
			// Unclassified provider error: fatal, no retry.
			return &client.SwapResult{Outcome: client.SwapFatal, Message: err.Error()}
		}

		if result.Outcome != client.SwapTransient {
			return result
		}
		if attempt >= e.retry.MaxAttempts {
			log.Printf("[job %s] attempt %d/%d transient, budget exhausted: %s",
				referenceID, attempt, e.retry.MaxAttempts, result.Message)
			return result
		}

		delay := backoffDelay(attempt, e.retry.BaseDelay, e.retry.MaxDelay)
		if result.RetryAfter > 0 {
			delay = result.RetryAfter
		}
		log.Printf("[job %s] attempt %d/%d transient (%s), retrying in %s",
			referenceID, attempt, e.retry.MaxAttempts, result.Message, delay)

		select {
		case <-ctx.Done():
			return &client.SwapResult{Outcome: client.SwapFatal, Message: "execution canceled: " + ctx.Err().Error()}
		case <-time.After(delay):
		}
	}
}

// fail writes the terminal failed state. A fresh context is used so the write
// happens even when the run context is already canceled.
func (e *Executor) fail(referenceID, errMsg string, processingMs int64) {
	err := e.store.SetStatus(context.Background(), referenceID, model.JobStatusFailed, store.Update{
		Error:        &errMsg,
		ProcessingMs: &processingMs,
	})
	if err != nil {
		log.Printf("[job %s] failed to mark job failed: %v", referenceID, err)
		return
	}
	log.Printf("[job %s] failed after %d ms: %s", referenceID, processingMs, errMsg)
}

// backoffDelay is base * 2^(attempt-1), capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if max > 0 && d > max {
		return max
	}
	return d
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
