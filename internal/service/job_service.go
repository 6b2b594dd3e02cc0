package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/faceswaplab/api/internal/client"
	"github.com/faceswaplab/api/internal/imaging"
	"github.com/faceswaplab/api/internal/model"
	"github.com/faceswaplab/api/internal/storage"
	"github.com/faceswaplab/api/internal/store"
)

const TaskTypeFaceSwap = "faceswap:process"

// ErrProviderNotConfigured means the swap backend has no credentials; job
// creation is refused so no job is created that is doomed to fail.
var ErrProviderNotConfigured = errors.New("server misconfigured: swap provider API key not set")

// ValidationError rejects a submission before any record is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// TaskEnqueuer is the slice of asynq.Client the service needs. Tests
// substitute a fake so no queue backend is required.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService accepts new face-swap jobs and answers status queries.
type JobService struct {
	store     *store.JobStore
	enqueuer  TaskEnqueuer
	layout    *storage.Layout
	artifacts storage.ArtifactStore
	validator imaging.Validator
	provider  client.SwapProvider
}

func NewJobService(jobStore *store.JobStore, enqueuer TaskEnqueuer, layout *storage.Layout,
	artifacts storage.ArtifactStore, validator imaging.Validator, provider client.SwapProvider) *JobService {
	return &JobService{
		store:     jobStore,
		enqueuer:  enqueuer,
		layout:    layout,
		artifacts: artifacts,
		validator: validator,
		provider:  provider,
	}
}

// CreateJob validates both images, persists the pending record and inputs,
// schedules background execution and returns immediately. Invalid submissions
// are rejected before any record exists.
func (s *JobService) CreateJob(ctx context.Context, baseImage, selfieImage []byte) (*model.CreateJobResponse, error) {
	if !s.provider.IsConfigured() {
		return nil, ErrProviderNotConfigured
	}

	if err := s.validator.EnsureAllowedImage(baseImage); err != nil {
		return nil, &ValidationError{Field: "base_image", Reason: err.Error()}
	}
	if err := s.validator.EnsureAllowedImage(selfieImage); err != nil {
		return nil, &ValidationError{Field: "selfie", Reason: err.Error()}
	}

	referenceID := NewReferenceID()

	if err := s.store.Create(ctx, referenceID); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}
	log.Printf("[job %s] created", referenceID)

	if err := s.layout.SaveInputs(referenceID, baseImage, selfieImage); err != nil {
		s.failEarly(ctx, referenceID, err)
		return nil, fmt.Errorf("failed to accept uploaded files: %w", err)
	}

	task, err := newFaceSwapTask(referenceID)
	if err != nil {
		s.failEarly(ctx, referenceID, err)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Queue-level retries stay off: the retry contract lives in the executor
	// and is scoped to the provider call.
	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue("faceswap"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.failEarly(ctx, referenceID, err)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	log.Printf("[job %s] background task queued", referenceID)

	return &model.CreateJobResponse{
		ReferenceID: referenceID,
		Status:      model.JobStatusPending,
		Message:     "Face-swap job accepted",
	}, nil
}

// GetJobStatus returns the polled view of a job record.
func (s *JobService) GetJobStatus(ctx context.Context, referenceID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		ReferenceID: job.ReferenceID,
		Status:      job.Status,
	}
	switch job.Status {
	case model.JobStatusCompleted:
		if job.ResultPath != nil {
			url := s.artifacts.ResultURL(*job.ResultPath)
			resp.ResultImageURL = &url
		}
		resp.ProcessingMs = job.ProcessingMs
	case model.JobStatusFailed:
		resp.Error = job.Error
		resp.ProcessingMs = job.ProcessingMs
	}
	return resp, nil
}

// failEarly records a terminal failure for jobs that never reached the
// executor (upload persistence or scheduling broke after the record existed).
func (s *JobService) failEarly(ctx context.Context, referenceID string, cause error) {
	msg := cause.Error()
	if err := s.store.SetStatus(ctx, referenceID, model.JobStatusFailed, store.Update{Error: &msg}); err != nil {
		log.Printf("[job %s] failed to record early failure: %v", referenceID, err)
	}
}

// NewReferenceID returns an opaque collision-resistant job identifier.
func NewReferenceID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "job_" + hex[:12]
}

func newFaceSwapTask(referenceID string) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]string{"reference_id": referenceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFaceSwap, payload), nil
}
