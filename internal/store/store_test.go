package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/faceswaplab/api/internal/model"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "jobs.sqlite3"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "job_abc123"); err != nil {
		t.Fatalf("create: %v", err)
	}

	j, err := s.Get(ctx, "job_abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Status != model.JobStatusPending {
		t.Errorf("expected pending, got %s", j.Status)
	}
	if j.CreatedAtMs == 0 || j.UpdatedAtMs == 0 {
		t.Error("expected timestamps to be set")
	}
	if j.ResultPath != nil || j.Error != nil || j.ProcessingMs != nil {
		t.Error("expected optional fields unset on a fresh record")
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "job_dup"); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(ctx, "job_dup")
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "job_nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusUnknown(t *testing.T) {
	s := newTestStore(t)

	err := s.SetStatus(context.Background(), "job_nope", model.JobStatusProcessing, Update{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "job_life"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.SetStatus(ctx, "job_life", model.JobStatusProcessing, Update{}); err != nil {
		t.Fatalf("set processing: %v", err)
	}
	j, _ := s.Get(ctx, "job_life")
	if j.Status != model.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", j.Status)
	}
	if j.UpdatedAtMs < j.CreatedAtMs {
		t.Error("updated_at must not precede created_at")
	}

	resultPath := "/data/outputs/job_life.png"
	ms := int64(1234)
	err := s.SetStatus(ctx, "job_life", model.JobStatusCompleted, Update{
		ResultPath:   &resultPath,
		ProcessingMs: &ms,
	})
	if err != nil {
		t.Fatalf("set completed: %v", err)
	}

	j, err = s.Get(ctx, "job_life")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", j.Status)
	}
	if j.ResultPath == nil || *j.ResultPath != resultPath {
		t.Errorf("expected result_path %q, got %v", resultPath, j.ResultPath)
	}
	if j.ProcessingMs == nil || *j.ProcessingMs != ms {
		t.Errorf("expected processing_ms %d, got %v", ms, j.ProcessingMs)
	}
	if j.Error != nil {
		t.Error("error must stay unset on a completed record")
	}
}

func TestTerminalStateIsFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "job_done"); err != nil {
		t.Fatalf("create: %v", err)
	}
	errMsg := "backend exploded"
	if err := s.SetStatus(ctx, "job_done", model.JobStatusFailed, Update{Error: &errMsg}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	err := s.SetStatus(ctx, "job_done", model.JobStatusProcessing, Update{})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}

	j, _ := s.Get(ctx, "job_done")
	if j.Status != model.JobStatusFailed {
		t.Fatalf("terminal record regressed to %s", j.Status)
	}
	if j.Error == nil || *j.Error != errMsg {
		t.Errorf("expected error %q preserved, got %v", errMsg, j.Error)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.sqlite3")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Create(ctx, "job_crash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetStatus(ctx, "job_crash", model.JobStatusProcessing, Update{}); err != nil {
		t.Fatalf("set processing: %v", err)
	}
	s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file on disk: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	j, err := s2.Get(ctx, "job_crash")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if j.Status != model.JobStatusProcessing {
		t.Fatalf("expected processing to survive reopen, got %s", j.Status)
	}
}

func TestConcurrentWritersDistinctJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n*2)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job_c%02d", i)
			if err := s.Create(ctx, id); err != nil {
				errs <- err
				return
			}
			if err := s.SetStatus(ctx, id, model.JobStatusProcessing, Update{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write: %v", err)
	}

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job_c%02d", i)
		j, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if j.Status != model.JobStatusProcessing {
			t.Errorf("%s: expected processing, got %s", id, j.Status)
		}
	}
}
