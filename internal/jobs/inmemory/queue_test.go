package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nmorozov/kopilka/internal/jobs"
)

func TestQueue_PublishAndProcess(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var mu sync.Mutex
	processed := make(map[string]bool)
	done := make(chan struct{}, 3)

	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		processed[job.GetID()] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		job := &jobs.ExtractReceiptJob{
			UserID:   "user-1",
			GCSURI:   "gs://bucket/receipts/user-1/r.jpg",
			MimeType: "image/jpeg",
		}
		if err := q.PublishExtractReceipt(ctx, job); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if job.JobID == "" {
			t.Error("Publish did not assign a job ID")
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 3 {
		t.Errorf("processed %d jobs, want 3", len(processed))
	}
}

func TestQueue_FailedJobRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ExtractReceiptJob{
		UserID:   "user-1",
		GCSURI:   "gs://bucket/receipts/user-1/r.jpg",
		MimeType: "image/jpeg",
	}
	if err := q.PublishExtractReceipt(ctx, job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := q.PublishExtractReceipt(context.Background(), &jobs.ExtractReceiptJob{UserID: "u"})
	if err == nil {
		t.Error("Publish on closed queue succeeded, want error")
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.ExtractReceiptJob{
		JobID:  "job-1",
		UserID: "user-1",
		Status: jobs.JobStatusPending,
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	// Mutating the original must not affect the stored copy.
	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	if _, err := store.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob(missing) succeeded, want error")
	}
}

func TestStore_ListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, j := range []*jobs.ExtractReceiptJob{
		{JobID: "a", UserID: "user-1", Status: jobs.JobStatusPending},
		{JobID: "b", UserID: "user-1", Status: jobs.JobStatusCompleted},
		{JobID: "c", UserID: "user-2", Status: jobs.JobStatusPending},
	} {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	byUser, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("user-1 jobs = %d, want 2", len(byUser))
	}

	pending, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending jobs = %d, want 2", len(pending))
	}
}
