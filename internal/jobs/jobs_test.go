package jobs

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
)

func TestEnqueueAndComplete(t *testing.T) {
	store := storage.NewMemory()
	svc := NewService(store, nil)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	job, err := svc.EnqueueTranslation(ctx, "ms-1", "hi")
	if err != nil {
		t.Fatalf("EnqueueTranslation failed: %v", err)
	}
	if job.Status != model.JobQueued {
		t.Errorf("fresh job status = %v", job.Status)
	}
	if job.Payload["manuscriptId"] != "ms-1" || job.Payload["targetLanguage"] != "hi" {
		t.Errorf("payload = %v", job.Payload)
	}

	// The worker completes the job shortly after.
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := svc.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status == model.JobCompleted {
			if got.CompletedAt == nil {
				t.Error("completed job missing timestamp")
			}
			if got.Result["targetLanguage"] != "hi" {
				t.Errorf("result = %v", got.Result)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status = %v", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEnqueueValidation(t *testing.T) {
	svc := NewService(storage.NewMemory(), nil)
	defer svc.Close()

	_, err := svc.EnqueueTranslation(context.Background(), "", "hi")
	appErr, ok := err.(*apperrors.Error)
	if !ok || appErr.Code != apperrors.M360_VALIDATION {
		t.Errorf("missing manuscript: got %v", err)
	}

	_, err = svc.EnqueueTranslation(context.Background(), "ms-1", "")
	appErr, ok = err.(*apperrors.Error)
	if !ok || appErr.Code != apperrors.M360_VALIDATION {
		t.Errorf("missing language: got %v", err)
	}
}

func TestGetMissingJob(t *testing.T) {
	svc := NewService(storage.NewMemory(), nil)
	defer svc.Close()

	_, err := svc.Get(context.Background(), "missing")
	appErr, ok := err.(*apperrors.Error)
	if !ok || appErr.Code != apperrors.M360_NOT_FOUND {
		t.Errorf("got %v, want M360_NOT_FOUND", err)
	}
}
