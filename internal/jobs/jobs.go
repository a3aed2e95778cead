// internal/jobs/jobs.go
// Package jobs provides the asynchronous translation job service. Jobs are
// persisted through the store so their status survives across requests; the
// in-process queue only carries IDs to the worker. Translation itself is a
// placeholder engine that echoes the request back as a completed result.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
)

const (
	queueDepth = 64

	// processingDelay simulates engine latency so clients observe the
	// queued state before completion.
	processingDelay = 100 * time.Millisecond
)

// Service enqueues and tracks translation jobs.
type Service struct {
	store storage.Store
	log   *slog.Logger

	queue chan string
	done  chan struct{}
	once  sync.Once
}

// NewService wires the job service. Call Start to launch the worker.
func NewService(store storage.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		log:   log,
		queue: make(chan string, queueDepth),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. It returns immediately; the worker
// runs until ctx is cancelled or Close is called.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case id := <-s.queue:
				s.process(id)
			}
		}
	}()
}

// Close stops the worker.
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
}

// EnqueueTranslation creates a queued translation job for a manuscript.
func (s *Service) EnqueueTranslation(ctx context.Context, manuscriptID, targetLanguage string) (*model.TranslationJob, error) {
	if manuscriptID == "" {
		return nil, apperrors.New(apperrors.M360_VALIDATION, "manuscriptId is required", "")
	}
	if targetLanguage == "" {
		return nil, apperrors.New(apperrors.M360_VALIDATION, "targetLanguage is required", "")
	}

	job := model.TranslationJob{
		ID:     model.NewID(),
		Type:   "manuscript-translation",
		Status: model.JobQueued,
		Payload: map[string]string{
			"manuscriptId":   manuscriptID,
			"targetLanguage": targetLanguage,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to create job", "")
	}

	select {
	case s.queue <- job.ID:
	default:
		// Queue full: the job stays queued in the store and a later
		// restart can pick it up. Clients still get their job ID.
		s.log.Warn("job queue full", "jobId", job.ID)
	}
	return &job, nil
}

// Get returns a job's current state.
func (s *Service) Get(ctx context.Context, id string) (*model.TranslationJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.M360_NOT_FOUND, "job not found", "")
		}
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "failed to load job", "")
	}
	return job, nil
}

// process completes a single job with the placeholder engine's result.
func (s *Service) process(id string) {
	time.Sleep(processingDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		s.log.Warn("job lookup failed", "jobId", id, "error", err)
		return
	}

	result := map[string]string{
		"manuscriptId":   job.Payload["manuscriptId"],
		"targetLanguage": job.Payload["targetLanguage"],
		"engine":         "mock",
	}
	if err := s.store.CompleteJob(ctx, id, result); err != nil {
		s.log.Warn("job completion failed", "jobId", id, "error", err)
		return
	}
	s.log.Info("translation job completed", "jobId", id)
}
