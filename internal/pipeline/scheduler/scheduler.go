package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kowsik11/abhivan/internal/pipeline/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

type Runner interface {
	Run(ctx context.Context, req usecase.RunRequest) (*usecase.RunResult, error)
}

// PollScheduler runs the pipeline for one user on a fixed interval.
type PollScheduler struct {
	runner   Runner
	request  usecase.RunRequest
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// OnResult, when set, sees every completed run.
	OnResult func(*usecase.RunResult, error)
}

func NewPollScheduler(runner Runner, request usecase.RunRequest, interval time.Duration) *PollScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PollScheduler{
		runner:   runner,
		request:  request,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the poll loop. The first run happens immediately.
func (s *PollScheduler) Start(ctx context.Context) {
	log.Printf("[Scheduler] Polling for user %s every %s", s.request.UserID, s.interval)

	go func() {
		defer close(s.done)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-s.stopChan:
				cancel()
			case <-runCtx.Done():
			}
		}()

		s.poll(runCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.poll(runCtx)
			case <-runCtx.Done():
				log.Println("[Scheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop, cancelling an in-flight run, and waits for it to exit.
func (s *PollScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

// Done is closed once the loop has exited.
func (s *PollScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *PollScheduler) poll(ctx context.Context) {
	result, err := s.runner.Run(ctx, s.request)
	switch {
	case errors.Is(err, apperr.ErrRunInProgress):
		log.Printf("[Scheduler] Previous run for user %s still in progress, skipping", s.request.UserID)
		return
	case err != nil && ctx.Err() == nil:
		log.Printf("[Scheduler] Run failed for user %s: %v", s.request.UserID, err)
	case result != nil:
		log.Printf("[Scheduler] Run %s: fetched=%d processed=%d failed=%d", result.RunID, result.Fetched, result.Processed, result.Failed)
	}
	if s.OnResult != nil {
		s.OnResult(result, err)
	}
}
