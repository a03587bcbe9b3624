package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"challengeEngineAPI/internal/fasting"
)

type SideEffectKind string

const SideEffectFastingActivation SideEffectKind = "fasting_activation"

type SideEffectJob struct {
	Kind        SideEffectKind
	UserID      string
	FastingType string
}

// SideEffectDispatcher runs collaborator calls triggered by completions. Failures are
// logged and counted, never reported back to the completion that caused them.
type SideEffectDispatcher struct {
	fasting  fasting.Activator
	log      *zap.Logger
	workers  int
	jobQueue chan *SideEffectJob
	timeout  time.Duration

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewSideEffectDispatcher starts workers goroutines. With zero workers jobs run inline
// on the caller's goroutine.
func NewSideEffectDispatcher(activator fasting.Activator, workers, queueSize int, log *zap.Logger) *SideEffectDispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &SideEffectDispatcher{
		fasting: activator,
		log:     log,
		workers: workers,
		timeout: 10 * time.Second,
	}
	if workers > 0 {
		d.jobQueue = make(chan *SideEffectJob, queueSize)
		d.startWorkers()
	}
	return d
}

func (d *SideEffectDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *SideEffectDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobQueue {
		d.processJob(job)
	}
}

func (d *SideEffectDispatcher) processJob(job *SideEffectJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	switch job.Kind {
	case SideEffectFastingActivation:
		err = d.fasting.Activate(ctx, job.UserID, job.FastingType)
	default:
		d.log.Warn("unknown side effect", zap.String("kind", string(job.Kind)))
		return
	}

	if err != nil {
		sideEffectsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
		d.log.Warn("side effect failed",
			zap.String("kind", string(job.Kind)),
			zap.String("user_id", job.UserID),
			zap.Error(err))
		return
	}
	sideEffectsTotal.WithLabelValues(string(job.Kind), "ok").Inc()
}

// Dispatch queues a job. It waits briefly when the queue is full, then drops the job.
func (d *SideEffectDispatcher) Dispatch(job *SideEffectJob) {
	if d.workers == 0 {
		d.processJob(job)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		sideEffectsTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		d.log.Warn("dispatcher stopped, dropping side effect", zap.String("kind", string(job.Kind)))
		return
	}

	select {
	case d.jobQueue <- job:
	case <-time.After(2 * time.Second):
		sideEffectsTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		d.log.Warn("side effect queue full, dropping job",
			zap.String("kind", string(job.Kind)), zap.String("user_id", job.UserID))
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (d *SideEffectDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.jobQueue != nil {
		close(d.jobQueue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("side effect dispatcher stopped")
}
