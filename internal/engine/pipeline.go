package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/classtrack/chime/internal/metrics"
	"github.com/classtrack/chime/internal/push"
)

// Pipeline fans a tick's jobs out to the push transport with bounded
// concurrency, so one slow endpoint cannot delay the rest of the tick and a
// large tick cannot open an unbounded number of outbound connections.
// PermanentlyGone results are forwarded to the reaper.
type Pipeline struct {
	sender  push.Sender
	reaper  *Reaper
	workers int
	logger  *zap.Logger
}

// NewPipeline creates a dispatch pipeline with the given worker count.
func NewPipeline(sender push.Sender, reaper *Reaper, workers int, logger *zap.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		sender:  sender,
		reaper:  reaper,
		workers: workers,
		logger:  logger,
	}
}

// Dispatch sends every job and blocks until all are done. Order between jobs
// is not guaranteed. Failed jobs are logged and dropped; there is no retry.
func (p *Pipeline) Dispatch(ctx context.Context, scheduler string, jobs []Job) {
	if len(jobs) == 0 {
		return
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	ch := make(chan Job, len(jobs))
	for _, job := range jobs {
		ch <- job
	}
	close(ch)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				p.deliver(ctx, scheduler, job)
			}
		}()
	}
	wg.Wait()
}

func (p *Pipeline) deliver(ctx context.Context, scheduler string, job Job) {
	res := p.sender.Send(ctx, &job.Sub, job.Payload)
	metrics.RecordDelivery(scheduler, res.Status.String())

	switch res.Status {
	case push.Delivered:
		p.logger.Debug("push delivered",
			zap.String("scheduler", scheduler),
			zap.String("endpoint", truncate(job.Sub.Endpoint)),
		)
	case push.TransientFailure:
		// Logged and dropped: the next weekly occurrence is the retry.
		p.logger.Warn("push delivery failed",
			zap.Error(res.Err),
			zap.String("scheduler", scheduler),
			zap.String("endpoint", truncate(job.Sub.Endpoint)),
		)
	case push.PermanentlyGone:
		p.reaper.Reap(ctx, job.Sub.Endpoint)
	}
}
