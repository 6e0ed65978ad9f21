package jobs

import (
	"context"
	"fmt"
)

// Dispatch modes.
const (
	ModeInline = "inline"
	ModeQueued = "queued"
)

// Dispatcher exposes one contract for running a generation job: either
// synchronously in the caller's goroutine or through the queue, chosen by
// configuration rather than by the call site. Queued execution is
// at-least-once; handlers carry the idempotency burden either way.
type Dispatcher struct {
	mode  string
	queue *Queue
	exec  Executor
}

func NewDispatcher(mode string, queue *Queue, exec Executor) (*Dispatcher, error) {
	switch mode {
	case ModeInline:
		if exec == nil {
			return nil, fmt.Errorf("inline dispatcher requires an executor")
		}
	case ModeQueued:
		if queue == nil {
			return nil, fmt.Errorf("queued dispatcher requires a queue")
		}
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}
	return &Dispatcher{mode: mode, queue: queue, exec: exec}, nil
}

// DispatchOrRun executes the job inline or enqueues it, returning the job
// snapshot. Inline failures are reported on the returned job, not as an error,
// so both modes look the same to the caller.
func (d *Dispatcher) DispatchOrRun(ctx context.Context, req EnqueueRequest) (*GenerationJob, error) {
	if d.mode == ModeQueued {
		job, _ := d.queue.Enqueue(req)
		return job, nil
	}

	key := req.dedupeKey()
	job := &GenerationJob{
		ID:        "inline-" + key,
		Source:    req.Source,
		DedupeKey: key,
		Payload:   req.Payload,
		Status:    StatusRunning,
	}
	if err := d.exec(ctx, job); err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		return job, nil
	}
	job.Status = StatusSuccess
	return job, nil
}

func (d *Dispatcher) Mode() string {
	return d.mode
}
