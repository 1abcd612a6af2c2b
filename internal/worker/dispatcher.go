// Package worker bounds how many document conversions run at once. Converting
// a large office file is the one expensive operation in the service; the pool
// keeps a traffic burst from forking an unbounded number of converter
// processes.
package worker

import (
	"errors"
	"time"
)

// ErrBusy is returned when the job queue is full.
var ErrBusy = errors.New("conversion queue is full")

// Job is one unit of work. A nil Task is the stop sentinel used internally to
// retire idle workers.
type Job struct {
	Task func()
}

type Config struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Dispatcher feeds queued jobs to the worker pool in arrival order.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	d := &Dispatcher{
		pool:     newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		jobQueue: make(chan Job, cfg.QueueSize),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for job := range d.jobQueue {
		ch := d.pool.acquire()
		ch <- job
	}
}

// Submit enqueues a job without blocking. ErrBusy means the caller should
// shed load rather than wait.
func (d *Dispatcher) Submit(job Job) error {
	if job.Task == nil {
		return errors.New("job task is required")
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrBusy
	}
}
