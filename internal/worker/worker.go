package worker

type poolWorker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool) *poolWorker {
	return &poolWorker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *poolWorker) start() {
	go func() {
		// Register as idle before accepting work so acquire can find us.
		w.pool.release(w.jobChannel)
		for job := range w.jobChannel {
			if job.Task == nil {
				w.pool.retire(w.jobChannel)
				return
			}
			job.Task()
			w.pool.release(w.jobChannel)
		}
	}()
}
