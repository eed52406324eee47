package resultpush

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// retryQueue re-enqueues a job after a delay measured on the manager clock.
type retryQueue struct {
	clock clockwork.Clock
	out   chan<- pushJob
	done  <-chan struct{}
}

func newRetryQueue(clock clockwork.Clock, out chan<- pushJob, done <-chan struct{}) *retryQueue {
	return &retryQueue{clock: clock, out: out, done: done}
}

func (q *retryQueue) Enqueue(job pushJob, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	q.clock.AfterFunc(delay, func() {
		select {
		case <-q.done:
		case q.out <- job:
			metricPushQueueLen.Set(int64(len(q.out)))
		}
	})
}
