package runtime

import (
	"context"
	"time"

	"cricket-auction/internal/auction"
	"cricket-auction/internal/ledger"

	"github.com/rs/zerolog/log"
)

type sinkKind int

const (
	sinkOutcome sinkKind = iota
	sinkStatus
	sinkRegistration
)

type sinkJob struct {
	kind    sinkKind
	outcome auction.ItemResolved
	status  auction.SessionStatus
	team    ledger.Team
}

func (j sinkJob) run(ctx context.Context, sessionID string, s ResultSink) error {
	switch j.kind {
	case sinkOutcome:
		return s.RecordOutcome(ctx, j.outcome)
	case sinkStatus:
		return s.RecordSessionStatus(ctx, sessionID, j.status)
	default:
		return s.RecordRegistration(ctx, sessionID, j.team)
	}
}

func (j sinkJob) name() string {
	switch j.kind {
	case sinkOutcome:
		return "outcome"
	case sinkStatus:
		return "status"
	default:
		return "registration"
	}
}

func (rt *sessionRuntime) enqueueStatus(status auction.SessionStatus) {
	rt.enqueue(sinkJob{kind: sinkStatus, status: status})
}

// mustLand reports whether losing the job would leave the stored session
// behind the engine: outcomes and the final status.
func (j sinkJob) mustLand() bool {
	return j.kind == sinkOutcome || (j.kind == sinkStatus && j.status == auction.SessionCompleted)
}

// enqueue drops other jobs when the queue is full. Outcomes and the
// completed status wait up to the sink timeout for room first.
func (rt *sessionRuntime) enqueue(job sinkJob) {
	select {
	case rt.sinkJobs <- job:
		return
	default:
	}
	if job.mustLand() {
		metricSinkBackpressure.Add(1)
		wait := time.NewTimer(rt.opts.SinkTimeout)
		defer wait.Stop()
		select {
		case rt.sinkJobs <- job:
			return
		case <-wait.C:
		}
	}
	metricSinkDropped.Add(1)
	log.Error().Str("session_id", rt.id).Str("job", job.name()).Msg("result sink queue full, dropping")
}

// runSinks delivers jobs in order so a session's status never regresses in
// the sinks.
func (rt *sessionRuntime) runSinks() {
	defer close(rt.sinksDone)
	for job := range rt.sinkJobs {
		for _, s := range rt.coord.sinkList() {
			rt.deliver(job, s)
		}
	}
}

func (rt *sessionRuntime) deliver(job sinkJob, s ResultSink) {
	var err error
	for attempt := 0; attempt < rt.opts.SinkRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(rt.opts.SinkRetryBase * time.Duration(1<<(attempt-1)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), rt.opts.SinkTimeout)
		err = job.run(ctx, rt.id, s)
		cancel()
		if err == nil {
			return
		}
	}
	metricSinkErrors.Add(1)
	log.Error().
		Err(err).
		Str("session_id", rt.id).
		Str("job", job.name()).
		Int("attempts", rt.opts.SinkRetries).
		Msg("result sink failed")
}
