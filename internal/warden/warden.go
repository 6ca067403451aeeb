// Package warden tracks in-flight request/response correlation: one Job per
// outgoing request-with-reply, demultiplexed by correlation token as agent
// replies arrive, collating results until the target set is exhausted or
// the job is cancelled.
//
// Grounded on the teacher's core/mdp/persistence.go RequestManager/
// PersistenceStore create-retrieve-delete-on-completion lifecycle,
// generalized from "HTTP-ish request persistence for retry" to "in-flight
// reply correlation."
package warden

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/mdperr"
	"github.com/geoffjay/plantd-mapper/internal/metrics"
)

// State is a job's position in its lifecycle.
type State string

// Job lifecycle states; both Completed and Cancelled are sinks (§4.5).
const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// OnComplete is invoked exactly once per job, either on full collation or
// explicit cancel, with a snapshot of whatever results were collected.
type OnComplete func(results map[envelope.Identity][]byte)

// Job is the warden's record of one in-flight request-with-reply.
type Job struct {
	Token      string
	Targets    []envelope.Identity
	Pending    map[envelope.Identity]struct{}
	Results    map[envelope.Identity][]byte
	State      State
	CreatedAt  time.Time
	onComplete OnComplete
}

// Warden owns the job table exclusively; like the cluster registry it
// assumes single-threaded access from the mapper's dispatch loop (§5).
type Warden struct {
	jobs map[string]*Job
}

// New creates an empty warden.
func New() *Warden {
	return &Warden{jobs: make(map[string]*Job)}
}

// NewJob registers a job under request.Token, capturing the target set.
// Fails with mdperr.ErrDuplicateToken if the token already has a live job.
func (w *Warden) NewJob(token string, targets []envelope.Identity, onComplete OnComplete) (*Job, error) {
	if _, exists := w.jobs[token]; exists {
		return nil, mdperr.NewDuplicateToken(token)
	}

	pending := make(map[envelope.Identity]struct{}, len(targets))
	for _, t := range targets {
		pending[t] = struct{}{}
	}

	job := &Job{
		Token:      token,
		Targets:    append([]envelope.Identity(nil), targets...),
		Pending:    pending,
		Results:    make(map[envelope.Identity][]byte),
		State:      StatePending,
		CreatedAt:  time.Now(),
		onComplete: onComplete,
	}
	w.jobs[token] = job

	metrics.JobsStarted.Inc()
	log.WithFields(log.Fields{
		"token":   token,
		"targets": targets,
	}).Debug("job registered")

	return job, nil
}

// Process handles one incoming reply envelope. An unknown token is silently
// dropped at debug level (§7 UnknownToken) — the job may have been
// cancelled or already completed. A duplicate reply from an identity that
// already answered overwrites the prior result without decrementing
// pending further (§4.2).
func (w *Warden) Process(reply envelope.Reply) {
	job, ok := w.jobs[reply.Token]
	if !ok {
		log.WithField("token", reply.Token).Debug("reply for unknown token dropped")
		return
	}
	if job.State != StatePending {
		return
	}

	job.Results[reply.From] = reply.Payload
	delete(job.Pending, reply.From)

	if len(job.Pending) == 0 {
		w.complete(job)
	}
}

// Cancel transitions the job to cancelled and invokes its completion
// callback with whatever partial results exist. Subsequent replies for the
// token are dropped because the job has already left the table.
func (w *Warden) Cancel(token string) bool {
	job, ok := w.jobs[token]
	if !ok {
		return false
	}
	if job.State != StatePending {
		return false
	}

	job.State = StateCancelled
	delete(w.jobs, token)

	metrics.JobsCancelled.Inc()
	log.WithField("token", token).Info("job cancelled")

	if job.onComplete != nil {
		job.onComplete(job.Results)
	}
	return true
}

// Expire cancels every pending job older than deadline, mirroring the
// optional reaper sweep described in §5. Not required by the core
// invariants; offered for callers that want a bounded job lifetime.
func (w *Warden) Expire(now time.Time, deadline time.Duration) []string {
	var expired []string
	cutoff := now.Add(-deadline)

	for token, job := range w.jobs {
		if job.State == StatePending && job.CreatedAt.Before(cutoff) {
			expired = append(expired, token)
		}
	}
	for _, token := range expired {
		w.Cancel(token)
	}
	return expired
}

// Job looks up a live job by token, for tests and inspection.
func (w *Warden) Job(token string) (*Job, bool) {
	j, ok := w.jobs[token]
	return j, ok
}

// Len reports the number of in-flight jobs.
func (w *Warden) Len() int {
	return len(w.jobs)
}

func (w *Warden) complete(job *Job) {
	job.State = StateCompleted
	delete(w.jobs, job.Token)

	metrics.JobsCompleted.Inc()
	log.WithField("token", job.Token).Debug("job completed")

	if job.onComplete != nil {
		job.onComplete(job.Results)
	}
}
