package download

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/songbot/internal/catalog"
	"github.com/m3rciful/songbot/internal/journal"
)

// State is the lifecycle step of a Job.
type State string

// Job states.
const (
	StatePending   State = journal.StatePending
	StateRunning   State = journal.StateRunning
	StateSucceeded State = journal.StateSucceeded
	StateFailed    State = journal.StateFailed
)

// Request asks for one download.
type Request struct {
	UserID int64
	Query  string
	Format catalog.Format
}

// Job is the handle of a submitted download. Done is closed exactly once,
// after the result is final and recorded.
type Job struct {
	ID      string
	Request Request
	// CredentialsErr is non-nil when the cookies file was missing at submit time.
	CredentialsErr error

	stem      string
	createdAt time.Time
	done      chan struct{}

	mu    sync.Mutex
	state State
	path  string
	size  int64
	err   error
}

func newJob(id string, req Request, stem string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Request:   req,
		stem:      stem,
		createdAt: now,
		done:      make(chan struct{}),
		state:     StatePending,
	}
}

// Done is closed when the job has succeeded or failed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// State reports the current lifecycle step.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Size is the size in bytes of the produced file, 0 until success.
func (j *Job) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (string, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result returns the outcome; it is only meaningful after Done is closed.
func (j *Job) Result() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path, j.err
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) finish(path string, size int64, err error) {
	j.mu.Lock()
	if err != nil {
		j.state = StateFailed
		j.path = ""
		j.size = 0
		j.err = err
	} else {
		j.state = StateSucceeded
		j.path = path
		j.size = size
	}
	j.mu.Unlock()
}

func (j *Job) entry(now time.Time) journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := journal.Entry{
		JobID:     j.ID,
		UserID:    j.Request.UserID,
		Query:     j.Request.Query,
		Format:    string(j.Request.Format),
		State:     string(j.state),
		SizeBytes: j.size,
		CreatedAt: j.createdAt,
		UpdatedAt: now,
	}
	if j.err != nil {
		e.Error = j.err.Error()
	}
	return e
}
