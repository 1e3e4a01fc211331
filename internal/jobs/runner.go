// Package jobs runs per-user background scans and tracks their progress.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrJobActive is returned when a user starts a job while another one runs.
	ErrJobActive = errors.New("job already active for user")
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool { return s != StatusActive }

const (
	DefaultLogLimit  = 500
	DefaultRetention = time.Hour
	subscriberBuffer = 16
)

// Progress is a point-in-time view of a job.
type Progress struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Percent    int       `json:"percent"`
	Text       string    `json:"text"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Func is the body of a job. It must return promptly once ctx is done.
type Func func(ctx context.Context, r *Reporter) error

// Observer is told when jobs start and finish.
type Observer interface {
	JobStarted(kind string)
	JobFinished(p Progress)
}

type job struct {
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
	logs     []string
	logBase  int
	subs     map[int]chan Progress
	nextSub  int
}

// Runner owns all jobs. The zero value is not usable; call NewRunner.
type Runner struct {
	mu        sync.Mutex
	jobs      map[string]*job
	active    map[string]string
	lifetime  int64
	logLimit  int
	retention time.Duration
	observers []Observer
	now       func() time.Time
}

type Option func(*Runner)

// WithLogLimit bounds the per-job log tail.
func WithLogLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.logLimit = n
		}
	}
}

// WithRetention sets how long finished jobs stay queryable.
func WithRetention(d time.Duration) Option {
	return func(r *Runner) { r.retention = d }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithLifetime seeds the lifetime counter, e.g. from persisted history.
func WithLifetime(n int64) Option {
	return func(r *Runner) { r.lifetime = n }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		jobs:      make(map[string]*job),
		active:    make(map[string]string),
		logLimit:  DefaultLogLimit,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches fn in the background for userID and returns the job ID.
func (r *Runner) Start(parent context.Context, userID, kind string, fn Func) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	r.mu.Lock()
	if id, busy := r.active[userID]; busy {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	r.pruneLocked()

	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	j := &job{
		progress: Progress{
			JobID:     id,
			UserID:    userID,
			Kind:      kind,
			Percent:   5,
			Text:      "Initializing Engine...",
			Status:    StatusActive,
			StartedAt: r.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[int]chan Progress),
	}
	r.jobs[id] = j
	r.active[userID] = id
	r.mu.Unlock()

	for _, o := range r.observers {
		o.JobStarted(kind)
	}
	log.Info().Str("job", id).Str("user", userID).Str("kind", kind).Msg("Job started")

	go r.run(ctx, j, fn)
	return id, nil
}

func (r *Runner) run(ctx context.Context, j *job, fn Func) {
	id := j.progress.JobID
	reporter := &Reporter{runner: r, jobID: id}

	err := safeCall(ctx, fn, reporter)

	r.mu.Lock()
	p := &j.progress
	p.FinishedAt = r.now()
	switch {
	case err == nil:
		r.lifetime++
		p.Percent, p.Text, p.Status = 100, "Analysis Complete", StatusSuccess
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		p.Text, p.Status = "Cancelled", StatusCancelled
	default:
		p.Percent, p.Text, p.Status = 0, "Error Occurred", StatusError
		p.Error = err.Error()
	}
	final := *p
	if r.active[p.UserID] == id {
		delete(r.active, p.UserID)
	}
	for k, ch := range j.subs {
		sendFinal(ch, final)
		close(ch)
		delete(j.subs, k)
	}
	close(j.done)
	r.mu.Unlock()

	j.cancel()
	for _, o := range r.observers {
		o.JobFinished(final)
	}

	ev := log.Info()
	if final.Status == StatusError {
		ev = log.Warn().Err(err)
	}
	ev.Str("job", id).Str("status", string(final.Status)).
		Dur("took", final.FinishedAt.Sub(final.StartedAt)).
		Msg("Job finished")
}

func safeCall(ctx context.Context, fn Func, rep *Reporter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx, rep)
}

// Get returns the current progress of a job.
func (r *Runner) Get(jobID string) (Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return Progress{}, ErrNotFound
	}
	return j.progress, nil
}

// ActiveFor returns the running job of userID, if any.
func (r *Runner) ActiveFor(userID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[userID]
	if !ok {
		return Progress{}, false
	}
	return r.jobs[id].progress, true
}

// Logs returns log lines from index since onwards and the index to pass next
// time. An index past the end restarts from the oldest retained line.
func (r *Runner) Logs(jobID string, since int) ([]string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, 0, ErrNotFound
	}

	total := j.logBase + len(j.logs)
	if since > total {
		since = 0
	}
	start := since - j.logBase
	if start < 0 {
		start = 0
	}
	out := make([]string, len(j.logs)-start)
	copy(out, j.logs[start:])
	return out, total, nil
}

// Cancel asks a running job to stop. Cancelling a finished job is a no-op.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	j.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, jobID string) (Progress, error) {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return Progress{}, ErrNotFound
	}

	select {
	case <-j.done:
		return r.Get(jobID)
	case <-ctx.Done():
		return Progress{}, ctx.Err()
	}
}

// Subscribe streams progress updates. The channel receives the current state
// first and is closed after the final state. Slow readers miss intermediate
// updates but always get the final one. Call the returned func to unsubscribe early.
func (r *Runner) Subscribe(jobID string) (<-chan Progress, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := make(chan Progress, subscriberBuffer)
	ch <- j.progress
	if j.progress.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	key := j.nextSub
	j.nextSub++
	j.subs[key] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := j.subs[key]; ok {
				close(c)
				delete(j.subs, key)
			}
		})
	}
	return ch, unsubscribe, nil
}

// Lifetime is the number of jobs that completed successfully.
func (r *Runner) Lifetime() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifetime
}

// Shutdown cancels every running job and waits for them to finish.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	var running []*job
	for _, id := range r.active {
		running = append(running, r.jobs[id])
	}
	r.mu.Unlock()

	for _, j := range running {
		j.cancel()
	}
	for _, j := range running {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runner) update(jobID string, percent int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.progress.Status.Terminal() {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	j.progress.Percent = percent
	j.progress.Text = text
	r.broadcastLocked(j)
}

func (r *Runner) appendLog(jobID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return
	}
	j.logs = append(j.logs, line)
	if over := len(j.logs) - r.logLimit; over > 0 {
		j.logs = append(j.logs[:0:0], j.logs[over:]...)
		j.logBase += over
	}
}

func (r *Runner) broadcastLocked(j *job) {
	for _, ch := range j.subs {
		select {
		case ch <- j.progress:
		default:
		}
	}
}

// sendFinal delivers p even when the buffer is full by discarding the oldest
// unread update. Senders hold r.mu, so a freed slot stays free.
func sendFinal(ch chan Progress, p Progress) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// pruneLocked drops finished jobs older than the retention window.
func (r *Runner) pruneLocked() {
	if r.retention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.retention)
	for id, j := range r.jobs {
		if j.progress.Status.Terminal() && j.progress.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// Reporter lets a running job publish progress and log lines.
type Reporter struct {
	runner *Runner
	jobID  string
}

// JobID returns the ID of the job being reported on.
func (rep *Reporter) JobID() string { return rep.jobID }

// Update sets the job's percent and status text.
func (rep *Reporter) Update(percent int, text string) {
	if rep == nil {
		return
	}
	rep.runner.update(rep.jobID, percent, text)
}

// Logf appends a line to the job's log tail.
func (rep *Reporter) Logf(format string, args ...interface{}) {
	if rep == nil {
		return
	}
	rep.runner.appendLog(rep.jobID, fmt.Sprintf(format, args...))
}
