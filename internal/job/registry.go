package job

import (
	"sync"
	"time"

	"github.com/penguinblur/penguinblur-api/internal/media"
	"github.com/penguinblur/penguinblur-api/internal/notify"
	"github.com/penguinblur/penguinblur-api/internal/vision"
)

// Publisher receives lifecycle events emitted by registry mutations.
// *notify.Hub satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(event notify.Event)
}

// noopPublisher drops all events.
type noopPublisher struct{}

func (noopPublisher) Publish(notify.Event) {}

// Registry is the single source of truth for in-flight jobs. Every
// mutation is a whole-record replace under one mutex, and reads return
// value copies, so no caller can observe a torn record or mutate shared
// state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
	pub  Publisher
	now  func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the registry's time source, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry. A nil publisher disables events.
func NewRegistry(pub Publisher, opts ...RegistryOption) *Registry {
	if pub == nil {
		pub = noopPublisher{}
	}
	r := &Registry{
		jobs: make(map[string]Job),
		pub:  pub,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit inserts a new record keyed by its id and emits a created event.
// Returns ErrDuplicateJob if the id is already present.
func (r *Registry) Admit(j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return ErrDuplicateJob
	}
	j.UpdatedAt = r.now()
	r.jobs[j.ID] = j

	r.publishLocked(notify.EventCreated, j, "")
	return nil
}

// Get returns a copy of the current record. Jobs past their expiry are
// reported ErrJobNotFound even before the reaper sweeps them.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok || j.Expired(r.now()) {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

// List returns a point-in-time snapshot of all records, expired ones
// included; the reaper and monitoring endpoints rely on seeing those.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}

// MarkStarted records that an orchestration run was launched with the
// given parameters. Returns ErrAlreadyProcessing if a run was launched
// before, ErrInvalidTransition if the job is already terminal.
func (r *Registry) MarkStarted(id string, intensity media.BlurIntensity, mode vision.Mode) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.Expired(r.now()) {
		return Job{}, ErrJobNotFound
	}
	if j.Started {
		return Job{}, ErrAlreadyProcessing
	}
	if j.Status.IsTerminal() {
		return Job{}, ErrInvalidTransition
	}

	j.Started = true
	j.BlurIntensity = intensity
	j.DetectionMode = mode
	j.UpdatedAt = r.now()
	r.jobs[id] = j

	r.publishLocked(notify.EventStatusChanged, j, "processing started")
	return j, nil
}

// SetDetected records the detection milestone: face count plus the fixed
// detection share of overall progress.
func (r *Registry) SetDetected(id string, faces int, progress int, message string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		return Job{}, ErrInvalidTransition
	}

	j.FaceCount = faces
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = r.now()
	r.jobs[id] = j

	r.publishLocked(notify.EventStatusChanged, j, message)
	return j, nil
}

// SetProgress advances the job's progress. Lower or equal values are
// ignored so observed progress is monotone; updates on terminal or removed
// jobs are rejected.
func (r *Registry) SetProgress(id string, progress int) (Job, error) {
	if progress > 100 {
		progress = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		return Job{}, ErrInvalidTransition
	}
	if progress <= j.Progress {
		return j, nil
	}

	j.Progress = progress
	j.UpdatedAt = r.now()
	r.jobs[id] = j

	r.publishLocked(notify.EventStatusChanged, j, "")
	return j, nil
}

// StatusUpdate carries the optional fields of a terminal transition.
type StatusUpdate struct {
	// OutputPath is required for completed transitions.
	OutputPath string
	// ResultURL and MirrorKey are set when the output was mirrored.
	ResultURL string
	MirrorKey string
	// Reason and Message describe failed transitions.
	Reason  FailReason
	Message string
}

// UpdateStatus atomically applies a state transition and emits a
// status-changed event with a snapshot of the new record. Transitions out
// of terminal states return ErrInvalidTransition; once a job is failed
// (cancelled included) no late success can overwrite it.
func (r *Registry) UpdateStatus(id string, status Status, upd StatusUpdate) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if !canTransition(j.Status, status) {
		return Job{}, ErrInvalidTransition
	}

	j.Status = status
	switch status {
	case StatusCompleted:
		j.OutputPath = upd.OutputPath
		j.ResultURL = upd.ResultURL
		j.MirrorKey = upd.MirrorKey
		j.Progress = 100
	case StatusFailed:
		j.Reason = upd.Reason
		j.Error = upd.Message
	}
	j.UpdatedAt = r.now()
	r.jobs[id] = j

	r.publishLocked(notify.EventStatusChanged, j, upd.Message)
	return j, nil
}

// Remove deletes the record and returns its last state for file cleanup.
// A second removal returns ErrJobNotFound, which callers treat as success.
func (r *Registry) Remove(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	delete(r.jobs, id)

	r.publishLocked(notify.EventRemoved, j, "")
	return j, nil
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// publishLocked emits an event while holding the registry mutex. The hub's
// publication path is non-blocking, so this never stalls a mutation, and
// holding the lock keeps per-job event order aligned with mutation order.
func (r *Registry) publishLocked(eventType notify.EventType, j Job, message string) {
	r.pub.Publish(notify.Event{
		Type:      eventType,
		JobID:     j.ID,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Message:   message,
		Timestamp: r.now().UTC(),
	})
}
