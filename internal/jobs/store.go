package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"posterd/internal/domain"
)

// Update carries a partial mutation of a job record. Nil fields are
// left untouched by the merge.
type Update struct {
	Status     *domain.JobStatus
	Progress   *int
	Message    *string
	Error      *string
	ResultFile *string
}

// Store owns every job record; all other components see value copies
// and mutate only through Update. A single mutex linearizes mutations,
// and the post-merge snapshot is published through the hub before the
// mutex is released, so observers see snapshots in merge order.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	hub  *Hub

	now   func() time.Time
	newID func() string
}

// StoreOption overrides a Store dependency, mainly for tests.
type StoreOption func(*Store)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDFunc substitutes the identifier generator.
func WithIDFunc(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates a store publishing through the given hub. A nil hub
// gets a private one, which keeps single-purpose tests short.
func NewStore(hub *Hub, opts ...StoreOption) *Store {
	s := &Store{
		jobs:  make(map[string]*domain.Job),
		hub:   hub,
		now:   time.Now,
		newID: uuid.NewString,
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the hub this store publishes through.
func (s *Store) Hub() *Hub { return s.hub }

// Create inserts a new pending record and returns its snapshot.
func (s *Store) Create(req domain.PosterRequest) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	for {
		if _, exists := s.jobs[id]; !exists {
			break
		}
		id = s.newID()
	}
	job := &domain.Job{
		ID:        id,
		Status:    domain.JobStatusPending,
		Request:   req,
		CreatedAt: s.now().UTC(),
	}
	s.jobs[id] = job
	return *job
}

// Get returns a point-in-time copy of the record.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// List returns a snapshot of every record, newest first.
func (s *Store) List() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update merges the set fields into the record and publishes the
// post-merge snapshot. Unknown ids and records already in a terminal
// state are silent no-ops: the orchestrator may race administrative
// deletion, and a duplicate terminal signal must not regress the
// record. The first terminal transition stamps CompletedAt.
func (s *Store) Update(id string, upd Update) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	if job.Status.Terminal() {
		return *job, false
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.Message != nil {
		job.Message = *upd.Message
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.ResultFile != nil {
		job.ResultFile = *upd.ResultFile
	}
	if job.Status.Terminal() && job.CompletedAt == nil {
		done := s.now().UTC()
		job.CompletedAt = &done
	}
	snap := *job
	s.hub.Publish(id, snap)
	return snap, true
}

// Delete removes the record and ends any remaining observer streams.
// Subsequent Get/Update for the id behave as not-found.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.hub.dropJob(id)
	return true
}

// Subscribe registers an observer for the job's future updates. The
// record check and the registration happen under the store mutex, so a
// subscriber either catches a publish or sees its effect in the record,
// never neither. If the record is already terminal the subscription
// yields exactly that one snapshot and is closed.
func (s *Store) Subscribe(id string) (*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	sub := s.hub.Subscribe(id)
	if job.Status.Terminal() {
		sub.deliver(*job)
		s.hub.closeSubs(id, []*Subscription{sub})
	}
	return sub, true
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
