package jobs

import (
	"sync"

	"posterd/internal/domain"
)

// subscriberBuffer is the per-observer channel depth. A consumer that
// falls further behind than this loses intermediate snapshots; the
// terminal snapshot still ends the stream.
const subscriberBuffer = 16

// Subscription is one observer's handle on a job's update stream. The
// channel yields post-merge snapshots until the job reaches a terminal
// state or Cancel is called, whichever comes first.
type Subscription struct {
	id    uint64
	jobID string
	ch    chan domain.Job

	hub *Hub

	mu     sync.Mutex
	closed bool
}

// Updates returns the snapshot stream. The channel is closed after the
// terminal snapshot has been delivered or once Cancel is called.
func (s *Subscription) Updates() <-chan domain.Job { return s.ch }

// JobID returns the job this subscription observes.
func (s *Subscription) JobID() string { return s.jobID }

// Cancel deregisters the subscription and closes its channel. Safe to
// call multiple times and concurrently with a broadcast.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.hub.remove(s)
	s.close()
}

// deliver hands a snapshot to the observer without blocking the caller.
// A full buffer drops the snapshot for this observer only.
func (s *Subscription) deliver(snap domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- snap:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Hub fans job snapshots out to per-job observers. Publishing never
// blocks the mutator: every observer owns a buffered channel and a slow
// consumer drops intermediate snapshots rather than stalling the store
// or its peers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*Subscription)}
}

// Subscribe registers an observer for the given job. Callers that need
// the already-terminal catch-up go through the store's Subscribe, which
// checks the record and registers atomically.
func (h *Hub) Subscribe(jobID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:    h.nextID,
		jobID: jobID,
		ch:    make(chan domain.Job, subscriberBuffer),
		hub:   h,
	}
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[uint64]*Subscription)
		h.subs[jobID] = set
	}
	set[sub.id] = sub
	return sub
}

// Publish delivers the snapshot to every current observer of the job
// and returns how many received it. A terminal snapshot ends each
// receiving observer's stream after delivery. Zero observers is the
// normal case for polling clients.
func (h *Hub) Publish(jobID string, snap domain.Job) int {
	h.mu.RLock()
	set := h.subs[jobID]
	// Copy targets so sends happen outside the lock.
	targets := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		if sub.deliver(snap) {
			delivered++
		}
	}

	if snap.Status.Terminal() {
		h.closeSubs(jobID, targets)
	}
	return delivered
}

// Observers returns the number of registered observers for a job.
func (h *Hub) Observers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.jobID]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(h.subs, sub.jobID)
	}
}

// closeSubs deregisters and closes exactly the given observers. An
// observer registered after the target copy was taken is untouched; it
// gets the terminal catch-up from the store instead.
func (h *Hub) closeSubs(jobID string, targets []*Subscription) {
	h.mu.Lock()
	set := h.subs[jobID]
	for _, sub := range targets {
		delete(set, sub.id)
	}
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
	h.mu.Unlock()
	for _, sub := range targets {
		sub.close()
	}
}

// dropJob closes every remaining observer for the job without a final
// snapshot. Used when a record is removed administratively.
func (h *Hub) dropJob(jobID string) {
	h.mu.Lock()
	set := h.subs[jobID]
	delete(h.subs, jobID)
	h.mu.Unlock()
	for _, sub := range set {
		sub.close()
	}
}
