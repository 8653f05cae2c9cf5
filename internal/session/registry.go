package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/filter"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Session is one connected client. It owns its filter pipeline; nothing else
// reads or writes that state except through Pipeline's enabled flag.
type Session struct {
	ID         uuid.UUID
	RemoteAddr string
	StartedAt  time.Time
	Pipeline   *filter.Pipeline

	loop atomic.Pointer[Loop]
}

// Info is a point-in-time view of a live session.
type Info struct {
	ID         uuid.UUID `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
	Frames     int64     `json:"frames"`
	Detections int64     `json:"detections"`
	Pinches    int64     `json:"pinches"`
	Smoothing  bool      `json:"smoothing"`
}

// Attach records the loop driving this session so its counters show up in
// Info.
func (s *Session) Attach(l *Loop) {
	s.loop.Store(l)
}

// Stats returns the attached loop's stats, or zero values before Attach.
func (s *Session) Stats() Stats {
	if l := s.loop.Load(); l != nil {
		return l.Stats()
	}
	return Stats{}
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	st := s.Stats()
	return Info{
		ID:         s.ID,
		RemoteAddr: s.RemoteAddr,
		StartedAt:  s.StartedAt,
		Frames:     st.Frames,
		Detections: st.Detections,
		Pinches:    st.Pinches,
		Smoothing:  s.Pipeline.Enabled(),
	}
}

// Registry holds the live sessions keyed by connection identity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	filter   filter.Config
	clock    clock.Clock

	smoothing atomic.Bool
}

// NewRegistry creates an empty registry. Every session it opens gets a fresh
// pipeline built from cfg.
func NewRegistry(cfg filter.Config, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	r := &Registry{
		sessions: make(map[uuid.UUID]*Session),
		filter:   cfg,
		clock:    clk,
	}
	r.smoothing.Store(true)
	return r
}

// Open creates and registers a session for remoteAddr.
func (r *Registry) Open(remoteAddr string) *Session {
	p := filter.NewPipeline(r.filter)
	p.SetEnabled(r.smoothing.Load())

	s := &Session{
		ID:         uuid.New(),
		RemoteAddr: remoteAddr,
		StartedAt:  r.clock.Now(),
		Pipeline:   p,
	}
	r.Add(s)
	return s
}

// Add registers s, replacing any session with the same ID.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove unregisters the session and returns it.
func (r *Registry) Remove(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Get looks up a live session.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the live sessions ordered by start time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetSmoothingDefault sets whether new sessions start with smoothing on.
// Live sessions keep their current setting.
func (r *Registry) SetSmoothingDefault(enabled bool) {
	r.smoothing.Store(enabled)
}

// SmoothingDefault reports the smoothing state new sessions start with.
func (r *Registry) SmoothingDefault() bool {
	return r.smoothing.Load()
}
