package session

import (
	"sort"
	"time"
)

// Registry indexes live sessions by connection id and by IMEI.
type Registry struct {
	nextID uint64
	byID   map[uint64]*Session
	byIMEI map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint64]*Session),
		byIMEI: make(map[string]*Session),
	}
}

// Open creates the session for a new connection.
func (r *Registry) Open(peer string, now time.Time) *Session {
	r.nextID++
	s := newSession(r.nextID, peer, now)
	r.byID[s.ID] = s
	return s
}

// Login binds an IMEI to the session. If another live session already holds the IMEI it is
// returned; the new session takes over the IMEI index.
func (r *Registry) Login(s *Session, imei string, at time.Time) *Session {
	if s.imei != "" && s.imei != imei && r.byIMEI[s.imei] == s {
		delete(r.byIMEI, s.imei)
	}
	s.imei = imei
	s.lastSeen = at

	prev := r.byIMEI[imei]
	r.byIMEI[imei] = s
	if prev == s {
		return nil
	}
	return prev
}

// Get returns the session for a connection id.
func (r *Registry) Get(id uint64) (*Session, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// ByIMEI returns the most recently logged-in live session for an IMEI.
func (r *Registry) ByIMEI(imei string) (*Session, bool) {
	s, ok := r.byIMEI[imei]
	return s, ok
}

// Close discards a session and everything it holds.
func (r *Registry) Close(id uint64) (*Session, bool) {
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if s.imei != "" && r.byIMEI[s.imei] == s {
		delete(r.byIMEI, s.imei)
	}
	return s, true
}

// All returns the live sessions ordered by connection id.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.byID)
}
