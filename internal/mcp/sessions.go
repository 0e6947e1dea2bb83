package mcp

import (
	"sync"

	"github.com/vitalog/vitalog/internal/clarify"
	"github.com/vitalog/vitalog/internal/pipeline"
)

// sessionRegistry holds open clarification sessions between tool calls.
// Sessions live in memory only: an MCP server restart drops them, and the
// user simply re-logs the entry. Expired sessions are swept on every
// access so the registry cannot grow past the active conversation set.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*pendingSession
}

// pendingSession pairs a clarification session with the submission that
// opened it, so finalization can emit with the original capture metadata.
type pendingSession struct {
	session *clarify.Session
	input   pipeline.Input
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: map[string]*pendingSession{}}
}

func (r *sessionRegistry) add(in pipeline.Input, s *clarify.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.sessions[s.ID()] = &pendingSession{session: s, input: in}
}

// get returns the pending session for id, or nil when it is unknown or has
// idled out.
func (r *sessionRegistry) get(id string) *pendingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return r.sessions[id]
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) sweepLocked() {
	for id, p := range r.sessions {
		if p.session.Expired() {
			delete(r.sessions, id)
		}
	}
}
