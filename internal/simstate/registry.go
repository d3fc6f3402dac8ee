package simstate

import (
	"github.com/glennswest/openprotocol-sim/internal/session"
)

// RegisterSession admits sess if the session cap hasn't been reached.
func (s *State) RegisterSession(sess *session.Session) (bool, string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		return false, "max sessions reached"
	}
	s.sessions[sess.ID] = sess
	return true, ""
}

// UnregisterSession drops sess from the registry.
func (s *State) UnregisterSession(id string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, id)
}

// Sessions returns a snapshot of every registered session.
func (s *State) Sessions() []*session.Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// GetSession returns the session with id, or nil.
func (s *State) GetSession(id string) *session.Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return s.sessions[id]
}

// ActorActive reports whether any actor-role session other than
// excludeID has completed communication start.
func (s *State) ActorActive(excludeID string) bool {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	for id, sess := range s.sessions {
		if id == excludeID {
			continue
		}
		if sess.Role == session.RoleActor && sess.CommunicationStarted() {
			return true
		}
	}
	return false
}

// EnsureCommandAllowed reports whether sess may issue commands: actor
// sessions always may; classic/viewer sessions may only when no actor is
// currently in control. Error 92 is returned when an actor holds control.
func (s *State) EnsureCommandAllowed(sess *session.Session) (bool, int) {
	if sess.Role == session.RoleActor {
		return true, 0
	}
	if s.ActorActive(sess.ID) {
		return false, 92
	}
	return true, 0
}

// SessionSnapshots renders every registered session for the HTTP API.
func (s *State) SessionSnapshots() []session.Snapshot {
	sessions := s.Sessions()
	out := make([]session.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.ToSnapshot())
	}
	return out
}
