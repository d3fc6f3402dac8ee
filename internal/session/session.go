// Package session tracks one connected TCP peer: its role, link-level
// sequence bookkeeping, subscriptions, and an outbound writer that other
// goroutines (such as the publisher's event fan-out) can safely push
// frames through and that the keepalive watchdog can close.
package session

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
)

// Role is which of the three listening ports a session connected on.
type Role string

const (
	RoleClassic Role = "classic"
	RoleActor   Role = "actor"
	RoleViewer  Role = "viewer"
)

// AckMode is how a session wants outbound sequence numbers handled.
type AckMode string

const (
	AckApplication AckMode = "application"
	AckLinkLevel   AckMode = "link_level"
)

// Session is one connected peer's mutable protocol state. Fields are
// guarded by mu because the read loop, the keepalive watchdog, and the
// event publisher all touch a session concurrently.
type Session struct {
	ID      string
	Role    Role
	Remote  string
	Created time.Time

	writer *Writer

	mu                   sync.Mutex
	lastActivity         time.Time
	ackMode              AckMode
	nextTxSeq            int
	nextRxSeq            int
	lastRxSeq            int
	lastLinkAck          *protocol.Message
	communicationStarted bool
	stationID            string
	spindleID            string
	subscriptions        map[string]bool
}

// New creates a Session bound to conn, with a dedicated writer goroutine
// that owns the connection's write side.
func New(role Role, conn net.Conn) *Session {
	now := time.Now()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s := &Session{
		ID:            id,
		Role:          role,
		Remote:        conn.RemoteAddr().String(),
		Created:       now,
		lastActivity:  now,
		ackMode:       AckApplication,
		nextTxSeq:     1,
		nextRxSeq:     1,
		stationID:     "01",
		spindleID:     "01",
		subscriptions: map[string]bool{},
	}
	s.writer = newWriter(conn)
	return s
}

// Touch records activity now, resetting the keepalive watchdog's clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the last time Touch was called.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Send enqueues msg for the session's writer goroutine, blocking the
// caller until the outbound queue has room or the session is closing.
// A slow client backs up only its own queue, so backpressure blocks
// whoever is sending to that session without affecting any other.
func (s *Session) Send(msg protocol.Message) bool {
	return s.writer.send(msg)
}

// SendSequenced builds and sends a message via mk once the session's
// next outbound link sequence number is known, advancing the counter
// only if the writer actually accepted the frame. This keeps the
// sequence in sync with what really reached the wire even if the send
// blocks on a full queue and the session is torn down while waiting.
func (s *Session) SendSequenced(mk func(seq int) protocol.Message) (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextTxSeq
	msg := mk(seq)
	sent := s.writer.send(msg)
	if sent {
		s.nextTxSeq = protocol.NextSequence(seq)
	}
	return msg, sent
}

// SendAuto sends msg, stamping it with the session's next link sequence
// first when the session is in link-level ack mode and msg isn't itself
// a link-layer ack/nack (those already carry their own sequence). The
// sequence only advances for frames actually handed to the writer.
func (s *Session) SendAuto(msg protocol.Message) (protocol.Message, bool) {
	if s.AckMode() != AckLinkLevel || msg.MID() == "9997" || msg.MID() == "9998" {
		return msg, s.Send(msg)
	}
	return s.SendSequenced(func(seq int) protocol.Message {
		return msg.WithSequence(seq)
	})
}

// Close shuts down the session's writer and underlying connection.
func (s *Session) Close() {
	s.writer.close()
}

// AckMode returns the session's current acknowledgement mode.
func (s *Session) AckMode() AckMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackMode
}

// SetAckMode switches between application-level and link-level acking.
func (s *Session) SetAckMode(mode AckMode) {
	s.mu.Lock()
	s.ackMode = mode
	s.mu.Unlock()
}

// NextTxSequence returns the next outbound link sequence and advances it.
func (s *Session) NextTxSequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextTxSeq
	s.nextTxSeq = protocol.NextSequence(seq)
	return seq
}

// RxSequenceState returns the expected next receive sequence and the last
// sequence actually accepted.
func (s *Session) RxSequenceState() (expected, last int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRxSeq, s.lastRxSeq
}

// AdvanceRxSequence records seq as accepted and computes the next expected
// sequence.
func (s *Session) AdvanceRxSequence(seq int) (next int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRxSeq = seq
	s.nextRxSeq = protocol.NextSequence(seq)
	return s.nextRxSeq
}

// LastLinkAck returns the most recently sent link-level ack/nack, for
// replaying against a duplicate inbound sequence.
func (s *Session) LastLinkAck() (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLinkAck == nil {
		return protocol.Message{}, false
	}
	return *s.lastLinkAck, true
}

// SetLastLinkAck records the most recent link-level ack/nack sent.
func (s *Session) SetLastLinkAck(msg protocol.Message) {
	s.mu.Lock()
	s.lastLinkAck = &msg
	s.mu.Unlock()
}

// CommunicationStarted reports whether MID 0001 has completed on this
// session.
func (s *Session) CommunicationStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.communicationStarted
}

// SetCommunicationStarted updates the communication-started flag.
func (s *Session) SetCommunicationStarted(started bool) {
	s.mu.Lock()
	s.communicationStarted = started
	s.mu.Unlock()
}

// Subscribe adds mid (normalized) to the session's subscription set.
func (s *Session) Subscribe(mid string) {
	mid = protocol.NormalizeMID(mid)
	s.mu.Lock()
	s.subscriptions[mid] = true
	s.mu.Unlock()
}

// Unsubscribe removes mid from the session's subscription set.
func (s *Session) Unsubscribe(mid string) {
	mid = protocol.NormalizeMID(mid)
	s.mu.Lock()
	delete(s.subscriptions, mid)
	s.mu.Unlock()
}

// Subscriptions returns a snapshot of the session's subscribed MIDs.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for mid := range s.subscriptions {
		out = append(out, mid)
	}
	sort.Strings(out)
	return out
}

// ClearSubscriptions empties the subscription set, used on MID 0003 and
// on a full simulator reset.
func (s *Session) ClearSubscriptions() {
	s.mu.Lock()
	s.subscriptions = map[string]bool{}
	s.mu.Unlock()
}

// ResetSequencing resets link sequencing to its initial state, used on a
// full simulator reset.
func (s *Session) ResetSequencing() {
	s.mu.Lock()
	s.nextTxSeq = 1
	s.nextRxSeq = 1
	s.lastRxSeq = 0
	s.lastLinkAck = nil
	s.mu.Unlock()
}

// StationSpindle returns the session's station and spindle identifiers.
func (s *Session) StationSpindle() (station, spindle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stationID, s.spindleID
}

// Snapshot is a point-in-time, JSON-serializable view of a session, used
// by the HTTP control plane's session listing.
type Snapshot struct {
	SessionID             string   `json:"session_id"`
	Role                  string   `json:"role"`
	Remote                string   `json:"remote"`
	CreatedAt             string   `json:"created_at"`
	LastActivity          string   `json:"last_activity"`
	AckMode               string   `json:"ack_mode"`
	NextTxSeq             int      `json:"next_tx_seq"`
	NextRxSeq             int      `json:"next_rx_seq"`
	CommunicationStarted  bool     `json:"communication_started"`
	Subscriptions         []string `json:"subscriptions"`
}

// ToSnapshot renders the session's current state for external display.
func (s *Session) ToSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]string, 0, len(s.subscriptions))
	for mid := range s.subscriptions {
		subs = append(subs, mid)
	}
	sort.Strings(subs)
	return Snapshot{
		SessionID:            s.ID,
		Role:                 string(s.Role),
		Remote:               s.Remote,
		CreatedAt:            s.Created.UTC().Format(time.RFC3339),
		LastActivity:         s.lastActivity.UTC().Format(time.RFC3339),
		AckMode:              string(s.ackMode),
		NextTxSeq:            s.nextTxSeq,
		NextRxSeq:            s.nextRxSeq,
		CommunicationStarted: s.communicationStarted,
		Subscriptions:        subs,
	}
}
