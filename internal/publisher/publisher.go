// Package publisher fans simulated events (tightenings, alarms, I/O
// transitions) out to every session subscribed to the MIDs they affect.
package publisher

import (
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

// Result summarizes one publish call, returned to the HTTP control plane.
type Result struct {
	EventID      string   `json:"event_id"`
	EventType    string   `json:"event_type"`
	AffectedMIDs []string `json:"affected_mids"`
	Pushed       int      `json:"pushed_messages"`
}

// Publisher pushes injected events out over every live session's
// outbound writer, applying link-level sequence stamping as needed.
type Publisher struct {
	state *simstate.State
}

// New builds a Publisher over the given shared state.
func New(state *simstate.State) *Publisher {
	return &Publisher{state: state}
}

// Publish injects eventType (with payload) into state, then pushes the
// resulting messages to every session with a communication-started
// session and a matching subscription.
func (p *Publisher) Publish(eventType string, payload map[string]any) Result {
	event := p.state.InjectEvent(eventType, payload)
	pushed := 0

	for _, sess := range p.state.Sessions() {
		if !sess.CommunicationStarted() {
			continue
		}
		messages := p.state.GeneratePushMessages(sess, event)
		for _, msg := range messages {
			out, sent := sess.SendAuto(msg)
			if sent {
				p.state.RecordTraffic(sess, "tx", out)
				pushed++
			}
		}
	}

	return Result{
		EventID:      event.EventID,
		EventType:    event.EventType,
		AffectedMIDs: event.AffectedMIDs,
		Pushed:       pushed,
	}
}
