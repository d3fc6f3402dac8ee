package tcpserver

import (
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
)

// handleLinkAck resolves link-level sequencing for one inbound message.
// It returns whether dispatch should proceed, and an ack/nack frame (or
// nil) to send back.
//
// A message without a sequence number puts the session in
// application-level ack mode. Once a sequenced message arrives, the
// session switches to link-level mode: the expected next sequence is
// acked positively and processing continues; a duplicate of the last
// accepted sequence gets the cached ack replayed without reprocessing;
// anything else is nacked.
func handleLinkAck(sess *session.Session, msg protocol.Message) (process bool, ack *protocol.Message) {
	if !msg.Header.HasSequence() {
		sess.SetAckMode(session.AckApplication)
		return true, nil
	}

	sess.SetAckMode(session.AckLinkLevel)
	seq := msg.Header.SequenceInt()
	expected, last := sess.RxSequenceState()

	if seq == expected {
		nextExpected := sess.AdvanceRxSequence(seq)
		reply := protocol.BuildMessage("9997", []byte(msg.MID()), protocol.BuildOptions{
			Revision:       1,
			SequenceNumber: nextExpected,
		})
		sess.SetLastLinkAck(reply)
		return true, &reply
	}

	if seq == last {
		if cached, ok := sess.LastLinkAck(); ok {
			return false, &cached
		}
	}

	nack := protocol.BuildMessage("9998", protocol.FormatMidErrorPayload(msg.MID(), 3), protocol.BuildOptions{
		Revision:       1,
		SequenceNumber: expected,
	})
	sess.SetLastLinkAck(nack)
	return false, &nack
}
