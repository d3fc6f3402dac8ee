package simstate

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
)

func entryToRecord(e TrafficEntry) persistence.TrafficRecord {
	return persistence.TrafficRecord{
		Timestamp:   e.Timestamp,
		SessionID:   e.SessionID,
		Role:        e.Role,
		Direction:   e.Direction,
		MID:         e.MID,
		Revision:    e.Revision,
		Length:      e.Length,
		RawASCII:    e.RawASCII,
		DecodedData: e.DecodedData,
	}
}

// RecordTraffic logs one frame for a session in the given direction
// ("rx" or "tx"), trimming the bounded ring and best-effort persisting
// it.
func (s *State) RecordTraffic(sess *session.Session, direction string, msg protocol.Message) {
	entry := TrafficEntry{
		Timestamp:   time.Now().UTC(),
		SessionID:   sess.ID,
		Role:        string(sess.Role),
		Direction:   direction,
		MID:         msg.MID(),
		Revision:    msg.Revision(),
		Length:      msg.Header.Length,
		RawASCII:    asciiLossy(msg.Raw),
		DecodedData: asciiLossy(msg.Data),
	}
	s.traffic.Append(entry)
	if err := s.persistence.AppendTraffic(entryToRecord(entry)); err != nil {
		log.Warnf("Failed to persist traffic record: %v", err)
	}
}

// asciiLossy renders traffic bytes for display, substituting '?' for bytes
// above 127 and for the NUL framing terminator so logged 0900 trace
// payloads don't truncate on a literal NUL byte. Other control bytes are
// kept as they are.
func asciiLossy(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c > 127 || c == protocol.NUL {
			out[i] = '?'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// ListTraffic returns up to limit (clamped to [1,500]) of the most recent
// traffic entries, optionally filtered by mid and/or session id.
func (s *State) ListTraffic(limit int, mid, sessionID string) []TrafficEntry {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	items := s.traffic.Snapshot()
	if mid != "" {
		mid = protocol.NormalizeMID(mid)
		filtered := items[:0:0]
		for _, t := range items {
			if t.MID == mid {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	if sessionID != "" {
		filtered := items[:0:0]
		for _, t := range items {
			if t.SessionID == sessionID {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}
