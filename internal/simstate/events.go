package simstate

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
)

// SubscriptionTargets maps a subscription-start MID to the data MIDs it
// pushes when the thing it tracks changes.
var SubscriptionTargets = map[string][]string{
	"0014": {"0015"},
	"0021": {"0022"},
	"0034": {"0035"},
	"0051": {"0052"},
	"0060": {"0061"},
	"0070": {"0071"},
	"0090": {"0091"},
	"0100": {"0101"},
	"0105": {"0106", "0107"},
	"0120": {"0121", "0122", "0123", "0124"},
	"0151": {"0152"},
	"0210": {"0211"},
	"0216": {"0217"},
	"0220": {"0221"},
	"0241": {"0242"},
	"0250": {"0251"},
	"0261": {"0262"},
	"0400": {"0401"},
	"0420": {"0421"},
	"0500": {"0501"},
	"0901": {"0900"},
	"8000": {"8001"},
}

// EventDefaultMIDs is which data MIDs an event type affects when the
// caller didn't specify an explicit mid list.
var EventDefaultMIDs = map[string][]string{
	"tightening": {"0061", "1201", "1202"},
	"alarm":      {"0071", "1000"},
	"io_change":  {"0211", "0217", "0221"},
	"trace":      {"0900"},
}

// InjectEvent records a new event, applies its state-side effects, and
// returns it.
func (s *State) InjectEvent(eventType string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	mids := EventDefaultMIDs[eventType]
	if raw, ok := payload["mids"].([]any); ok {
		mids = make([]string, 0, len(raw))
		for _, m := range raw {
			if str, ok := m.(string); ok {
				mids = append(mids, str)
			}
		}
	}

	event := Event{
		EventID:      uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Source:       "rest_api",
		EventType:    eventType,
		Payload:      payload,
		AffectedMIDs: mids,
	}
	s.events.Append(event)

	switch eventType {
	case "tightening":
		s.updateTighteningState(payload)
	case "alarm":
		s.updateAlarmState(payload)
	case "io_change":
		s.updateIOState(payload)
	}

	return event
}

func floatOr(payload map[string]any, key string, def float64) float64 {
	if v, ok := payload[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return def
}

func boolOr(payload map[string]any, key string, def bool) bool {
	if v, ok := payload[key].(bool); ok {
		return v
	}
	return def
}

func stringOr(payload map[string]any, key, def string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return def
}

func intFromAny(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func (s *State) updateTighteningState(payload map[string]any) {
	s.mutateDomain("results", func(results map[string]any) {
		nextID := intFromAny(results["last_tightening_id"]) + 1
		torque := floatOr(payload, "torque_nm", 12.34)
		angle := floatOr(payload, "angle_deg", 123.0)
		ok := boolOr(payload, "ok", true)
		status := "NOK"
		if ok {
			status = "OK"
		}
		result := map[string]any{
			"tightening_id": nextID,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"torque_nm":     torque,
			"angle_deg":     angle,
			"status":        status,
		}
		results["last_tightening_id"] = nextID
		history, _ := results["history"].([]any)
		history = append(history, result)
		if len(history) > resultsCapacity {
			history = history[len(history)-resultsCapacity:]
		}
		results["history"] = history
	})

	points := []any{10.0, 12.0, 14.0, 15.0, 14.0, 12.0}
	if raw, ok := payload["trace_points"].([]any); ok {
		points = raw
	}
	var latestTighteningID any
	s.readDomain("results", func(results map[string]any) {
		latestTighteningID = results["last_tightening_id"]
	})
	s.mutateDomain("traces", func(traces map[string]any) {
		traces["latest"] = map[string]any{
			"tightening_id": latestTighteningID,
			"points":        points,
		}
	})
}

func (s *State) updateAlarmState(payload map[string]any) {
	s.mutateDomain("alarms", func(alarms map[string]any) {
		alarm := map[string]any{
			"code":      stringOr(payload, "code", "0001"),
			"text":      stringOr(payload, "text", "Simulated alarm"),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		alarms["active"] = []any{alarm}
		history, _ := alarms["history"].([]any)
		history = append(history, alarm)
		if len(history) > resultsCapacity {
			history = history[len(history)-resultsCapacity:]
		}
		alarms["history"] = history
	})
}

func (s *State) updateIOState(payload map[string]any) {
	s.mutateDomain("io", func(io map[string]any) {
		key := stringOr(payload, "key", "input_01")
		value := boolOr(payload, "value", true)
		inputs, _ := io["inputs"].(map[string]any)
		if inputs == nil {
			inputs = map[string]any{}
		}
		inputs[key] = value
		io["inputs"] = inputs
	})
}

// GeneratePushMessages builds the outbound push messages a session should
// receive for event, based on that session's current subscriptions.
func (s *State) GeneratePushMessages(sess *session.Session, event Event) []protocol.Message {
	targetMIDs := map[string]bool{}
	for _, m := range event.AffectedMIDs {
		targetMIDs[protocol.NormalizeMID(m)] = true
	}

	subscribedTargets := map[string]bool{}
	for _, subMID := range sess.Subscriptions() {
		for _, t := range SubscriptionTargets[subMID] {
			subscribedTargets[t] = true
		}
		subscribedTargets[subMID] = true
	}

	mids := make([]string, 0, len(targetMIDs))
	for m := range targetMIDs {
		mids = append(mids, m)
	}
	sort.Strings(mids)

	var messages []protocol.Message
	for _, mid := range mids {
		if !subscribedTargets[mid] {
			continue
		}
		data := s.BuildDataForMID(mid)
		// Sequence numbers are stamped by the caller just before sending
		// (see session.Session.SendAuto): assigning one here would be
		// immediately overwritten and would desynchronize the counter.
		messages = append(messages, protocol.BuildMessage(mid, data, protocol.BuildOptions{
			Revision:  1,
			AppendNUL: boolPtr(mid != protocol.BinaryMID),
			Binary:    mid == protocol.BinaryMID,
		}))
	}
	return messages
}

func boolPtr(b bool) *bool { return &b }
