package simstate

import (
	"fmt"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
)

func stringFromAny(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return def
	}
	return fmt.Sprintf("%v", v)
}

func lastMap(history []any) map[string]any {
	if len(history) == 0 {
		return nil
	}
	m, _ := history[len(history)-1].(map[string]any)
	return m
}

// BuildDataForMID builds the reply/push payload for a single MID from the
// current domain state. Unrecognized MIDs fall back to a generic "SIM"
// acknowledgement payload, matching the reference simulator's behavior of
// never refusing a MID the catalog and profile have already approved.
func (s *State) BuildDataForMID(mid string) []byte {
	mid = protocol.NormalizeMID(mid)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch mid {
	case "0015":
		pset, _ := s.domain["pset"].(map[string]any)
		return protocol.AsciiPayload("01", protocol.RightJustZero(stringFromAny(pset["selected"], "1"), 3))
	case "0022":
		return protocol.AsciiPayload("01", "1")
	case "0035":
		job, _ := s.domain["job"].(map[string]any)
		return protocol.AsciiPayload("01", protocol.RightJustZero(stringFromAny(job["selected"], "1"), 4))
	case "0052":
		vin, _ := s.domain["vin"].(map[string]any)
		return protocol.AsciiPayload("01", protocol.LeftJust(stringFromAny(vin["current"], ""), 25))
	case "0061":
		results, _ := s.domain["results"].(map[string]any)
		history, _ := results["history"].([]any)
		latest := lastMap(history)
		tid := stringFromAny(results["last_tightening_id"], "1")
		status := "OK"
		if latest != nil {
			tid = stringFromAny(latest["tightening_id"], tid)
			status = stringFromAny(latest["status"], "OK")
		}
		return protocol.AsciiPayload("01", protocol.RightJustZero(tid, 10), "02", protocol.LeftJust(status, 3))
	case "0071", "1000":
		alarms, _ := s.domain["alarms"].(map[string]any)
		active, _ := alarms["active"].([]any)
		code, text := "0000", "No alarm"
		if len(active) > 0 {
			if a, ok := active[len(active)-1].(map[string]any); ok {
				code = stringFromAny(a["code"], code)
				text = stringFromAny(a["text"], text)
			}
		}
		return protocol.AsciiPayload("01", protocol.RightJustZero(code, 4), "02", protocol.LeftJust(text, 25))
	case "0211", "0217", "0221":
		return protocol.AsciiPayload("01", "1")
	case "0401":
		return protocol.AsciiPayload("01", "AUTO")
	case "0421":
		return protocol.AsciiPayload("01", "0")
	case "0501":
		return protocol.AsciiPayload("01", "OK")
	case "0900":
		traces, _ := s.domain["traces"].(map[string]any)
		points := []any{10.0, 12.0, 14.0, 15.0}
		if latest, ok := traces["latest"].(map[string]any); ok {
			if p, ok := latest["points"].([]any); ok {
				points = p
			}
		}
		binary := make([]byte, len(points))
		for i, p := range points {
			binary[i] = byte(intFromAny(p) & 0xFF)
		}
		header := protocol.AsciiPayload("01", "TRACE", "02", protocol.ZeroPadInt(len(binary), 4))
		out := append(append([]byte{}, header...), 0x00)
		return append(out, binary...)
	case "1201":
		results, _ := s.domain["results"].(map[string]any)
		history, _ := results["history"].([]any)
		latest := lastMap(history)
		torque, angle := 12.34, 123.0
		if latest != nil {
			torque = floatOr(latest, "torque_nm", torque)
			angle = floatOr(latest, "angle_deg", angle)
		}
		return protocol.AsciiPayload("01", fmt.Sprintf("%07.2f", torque), "02", fmt.Sprintf("%07.2f", angle))
	case "1202":
		results, _ := s.domain["results"].(map[string]any)
		history, _ := results["history"].([]any)
		latest := lastMap(history)
		status := "OK"
		if latest != nil {
			status = stringFromAny(latest["status"], status)
		}
		return protocol.AsciiPayload("01", protocol.LeftJust(status, 3))
	case "0262":
		return protocol.AsciiPayload("01", "TAG1234567890")
	case "0101":
		return protocol.AsciiPayload("01", "MS_RESULT")
	case "0106":
		return protocol.AsciiPayload("01", "STATION_RESULT")
	case "0107":
		return protocol.AsciiPayload("01", "BOLT_RESULT")
	case "0242":
		return protocol.AsciiPayload("01", "USER_DATA")
	case "0251":
		selector, _ := s.domain["selector"].(map[string]any)
		return protocol.AsciiPayload("01", protocol.RightJustZero(stringFromAny(selector["socket"], "1"), 2))
	case "2601":
		return protocol.AsciiPayload("01", "0001")
	case "2603":
		mode, _ := s.domain["mode"].(map[string]any)
		return protocol.AsciiPayload("01", protocol.LeftJust(stringFromAny(mode["selected"], "MODE_DEFAULT"), 12))
	default:
		return protocol.AsciiPayload("01", "SIM")
	}
}
