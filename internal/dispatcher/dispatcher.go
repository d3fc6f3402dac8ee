// Package dispatcher implements the simulator's request/reply rules: for
// every inbound message it decides, purely from catalog/profile metadata
// and current session state, what (if anything) to send back.
package dispatcher

import (
	"fmt"
	"regexp"
	"time"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

// RequestToReply maps a request MID to its dedicated reply MID. A request
// not listed here falls back to request+1 when the catalog marks that MID
// as a reply or event/data MID.
var RequestToReply = map[string]string{
	"0010": "0011",
	"0012": "0013",
	"0030": "0031",
	"0032": "0033",
	"0040": "0041",
	"0050": "0052",
	"0064": "0065",
	"0080": "0081",
	"0214": "0215",
	"0260": "0262",
	"0300": "0301",
	"0410": "0411",
	"2600": "2601",
	"2602": "2603",
}

// Dispatcher evaluates inbound messages against the active catalog and
// profile, applying any state-side effects and returning the response(s)
// to send.
type Dispatcher struct {
	catalog  *catalog.Catalog
	profiles *catalog.ProfileStore
	state    *simstate.State
}

// New builds a Dispatcher wired to the given catalog, profiles, and
// shared simulator state.
func New(cat *catalog.Catalog, profiles *catalog.ProfileStore, state *simstate.State) *Dispatcher {
	return &Dispatcher{catalog: cat, profiles: profiles, state: state}
}

func (d *Dispatcher) isSupported(mid string) bool {
	return d.profiles.Active().Supports(mid)
}

func (d *Dispatcher) supportedRevisions(mid string, def catalog.MidDefinition) []int {
	if override, ok := d.profiles.Active().RevisionOverrides[mid]; ok && len(override) > 0 {
		return override
	}
	if len(def.SupportedRevisions) > 0 {
		return def.SupportedRevisions
	}
	return []int{1}
}

func revisionAllowed(revision int, allowed []int) bool {
	if revision == 0 {
		return true
	}
	for _, r := range allowed {
		if r == revision {
			return true
		}
	}
	return false
}

var digitsRE = func(n int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(\d{%d})`, n))
}

func extractFirstInt(data string, digits int, def string) string {
	m := digitsRE(digits).FindStringSubmatch(data)
	if m == nil {
		return def
	}
	return m[1]
}

func errorMsg(mid string, code int) protocol.Message {
	return protocol.BuildMessage("0004", protocol.FormatMidErrorPayload(mid, code), protocol.BuildOptions{Revision: 1})
}

func ackMsg(mid string) protocol.Message {
	return protocol.BuildMessage("0005", protocol.FormatMidAckPayload(mid), protocol.BuildOptions{Revision: 1})
}

func dataMsg(mid string, data []byte) protocol.Message {
	binary := mid == protocol.BinaryMID
	appendNUL := !binary
	return protocol.BuildMessage(mid, data, protocol.BuildOptions{
		Revision:  1,
		AppendNUL: &appendNUL,
		Binary:    binary,
	})
}

func (d *Dispatcher) build0002() protocol.Message {
	now := time.Now().UTC().Format("2006-01-02:15:04:05")
	data := protocol.AsciiPayload(
		"01", "0001",
		"02", "01",
		"03", protocol.LeftJust("OpenProtocolSim", 25),
		"04", "ACT",
		"05", protocol.LeftJust("2.16.0", 19),
		"06", protocol.LeftJust("sim-0.1.0", 19),
		"07", protocol.LeftJust("sim-tool-0.1", 19),
		"08", protocol.LeftJust("SIM-RBU", 24),
		"09", protocol.LeftJust("SIM0000001", 10),
		"10", "003",
		"11", "001",
		"12", "1",
		"13", "1",
		"14", "0000000001",
		"15", protocol.LeftJust("Simulator Station", 25),
		"16", "1",
		"17", "0",
		"18", protocol.LeftJust(now, 19),
	)
	return protocol.BuildMessage("0002", data, protocol.BuildOptions{Revision: 7})
}

// applyCommandSideEffects mutates simulator state for the simple command
// MIDs the dispatcher accepts without any dedicated reply payload.
func (d *Dispatcher) applyCommandSideEffects(msg protocol.Message) {
	data := msg.DataASCII()
	switch msg.MID() {
	case "0018":
		d.state.SelectPset(extractFirstInt(data, 3, "001"))
	case "0038":
		d.state.SelectJob(extractFirstInt(data, 4, "0001"))
	case "0019":
		n := extractFirstInt(data, 4, "0001")
		var size int
		fmt.Sscanf(n, "%d", &size)
		if size > 0 {
			d.state.SetPsetBatchSize(size)
		}
	case "0020":
		d.state.ResetPsetBatchCounter()
	case "0042":
		d.state.SetToolEnabled(false)
	case "0043":
		d.state.SetToolEnabled(true)
	case "0046":
		d.state.SelectTool(extractFirstInt(data, 2, "01"))
	case "0156":
		d.state.ClearLatestIdentifier()
	case "0157":
		d.state.ClearAllIdentifiers()
	case "0240":
		d.state.SetUserDataLastDownload(data)
	case "0270":
		d.state.Reset()
	case "2606":
		d.state.SelectMode(extractFirstInt(data, 4, "0001"))
	}
}

// Dispatch evaluates one inbound message and returns the response
// messages to send, in order. It never blocks and never errors: every
// failure mode (unknown MID, unsupported revision, command denied) is
// expressed as an Open Protocol error reply.
func (d *Dispatcher) Dispatch(sess *session.Session, msg protocol.Message) []protocol.Message {
	sess.Touch()
	mid := msg.MID()

	def, ok := d.catalog.Get(mid)
	if !ok {
		return []protocol.Message{errorMsg(mid, 99)}
	}

	if !d.isSupported(mid) {
		switch def.Category {
		case "subscription_start":
			return []protocol.Message{errorMsg(mid, 73)}
		case "request":
			return []protocol.Message{errorMsg(mid, 75)}
		default:
			return []protocol.Message{errorMsg(mid, 79)}
		}
	}

	allowed := d.supportedRevisions(mid, def)
	if !revisionAllowed(msg.Revision(), allowed) {
		code := 98
		if def.Category == "subscription_start" {
			code = 74
		}
		return []protocol.Message{errorMsg(mid, code)}
	}

	if mid != "0001" && !sess.CommunicationStarted() {
		return []protocol.Message{errorMsg(mid, 97)}
	}

	switch mid {
	case "0001":
		if sess.CommunicationStarted() {
			return []protocol.Message{errorMsg(mid, 97)}
		}
		if sess.Role == session.RoleActor && d.state.ActorActive(sess.ID) {
			return []protocol.Message{errorMsg(mid, 35)}
		}
		sess.SetCommunicationStarted(true)
		return []protocol.Message{d.build0002()}

	case "0003":
		sess.SetCommunicationStarted(false)
		sess.ClearSubscriptions()
		return []protocol.Message{ackMsg(mid)}

	case "9999":
		return []protocol.Message{protocol.BuildMessage("9999", msg.Data, protocol.BuildOptions{Revision: msg.Header.Revision})}

	case "0008":
		target := extractFirstInt(msg.DataASCII(), 4, "")
		if target == "" || !d.catalog.Contains(target) {
			return []protocol.Message{errorMsg(mid, 73)}
		}
		sess.Subscribe(target)
		return []protocol.Message{ackMsg(mid)}

	case "0009":
		target := extractFirstInt(msg.DataASCII(), 4, "")
		if target != "" {
			sess.Unsubscribe(target)
		}
		return []protocol.Message{ackMsg(mid)}

	case "0006":
		target := extractFirstInt(msg.DataASCII(), 4, "")
		if target == "" || !d.catalog.Contains(target) || !d.isSupported(target) {
			return []protocol.Message{errorMsg(mid, 75)}
		}
		return []protocol.Message{dataMsg(target, d.state.BuildDataForMID(target))}
	}

	switch def.Category {
	case "subscription_start":
		sess.Subscribe(mid)
		return []protocol.Message{ackMsg(mid)}

	case "subscription_stop":
		sess.Unsubscribe(mid)
		return []protocol.Message{ackMsg(mid)}

	case "request":
		replyMID, known := RequestToReply[mid]
		if !known {
			plusOne := incrementMID(mid)
			if candidate, ok := d.catalog.Get(plusOne); ok &&
				(candidate.Category == "reply" || candidate.Category == "event_or_data") {
				replyMID = plusOne
			}
		}
		if replyMID == "" {
			return []protocol.Message{errorMsg(mid, 75)}
		}
		return []protocol.Message{dataMsg(replyMID, d.state.BuildDataForMID(replyMID))}

	case "command":
		if allowed, code := d.state.EnsureCommandAllowed(sess); !allowed {
			return []protocol.Message{errorMsg(mid, code)}
		}
		d.applyCommandSideEffects(msg)
		return []protocol.Message{ackMsg(mid)}

	case "ack", "link":
		return nil

	default:
		return []protocol.Message{ackMsg(mid)}
	}
}

func incrementMID(mid string) string {
	var n int
	fmt.Sscanf(mid, "%d", &n)
	return protocol.ZeroPadInt(n+1, 4)
}
