package tcpserver

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/dispatcher"
	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/publisher"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

const testCatalogJSON = `[
	{"mid":"0001","name":"Communication start","category":"session","direction":"rx","supported_revisions":[1,6]},
	{"mid":"0002","name":"Communication start ack","category":"reply","direction":"tx"},
	{"mid":"0004","name":"Error","category":"reply","direction":"tx"},
	{"mid":"0005","name":"Ack","category":"reply","direction":"tx"},
	{"mid":"0060","name":"Subscribe tightening","category":"subscription_start","direction":"rx"},
	{"mid":"0061","name":"Last tightening result","category":"event_or_data","direction":"tx"},
	{"mid":"9999","name":"Keepalive","category":"session","direction":"rx"}
]`

func startTestServer(t *testing.T) (*Server, int, int) {
	t.Helper()
	cat, err := catalog.FromJSON([]byte(testCatalogJSON))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	profile, _ := catalog.DecodeProfile([]byte(`{"name":"atlas_pf","supported_mids":["0001","0002","0004","0005","0060","0061","9999"]}`))
	store, _ := catalog.NewProfileStore([]*catalog.Profile{profile}, "atlas_pf")
	state, err := simstate.New(cat, store, persistence.NewDisabled(), simstate.Config{MaxSessions: 5})
	if err != nil {
		t.Fatalf("simstate.New: %v", err)
	}
	disp := dispatcher.New(cat, store, state)

	srv := New(Config{
		Host:             "127.0.0.1",
		ClassicPort:      0,
		ActorPort:        0,
		ViewerPort:       0,
		KeepaliveTimeout: 5 * time.Second,
	}, state, disp)

	// Port 0 means "any free port", but Start does not report the ports it
	// bound, so bind each listener manually here and run acceptLoop on it
	// directly instead of calling Start. The keepalive watchdog is not
	// started.
	lnClassic, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listeners = append(srv.listeners, lnClassic)
	go srv.acceptLoop(lnClassic, RoleClassic)

	lnActor, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listeners = append(srv.listeners, lnActor)
	go srv.acceptLoop(lnActor, RoleActor)

	t.Cleanup(func() {
		lnClassic.Close()
		lnActor.Close()
	})

	return srv, lnClassic.Addr().(*net.TCPAddr).Port, lnActor.Addr().(*net.TCPAddr).Port
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()
	return readFrames(t, conn, 1)[0]
}

// readFrames reads from conn, accumulating across reads as needed, until
// n complete frames have been parsed.
func readFrames(t *testing.T, conn net.Conn, n int) []protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pending []byte
	var out []protocol.Message
	buf := make([]byte, 512)
	for len(out) < n {
		nread, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		pending = append(pending, buf[:nread]...)
		var msgs []protocol.Message
		msgs, pending = protocol.ParseStreamBuffer(pending)
		out = append(out, msgs...)
	}
	return out
}

func TestCommunicationStartRoundTrip(t *testing.T) {
	_, port, _ := startTestServer(t)
	conn := dial(t, port)

	req := protocol.BuildMessage("0001", nil, protocol.BuildOptions{})
	if _, err := conn.Write(req.Raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := readFrame(t, conn)
	if resp.MID() != "0002" {
		t.Fatalf("expected 0002 reply, got %s", resp.MID())
	}
}

func TestSubscribeThenPublishDeliversPush(t *testing.T) {
	srv, port, _ := startTestServer(t)
	conn := dial(t, port)

	start := protocol.BuildMessage("0001", nil, protocol.BuildOptions{})
	conn.Write(start.Raw)
	readFrame(t, conn) // 0002

	sub := protocol.BuildMessage("0060", nil, protocol.BuildOptions{})
	conn.Write(sub.Raw)
	ackResp := readFrame(t, conn)
	if ackResp.MID() != "0005" {
		t.Fatalf("expected ack for subscribe, got %s", ackResp.MID())
	}

	sessions := srv.state.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 registered session, got %d", len(sessions))
	}

	pub := publisher.New(srv.state)
	result := pub.Publish("tightening", map[string]any{"ok": true})
	if result.Pushed == 0 {
		t.Fatalf("expected Publish to push at least one message, got %+v", result)
	}

	pushed := readFrame(t, conn)
	if pushed.MID() != "0061" {
		t.Fatalf("expected pushed 0061 tightening result, got %s", pushed.MID())
	}
}

func TestResyncAfterGarbageBytes(t *testing.T) {
	_, port, _ := startTestServer(t)
	conn := dial(t, port)

	start := protocol.BuildMessage("0001", nil, protocol.BuildOptions{})
	garbage := append([]byte("@@@@"), start.Raw...)
	conn.Write(garbage)

	resp := readFrame(t, conn)
	if resp.MID() != "0002" {
		t.Fatalf("expected resync to recover a 0002 reply, got %s", resp.MID())
	}
}

func TestActorConflictOverTCP(t *testing.T) {
	_, _, actorPort := startTestServer(t)

	first := dial(t, actorPort)
	req := protocol.BuildMessage("0001", nil, protocol.BuildOptions{})
	first.Write(req.Raw)
	resp := readFrame(t, first)
	if resp.MID() != "0002" {
		t.Fatalf("expected first actor to get 0002, got %s", resp.MID())
	}

	second := dial(t, actorPort)
	second.Write(req.Raw)
	resp2 := readFrame(t, second)
	if resp2.MID() != "0004" {
		t.Fatalf("expected second actor to get 0004 error, got %s", resp2.MID())
	}
	if string(resp2.Data[4:6]) != "35" {
		t.Fatalf("expected error code 35 for actor collision, got %q", resp2.Data)
	}
}

func TestLinkLevelDuplicateReplay(t *testing.T) {
	_, port, _ := startTestServer(t)
	conn := dial(t, port)

	start := protocol.BuildMessage("0001", nil, protocol.BuildOptions{SequenceNumber: 1})
	conn.Write(start.Raw)

	frames := readFrames(t, conn, 2)
	ack := frames[0]
	reply := frames[1]
	if ack.MID() != "9997" {
		t.Fatalf("expected 9997 link ack first, got %s", ack.MID())
	}
	if reply.MID() != "0002" {
		t.Fatalf("expected 0002 reply second, got %s", reply.MID())
	}

	// Retransmit the identical frame: the session must replay the cached
	// 9997 ack without reprocessing 0001 (no second 0002).
	conn.Write(start.Raw)
	replay := readFrame(t, conn)
	if replay.MID() != "9997" {
		t.Fatalf("expected replayed 9997 ack, got %s", replay.MID())
	}
	if replay.Header.SequenceInt() != ack.Header.SequenceInt() {
		t.Fatalf("replayed ack sequence = %d, want %d matching original ack", replay.Header.SequenceInt(), ack.Header.SequenceInt())
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if n, err := conn.Read(buf); err == nil && n > 0 {
		t.Fatalf("expected no further frames after replay, got %q", buf[:n])
	}
}
