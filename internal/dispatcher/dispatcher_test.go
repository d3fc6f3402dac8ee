package dispatcher

import (
	"net"
	"testing"

	"github.com/glennswest/openprotocol-sim/internal/catalog"
	"github.com/glennswest/openprotocol-sim/internal/persistence"
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

const testCatalogJSON = `[
	{"mid":"0001","name":"Communication start","category":"session","direction":"rx","supported_revisions":[1,6]},
	{"mid":"0002","name":"Communication start ack","category":"reply","direction":"tx","supported_revisions":[1,7]},
	{"mid":"0003","name":"Communication stop","category":"session","direction":"rx"},
	{"mid":"0004","name":"Error","category":"reply","direction":"tx"},
	{"mid":"0005","name":"Ack","category":"reply","direction":"tx"},
	{"mid":"0006","name":"Request single mid","category":"request","direction":"rx"},
	{"mid":"0008","name":"Subscribe","category":"subscription_start","direction":"rx"},
	{"mid":"0009","name":"Unsubscribe","category":"subscription_stop","direction":"rx"},
	{"mid":"0010","name":"Last tightening request","category":"request","direction":"rx"},
	{"mid":"0011","name":"Last tightening data","category":"reply","direction":"tx"},
	{"mid":"0018","name":"Select pset","category":"command","direction":"rx"},
	{"mid":"0060","name":"Subscribe tightening","category":"subscription_start","direction":"rx"},
	{"mid":"0061","name":"Last tightening result","category":"event_or_data","direction":"tx"},
	{"mid":"9999","name":"Keepalive","category":"session","direction":"rx","supported_revisions":[1,3]}
]`

func buildDispatcher(t *testing.T, supported []string) (*Dispatcher, *simstate.State) {
	t.Helper()
	cat, err := catalog.FromJSON([]byte(testCatalogJSON))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	profile, err := catalog.DecodeProfile([]byte(`{"name":"atlas_pf"}`))
	if err != nil {
		t.Fatalf("DecodeProfile: %v", err)
	}
	profile.SupportedMIDs = supported
	store, err := catalog.NewProfileStore([]*catalog.Profile{profile}, "atlas_pf")
	if err != nil {
		t.Fatalf("NewProfileStore: %v", err)
	}
	state, err := simstate.New(cat, store, persistence.NewDisabled(), simstate.Config{MaxSessions: 5})
	if err != nil {
		t.Fatalf("simstate.New: %v", err)
	}
	return New(cat, store, state), state
}

func newSession(t *testing.T, role session.Role) *session.Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	s := session.New(role, server)
	t.Cleanup(s.Close)
	return s
}

var fullSupport = []string{"0001", "0002", "0003", "0004", "0005", "0006", "0008", "0009", "0010", "0011", "0018", "0060", "0061", "9999"}

func TestUnknownMIDReturnsError99(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	sess.SetCommunicationStarted(true)
	resp := d.Dispatch(sess, protocol.BuildMessage("7777", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0004" {
		t.Fatalf("expected single 0004 error reply, got %v", resp)
	}
}

func TestCommunicationStartBeforeAnythingElse(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	resp := d.Dispatch(sess, protocol.BuildMessage("0010", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0004" {
		t.Fatalf("expected error 97 before comm start, got %v", resp)
	}
	if string(resp[0].Data[4:6]) != "97" {
		t.Errorf("expected error code 97, got %q", resp[0].Data)
	}
}

func TestCommunicationStartReply(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	resp := d.Dispatch(sess, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0002" {
		t.Fatalf("expected 0002 reply, got %v", resp)
	}
	if !sess.CommunicationStarted() {
		t.Fatalf("expected communication started true")
	}
	// Repeating 0001 should now fail with error 97.
	resp2 := d.Dispatch(sess, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))
	if len(resp2) != 1 || resp2[0].MID() != "0004" {
		t.Fatalf("expected repeated 0001 to error, got %v", resp2)
	}
}

func TestActorCollisionError35(t *testing.T) {
	d, state := buildDispatcher(t, fullSupport)
	actor1 := newSession(t, session.RoleActor)
	state.RegisterSession(actor1)
	d.Dispatch(actor1, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))

	actor2 := newSession(t, session.RoleActor)
	state.RegisterSession(actor2)
	resp := d.Dispatch(actor2, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0004" || string(resp[0].Data[4:6]) != "35" {
		t.Fatalf("expected error 35 for second actor, got %v", resp)
	}
}

func TestSubscriptionStartAcks(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	sess.SetCommunicationStarted(true)
	resp := d.Dispatch(sess, protocol.BuildMessage("0060", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0005" {
		t.Fatalf("expected ack, got %v", resp)
	}
	subs := sess.Subscriptions()
	if len(subs) != 1 || subs[0] != "0060" {
		t.Fatalf("expected subscription to 0060, got %v", subs)
	}
}

func TestUnsupportedMIDErrors(t *testing.T) {
	d, _ := buildDispatcher(t, []string{"0001", "0003", "0010", "0011"})
	sess := newSession(t, session.RoleClassic)
	sess.SetCommunicationStarted(true)
	resp := d.Dispatch(sess, protocol.BuildMessage("0060", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0004" || string(resp[0].Data[4:6]) != "73" {
		t.Fatalf("expected error 73 for unsupported subscription, got %v", resp)
	}
}

func TestRequestReplyMapping(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	sess.SetCommunicationStarted(true)
	resp := d.Dispatch(sess, protocol.BuildMessage("0010", nil, protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0011" {
		t.Fatalf("expected 0011 reply, got %v", resp)
	}
}

func TestCommandDeniedWhileActorInControl(t *testing.T) {
	d, state := buildDispatcher(t, fullSupport)
	actor := newSession(t, session.RoleActor)
	state.RegisterSession(actor)
	d.Dispatch(actor, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))

	classic := newSession(t, session.RoleClassic)
	state.RegisterSession(classic)
	d.Dispatch(classic, protocol.BuildMessage("0001", nil, protocol.BuildOptions{}))

	resp := d.Dispatch(classic, protocol.BuildMessage("0018", []byte("01005"), protocol.BuildOptions{}))
	if len(resp) != 1 || resp[0].MID() != "0004" || string(resp[0].Data[4:6]) != "92" {
		t.Fatalf("expected error 92, got %v", resp)
	}
}

func TestKeepaliveMirror(t *testing.T) {
	d, _ := buildDispatcher(t, fullSupport)
	sess := newSession(t, session.RoleClassic)
	sess.SetCommunicationStarted(true)
	resp := d.Dispatch(sess, protocol.BuildMessage("9999", []byte("PING"), protocol.BuildOptions{Revision: 3}))
	if len(resp) != 1 || resp[0].MID() != "9999" || string(resp[0].Data) != "PING" {
		t.Fatalf("expected keepalive mirror, got %v", resp)
	}
}
