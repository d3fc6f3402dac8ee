package session

import (
	"net"
	"testing"
	"time"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
)

func pipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	s := New(RoleClassic, server)
	t.Cleanup(func() {
		s.Close()
		client.Close()
	})
	return s, client
}

func TestSequenceWrap(t *testing.T) {
	s, _ := pipeSession(t)
	for i := 1; i < 99; i++ {
		got := s.NextTxSequence()
		if got != i {
			t.Fatalf("NextTxSequence() = %d, want %d", got, i)
		}
	}
	if got := s.NextTxSequence(); got != 99 {
		t.Fatalf("NextTxSequence() = %d, want 99", got)
	}
	if got := s.NextTxSequence(); got != 1 {
		t.Fatalf("NextTxSequence() after 99 = %d, want 1", got)
	}
}

func TestSubscriptionSet(t *testing.T) {
	s, _ := pipeSession(t)
	s.Subscribe("61")
	s.Subscribe("0071")
	subs := s.Subscriptions()
	if len(subs) != 2 {
		t.Fatalf("len(subs) = %d, want 2", len(subs))
	}
	s.Unsubscribe("0061")
	if len(s.Subscriptions()) != 1 {
		t.Fatalf("expected 1 subscription after unsubscribe")
	}
	s.ClearSubscriptions()
	if len(s.Subscriptions()) != 0 {
		t.Fatalf("expected 0 subscriptions after clear")
	}
}

func TestSendDropsWhenClosed(t *testing.T) {
	s, _ := pipeSession(t)
	s.Close()
	time.Sleep(10 * time.Millisecond)
	msg := protocol.BuildMessage("0005", nil, protocol.BuildOptions{})
	if s.Send(msg) {
		t.Fatalf("expected Send to report false after Close")
	}
}

func TestCommunicationStartedAndReset(t *testing.T) {
	s, _ := pipeSession(t)
	if s.CommunicationStarted() {
		t.Fatalf("expected fresh session to not have communication started")
	}
	s.SetCommunicationStarted(true)
	if !s.CommunicationStarted() {
		t.Fatalf("expected communication started to be true")
	}
	_ = s.NextTxSequence()
	s.AdvanceRxSequence(1)
	s.ResetSequencing()
	expected, last := s.RxSequenceState()
	if expected != 1 || last != 0 {
		t.Fatalf("ResetSequencing: expected=%d last=%d, want 1,0", expected, last)
	}
}
