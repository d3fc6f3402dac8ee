// Package tcpserver runs the simulator's three Open Protocol TCP
// listeners (classic, actor, viewer) and owns the per-connection read
// loop: stream framing, link-level ack bookkeeping, dispatch, and a
// keepalive watchdog that drops stale sessions.
package tcpserver

import (
	"context"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/glennswest/openprotocol-sim/internal/dispatcher"
	"github.com/glennswest/openprotocol-sim/internal/protocol"
	"github.com/glennswest/openprotocol-sim/internal/session"
	"github.com/glennswest/openprotocol-sim/internal/simstate"
)

// Config describes which ports to listen on and how aggressively to
// reclaim idle sessions.
type Config struct {
	Host             string
	ClassicPort      int
	ActorPort        int
	ViewerPort       int
	KeepaliveTimeout time.Duration
}

// Server owns the simulator's TCP listeners.
type Server struct {
	cfg        Config
	state      *simstate.State
	dispatcher *dispatcher.Dispatcher

	listeners []net.Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Server; call Start to begin accepting connections.
func New(cfg Config, state *simstate.State, disp *dispatcher.Dispatcher) *Server {
	return &Server{cfg: cfg, state: state, dispatcher: disp}
}

// Start opens all three listeners and launches the keepalive watchdog.
func (s *Server) Start() error {
	roles := []struct {
		role Role
		port int
	}{
		{RoleClassic, s.cfg.ClassicPort},
		{RoleActor, s.cfg.ActorPort},
		{RoleViewer, s.cfg.ViewerPort},
	}

	for _, r := range roles {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(r.port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.closeListeners()
			return err
		}
		s.listeners = append(s.listeners, ln)
		log.Infof("Listening for %s sessions on %s", r.role, addr)
		go s.acceptLoop(ln, r.role)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.keepaliveWatchdog(ctx)

	return nil
}

// Stop closes every listener and stops the keepalive watchdog.
func (s *Server) Stop() {
	s.closeListeners()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.listeners = nil
}

func (s *Server) acceptLoop(ln net.Listener, role Role) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, role)
	}
}

func roleToSession(r Role) session.Role {
	switch r {
	case RoleActor:
		return session.RoleActor
	case RoleViewer:
		return session.RoleViewer
	default:
		return session.RoleClassic
	}
}

func (s *Server) handleConn(conn net.Conn, role Role) {
	sess := session.New(roleToSession(role), conn)

	ok, reason := s.state.RegisterSession(sess)
	if !ok {
		reject := protocol.BuildMessage("0004", protocol.FormatMidErrorPayload("0001", 16), protocol.BuildOptions{Revision: 1})
		sess.Send(reject)
		time.Sleep(10 * time.Millisecond) // best-effort flush before close
		sess.Close()
		log.Warnf("Rejected %s session (%s): %s", role, sess.Remote, reason)
		return
	}

	log.Infof("Session connected %s (%s, %s)", sess.ID, role, sess.Remote)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Session %s panicked: %v", sess.ID, r)
		}
		sess.Close()
		s.state.UnregisterSession(sess.ID)
		log.Infof("Session closed %s", sess.ID)
	}()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			sess.Touch()
			buf = append(buf, chunk[:n]...)

			var messages []protocol.Message
			messages, buf = protocol.ParseStreamBuffer(buf)
			for _, msg := range messages {
				s.state.RecordTraffic(sess, "rx", msg)
				s.processMessage(sess, msg)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) processMessage(sess *session.Session, msg protocol.Message) {
	process, linkAck := handleLinkAck(sess, msg)
	if linkAck != nil {
		s.send(sess, *linkAck)
	}
	if !process {
		return
	}

	for _, resp := range s.dispatcher.Dispatch(sess, msg) {
		s.send(sess, resp)
	}
}

func (s *Server) send(sess *session.Session, msg protocol.Message) {
	out, sent := sess.SendAuto(msg)
	if sent {
		s.state.RecordTraffic(sess, "tx", out)
	}
}

func (s *Server) keepaliveWatchdog(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.KeepaliveTimeout)
			for _, sess := range s.state.Sessions() {
				if sess.LastActivity().Before(cutoff) {
					log.Infof("Closing session %s due to keepalive timeout", sess.ID)
					sess.Close()
				}
			}
		}
	}
}
