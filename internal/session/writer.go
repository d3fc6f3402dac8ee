package session

import (
	"net"
	"sync"

	"github.com/glennswest/openprotocol-sim/internal/protocol"
)

const outboundQueueSize = 64

// Writer serializes all writes to a connection through a single
// goroutine, so the read loop and the publisher's fan-out never race on
// the same net.Conn.
type Writer struct {
	conn   net.Conn
	queue  chan protocol.Message
	closed chan struct{}
	once   sync.Once
}

func newWriter(conn net.Conn) *Writer {
	w := &Writer{
		conn:   conn,
		queue:  make(chan protocol.Message, outboundQueueSize),
		closed: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			if _, err := w.conn.Write(msg.Raw); err != nil {
				return
			}
		case <-w.closed:
			return
		}
	}
}

// send enqueues msg, blocking the caller until the queue has room or the
// writer is closing. A slow client backs up its own queue and blocks
// only callers sending to that session, never other sessions.
func (w *Writer) send(msg protocol.Message) bool {
	select {
	case <-w.closed:
		return false
	default:
	}
	select {
	case w.queue <- msg:
		return true
	case <-w.closed:
		return false
	}
}

func (w *Writer) close() {
	w.once.Do(func() {
		close(w.closed)
		_ = w.conn.Close()
	})
}
