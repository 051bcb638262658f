package server

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/ajesipow/cached/internal/protocol"
)

// sessionState is the closed set of per-connection states. Transitions:
// reading -> dispatching on a complete frame, dispatching -> writing once the
// store call returns, writing -> reading after the response is flushed, and
// any state -> closing on a malformed frame, transport error or shutdown.
type sessionState int

const (
	stateReading sessionState = iota
	stateDispatching
	stateWriting
	stateClosing
)

type session struct {
	conn  net.Conn
	srv   *Server
	buf   []byte
	state sessionState
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	sess := &session{conn: conn, srv: s}
	sess.run(ctx)
}

func (sess *session) run(ctx context.Context) {
	chunk := make([]byte, 4096)
	draining := false
	for sess.state != stateClosing {
		// Drain every complete frame already buffered before reading
		// again; a single read may carry several pipelined requests.
		for sess.state == stateReading {
			req, n, err := protocol.ParseRequest(sess.buf)
			if errors.Is(err, protocol.ErrIncomplete) {
				break
			}
			if err != nil {
				// The prefix can never become valid: close
				// without a response.
				sess.srv.stats.RecordError()
				log.Printf("closing %s: %v", sess.conn.RemoteAddr(), err)
				sess.state = stateClosing
				return
			}
			sess.buf = sess.buf[n:]

			sess.state = stateDispatching
			resp := sess.srv.dispatch(req)

			sess.state = stateWriting
			out, err := protocol.EncodeResponse(resp)
			if err != nil {
				log.Printf("closing %s: encode: %v", sess.conn.RemoteAddr(), err)
				sess.state = stateClosing
				return
			}
			if _, err := sess.conn.Write(out); err != nil {
				sess.state = stateClosing
				return
			}
			sess.state = stateReading
		}
		if len(sess.buf) == 0 {
			sess.buf = nil
		}

		if draining || ctx.Err() != nil {
			sess.state = stateClosing
			return
		}
		n, err := sess.conn.Read(chunk)
		if n > 0 {
			sess.buf = append(sess.buf, chunk[:n]...)
		}
		if err != nil {
			// EOF, a transport error, or the deadline poke from a
			// shutdown drain. Frames delivered alongside the error
			// still get answered on the next pass.
			if n > 0 {
				draining = true
				continue
			}
			sess.state = stateClosing
			return
		}
	}
}
