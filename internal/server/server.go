// Package server accepts client connections and drives one session per
// connection against the shared store.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ajesipow/cached/internal/config"
	"github.com/ajesipow/cached/internal/stats"
	"github.com/ajesipow/cached/internal/store"
)

type Server struct {
	cfg   config.Config
	st    store.Store
	stats *stats.Stats
	clock store.Clock

	ln net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(cfg config.Config, st store.Store, stats *stats.Stats) *Server {
	return &Server{
		cfg:   cfg,
		st:    st,
		stats: stats,
		clock: store.SystemClock(),
		conns: make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address without accepting yet, so callers can
// read the bound address before serving (the configured port may be 0).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then drains: no new
// connections are accepted, sessions blocked in a read are woken so they can
// observe the shutdown, and in-flight request/response cycles run to
// completion before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
		s.interruptSessions()
	}()

	var sem chan struct{}
	if s.cfg.MaxConns > 0 {
		sem = make(chan struct{}, s.cfg.MaxConns)
	}

	for {
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if sem != nil {
				<-sem
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			if sem != nil {
				defer func() { <-sem }()
			}
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// interruptSessions unblocks sessions parked in a read. Sessions that are
// mid-dispatch or mid-write are unaffected and finish their current cycle.
func (s *Server) interruptSessions() {
	s.mu.Lock()
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()
}
