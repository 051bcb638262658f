package server

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ajesipow/cached/internal/config"
	"github.com/ajesipow/cached/internal/protocol"
	"github.com/ajesipow/cached/internal/stats"
	"github.com/ajesipow/cached/internal/store"
)

func newSessionTestServer(cfg config.Config) *Server {
	st := store.New(store.Options{CapacityBytes: cfg.CapacityBytes, Shards: cfg.Shards})
	return New(cfg, st, stats.New())
}

type stubClock struct {
	mu sync.Mutex
	ms int64
}

func (c *stubClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *stubClock) advance(ms int64) {
	c.mu.Lock()
	c.ms += ms
	c.mu.Unlock()
}

// startSession wires a session to one end of an in-memory pipe and returns the
// other end plus a channel that closes when the session goroutine exits.
func startSession(t *testing.T, srv *Server) (net.Conn, chan struct{}) {
	t.Helper()
	client, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handleConn(context.Background(), serverSide)
	}()
	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not exit")
		}
	})
	return client, done
}

// readResponse reads from conn until one complete response frame parses.
func readResponse(t *testing.T, conn net.Conn, buf *[]byte) protocol.Response {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	chunk := make([]byte, 4096)
	for {
		resp, n, err := protocol.ParseResponse(*buf)
		if err == nil {
			*buf = (*buf)[n:]
			return resp
		}
		m, rerr := conn.Read(chunk)
		if m > 0 {
			*buf = append(*buf, chunk[:m]...)
			continue
		}
		if rerr != nil {
			t.Fatalf("read response: %v", rerr)
		}
	}
}

func mustEncodeRequest(t *testing.T, req protocol.Request) []byte {
	t.Helper()
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return frame
}

func TestSessionMalformedFrameClosesWithoutResponse(t *testing.T) {
	srv := newSessionTestServer(config.Default())
	conn, done := startSession(t, srv)

	// A full header with an unknown opcode: the prefix can never become a
	// valid frame.
	frame := []byte{0xff, 0, 0, 0, 0, 0, 0, 0, 0, 0, 11}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err == nil || n > 0 {
		t.Fatalf("expected closed connection without a response, read %d bytes (err=%v)", n, err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session still running after malformed frame")
	}
	if got := srv.stats.Snapshot()["errors"]; got != 1 {
		t.Fatalf("expected 1 recorded error, got %d", got)
	}
}

func TestSessionPipelinedFramesAnsweredInOrder(t *testing.T) {
	srv := newSessionTestServer(config.Default())
	conn, _ := startSession(t, srv)

	// Three frames delivered in a single write must yield three responses
	// in arrival order.
	var frames []byte
	frames = append(frames, mustEncodeRequest(t, protocol.Request{
		Op: protocol.OpSet, Key: []byte("a"), Value: []byte("1"),
	})...)
	frames = append(frames, mustEncodeRequest(t, protocol.Request{
		Op: protocol.OpGet, Key: []byte("a"),
	})...)
	frames = append(frames, mustEncodeRequest(t, protocol.Request{Op: protocol.OpPing})...)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Write(frames)
		errc <- err
	}()

	var buf []byte
	if resp := readResponse(t, conn, &buf); resp.Op != protocol.OpSet || resp.Status != protocol.StatusOK {
		t.Fatalf("first response: op=%v status=%v", resp.Op, resp.Status)
	}
	resp := readResponse(t, conn, &buf)
	if resp.Op != protocol.OpGet || resp.Status != protocol.StatusOK {
		t.Fatalf("second response: op=%v status=%v", resp.Op, resp.Status)
	}
	if !bytes.Equal(resp.Value, []byte("1")) {
		t.Fatalf("second response value: %q", resp.Value)
	}
	if resp := readResponse(t, conn, &buf); resp.Op != protocol.OpPing || resp.Status != protocol.StatusOK {
		t.Fatalf("third response: op=%v status=%v", resp.Op, resp.Status)
	}
	if err := <-errc; err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSessionDefaultTTL(t *testing.T) {
	clk := &stubClock{ms: 1_000}
	cfg := config.Default()
	cfg.DefaultTTL = config.Duration(30 * time.Second)
	st := store.New(store.Options{Shards: cfg.Shards, Clock: clk})
	srv := New(cfg, st, stats.New())
	srv.clock = clk
	conn, _ := startSession(t, srv)

	var buf []byte
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{
		Op: protocol.OpSet, Key: []byte("k"), Value: []byte("v"),
	})); err != nil {
		t.Fatalf("write set: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusOK {
		t.Fatalf("set status: %v", resp.Status)
	}
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})); err != nil {
		t.Fatalf("write get: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusOK {
		t.Fatalf("expected hit before the default TTL, got %v", resp.Status)
	}

	clk.advance(30_000)
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})); err != nil {
		t.Fatalf("write get: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusNotFound {
		t.Fatalf("expected NotFound after the default TTL, got %v", resp.Status)
	}

	// An explicit zero ttl overrides the default: expired on arrival.
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{
		Op: protocol.OpSet, Key: []byte("z"), Value: []byte("v"), HasTTL: true,
	})); err != nil {
		t.Fatalf("write set: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusOK {
		t.Fatalf("set status: %v", resp.Status)
	}
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{Op: protocol.OpGet, Key: []byte("z")})); err != nil {
		t.Fatalf("write get: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusNotFound {
		t.Fatalf("expected NotFound for zero ttl, got %v", resp.Status)
	}
}

func TestSessionSurvivesNotFound(t *testing.T) {
	srv := newSessionTestServer(config.Default())
	conn, _ := startSession(t, srv)

	var buf []byte
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{Op: protocol.OpGet, Key: []byte("nope")})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Status != protocol.StatusNotFound {
		t.Fatalf("expected NotFound, got %v", resp.Status)
	}
	// The miss is an ordinary response; the session keeps serving.
	if _, err := conn.Write(mustEncodeRequest(t, protocol.Request{Op: protocol.OpPing})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readResponse(t, conn, &buf); resp.Op != protocol.OpPing || resp.Status != protocol.StatusOK {
		t.Fatalf("expected ping OK, got op=%v status=%v", resp.Op, resp.Status)
	}
}
