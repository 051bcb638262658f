// Package client is a minimal binary-protocol client for a cached server,
// used by the cli, the gateway and the tests.
package client

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/ajesipow/cached/internal/protocol"
)

// Client issues one request at a time over a single connection. It is not
// safe for concurrent use.
type Client struct {
	conn net.Conn
	buf  []byte
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Get(key string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpGet, Key: []byte(key)})
}

// Set stores a value without an expiration (the server may still apply its
// configured default TTL).
func (c *Client) Set(key string, value []byte) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpSet, Key: []byte(key), Value: value})
}

// SetTTL stores a value with an explicit TTL. A zero ttl produces an entry
// that is expired on arrival.
func (c *Client) SetTTL(key string, value []byte, ttl time.Duration) (protocol.Response, error) {
	return c.do(protocol.Request{
		Op:         protocol.OpSet,
		Key:        []byte(key),
		Value:      value,
		TTLSeconds: uint32(ttl / time.Second),
		HasTTL:     true,
	})
}

func (c *Client) Delete(key string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpDelete, Key: []byte(key)})
}

func (c *Client) Exists(key string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpExists, Key: []byte(key)})
}

func (c *Client) Ping() (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpPing})
}

func (c *Client) Flush() (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpFlush})
}

func (c *Client) Stats() (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpStats})
}

// Do sends an already-built request and waits for its response.
func (c *Client) Do(req protocol.Request) (protocol.Response, error) {
	return c.do(req)
}

func (c *Client) do(req protocol.Request) (protocol.Response, error) {
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, errors.Wrap(err, "encode request")
	}
	if _, err := c.conn.Write(frame); err != nil {
		return protocol.Response{}, errors.Wrap(err, "write request")
	}
	chunk := make([]byte, 4096)
	for {
		resp, n, err := protocol.ParseResponse(c.buf)
		if err == nil {
			c.buf = append(c.buf[:0], c.buf[n:]...)
			return resp, nil
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			return protocol.Response{}, errors.Wrap(err, "parse response")
		}
		m, err := c.conn.Read(chunk)
		if m > 0 {
			c.buf = append(c.buf, chunk[:m]...)
		}
		if err != nil && m == 0 {
			return protocol.Response{}, errors.Wrap(err, "read response")
		}
	}
}
