// cached-gateway bridges WebSocket clients onto a cached server: each text
// message is one command ("GET key", "SET key value [ttl]", ...) and each
// reply is one text message.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajesipow/cached/internal/client"
	"github.com/ajesipow/cached/internal/protocol"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8080", "HTTP listen address")
	backend := flag.String("backend", "127.0.0.1:7878", "cached server address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWS(w, r, *backend)
	})

	srv := &http.Server{
		Addr:              *listen,
		Handler:           withLogging(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("cached gateway listening on %s (backend %s)", *listen, *backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("gateway error: %v", err)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func handleWS(w http.ResponseWriter, r *http.Request, backend string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c, err := client.Dial(backend)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("ERROR backend unavailable"))
		return
	}
	defer c.Close()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		req, err := parseCommand(string(payload))
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("ERROR "+err.Error()))
			continue
		}
		resp, err := c.Do(req)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("ERROR "+err.Error()))
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, renderResponse(resp)); err != nil {
			return
		}
	}
}

func parseCommand(line string) (protocol.Request, error) {
	args := strings.Fields(strings.TrimSpace(line))
	if len(args) == 0 {
		return protocol.Request{}, fmt.Errorf("empty command")
	}
	switch strings.ToUpper(args[0]) {
	case "GET":
		if len(args) != 2 {
			return protocol.Request{}, fmt.Errorf("usage: GET key")
		}
		return protocol.Request{Op: protocol.OpGet, Key: []byte(args[1])}, nil
	case "SET":
		switch len(args) {
		case 3:
			return protocol.Request{Op: protocol.OpSet, Key: []byte(args[1]), Value: []byte(args[2])}, nil
		case 4:
			secs, err := strconv.ParseUint(args[3], 10, 32)
			if err != nil {
				return protocol.Request{}, fmt.Errorf("invalid ttl %q", args[3])
			}
			return protocol.Request{
				Op:         protocol.OpSet,
				Key:        []byte(args[1]),
				Value:      []byte(args[2]),
				TTLSeconds: uint32(secs),
				HasTTL:     true,
			}, nil
		default:
			return protocol.Request{}, fmt.Errorf("usage: SET key value [ttl_seconds]")
		}
	case "DELETE", "DEL":
		if len(args) != 2 {
			return protocol.Request{}, fmt.Errorf("usage: DELETE key")
		}
		return protocol.Request{Op: protocol.OpDelete, Key: []byte(args[1])}, nil
	case "EXISTS":
		if len(args) != 2 {
			return protocol.Request{}, fmt.Errorf("usage: EXISTS key")
		}
		return protocol.Request{Op: protocol.OpExists, Key: []byte(args[1])}, nil
	case "PING":
		return protocol.Request{Op: protocol.OpPing}, nil
	case "FLUSH":
		return protocol.Request{Op: protocol.OpFlush}, nil
	case "STATS":
		return protocol.Request{Op: protocol.OpStats}, nil
	default:
		return protocol.Request{}, fmt.Errorf("unknown command %q", args[0])
	}
}

func renderResponse(resp protocol.Response) []byte {
	if len(resp.Value) > 0 {
		return []byte(resp.Status.String() + " " + string(resp.Value))
	}
	return []byte(resp.Status.String())
}
