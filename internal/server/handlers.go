package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ajesipow/cached/internal/protocol"
	"github.com/ajesipow/cached/internal/store"
)

func (s *Server) dispatch(req protocol.Request) protocol.Response {
	switch req.Op {
	case protocol.OpPing:
		return protocol.Response{Op: protocol.OpPing, Status: protocol.StatusOK}
	case protocol.OpGet:
		val, ok := s.st.Get(string(req.Key))
		s.stats.RecordGet(ok)
		if !ok {
			return protocol.Response{Op: protocol.OpGet, Status: protocol.StatusNotFound}
		}
		return protocol.Response{Op: protocol.OpGet, Status: protocol.StatusOK, Key: req.Key, Value: val}
	case protocol.OpSet:
		err := s.st.Set(string(req.Key), req.Value, s.expiry(req))
		if err != nil {
			s.stats.RecordError()
			if errors.Is(err, store.ErrValueTooLarge) {
				return protocol.Response{Op: protocol.OpSet, Status: protocol.StatusTooLarge}
			}
			return protocol.Response{Op: protocol.OpSet, Status: protocol.StatusError}
		}
		s.stats.RecordSet()
		return protocol.Response{Op: protocol.OpSet, Status: protocol.StatusOK}
	case protocol.OpDelete:
		ok := s.st.Delete(string(req.Key))
		s.stats.RecordDelete()
		if !ok {
			return protocol.Response{Op: protocol.OpDelete, Status: protocol.StatusNotFound}
		}
		return protocol.Response{Op: protocol.OpDelete, Status: protocol.StatusOK}
	case protocol.OpExists:
		if !s.st.Exists(string(req.Key)) {
			return protocol.Response{Op: protocol.OpExists, Status: protocol.StatusNotFound}
		}
		return protocol.Response{Op: protocol.OpExists, Status: protocol.StatusOK}
	case protocol.OpFlush:
		s.st.Flush()
		return protocol.Response{Op: protocol.OpFlush, Status: protocol.StatusOK}
	case protocol.OpStats:
		return protocol.Response{Op: protocol.OpStats, Status: protocol.StatusOK, Value: s.statsValue()}
	default:
		s.stats.RecordError()
		return protocol.Response{Op: req.Op, Status: protocol.StatusError}
	}
}

// expiry computes the absolute expiration for a SET. A request TTL wins, even
// an explicit zero (which yields an entry that is expired on arrival);
// otherwise the configured default applies.
func (s *Server) expiry(req protocol.Request) int64 {
	now := s.clock.NowMs()
	if req.HasTTL {
		return now + int64(req.TTLSeconds)*1000
	}
	if d := time.Duration(s.cfg.DefaultTTL); d > 0 {
		return now + d.Milliseconds()
	}
	return 0
}

func (s *Server) statsValue() []byte {
	snap := s.stats.Snapshot()
	snap["keys"] = int64(s.st.Len())
	snap["bytes"] = s.st.Size()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s %d\n", name, snap[name])
	}
	return []byte(b.String())
}
