package store

import "time"

// Clock abstracts wall-clock reads so expiration can be tested
// deterministically.
type Clock interface {
	NowMs() int64
}

type realClock struct{}

func (realClock) NowMs() int64 {
	return time.Now().UnixMilli()
}

// SystemClock returns the wall-clock Clock used outside tests.
func SystemClock() Clock {
	return realClock{}
}

func isExpired(expiresAtMs, nowMs int64) bool {
	return expiresAtMs > 0 && nowMs >= expiresAtMs
}
