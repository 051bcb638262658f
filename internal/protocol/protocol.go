// Package protocol implements the binary wire format spoken between cached
// clients and servers.
//
// Every frame is self-delimiting: a fixed header carries the opcode, the key
// length and the total frame length, so a receiver can tell where a frame
// ends without scanning payload bytes. Keys and values are opaque byte
// sequences.
//
// Request frame layout (big-endian):
//
//	op(1) keyLen(1) flags(1) ttlSeconds(4) frameLen(4) key value
//
// Response frame layout:
//
//	op(1) status(1) keyLen(1) frameLen(4) key value
package protocol

type OpCode uint8

const (
	OpSet    OpCode = 1
	OpGet    OpCode = 2
	OpDelete OpCode = 3
	OpFlush  OpCode = 4
	OpExists OpCode = 5
	OpPing   OpCode = 6
	OpStats  OpCode = 7
)

func (o OpCode) valid() bool {
	return o >= OpSet && o <= OpStats
}

func (o OpCode) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpGet:
		return "GET"
	case OpDelete:
		return "DELETE"
	case OpFlush:
		return "FLUSH"
	case OpExists:
		return "EXISTS"
	case OpPing:
		return "PING"
	case OpStats:
		return "STATS"
	default:
		return "UNKNOWN"
	}
}

type Status uint8

const (
	StatusOK       Status = 0
	StatusNotFound Status = 1
	StatusTooLarge Status = 2
	StatusError    Status = 3
)

func (s Status) valid() bool {
	return s <= StatusError
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusTooLarge:
		return "TOO_LARGE"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	requestHeaderSize  = 11
	responseHeaderSize = 7

	// MaxKeySize is bounded by the one-byte key length field.
	MaxKeySize = 255
	// MaxValueSize caps a single payload at 1 MiB.
	MaxValueSize = 1 << 20

	flagHasTTL = 1 << 0
)

// Request is one decoded client command. It is constructed by the parser and
// consumed immediately by dispatch; it is never stored.
type Request struct {
	Op         OpCode
	Key        []byte
	Value      []byte
	TTLSeconds uint32
	// HasTTL distinguishes "SET with ttl 0" (an already expired entry)
	// from "SET without a ttl".
	HasTTL bool
}

// Response is the outcome of a Request.
type Response struct {
	Op     OpCode
	Status Status
	Key    []byte
	Value  []byte
}

func needsKey(op OpCode) bool {
	switch op {
	case OpSet, OpGet, OpDelete, OpExists:
		return true
	default:
		return false
	}
}

func allowsValue(op OpCode) bool {
	return op == OpSet
}

// ttlValid reports whether the ttl field and flag are well formed: only SET
// carries a ttl, and a nonzero ttl requires the flag.
func ttlValid(op OpCode, ttl uint32, hasTTL bool) bool {
	if op != OpSet {
		return ttl == 0 && !hasTTL
	}
	return hasTTL || ttl == 0
}
