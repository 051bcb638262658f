package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeRequest serializes a request into a single self-delimiting frame.
func EncodeRequest(req Request) ([]byte, error) {
	if err := validateSizes(req.Op, req.Key, req.Value); err != nil {
		return nil, err
	}
	if !ttlValid(req.Op, req.TTLSeconds, req.HasTTL) {
		return nil, fmt.Errorf("invalid ttl %d (flag %v) for %s", req.TTLSeconds, req.HasTTL, req.Op)
	}
	frameLen := requestHeaderSize + len(req.Key) + len(req.Value)
	buf := make([]byte, 0, frameLen)
	buf = append(buf, byte(req.Op), byte(len(req.Key)))
	var flags byte
	if req.HasTTL {
		flags |= flagHasTTL
	}
	buf = append(buf, flags)
	buf = binary.BigEndian.AppendUint32(buf, req.TTLSeconds)
	buf = binary.BigEndian.AppendUint32(buf, uint32(frameLen))
	buf = append(buf, req.Key...)
	buf = append(buf, req.Value...)
	return buf, nil
}

// EncodeResponse serializes a response deterministically; the output length is
// fully determined by the response content.
func EncodeResponse(resp Response) ([]byte, error) {
	if err := validateSizes(resp.Op, resp.Key, resp.Value); err != nil {
		return nil, err
	}
	frameLen := responseHeaderSize + len(resp.Key) + len(resp.Value)
	buf := make([]byte, 0, frameLen)
	buf = append(buf, byte(resp.Op), byte(resp.Status), byte(len(resp.Key)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(frameLen))
	buf = append(buf, resp.Key...)
	buf = append(buf, resp.Value...)
	return buf, nil
}

func validateSizes(op OpCode, key, value []byte) error {
	if !op.valid() {
		return fmt.Errorf("invalid opcode %d", op)
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("key length %d exceeds maximum %d", len(key), MaxKeySize)
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("value length %d exceeds maximum %d", len(value), MaxValueSize)
	}
	return nil
}
