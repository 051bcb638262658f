package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrIncomplete signals that the buffer holds a valid frame prefix but not the
// whole frame yet. The caller should read more bytes and retry.
var ErrIncomplete = errors.New("incomplete frame")

// ErrMalformed signals a frame that can never become valid no matter how many
// more bytes arrive. The connection carrying it must be closed.
var ErrMalformed = errors.New("malformed frame")

// ParseRequest attempts to extract one complete request from the front of buf.
// On success it returns the request and the number of bytes consumed. It
// returns ErrIncomplete when more bytes are needed and an error wrapping
// ErrMalformed when the prefix is invalid. ParseRequest never consumes bytes
// it cannot fully account for: calling it again with a longer buffer sharing
// the same prefix yields the same result for frames already contained.
func ParseRequest(buf []byte) (Request, int, error) {
	if len(buf) < requestHeaderSize {
		return Request{}, 0, ErrIncomplete
	}
	op := OpCode(buf[0])
	keyLen := int(buf[1])
	flags := buf[2]
	ttl := binary.BigEndian.Uint32(buf[3:7])
	frameLen := int(binary.BigEndian.Uint32(buf[7:11]))

	if !op.valid() {
		return Request{}, 0, fmt.Errorf("%w: unknown opcode %d", ErrMalformed, buf[0])
	}
	if flags&^flagHasTTL != 0 {
		return Request{}, 0, fmt.Errorf("%w: unknown flags %#x", ErrMalformed, flags)
	}
	if !ttlValid(op, ttl, flags&flagHasTTL != 0) {
		return Request{}, 0, fmt.Errorf("%w: unexpected ttl on %s", ErrMalformed, op)
	}
	if err := checkRequestLengths(op, keyLen, frameLen); err != nil {
		return Request{}, 0, err
	}
	if len(buf) < frameLen {
		return Request{}, 0, ErrIncomplete
	}

	req := Request{
		Op:         op,
		TTLSeconds: ttl,
		HasTTL:     flags&flagHasTTL != 0,
	}
	body := buf[requestHeaderSize:frameLen]
	if keyLen > 0 {
		req.Key = append([]byte(nil), body[:keyLen]...)
	}
	if len(body) > keyLen {
		req.Value = append([]byte(nil), body[keyLen:]...)
	}
	return req, frameLen, nil
}

func checkRequestLengths(op OpCode, keyLen, frameLen int) error {
	if frameLen < requestHeaderSize+keyLen {
		return fmt.Errorf("%w: frame length %d shorter than header and key", ErrMalformed, frameLen)
	}
	valueLen := frameLen - requestHeaderSize - keyLen
	if valueLen > MaxValueSize {
		return fmt.Errorf("%w: value length %d exceeds maximum %d", ErrMalformed, valueLen, MaxValueSize)
	}
	if needsKey(op) && keyLen == 0 {
		return fmt.Errorf("%w: %s requires a key", ErrMalformed, op)
	}
	if !needsKey(op) && keyLen != 0 {
		return fmt.Errorf("%w: %s takes no key", ErrMalformed, op)
	}
	if !allowsValue(op) && valueLen != 0 {
		return fmt.Errorf("%w: %s takes no value", ErrMalformed, op)
	}
	return nil
}

// ParseResponse is the client-side counterpart of ParseRequest.
func ParseResponse(buf []byte) (Response, int, error) {
	if len(buf) < responseHeaderSize {
		return Response{}, 0, ErrIncomplete
	}
	op := OpCode(buf[0])
	status := Status(buf[1])
	keyLen := int(buf[2])
	frameLen := int(binary.BigEndian.Uint32(buf[3:7]))

	if !op.valid() {
		return Response{}, 0, fmt.Errorf("%w: unknown opcode %d", ErrMalformed, buf[0])
	}
	if !status.valid() {
		return Response{}, 0, fmt.Errorf("%w: unknown status %d", ErrMalformed, buf[1])
	}
	if frameLen < responseHeaderSize+keyLen {
		return Response{}, 0, fmt.Errorf("%w: frame length %d shorter than header and key", ErrMalformed, frameLen)
	}
	if valueLen := frameLen - responseHeaderSize - keyLen; valueLen > MaxValueSize {
		return Response{}, 0, fmt.Errorf("%w: value length %d exceeds maximum %d", ErrMalformed, valueLen, MaxValueSize)
	}
	if len(buf) < frameLen {
		return Response{}, 0, ErrIncomplete
	}

	resp := Response{Op: op, Status: status}
	body := buf[responseHeaderSize:frameLen]
	if keyLen > 0 {
		resp.Key = append([]byte(nil), body[:keyLen]...)
	}
	if len(body) > keyLen {
		resp.Value = append([]byte(nil), body[keyLen:]...)
	}
	return resp, frameLen, nil
}
