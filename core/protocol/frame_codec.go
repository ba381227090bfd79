// File: core/protocol/frame_codec.go
// Package protocol implements the IPC frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are length-prefixed: a 4-byte big-endian total length followed by a
// fixed header and three length-delimited string sections (method, thread,
// error) and the raw payload. Size limits are enforced on both directions to
// prevent resource exhaustion.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds MaxFramePayload.
	ErrFrameTooLarge = errors.New("frame payload exceeds maximum allowed size")
	// ErrFrameTruncated is returned when a frame body is shorter than its
	// declared sections.
	ErrFrameTruncated = errors.New("frame truncated")
	// ErrSectionTooLong is returned when a string section would not fit its
	// 2-byte length prefix.
	ErrSectionTooLong = errors.New("frame section exceeds maximum length")
)

// Frame is one decoded wire message.
type Frame struct {
	Type    MsgType
	ID      uint64 // call/result correlation id
	Handle  uint32 // target capability handle (MsgCall only)
	Method  string // invoked method (MsgCall only)
	Thread  string // logical calling context name, may be empty
	Err     string // remote failure description (MsgResult only)
	Payload []byte // opaque argument or result bytes
}

// EncodeFrame writes f to w as one length-prefixed frame.
func EncodeFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	if len(f.Method) > MaxSectionLen || len(f.Thread) > MaxSectionLen || len(f.Err) > MaxSectionLen {
		return ErrSectionTooLong
	}
	body := frameHeaderSize + 2 + len(f.Method) + 2 + len(f.Thread) + 2 + len(f.Err) + len(f.Payload)
	buf := make([]byte, 4+body)
	binary.BigEndian.PutUint32(buf, uint32(body))
	off := 4
	buf[off] = byte(f.Type)
	off++
	binary.BigEndian.PutUint64(buf[off:], f.ID)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], f.Handle)
	off += 4
	off = putSection(buf, off, f.Method)
	off = putSection(buf, off, f.Thread)
	off = putSection(buf, off, f.Err)
	copy(buf[off:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads and decodes one frame from r. Returns io.EOF unwrapped
// when the stream ends cleanly on a frame boundary.
func ReadFrame(r io.Reader) (*Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	body := binary.BigEndian.Uint32(prefix[:])
	if body > MaxFramePayload+frameHeaderSize+3*2+3*MaxSectionLen {
		return nil, ErrFrameTooLarge
	}
	if body < frameHeaderSize+3*2 {
		return nil, ErrFrameTruncated
	}
	buf := make([]byte, body)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("frame body: %w", err)
	}
	f := &Frame{Type: MsgType(buf[0])}
	f.ID = binary.BigEndian.Uint64(buf[1:])
	f.Handle = binary.BigEndian.Uint32(buf[9:])
	off := frameHeaderSize
	var ok bool
	if f.Method, off, ok = getSection(buf, off); !ok {
		return nil, ErrFrameTruncated
	}
	if f.Thread, off, ok = getSection(buf, off); !ok {
		return nil, ErrFrameTruncated
	}
	if f.Err, off, ok = getSection(buf, off); !ok {
		return nil, ErrFrameTruncated
	}
	payload := buf[off:]
	if len(payload) > MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	if len(payload) > 0 {
		f.Payload = payload
	}
	return f, nil
}

func putSection(buf []byte, off int, s string) int {
	binary.BigEndian.PutUint16(buf[off:], uint16(len(s)))
	off += 2
	copy(buf[off:], s)
	return off + len(s)
}

func getSection(buf []byte, off int) (string, int, bool) {
	if off+2 > len(buf) {
		return "", off, false
	}
	n := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if off+n > len(buf) {
		return "", off, false
	}
	return string(buf[off : off+n]), off + n, true
}
