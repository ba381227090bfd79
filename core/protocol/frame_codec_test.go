// File: core/protocol/frame_codec_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameCodec_CallRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{
		Type:    MsgCall,
		ID:      42,
		Handle:  7,
		Method:  "makeThread",
		Thread:  "ping (from main)",
		Payload: []byte("args"),
	}
	require.NoError(t, EncodeFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFrameCodec_ResultWithError(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Type: MsgResult, ID: 1, Err: "method not found"}
	require.NoError(t, EncodeFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, "method not found", out.Err)
	require.Nil(t, out.Payload)
}

func TestFrameCodec_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Type: MsgCall, Payload: make([]byte, MaxFramePayload+1)}
	require.ErrorIs(t, EncodeFrame(&buf, in), ErrFrameTooLarge)
	require.Zero(t, buf.Len())
}

func TestFrameCodec_RejectsOversizedSections(t *testing.T) {
	// A section longer than its 2-byte length prefix can express would
	// wrap on the wire and desync the stream; encoding must refuse it.
	long := strings.Repeat("x", MaxSectionLen+1)
	for _, in := range []*Frame{
		{Type: MsgCall, Method: long},
		{Type: MsgCall, Thread: long},
		{Type: MsgResult, Err: long},
	} {
		var buf bytes.Buffer
		require.ErrorIs(t, EncodeFrame(&buf, in), ErrSectionTooLong)
		require.Zero(t, buf.Len())
	}
}

func TestFrameCodec_SectionAtLimitRoundtrips(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Type: MsgResult, ID: 9, Err: strings.Repeat("e", MaxSectionLen)}
	require.NoError(t, EncodeFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Len(t, out.Err, MaxSectionLen)

	// A frame after the maximal one must still parse from the same stream.
	require.NoError(t, EncodeFrame(&buf, &Frame{Type: MsgCall, ID: 10, Method: "m"}))
	next, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(10), next.ID)
}

func TestFrameCodec_CleanEOFPassesThrough(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	require.Equal(t, io.EOF, err)
}

func TestFrameCodec_TruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, &Frame{Type: MsgCall, Method: "ping"}))
	// Drop the last byte of the encoded frame.
	raw := buf.Bytes()[:buf.Len()-1]

	_, err := ReadFrame(bytes.NewReader(raw))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameCodec_DeclaredLengthTooSmall(t *testing.T) {
	// A length prefix smaller than the fixed header cannot be a frame.
	raw := []byte{0, 0, 0, 4, 1, 2, 3, 4}
	_, err := ReadFrame(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrFrameTruncated)
}

func TestFrameCodec_SequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, EncodeFrame(&buf, &Frame{Type: MsgCall, ID: i, Method: "m"}))
	}
	for i := uint64(0); i < 3; i++ {
		f, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, i, f.ID)
	}
	_, err := ReadFrame(&buf)
	require.Equal(t, io.EOF, err)
}
