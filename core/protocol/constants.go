// File: core/protocol/constants.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// MsgType discriminates frame payloads on the wire.
type MsgType uint8

const (
	// MsgCall frames carry one capability invocation.
	MsgCall MsgType = 0x1
	// MsgResult frames carry the outcome of a prior MsgCall.
	MsgResult MsgType = 0x2
	// MsgRelease frames drop one exported capability handle on the peer.
	MsgRelease MsgType = 0x3
)

// MaxFramePayload defines the maximum allowed payload size for a single
// frame. This limit protects against excessively large frames that could
// exhaust memory.
const MaxFramePayload = 1 << 20 // 1 MiB

// MaxSectionLen is the maximum length of the method, thread, and error
// sections, bounded by their 2-byte length prefix on the wire.
const MaxSectionLen = 1<<16 - 1

// frameHeaderSize is the fixed prefix before variable-length sections:
// type(1) + id(8) + handle(4).
const frameHeaderSize = 1 + 8 + 4
