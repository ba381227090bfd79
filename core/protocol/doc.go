// File: core/protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the length-prefixed message framing used by the
// reference transport substrate. It carries capability calls and results
// between connection endpoints; the argument payloads themselves stay opaque,
// their encoding is owned by generated per-interface code.
package protocol
