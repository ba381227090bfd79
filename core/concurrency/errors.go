// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrWaiterClosed indicates the waiter has been shut down
	ErrWaiterClosed = errors.New("waiter is shut down")
)
