// File: api/capability.go
// Author: momentics <momentics@gmail.com>
//
// Capability and promise contracts of the proxy runtime. A Capability is an
// opaque reference to a remote object that can be invoked over a connection;
// a Future is the pending result of one invocation.

package api

// Handle addresses one exported capability inside a connection's table.
// Handle 0 is reserved for the bootstrap capability of a connection.
type Handle uint32

// Call carries one method invocation across the capability boundary.
type Call struct {
	// Method is the interface method name, as emitted by generated code.
	Method string
	// Thread names the logical calling context the server side should run
	// the implementation on. Empty means no affinity requirement.
	Thread string
	// Args is the serialized argument payload. The runtime treats it as
	// opaque; generated per-interface code owns the encoding.
	Args []byte
}

// Future is the pending result of a capability invocation. Await blocks the
// calling thread until the result arrives or the connection breaks.
type Future interface {
	Await() ([]byte, error)
}

// Capability is an invokable reference to an object living on the other side
// of a connection (or on another thread of this process).
//
// Invoke must only be called from the event loop thread; the proxy client
// base takes care of marshaling calls onto it. Release drops the reference
// and may be called from any thread.
type Capability interface {
	Invoke(call *Call) Future
	Release()
}

// Dispatcher is the server-side target of a capability. Dispatch runs on the
// event loop thread and must not block; implementations hand the actual work
// to an execution context and fire complete exactly once when done.
type Dispatcher interface {
	Dispatch(call *Call, complete func(result []byte, err error))
}

// Runner executes closures on a named execution context. The thread-affinity
// subsystem registers its contexts with a Runner so server dispatch can land
// implementation code on the thread associated with the calling context.
type Runner interface {
	// Run schedules fn on the context registered under name. It reports
	// false when no such context exists; fn is not executed in that case.
	Run(name string, fn func()) bool
}

// Destroyable is implemented by server implementation objects that need an
// explicit teardown step before the wrapper releases them.
type Destroyable interface {
	Destroy()
}
