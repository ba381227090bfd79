// File: ipc/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop runs the single reactor thread of one connection group and is the
// only safe channel for other threads to execute code that touches the
// transport. Other threads block in Post while the loop runs their closure;
// at most one cross-thread closure is in flight at a time. The loop stays
// alive while clients (live proxies, outstanding connections) hold it, plus
// while deferred async closures remain queued, and terminates irreversibly
// once both counts reach zero.

package ipc

import (
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/core/concurrency"
)

// wakePipe is the loop's wake channel: wait end read by the loop thread,
// post end written by posters and by the client counter reaching zero.
type wakePipe struct {
	wait *os.File
	post *os.File
}

func (w *wakePipe) close() {
	_ = w.wait.Close()
	_ = w.post.Close()
}

// postSlot identifies one pending cross-thread closure. Posters compare slot
// identity, not closure identity, so a second poster publishing immediately
// after this slot clears cannot be mistaken for completion.
type postSlot struct {
	fn func()
}

// LoopStats is a snapshot of loop bookkeeping, exposed for debug probes.
type LoopStats struct {
	Posts      uint64 // cross-thread closures executed via Post
	Wakes      uint64 // wake-channel reads observed by the loop
	AsyncRuns  uint64 // closures executed by the async worker
	Clients    int    // current live-client count
	AsyncQueue int    // currently queued async closures
}

// EventLoop owns the reactor thread of one connection group.
type EventLoop struct {
	exe string
	log *zap.Logger

	wake *wakePipe

	// loopID holds the execution-context id of the thread inside Serve;
	// zero when no thread drives the loop.
	loopID atomic.Uint64

	mu           sync.Mutex
	cv           *sync.Cond
	pending      *postSlot
	asyncFns     *queue.Queue // of func()
	asyncRunning bool
	numClients   int
	done         bool

	posts     uint64
	wakes     uint64
	asyncRuns uint64
}

// LoopOption customizes a new EventLoop.
type LoopOption func(*EventLoop)

// WithLogger attaches a structured logger to the loop.
func WithLogger(log *zap.Logger) LoopOption {
	return func(l *EventLoop) { l.log = log }
}

// WithExeName overrides the process display name used in context thread names.
func WithExeName(exe string) LoopOption {
	return func(l *EventLoop) { l.exe = exe }
}

// NewEventLoop creates an event loop with its wake channel armed. The loop
// does nothing until one thread calls Serve.
func NewEventLoop(opts ...LoopOption) (*EventLoop, error) {
	l := &EventLoop{
		exe:      defaultExeName(),
		log:      zap.NewNop(),
		asyncFns: queue.New(),
	}
	l.cv = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	wake, err := newWakePipe()
	if err != nil {
		return nil, err
	}
	l.wake = wake
	l.log = l.log.Named("ipc.loop").With(zap.String("exe", l.exe))
	return l, nil
}

// ExeName returns the process display name of this connection group.
func (l *EventLoop) ExeName() string { return l.exe }

// Serve drives the loop on the calling thread until the live-client count is
// zero and the async queue is empty. Exactly one thread may serve a given
// loop; a second caller panics. The wake channel closing underneath the loop
// is a broken runtime invariant and panics as well — the loop must not keep
// running over a dead wake channel.
func (l *EventLoop) Serve() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !l.loopID.CompareAndSwap(0, concurrency.ContextID()) {
		panic("ipc: EventLoop.Serve called while another thread drives the loop")
	}
	l.log.Debug("event loop serving")

	var buf [1]byte
	for {
		n, err := l.wake.wait.Read(buf[:])
		if err != nil || n != 1 {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			l.log.Error("event loop wake channel closed unexpectedly", zap.Error(err))
			panic("ipc: event loop wake channel closed unexpectedly")
		}
		l.mu.Lock()
		l.wakes++
		if p := l.pending; p != nil {
			l.mu.Unlock()
			p.fn()
			l.mu.Lock()
			l.posts++
			l.pending = nil
		}
		l.cv.Broadcast()
		if l.numClients == 0 && l.asyncFns.Length() == 0 {
			l.done = true
			l.loopID.Store(0)
			l.cv.Broadcast()
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()
	}
	l.log.Debug("event loop done, cancelling event listeners")
	l.wake.close()
	l.log.Debug("event loop bye")
}

// Post executes fn on the loop thread and returns once it has run. Calls from
// the loop thread itself short-circuit and run fn inline, so closures already
// executing on the loop may re-enter the runtime without deadlocking. Wakeup
// order among concurrently blocked posters is unspecified; what is guaranteed
// is that no two posted closures ever run concurrently.
func (l *EventLoop) Post(fn func()) error {
	if id := l.loopID.Load(); id != 0 && id == concurrency.ContextID() {
		fn()
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.pending != nil && !l.done {
		l.cv.Wait()
	}
	if l.done {
		return api.ErrLoopClosed
	}
	p := &postSlot{fn: fn}
	l.pending = p
	l.wakeLocked()
	for l.pending == p && !l.done {
		l.cv.Wait()
	}
	if l.pending == p {
		return api.ErrLoopClosed
	}
	return nil
}

// RunAsync queues fn for the async worker thread, which may block or run
// arbitrary implementation code. The worker is started lazily and holds a
// client reference around each execution, so queued work keeps the loop
// alive until it drains.
func (l *EventLoop) RunAsync(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.asyncFns.Add(fn)
	l.startAsyncLocked()
}

// AddClient increments the count of entities keeping the loop alive.
// Prefer Ref, which pairs the decrement automatically.
func (l *EventLoop) AddClient() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addClientLocked()
}

// RemoveClient decrements the live-client count, waking the loop when it
// reaches zero so termination can be evaluated.
func (l *EventLoop) RemoveClient() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeClientLocked()
}

// Ref acquires a scoped client reference. Releasing the returned LoopRef
// decrements the count exactly once no matter how often Release is called.
func (l *EventLoop) Ref() *LoopRef {
	l.AddClient()
	return &LoopRef{loop: l}
}

// Stats returns a snapshot of loop bookkeeping.
func (l *EventLoop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoopStats{
		Posts:      l.posts,
		Wakes:      l.wakes,
		AsyncRuns:  l.asyncRuns,
		Clients:    l.numClients,
		AsyncQueue: l.asyncFns.Length(),
	}
}

// Done reports whether the loop has terminated. Termination is irreversible.
func (l *EventLoop) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *EventLoop) addClientLocked() {
	l.numClients++
}

func (l *EventLoop) removeClientLocked() {
	if l.numClients <= 0 {
		panic("ipc: EventLoop client count underflow")
	}
	l.numClients--
	if l.numClients == 0 {
		l.cv.Broadcast()
		l.wakeLocked()
	}
}

// startAsyncLocked lazily spawns the async worker, or nudges a running one.
// Caller holds l.mu.
func (l *EventLoop) startAsyncLocked() {
	if l.asyncRunning {
		l.cv.Broadcast()
		return
	}
	if l.asyncFns.Length() == 0 {
		return
	}
	l.asyncRunning = true
	go l.asyncWorker()
}

// asyncWorker drains the async queue, holding a client reference around each
// closure. It exits once the queue is empty and no clients remain, and is
// respawned by startAsyncLocked if async work arrives later.
func (l *EventLoop) asyncWorker() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if l.asyncFns.Length() > 0 {
			l.addClientLocked()
			fn := l.asyncFns.Remove().(func())
			l.asyncRuns++
			l.mu.Unlock()
			fn()
			l.mu.Lock()
			l.removeClientLocked()
			continue
		}
		if l.numClients == 0 {
			break
		}
		l.cv.Wait()
	}
	l.asyncRunning = false
}

// wakeLocked writes one byte to the post end, temporarily dropping the lock
// so the loop thread can make progress. Write failures after termination are
// expected (the pipe is closed); any other failure breaks the loop contract.
func (l *EventLoop) wakeLocked() {
	post := l.wake.post
	l.mu.Unlock()
	_, err := post.Write([]byte{0})
	l.mu.Lock()
	if err != nil && !l.done {
		l.log.Error("event loop wake write failed", zap.Error(err))
		panic("ipc: event loop wake write failed")
	}
}

// LoopRef is a scoped client reference keeping an EventLoop alive.
type LoopRef struct {
	loop *EventLoop
	once sync.Once
}

// Release drops the reference. Safe to call multiple times.
func (r *LoopRef) Release() {
	r.once.Do(r.loop.RemoveClient)
}
