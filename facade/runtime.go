// File: facade/runtime.go
// Unified facade layer for the hioload-ipc runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime aggregates the core components behind a single entry point: the
// event loop, the execution-context registry, the control plane (config,
// metrics, debug probes), and per-peer transport endpoints. It implements
// api.GracefulShutdown so embedding applications get one orderly teardown
// call.

package facade

import (
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/ipc"
	"github.com/momentics/hioload-ipc/thread"
	"github.com/momentics/hioload-ipc/transport"
)

// Config holds parameters fixed for one Runtime. Log level is the only
// setting that can additionally be changed at runtime, through the control
// store.
type Config struct {
	ExeName     string // process display name used in context thread names
	LogLevel    string // initial log level: debug, info, warn, error
	PinCPU      int    // CPU id context threads are pinned to, -1 disables
	EnableDebug bool   // install loop and registry debug probes

	// Logger overrides the built-in production logger when set. The
	// control store's log.level key has no effect on an external logger.
	Logger *zap.Logger
}

// DefaultConfig returns defaults suitable for typical embeddings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		PinCPU:      -1,
		EnableDebug: true,
	}
}

// Runtime is the main facade type.
type Runtime struct {
	cfg   *Config
	log   *zap.Logger
	level zap.AtomicLevel

	loop    *ipc.EventLoop
	threads *thread.Registry

	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	lvlSub  api.Subscription

	group errgroup.Group

	mu        sync.Mutex
	started   bool
	stopped   bool
	rootRef   *ipc.LoopRef
	endpoints []*transport.Endpoint
}

var _ api.GracefulShutdown = (*Runtime)(nil)

// New constructs a Runtime from cfg. Nothing runs until Start.
func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Runtime{
		cfg:     cfg,
		level:   zap.NewAtomicLevel(),
		threads: thread.NewRegistry(),
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
	}

	if cfg.Logger != nil {
		r.log = cfg.Logger
	} else {
		zc := zap.NewProductionConfig()
		zc.Level = r.level
		log, err := zc.Build()
		if err != nil {
			return nil, err
		}
		r.log = log
	}

	r.config.Set(map[string]any{
		control.KeyLogLevel: cfg.LogLevel,
		control.KeyExeName:  cfg.ExeName,
		control.KeyPinCPU:   cfg.PinCPU,
	})
	r.lvlSub = control.BindLogLevel(r.config, r.level)

	loopOpts := []ipc.LoopOption{ipc.WithLogger(r.log)}
	if cfg.ExeName != "" {
		loopOpts = append(loopOpts, ipc.WithExeName(cfg.ExeName))
	}
	loop, err := ipc.NewEventLoop(loopOpts...)
	if err != nil {
		return nil, err
	}
	r.loop = loop

	if cfg.EnableDebug {
		r.probes.RegisterProbe("loop.stats", func() any { return r.loop.Stats() })
		r.probes.RegisterProbe("threads.registered", func() any { return r.threads.Len() })
		r.probes.RegisterProbe("control.config", func() any { return r.config.Snapshot() })
	}
	r.metrics.RegisterGauge("threads.registered", func() any { return r.threads.Len() })

	return r, nil
}

// Start launches the event loop on a dedicated goroutine and holds a root
// client reference so the loop outlives idle periods. A second call fails.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return api.ErrAlreadyStarted
	}
	r.started = true
	r.rootRef = r.loop.Ref()
	r.group.Go(func() error {
		r.loop.Serve()
		return nil
	})
	r.log.Info("runtime started", zap.String("exe", r.loop.ExeName()))
	return nil
}

// Connect binds a peer stream to the runtime: it opens a connection on the
// event loop, exports the ThreadMap as the bootstrap capability, and starts
// the transport endpoint. The stream's ownership passes to the endpoint.
func (r *Runtime) Connect(stream io.ReadWriteCloser) (*transport.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return nil, api.ErrLoopClosed
	}

	conn := ipc.NewConnection(r.loop, ipc.WithConnLogger(r.log))
	ep := transport.NewEndpoint(conn, stream,
		transport.WithEndpointLogger(r.log),
		transport.WithEndpointMetrics(r.metrics))

	mapOpts := []thread.MapOption{
		thread.WithMapLogger(r.log),
		thread.WithMapMetrics(r.metrics),
		thread.WithCacheSize(r.config.GetInt(control.KeyThreadCacheSize, thread.DefaultCacheSize)),
	}
	if pin := r.config.GetInt(control.KeyPinCPU, -1); pin >= 0 {
		mapOpts = append(mapOpts, thread.WithPin(pin))
	}
	ms := thread.NewMapServer(conn, r.threads, mapOpts...)
	// First export on a fresh connection lands on the bootstrap handle.
	if _, err := ms.Export(); err != nil {
		ep.Close()
		conn.Close()
		return nil, err
	}

	r.metrics.Inc(control.MetricConnsOpened, 1)
	conn.OnDisconnect(func() { r.metrics.Inc(control.MetricConnsClosed, 1) })

	ep.Start()
	r.endpoints = append(r.endpoints, ep)
	r.log.Info("peer connected", zap.String("conn_id", conn.ID()))
	return ep, nil
}

// ThreadMap returns the peer's ThreadMap proxy over ep, the client half of
// the bootstrap capability exported by the other side.
func (r *Runtime) ThreadMap(ep *transport.Endpoint) *thread.MapClient {
	return thread.NewMapClient(ep.Conn(), ep.Bootstrap())
}

// Loop exposes the runtime's event loop.
func (r *Runtime) Loop() *ipc.EventLoop { return r.loop }

// Threads exposes the execution-context registry.
func (r *Runtime) Threads() *thread.Registry { return r.threads }

// Control returns the live configuration store.
func (r *Runtime) Control() *control.ConfigStore { return r.config }

// Metrics returns the runtime's metrics registry.
func (r *Runtime) Metrics() *control.MetricsRegistry { return r.metrics }

// Debug returns the probe registry for state inspection.
func (r *Runtime) Debug() api.Debug { return r.probes }

// Shutdown closes every endpoint, tears their connections down, releases the
// root loop reference, and waits for the event loop to terminate. Safe to
// call more than once; only the first call does the work.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	eps := r.endpoints
	r.endpoints = nil
	r.mu.Unlock()

	var err error
	for _, ep := range eps {
		err = multierr.Append(err, ep.Close())
		ep.Conn().Close()
		<-ep.Done()
	}
	r.rootRef.Release()
	err = multierr.Append(err, r.group.Wait())
	r.lvlSub.Close()
	r.log.Info("runtime stopped")
	if r.cfg.Logger == nil {
		// Sync failures on tty sinks are noise, not teardown errors.
		_ = r.log.Sync()
	}
	return err
}
