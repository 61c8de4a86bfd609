// Package app wires the kernel and the OS library into the demo system
// run by the host simulator and by the firmware image.
//
// The demo turns the HAL signal pins into interrupt sources: each rising
// edge is broadcast on an event source. An events thread reacts by
// delegating LED toggles to the LED thread and by posting jobs that update
// counters kept in an objects cache backed by the HAL flash. A flusher
// thread writes the cache back when the worker signals it through a
// semaphore registered in the objects factory.
package app

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"chibi/hal"
	"chibi/internal/logging"
	"chibi/kernel"
	"chibi/oslib/delegate"
	"chibi/oslib/factory"
	"chibi/oslib/jobs"
	"chibi/oslib/memcore"
	"chibi/oslib/objcache"
)

const (
	prioEvents = iota
	prioLED
	prioWorker
	prioFlusher
)

const (
	flushSemName = "flush"
	stopTimeout  = time.Second
)

var errStopTimeout = errors.New("app: threads still running")

// Config configures the demo system.
type Config struct {
	// Debug enables the kernel state checks.
	Debug bool
	// Frequency is the kernel tick rate in Hz, it must match the HAL tick
	// stream. Default: kernel default
	Frequency uint32
	// Logger receives the system logs. Default: info level on the HAL
	// logger.
	Logger *slog.Logger
	// Lines are the signal pins used as interrupt lines. Default: SIG1HZ
	// toggles the LED, SIG5HZ counts.
	Lines []string
	// Keys is the number of counters kept in the cache. Default: 8
	Keys int
	// CacheObjects is the number of cached counters. Default: 4
	CacheObjects int
	// FlushEvery signals the flusher after that many updates. Default: 16
	FlushEvery int
	// Jobs is the number of job descriptors. Default: 4
	Jobs int
	// CoreSize is the size of the core memory arena. Default:
	// factory.DefaultCoreSize
	CoreSize int
	// DetachOnRelease selects the legacy factory release policy.
	DetachOnRelease bool
}

func (c *Config) setDefaults(h hal.HAL) {
	if c.Logger == nil {
		c.Logger = logging.New(h.Logger(), logging.Options{})
	}
	if len(c.Lines) == 0 {
		c.Lines = []string{"SIG1HZ", "SIG5HZ"}
	}
	if c.Keys <= 0 {
		c.Keys = 8
	}
	if c.CacheObjects <= 0 {
		c.CacheObjects = 4
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 16
	}
	if c.Jobs <= 0 {
		c.Jobs = 4
	}
	if c.CoreSize <= 0 {
		c.CoreSize = factory.DefaultCoreSize
	}
}

// Stats are counters sampled from a running App.
type Stats struct {
	Systime  kernel.Systime
	Edges    uint64
	Toggles  uint64
	Jobs     uint64
	Hits     uint64
	Misses   uint64
	Flushes  uint64
	Errors   uint64
	CoreFree int
	Factory  factory.Stats
}

type line struct {
	det *hal.EdgeDetector
	src kernel.EventSource
}

// App is a running demo system.
type App struct {
	h     hal.HAL
	log   *slog.Logger
	cfg   Config
	sys   *kernel.System
	core  *memcore.Core
	fac   *factory.Factory
	cache *objcache.Cache
	jobs  *jobs.Queue
	lines []*line
	flush *factory.Semaphore
	led   bool

	edges, toggles, jobsRun, hits, misses, flushes, errs atomic.Uint64
}

// New builds and starts the demo system on h.
func New(h hal.HAL, cfg Config) (*App, error) {
	cfg.setDefaults(h)
	a := &App{h: h, log: cfg.Logger, cfg: cfg}

	for _, name := range cfg.Lines {
		det, err := hal.NewEdgeDetector(hal.FindPin(h.GPIO(), name))
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", name, err)
		}
		a.lines = append(a.lines, &line{det: det})
	}

	sys, err := kernel.New(kernel.Config{
		Frequency:  cfg.Frequency,
		MaxThreads: 4,
		Debug:      cfg.Debug,
		Logger:     cfg.Logger,
		Threads: []kernel.ThreadConfig{
			{Name: "events", Prio: prioEvents, Func: a.eventsThread},
			{Name: "led", Prio: prioLED, Func: func(any) { delegate.Dispatch(a.sys) }},
			{Name: "worker", Prio: prioWorker, Func: a.workerThread},
			{Name: "flusher", Prio: prioFlusher, Func: a.flusherThread},
		},
		HaltHook:     haltHook(h),
		PanicHandler: panicHandler(h),
	})
	if err != nil {
		return nil, err
	}
	a.sys = sys
	for _, l := range a.lines {
		l.src.Init(sys)
	}

	a.core = memcore.New(sys, cfg.CoreSize)
	a.fac = factory.New(sys, factory.Config{Core: a.core, DetachOnRelease: cfg.DetachOnRelease})
	if a.flush, err = a.fac.CreateSemaphore(flushSemName, 0); err != nil {
		return nil, fmt.Errorf("flush semaphore: %w", err)
	}

	store, err := objcache.NewFlashStore(h.Flash(), uint32(cfg.Keys))
	if err != nil {
		return nil, err
	}
	a.cache, err = objcache.New(sys, objcache.Config{
		Objects:    cfg.CacheObjects,
		ObjectSize: store.BlockSize(),
		Read:       store.Read,
		Write:      store.Write,
	})
	if err != nil {
		return nil, err
	}
	a.jobs = jobs.New(sys, cfg.Jobs)

	if err := sys.Start(); err != nil {
		return nil, err
	}
	a.log.Info("demo started", "lines", cfg.Lines, "core", a.core.String())
	return a, nil
}

// System returns the kernel instance.
func (a *App) System() *kernel.System { return a.sys }

// Factory returns the objects factory.
func (a *App) Factory() *factory.Factory { return a.fac }

// Step is the interrupt path of one HAL tick: pin edges are latched and
// broadcast, then the system tick runs. It fails once the system halted.
func (a *App) Step() error {
	for _, l := range a.lines {
		changed, level, err := l.det.Sample()
		if err != nil {
			return err
		}
		if changed && level {
			a.sys.ISR(l.src.BroadcastI)
		}
	}
	a.sys.Tick()
	if a.sys.Halted() {
		return &kernel.HaltError{Reason: a.sys.HaltReason()}
	}
	return nil
}

// Stop terminates the worker, writes the cache back and stops the system.
// No Step may run concurrently.
func (a *App) Stop() error {
	defer a.sys.Stop()
	if a.sys.Halted() {
		return nil
	}
	a.sys.ISR(func() {
		if j := a.jobs.GetI(); j != nil {
			a.jobs.PostI(j)
		}
	})
	timeout := make(chan struct{})
	t := time.AfterFunc(stopTimeout, func() { close(timeout) })
	defer t.Stop()
	// Once idle every thread is blocked outside the cache, the write back
	// cannot wait for an owned object.
	if !a.sys.WaitIdle(timeout) {
		return errStopTimeout
	}
	return a.cache.Sync()
}

// Stats samples the counters.
func (a *App) Stats() Stats {
	return Stats{
		Systime:  a.sys.GetSystemTime(),
		Edges:    a.edges.Load(),
		Toggles:  a.toggles.Load(),
		Jobs:     a.jobsRun.Load(),
		Hits:     a.hits.Load(),
		Misses:   a.misses.Load(),
		Flushes:  a.flushes.Load(),
		Errors:   a.errs.Load(),
		CoreFree: a.core.Status(),
		Factory:  a.fac.Stats(),
	}
}

// Counter reads the counter of key from the cache. The system must be
// idle.
func (a *App) Counter(key int) uint32 {
	obj := a.cache.GetObject(0, uint32(key))
	defer a.cache.ReleaseObject(obj)
	if obj.Flags&objcache.FlagError != 0 || len(obj.Data) < 4 {
		return 0
	}
	return counterOf(obj.Data)
}

func counterOf(b []byte) uint32 {
	v := binary.LittleEndian.Uint32(b)
	if v == ^uint32(0) {
		return 0 // erased flash
	}
	return v
}

func (a *App) eventsThread(any) {
	s := a.sys
	listeners := make([]kernel.EventListener, len(a.lines))
	for i, l := range a.lines {
		l.src.Register(&listeners[i], kernel.EventID(i))
	}
	led := s.ThreadAt(prioLED)
	for {
		mask := s.WaitAny(kernel.AllEvents)
		for i := range a.lines {
			if mask&kernel.EventMaskOf(kernel.EventID(i)) == 0 {
				continue
			}
			a.edges.Add(1)
			if i == 0 {
				delegate.Call(s, led, a.toggleLED)
				continue
			}
			j := a.jobs.Get()
			j.Func, j.Arg = a.countJob, i
			a.jobs.Post(j)
		}
	}
}

func (a *App) toggleLED() kernel.Msg {
	a.led = !a.led
	if a.led {
		a.h.LED().High()
	} else {
		a.h.LED().Low()
	}
	a.toggles.Add(1)
	return kernel.MsgOK
}

// countJob increments the counter of the key selected by the edge count.
func (a *App) countJob(arg any) {
	key := uint32(a.edges.Load()) % uint32(a.cfg.Keys)
	obj := a.cache.GetObject(0, key)
	if obj.Flags&objcache.FlagCacheHit != 0 {
		a.hits.Add(1)
	} else {
		a.misses.Add(1)
	}
	if obj.Flags&objcache.FlagError == 0 {
		binary.LittleEndian.PutUint32(obj.Data, counterOf(obj.Data)+1)
		a.cache.MarkModified(obj)
	} else {
		a.errs.Add(1)
	}
	a.cache.ReleaseObject(obj)

	if n := a.jobsRun.Add(1); n%uint64(a.cfg.FlushEvery) == 0 {
		a.flush.Object().Signal()
	}
	a.log.Debug("job done", "line", arg, "key", key)
}

func (a *App) workerThread(any) {
	for a.jobs.Dispatch() == kernel.MsgOK {
	}
	a.log.Info("worker stopped")
}

func (a *App) flusherThread(any) {
	sem, err := a.fac.FindSemaphore(flushSemName)
	if err != nil {
		a.sys.Halt("flusher: " + err.Error())
	}
	defer func() { _, _ = a.fac.ReleaseSemaphore(sem) }()
	for sem.Object().Wait() == kernel.MsgOK {
		if err := a.cache.Sync(); err != nil {
			a.errs.Add(1)
			a.log.Warn("cache sync failed", "err", err)
			continue
		}
		a.flushes.Add(1)
	}
}
