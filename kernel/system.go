package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxThreadsLimit is the largest number of thread slots a system supports.
	MaxThreadsLimit = 16
	// DefaultMaxThreads is used when Config.MaxThreads is zero.
	DefaultMaxThreads = 8
	// DefaultFrequency is the default system tick frequency in Hz.
	DefaultFrequency = 1000
)

var (
	ErrTooManyThreads = errors.New("kernel: too many threads")
	ErrBadPriority    = errors.New("kernel: priority out of range")
	ErrNilFunc        = errors.New("kernel: nil thread function")
	ErrPrioTaken      = errors.New("kernel: priority slot taken")
	ErrStarted        = errors.New("kernel: already started")
)

// ThreadConfig describes a thread. Prio is the index of the thread slot,
// lower values run first.
type ThreadConfig struct {
	Name string
	Prio int
	Func func(arg any)
	Arg  any
}

// Config configures a System.
type Config struct {
	// MaxThreads is the number of thread slots, idle excluded.
	MaxThreads int
	// Frequency is the tick frequency in Hz.
	Frequency uint32
	// Threads are created by Start.
	Threads []ThreadConfig
	// Debug enables the kernel state checks and assertions.
	Debug bool

	Logger       *slog.Logger
	HaltHook     func(reason string)
	PanicHandler func(PanicInfo)
}

// System is one instance of the kernel: the thread slots, the scheduler
// state and the kernel lock.
type System struct {
	id  uuid.UUID
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	lockCnt atomic.Int32
	isrCnt  atomic.Int32
	owner   atomic.Pointer[Thread]

	threads []Thread
	current *Thread
	next    *Thread
	systime Systime
	preempt bool
	started bool

	done     chan struct{}
	stopOnce sync.Once
	halted   atomic.Pointer[HaltError]
}

// New creates a system. Threads listed in cfg are created by Start.
func New(cfg Config) (*System, error) {
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = DefaultMaxThreads
	}
	if cfg.MaxThreads < 0 || cfg.MaxThreads > MaxThreadsLimit {
		return nil, fmt.Errorf("%w: %d", ErrTooManyThreads, cfg.MaxThreads)
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	taken := make(map[int]bool, len(cfg.Threads))
	for _, tc := range cfg.Threads {
		if err := checkThreadConfig(tc, cfg.MaxThreads); err != nil {
			return nil, err
		}
		if taken[tc.Prio] {
			return nil, fmt.Errorf("%w: %d", ErrPrioTaken, tc.Prio)
		}
		taken[tc.Prio] = true
	}

	id := uuid.New()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &System{
		id:   id,
		cfg:  cfg,
		log:  log.With("system", id.String()),
		done: make(chan struct{}),
	}
	s.threads = make([]Thread, cfg.MaxThreads+1)
	for i := range s.threads {
		s.threads[i].sys = s
		s.threads[i].prio = i
	}
	idle := s.idle()
	idle.name = "idle"
	idle.state = StateReady
	s.current, s.next = idle, idle
	return s, nil
}

func checkThreadConfig(tc ThreadConfig, max int) error {
	if tc.Prio < 0 || tc.Prio >= max {
		return fmt.Errorf("%w: %q prio %d", ErrBadPriority, tc.Name, tc.Prio)
	}
	if tc.Func == nil {
		return fmt.Errorf("%w: %q", ErrNilFunc, tc.Name)
	}
	return nil
}

// ID returns the instance id of the system.
func (s *System) ID() uuid.UUID { return s.id }

// Logger returns the system logger.
func (s *System) Logger() *slog.Logger { return s.log }

// Frequency returns the tick frequency in Hz.
func (s *System) Frequency() uint32 { return s.cfg.Frequency }

// MaxThreads returns the number of thread slots, idle excluded.
func (s *System) MaxThreads() int { return s.cfg.MaxThreads }

// Debug reports whether state checks are enabled.
func (s *System) Debug() bool { return s.cfg.Debug }

// Start creates the configured threads and hands the processor to the
// highest priority one. The caller becomes the idle context: it must not
// block in kernel calls afterwards, it may only run ISRs and Tick.
func (s *System) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.lockCnt.Store(1)
	defer func() {
		if r := recover(); r != nil {
			s.release()
			panic(r)
		}
	}()

	for _, tc := range s.cfg.Threads {
		s.CreateI(tc)
	}
	s.log.Info("system started", "threads", len(s.cfg.Threads), "hz", s.cfg.Frequency)
	s.RescheduleS()
	s.Unlock()
	return nil
}

// Stop tears down the goroutines backing the threads. Threads parked in the
// scheduler exit; the system cannot be restarted.
func (s *System) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Done is closed when the system is stopped or halted.
func (s *System) Done() <-chan struct{} { return s.done }

func (s *System) idle() *Thread { return &s.threads[len(s.threads)-1] }

// Lock enters the kernel lock from thread context.
func (s *System) Lock() {
	self, _ := s.self()
	if s.cfg.Debug && self != nil && s.owner.Load() == self {
		s.Halt("SV#4")
	}
	s.acquire(self)
	if s.cfg.Debug && s.isrCnt.Load() != 0 {
		s.Halt("SV#4")
	}
}

// Unlock leaves the kernel lock from thread context. A preemption left
// pending by an ISR happens here.
func (s *System) Unlock() {
	if s.cfg.Debug && (s.isrCnt.Load() != 0 || s.lockCnt.Load() <= 0) {
		s.Halt("SV#5")
	}
	if s.preempt {
		s.preempt = false
		if s.next != s.current && s.canSwitch() {
			s.doPreemption()
		}
	}
	s.release()
}

// LockFromISR enters the kernel lock from an ISR.
func (s *System) LockFromISR() {
	s.mu.Lock()
	s.isrCnt.Add(1)
	if s.cfg.Debug && s.lockCnt.Load() != 0 {
		s.Halt("SV#6")
	}
	s.lockCnt.Store(1)
}

// UnlockFromISR leaves the kernel lock from an ISR and runs the ISR epilogue:
// a thread readied by the ISR runs immediately if the system is idle,
// otherwise at the next safe point of the running thread.
func (s *System) UnlockFromISR() {
	if s.cfg.Debug && (s.isrCnt.Load() <= 0 || s.lockCnt.Load() <= 0) {
		s.Halt("SV#7")
	}
	if s.next != s.current {
		if s.current == s.idle() {
			s.doPreemption()
		} else {
			s.preempt = true
		}
	}
	s.isrCnt.Add(-1)
	s.release()
}

// ISR runs fn as an interrupt service routine, with the kernel lock held.
// Only I-class functions may be called by fn. ISRs are ignored once the
// system halted.
func (s *System) ISR(fn func()) {
	if s.Halted() {
		return
	}
	s.LockFromISR()
	defer func() {
		if r := recover(); r != nil {
			s.isrCnt.Add(-1)
			s.release()
			panic(r)
		}
	}()
	fn()
	s.UnlockFromISR()
}

// Tick is the system tick interrupt.
func (s *System) Tick() { s.ISR(s.TimerHandlerI) }

// StartTick starts a ticker calling Tick at the system frequency until ctx
// is done or the system stops.
func (s *System) StartTick(ctx context.Context) {
	go func() {
		t := time.NewTicker(time.Second / time.Duration(s.cfg.Frequency))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-t.C:
				s.Tick()
			}
		}
	}()
}

func (s *System) acquire(t *Thread) {
	s.mu.Lock()
	s.lockCnt.Store(1)
	s.owner.Store(t)
}

func (s *System) release() {
	s.owner.Store(nil)
	s.lockCnt.Store(0)
	s.mu.Unlock()
}

// canSwitch reports whether the calling goroutine may perform a context
// switch away from the current thread.
func (s *System) canSwitch() bool {
	t, known := s.self()
	if !known {
		return true
	}
	if t == nil {
		return s.current == s.idle()
	}
	return t == s.current
}

// CheckClassI halts the system unless the kernel lock is held.
func (s *System) CheckClassI() {
	if s.cfg.Debug && (s.isrCnt.Load() < 0 || s.lockCnt.Load() <= 0) {
		s.Halt("SV#10")
	}
}

// CheckClassS halts the system unless the kernel lock is held from thread
// context.
func (s *System) CheckClassS() {
	if s.cfg.Debug && (s.isrCnt.Load() != 0 || s.lockCnt.Load() <= 0) {
		s.Halt("SV#11")
	}
}

// Assert halts the system with reason when cond is false and state
// checks are enabled.
func (s *System) Assert(cond bool, reason string) {
	if s.cfg.Debug && !cond {
		s.Halt(reason)
	}
}

// IsIdle reports whether the idle context owns the processor.
// It must not be called with the kernel lock held.
func (s *System) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == s.idle()
}

// WaitIdle yields until the idle context owns the processor or done is
// closed. It returns false when done was closed first.
func (s *System) WaitIdle(done <-chan struct{}) bool {
	for !s.IsIdle() {
		select {
		case <-done:
			return false
		case <-s.done:
			return false
		default:
			runtime.Gosched()
		}
	}
	return true
}
