package hal

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// GPIOMode selects whether a pin is an input or output.
type GPIOMode uint8

const (
	GPIOModeInput GPIOMode = iota
	GPIOModeOutput
)

// GPIOPull selects the pull resistor configuration.
type GPIOPull uint8

const (
	GPIOPullNone GPIOPull = iota
	GPIOPullUp
	GPIOPullDown
)

// GPIOCaps declares what operations a pin supports.
type GPIOCaps uint8

const (
	GPIOCapInput GPIOCaps = 1 << iota
	GPIOCapOutput
	GPIOCapPullUp
	GPIOCapPullDown
)

// GPIO provides access to general-purpose IO pins.
type GPIO interface {
	PinCount() int
	Pin(id int) GPIOPin
}

// GPIOPin is a single digital IO pin.
type GPIOPin interface {
	Name() string
	Caps() GPIOCaps
	Configure(mode GPIOMode, pull GPIOPull) error
	Read() (level bool, err error)
	Write(level bool) error
}

// FindPin returns the pin of g called name, nil if there is none.
func FindPin(g GPIO, name string) GPIOPin {
	if g == nil {
		return nil
	}
	for i := 0; i < g.PinCount(); i++ {
		if p := g.Pin(i); p != nil && p.Name() == name {
			return p
		}
	}
	return nil
}

// checkConfig validates mode and pull against caps.
func checkConfig(name string, caps GPIOCaps, mode GPIOMode, pull GPIOPull) error {
	var need GPIOCaps
	switch mode {
	case GPIOModeInput:
		need = GPIOCapInput
	case GPIOModeOutput:
		need = GPIOCapOutput
	default:
		return fmt.Errorf("gpio: pin %s: invalid mode", name)
	}
	if caps&need == 0 {
		return fmt.Errorf("gpio: pin %s: mode %d unsupported", name, mode)
	}
	switch pull {
	case GPIOPullNone:
	case GPIOPullUp:
		need = GPIOCapPullUp
	case GPIOPullDown:
		need = GPIOCapPullDown
	default:
		return fmt.Errorf("gpio: pin %s: invalid pull", name)
	}
	if pull != GPIOPullNone && caps&need == 0 {
		return fmt.Errorf("gpio: pin %s: pull %d unsupported", name, pull)
	}
	return nil
}

// EdgeDetector turns level samples of an input pin into edge events, the
// way an interrupt controller latches pin changes.
type EdgeDetector struct {
	pin    GPIOPin
	level  bool
	primed bool
}

// NewEdgeDetector configures pin as input and returns a detector for it.
func NewEdgeDetector(pin GPIOPin) (*EdgeDetector, error) {
	if pin == nil {
		return nil, fmt.Errorf("gpio: edge detector: %w", ErrNotImplemented)
	}
	if err := pin.Configure(GPIOModeInput, GPIOPullNone); err != nil {
		return nil, err
	}
	return &EdgeDetector{pin: pin}, nil
}

// Pin returns the sampled pin.
func (d *EdgeDetector) Pin() GPIOPin { return d.pin }

// Sample reads the pin and reports whether it changed since the previous
// sample. The first sample only latches the level.
func (d *EdgeDetector) Sample() (changed, level bool, err error) {
	level, err = d.pin.Read()
	if err != nil {
		return false, d.level, err
	}
	changed = d.primed && level != d.level
	d.level, d.primed = level, true
	return changed, level, nil
}

// demoPins is the pin set of every HAL: the LED, general purpose pins and
// the signal sources standing in for interrupt lines.
func demoPins(led LED) []GPIOPin {
	pins := []GPIOPin{newLEDPin("LED", led)}
	for i := 1; i <= 3; i++ {
		pins = append(pins, newVirtualPin(fmt.Sprintf("GPIO%d", i), GPIOCapInput|GPIOCapOutput|GPIOCapPullUp|GPIOCapPullDown))
	}
	return append(pins,
		newSignalPin("SIG1HZ", time.Second, 500*time.Millisecond),
		newSignalPin("SIG5HZ", 200*time.Millisecond, 100*time.Millisecond),
		newSignalPin("SIGPULSE", time.Second, 50*time.Millisecond),
	)
}

type nullGPIO struct{}

func (nullGPIO) PinCount() int      { return 0 }
func (nullGPIO) Pin(id int) GPIOPin { return nil }

type virtualGPIO struct {
	pins []GPIOPin
}

func newVirtualGPIO(pins []GPIOPin) GPIO {
	if len(pins) == 0 {
		return nullGPIO{}
	}
	return &virtualGPIO{pins: pins}
}

func (g *virtualGPIO) PinCount() int { return len(g.pins) }

func (g *virtualGPIO) Pin(id int) GPIOPin {
	if id < 0 || id >= len(g.pins) {
		return nil
	}
	return g.pins[id]
}

// virtualPin is a general purpose pin, its level is what was last written.
type virtualPin struct {
	mu         sync.Mutex
	name       string
	caps       GPIOCaps
	mode       GPIOMode
	configured bool
	level      bool
}

func newVirtualPin(name string, caps GPIOCaps) *virtualPin {
	return &virtualPin{name: name, caps: caps}
}

func (p *virtualPin) Name() string   { return p.name }
func (p *virtualPin) Caps() GPIOCaps { return p.caps }

func (p *virtualPin) Configure(mode GPIOMode, pull GPIOPull) error {
	if err := checkConfig(p.name, p.caps, mode, pull); err != nil {
		return err
	}
	p.mu.Lock()
	p.mode, p.configured = mode, true
	p.level = pull == GPIOPullUp
	p.mu.Unlock()
	return nil
}

func (p *virtualPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return false, fmt.Errorf("gpio: pin %s: not configured", p.name)
	}
	return p.level, nil
}

func (p *virtualPin) Write(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured || p.mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: not in output mode", p.name)
	}
	p.level = level
	return nil
}

// signalPin is a periodic input, high for the first part of each period.
type signalPin struct {
	name   string
	t0     time.Time
	now    func() time.Time
	period time.Duration
	high   time.Duration
}

func newSignalPin(name string, period, high time.Duration) GPIOPin {
	return newSignalPinWithClock(name, period, high, time.Now)
}

func newSignalPinWithClock(name string, period, high time.Duration, now func() time.Time) GPIOPin {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if period <= 0 {
		period = time.Second
	}
	high = min(max(high, 0), period)
	return &signalPin{name: name, t0: now(), now: now, period: period, high: high}
}

func (p *signalPin) Name() string   { return p.name }
func (p *signalPin) Caps() GPIOCaps { return GPIOCapInput }

func (p *signalPin) Configure(mode GPIOMode, pull GPIOPull) error {
	return checkConfig(p.name, GPIOCapInput, mode, pull)
}

func (p *signalPin) Read() (bool, error) {
	elapsed := p.now().Sub(p.t0)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	return elapsed%p.period < p.high, nil
}

func (p *signalPin) Write(bool) error {
	return fmt.Errorf("gpio: pin %s: output unsupported", p.name)
}

// ledPin drives an LED.
type ledPin struct {
	mu    sync.Mutex
	led   LED
	name  string
	level bool
}

func newLEDPin(name string, led LED) GPIOPin {
	if led == nil {
		return nil
	}
	return &ledPin{led: led, name: name}
}

func (p *ledPin) Name() string   { return p.name }
func (p *ledPin) Caps() GPIOCaps { return GPIOCapOutput }

func (p *ledPin) Configure(mode GPIOMode, pull GPIOPull) error {
	return checkConfig(p.name, GPIOCapOutput, mode, pull)
}

func (p *ledPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *ledPin) Write(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	if level {
		p.led.High()
	} else {
		p.led.Low()
	}
	return nil
}
