package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakePin is a test double that records every Set call.
type FakePin struct {
	mu sync.Mutex

	// Name identifies the pin in Log entries.
	Name string

	// On is the current output level.
	On bool

	// History contains every level written, in order.
	History []bool

	// Log, if set, receives a "name=level" entry per Set, shared between
	// pins so tests can assert cross-pin ordering.
	Log *Log

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakePin creates a FakePin that reports into log (may be nil).
func NewFakePin(name string, log *Log) *FakePin {
	return &FakePin{Name: name, Log: log}
}

// Set records the level.
func (p *FakePin) Set(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetError != nil {
		return p.SetError
	}
	p.On = on
	p.History = append(p.History, on)
	if p.Log != nil {
		p.Log.add(p.Name, on)
	}
	return nil
}

// Level returns the current output level.
func (p *FakePin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.On
}

// Rises counts low-to-high writes.
func (p *FakePin) Rises() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.History {
		if v {
			n++
		}
	}
	return n
}

// Log is an ordered record of writes across several fake pins.
type Log struct {
	mu      sync.Mutex
	Entries []string
}

func (l *Log) add(name string, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	level := "0"
	if on {
		level = "1"
	}
	l.Entries = append(l.Entries, name+"="+level)
}

// Snapshot returns a copy of the entries.
func (l *Log) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Entries...)
}

// FakeOutputs bundles four fake pins sharing one Log.
type FakeOutputs struct {
	Relay *FakePin
	Door  *FakePin
	Light *FakePin
	LED   *FakePin
	Log   *Log
}

// NewFakeOutputs creates fake relay, door, light and LED pins.
func NewFakeOutputs() *FakeOutputs {
	log := &Log{}
	return &FakeOutputs{
		Relay: NewFakePin("relay", log),
		Door:  NewFakePin("door", log),
		Light: NewFakePin("light", log),
		LED:   NewFakePin("led", log),
		Log:   log,
	}
}

// Outputs returns the fakes as an Outputs set.
func (f *FakeOutputs) Outputs() Outputs {
	return Outputs{Relay: f.Relay, Door: f.Door, Light: f.Light, LED: f.LED}
}

// FakeButtons is a test double that delivers scripted edges.
type FakeButtons struct {
	mu      sync.Mutex
	handler EdgeHandler
	pins    map[int]bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeButtons watches pins and forwards triggered edges to handler.
func NewFakeButtons(pins []int, handler EdgeHandler) *FakeButtons {
	m := make(map[int]bool, len(pins))
	for _, p := range pins {
		m[p] = true
	}
	return &FakeButtons{handler: handler, pins: m}
}

// Press delivers a falling edge on pin at time at.
func (b *FakeButtons) Press(pin int, at time.Time) error {
	b.mu.Lock()
	closed, watched, h := b.Closed, b.pins[pin], b.handler
	b.mu.Unlock()
	if closed {
		return errors.New("buttons closed")
	}
	if !watched {
		return errors.New("pin not watched")
	}
	h(Edge{Pin: pin, Time: at})
	return nil
}

// Close marks the buttons as closed.
func (b *FakeButtons) Close() error {
	b.mu.Lock()
	b.Closed = true
	b.mu.Unlock()
	return nil
}
