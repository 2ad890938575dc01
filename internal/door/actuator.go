// Package door drives the garage door: the actuator, the debounced button
// router, the pending-command slot, the motion controller and the worker
// that serializes all motion onto one goroutine.
package door

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultHold is how long the emulated button is held per pulse.
const DefaultHold = 1500 * time.Millisecond

// Pulser emits button presses and drives the indicator.
type Pulser interface {
	Pulse(kind logic.PulseKind) error
	Indicator(on bool)
}

// Actuator pulses the relay-gated outputs the way a person presses the wall
// button: one pulse toggles the opener (start or stop), so a Stop pulse and
// an Up pulse are electrically identical.
type Actuator struct {
	mu      sync.Mutex
	out     gpio.Outputs
	hold    time.Duration
	clock   Clock
	onPulse func(logic.PulseKind)
}

// NewActuator creates an actuator on the given outputs.
func NewActuator(out gpio.Outputs, hold time.Duration, clock Clock) *Actuator {
	return &Actuator{out: out, hold: hold, clock: clock}
}

// OnPulse registers a callback run after each completed pulse.
// Must be called before the actuator is used.
func (a *Actuator) OnPulse(fn func(logic.PulseKind)) {
	a.onPulse = fn
}

// Pulse holds the door (Stop/Up/Down) or light output high for the hold
// duration with the relay energized. Concurrent callers are serialized; the
// relay is always released on return.
func (a *Actuator) Pulse(kind logic.PulseKind) (err error) {
	var target gpio.Pin
	switch kind {
	case logic.PulseStop, logic.PulseUp, logic.PulseDown:
		target = a.out.Door
	case logic.PulseLight:
		target = a.out.Light
	default:
		return fmt.Errorf("unknown pulse kind %q", kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.out.Relay.Set(true); err != nil {
		return fmt.Errorf("energize relay: %w", err)
	}
	defer func() {
		if rerr := a.out.Relay.Set(false); rerr != nil && err == nil {
			err = fmt.Errorf("release relay: %w", rerr)
		}
	}()

	if err := target.Set(true); err != nil {
		return fmt.Errorf("press %s: %w", kind, err)
	}
	a.led(true)
	// The hold is not cancellable: a half-length press may not register.
	_ = a.clock.Sleep(context.Background(), a.hold)
	a.led(false)
	if err := target.Set(false); err != nil {
		return fmt.Errorf("release %s: %w", kind, err)
	}

	if a.onPulse != nil {
		a.onPulse(kind)
	}
	return nil
}

// Indicator switches the LED.
func (a *Actuator) Indicator(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.led(on)
}

// Blink flashes the LED count times with the given half-period.
func (a *Actuator) Blink(ctx context.Context, period time.Duration, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < count; i++ {
		a.led(true)
		if err := a.clock.Sleep(ctx, period); err != nil {
			a.led(false)
			return err
		}
		a.led(false)
		if err := a.clock.Sleep(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actuator) led(on bool) {
	if a.out.LED == nil {
		return
	}
	if err := a.out.LED.Set(on); err != nil {
		log.Printf("actuator: led: %v", err)
	}
}
