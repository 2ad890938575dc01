package door

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/sensor"
)

// Settings tune the motion sequences.
type Settings struct {
	Settle       time.Duration // wait after a directional pulse before verifying
	Recovery     time.Duration // wait between the stop pulse and the retry
	VentSetpoint float64       // inches
	VentTimeout  time.Duration // overall bound on a vent maneuver
	PollInterval time.Duration // vent sampling period
}

// DefaultSettings matches the original install.
var DefaultSettings = Settings{
	Settle:       2 * time.Second,
	Recovery:     3 * time.Second,
	VentSetpoint: 80,
	VentTimeout:  30 * time.Second,
	PollInterval: 250 * time.Millisecond,
}

// Controller executes one command at a time. It must only be driven from a
// single goroutine (see Worker).
type Controller struct {
	act      Pulser
	distance sensor.Distance
	clock    Clock
	cfg      Settings

	onReading func(logic.Reading, time.Time)
}

// NewController creates a motion controller.
func NewController(act Pulser, distance sensor.Distance, clock Clock, cfg Settings) *Controller {
	return &Controller{act: act, distance: distance, clock: clock, cfg: cfg}
}

// OnReading registers fn to receive every sensor reading taken during a
// command, so status stays current while the door moves. Must be called
// before the first Execute.
func (c *Controller) OnReading(fn func(logic.Reading, time.Time)) {
	c.onReading = fn
}

func (c *Controller) sample() logic.Reading {
	r := c.distance.Read()
	if c.onReading != nil {
		c.onReading(r, c.clock.Now())
	}
	return r
}

// motion is the working state of one Execute call.
type motion struct {
	c    *Controller
	sess logic.Session
	ev   *logic.Event

	// moving is true when the last door press was directional. A press on
	// a stationary door starts it, so only a moving door may be stopped.
	moving bool
}

// Execute runs cmd to completion and returns what happened. All waits are
// fixed sleeps except the vent loop, which is bounded by VentTimeout.
// Cancelling ctx cuts sleeps short; a vent that has started moving is
// always stopped.
func (c *Controller) Execute(ctx context.Context, cmd logic.Command) logic.Event {
	start := c.clock.Now()
	var first logic.Reading
	if cmd != logic.CommandLight && cmd != logic.CommandStop {
		first = c.sample()
	}
	m := &motion{
		c:    c,
		sess: logic.NewSession(cmd, first, start, c.cfg.VentSetpoint),
		ev: &logic.Event{
			Timestamp: start,
			Command:   cmd,
			Start:     first,
			End:       first,
		},
	}
	log.Printf("door: %s requested, position %v", cmd, first)

	var err error
	switch cmd {
	case logic.CommandLight:
		err = m.pulse(logic.PulseLight)
	case logic.CommandStop:
		err = m.pulse(logic.PulseStop)
	case logic.CommandUp, logic.CommandDown:
		err = m.move(ctx, cmd)
	case logic.CommandVent:
		err = m.vent(ctx)
	default:
		err = fmt.Errorf("unsupported command %s", cmd)
	}

	m.ev.Err = err
	m.ev.Duration = c.clock.Now().Sub(start)
	return *m.ev
}

func (m *motion) read() logic.Reading {
	r := m.c.sample()
	m.ev.End = r
	return r
}

func (m *motion) pulse(kind logic.PulseKind) error {
	if err := m.c.act.Pulse(kind); err != nil {
		return err
	}
	m.ev.Pulses = append(m.ev.Pulses, kind)
	switch kind {
	case logic.PulseUp, logic.PulseDown:
		m.moving = true
	case logic.PulseStop:
		m.moving = false
	}
	return nil
}

func pulseFor(dir logic.Command) logic.PulseKind {
	if dir == logic.CommandUp {
		return logic.PulseUp
	}
	return logic.PulseDown
}

// move issues a directional pulse, verifies travel after the settle delay
// and, if the door went the wrong way or not at all, assumes the pulse
// stopped it: stop, wait, and press once more.
func (m *motion) move(ctx context.Context, dir logic.Command) error {
	before := m.sess.StartPosition
	if err := m.pulse(pulseFor(dir)); err != nil {
		return err
	}
	if err := m.c.clock.Sleep(ctx, m.c.cfg.Settle); err != nil {
		return err
	}
	after := m.read()

	moved, ok := logic.MovedAsExpected(dir, before, after)
	if !ok {
		log.Printf("door: %s cannot verify travel (%v -> %v), no compensation", dir, before, after)
		return nil
	}
	if moved {
		log.Printf("door: %s moving (%v -> %v)", dir, before, after)
		return nil
	}

	log.Printf("door: %s judged stopped (%v -> %v), compensating", dir, before, after)
	m.ev.Compensated = true
	if err := m.pulse(logic.PulseStop); err != nil {
		return err
	}
	if err := m.c.clock.Sleep(ctx, m.c.cfg.Recovery); err != nil {
		return err
	}
	return m.pulse(pulseFor(dir))
}

// vent moves the door toward the setpoint and stops it once the setpoint is
// crossed or the timeout elapses, whichever comes first.
func (m *motion) vent(ctx context.Context) (err error) {
	target := *m.sess.Target
	dir := logic.VentDirection(m.sess.StartPosition, target)
	if dir == logic.CommandNone {
		if m.sess.StartPosition.Valid {
			m.ev.Vent = logic.VentAtTarget
			log.Printf("door: vent already at %v", m.sess.StartPosition)
		} else {
			m.ev.Vent = logic.VentSkipped
			log.Printf("door: vent skipped, position unavailable")
		}
		return nil
	}

	deadline := m.sess.StartTime.Add(m.c.cfg.VentTimeout)
	m.ev.Vent = logic.VentTimeout

	defer func() {
		// Stop whatever the outcome; the door must not run to its end stop.
		// A door that was never pressed, or is already stopped, is left
		// alone since a stop pulse would start it.
		if m.moving {
			if serr := m.pulse(logic.PulseStop); serr != nil && err == nil {
				err = serr
			}
		}
		m.c.act.Indicator(false)
	}()

	if err := m.move(ctx, dir); err != nil {
		return err
	}

	m.c.act.Indicator(true)
	for {
		r := m.read()
		log.Printf("door: vent position %v of %.0f", r, target)
		if !logic.Approaching(dir, r, target) {
			m.ev.Vent = logic.VentSetpoint
			return nil
		}
		if !m.c.clock.Now().Before(deadline) {
			log.Printf("door: vent timed out after %v", m.c.cfg.VentTimeout)
			return nil
		}
		if err := m.c.clock.Sleep(ctx, m.c.cfg.PollInterval); err != nil {
			return err
		}
	}
}
