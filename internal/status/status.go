// Package status provides a thread-safe status tracker for the garage-door
// daemon. It is read by the HTTP handlers, the websocket feed and the MQTT
// heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/sensor"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	GarageName   string
	DebounceMs   int64
	HoldMs       int64
	VentSetpoint float64
	VentTimeoutS int64
	Broker       string
	HTTPAddr     string
	PingURL      string
}

// Liveness is the state of the remote ping loop.
type Liveness struct {
	LastPing time.Time
	Interval time.Duration
	Failures int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Position   logic.Reading
	Door       logic.DoorStatus
	ReadAt     time.Time
	Climate    sensor.Climate
	HasClimate bool

	Busy      logic.Command // command in motion, CommandNone when idle
	BusySince time.Time
	Pending   logic.Command
	Last      *logic.Event
	Counts    logic.Counts

	// Button edges accepted into the slot and rejected by the debouncer.
	ButtonPresses uint64
	ButtonBounces uint64

	Version       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Liveness      Liveness
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Every mutation
// notifies subscribers so the websocket feed can push without polling.
type Tracker struct {
	mu         sync.RWMutex
	snap       Snapshot
	thresholds logic.Thresholds
	pending    func() logic.Command
	buttons    func() (accepted, rejected uint64)

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, thresholds logic.Thresholds) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Door:      logic.StatusUnknown,
			StartTime: startTime,
			Config:    cfg,
		},
		thresholds: thresholds,
		subs:       make(map[chan struct{}]struct{}),
	}
}

// SetPendingSource installs the function used to report the pending
// command (normally Slot.Pending).
func (t *Tracker) SetPendingSource(fn func() logic.Command) {
	t.mu.Lock()
	t.pending = fn
	t.mu.Unlock()
}

// SetButtonSource installs the function used to report button counters
// (normally Router.Stats).
func (t *Tracker) SetButtonSource(fn func() (accepted, rejected uint64)) {
	t.mu.Lock()
	t.buttons = fn
	t.mu.Unlock()
}

// SetReading records the latest distance and derives the door status.
func (t *Tracker) SetReading(r logic.Reading, at time.Time) {
	t.mu.Lock()
	changed := t.snap.Position != r
	t.snap.Position = r
	t.snap.Door = t.thresholds.Classify(r)
	t.snap.ReadAt = at
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// SetClimate records a climate sample. ok=false marks the sensor absent.
func (t *Tracker) SetClimate(c sensor.Climate, ok bool) {
	t.mu.Lock()
	changed := t.snap.Climate != c || t.snap.HasClimate != ok
	t.snap.Climate = c
	t.snap.HasClimate = ok
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Started marks cmd as in motion.
func (t *Tracker) Started(cmd logic.Command, at time.Time) {
	t.mu.Lock()
	t.snap.Busy = cmd
	t.snap.BusySince = at
	t.mu.Unlock()
	t.notify()
}

// Finished records a completed command.
func (t *Tracker) Finished(ev logic.Event) {
	t.mu.Lock()
	t.snap.Busy = logic.CommandNone
	t.snap.BusySince = time.Time{}
	t.snap.Last = &ev
	t.snap.Counts.Add(ev)
	if ev.End.Valid {
		t.snap.Position = ev.End
		t.snap.Door = t.thresholds.Classify(ev.End)
		t.snap.ReadAt = ev.Timestamp.Add(ev.Duration)
	}
	t.mu.Unlock()
	t.notify()
}

// SetVersion sets the firmware version shown on the page.
func (t *Tracker) SetVersion(v int) {
	t.mu.Lock()
	t.snap.Version = v
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// PingSucceeded records a successful liveness ping and the next interval.
func (t *Tracker) PingSucceeded(at time.Time, next time.Duration) {
	t.mu.Lock()
	t.snap.Liveness.LastPing = at
	t.snap.Liveness.Interval = next
	t.mu.Unlock()
}

// PingFailed counts a failed liveness ping.
func (t *Tracker) PingFailed() {
	t.mu.Lock()
	t.snap.Liveness.Failures++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	pending := t.pending
	buttons := t.buttons
	t.mu.RUnlock()
	if s.Last != nil {
		ev := *s.Last
		s.Last = &ev
	}
	if pending != nil {
		s.Pending = pending()
	}
	if buttons != nil {
		s.ButtonPresses, s.ButtonBounces = buttons()
	}
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce; a slow reader sees one pending signal. Call the
// returned function to unsubscribe.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()
	return ch, func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
