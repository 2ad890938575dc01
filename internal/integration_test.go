package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/sensor"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

const (
	pinUp    = 17
	pinDown  = 27
	pinVent  = 22
	pinLight = 23
)

type system struct {
	clock    *door.FakeClock
	outputs  *gpio.FakeOutputs
	distance *sensor.FakeDistance
	slot     *door.Slot
	router   *door.Router
	buttons  *gpio.FakeButtons
	tracker  *status.Tracker
	pub      *mqtt.FakePublisher
	worker   *door.Worker
	http     *httptest.Server
}

// newSystem wires the daemon the way main does, with fakes at every edge.
func newSystem(t *testing.T, readings ...logic.Reading) *system {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &system{
		clock:    door.NewFakeClock(start),
		outputs:  gpio.NewFakeOutputs(),
		distance: sensor.NewFakeDistance(readings...),
		slot:     door.NewSlot(),
		pub:      mqtt.NewFakePublisher(),
	}
	s.router = door.NewRouter(map[int]logic.Command{
		pinUp:    logic.CommandUp,
		pinDown:  logic.CommandDown,
		pinVent:  logic.CommandVent,
		pinLight: logic.CommandLight,
	}, logic.NewDebouncer(150*time.Millisecond), s.slot)
	s.buttons = gpio.NewFakeButtons(s.router.Pins(), s.router.HandleEdge)

	s.tracker = status.NewTracker(start, status.Config{GarageName: "Test Garage"}, logic.DefaultThresholds)
	s.tracker.SetPendingSource(s.slot.Pending)
	s.tracker.SetButtonSource(s.router.Stats)

	act := door.NewActuator(s.outputs.Outputs(), door.DefaultHold, s.clock)
	controller := door.NewController(act, s.distance, s.clock, door.DefaultSettings)
	controller.OnReading(s.tracker.SetReading)
	s.worker = door.NewWorker(s.slot, controller, door.Observers{s.tracker, publishObserver{s.pub}}, s.clock)

	s.http = httptest.NewServer(web.New("", s.tracker, s.slot, web.Options{Location: time.UTC}).Handler())
	t.Cleanup(s.http.Close)
	return s
}

type publishObserver struct {
	pub mqtt.Publisher
}

func (publishObserver) Started(logic.Command, time.Time) {}

func (p publishObserver) Finished(ev logic.Event) {
	p.pub.Publish(ev)
}

// runPending executes whatever the slot holds, as the worker loop would.
func (s *system) runPending(t *testing.T) logic.Event {
	t.Helper()
	cmd := s.slot.Take()
	if cmd == logic.CommandNone {
		t.Fatal("no pending command")
	}
	return s.worker.RunOnce(context.Background(), cmd)
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func (s *system) statusJSON(t *testing.T) status.StatusInner {
	t.Helper()
	resp, err := http.Get(s.http.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var st status.StatusJSON
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, body)
	}
	return st.Status
}

// TestIntegrationButtonToMQTT follows a button press through the router,
// slot, controller and relays to the tracker and published event.
func TestIntegrationButtonToMQTT(t *testing.T) {
	// Open at 20in; 50in after the settle delay means the door is closing.
	s := newSystem(t, logic.Inches(20), logic.Inches(50))

	if err := s.buttons.Press(pinDown, s.clock.Now()); err != nil {
		t.Fatalf("press: %v", err)
	}
	// Contact bounce inside the window is ignored.
	s.buttons.Press(pinDown, s.clock.Now().Add(20*time.Millisecond))

	if got := s.slot.Pending(); got != logic.CommandDown {
		t.Fatalf("pending: got %s, want DOWN", got)
	}
	ev := s.runPending(t)

	if ev.Err != nil {
		t.Fatalf("unexpected error: %v", ev.Err)
	}
	if len(ev.Pulses) != 1 || ev.Pulses[0] != logic.PulseDown || ev.Compensated {
		t.Errorf("expected single DOWN pulse, got %v compensated=%v", ev.Pulses, ev.Compensated)
	}
	if got := s.outputs.Door.Rises(); got != 1 {
		t.Errorf("door relay rises: got %d, want 1", got)
	}
	if accepted, rejected := s.router.Stats(); accepted != 1 || rejected != 1 {
		t.Errorf("router stats: got %d/%d, want 1/1", accepted, rejected)
	}

	if s.pub.EventCount() != 1 {
		t.Fatalf("expected 1 published event, got %d", s.pub.EventCount())
	}
	var payload mqtt.Payload
	if err := json.Unmarshal(s.pub.Payloads[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Door.Command != "DOWN" || payload.Door.Status != string(logic.StatusVented) {
		t.Errorf("unexpected payload: %s", s.pub.Payloads[0])
	}

	st := s.statusJSON(t)
	if st.Door != string(logic.StatusVented) {
		t.Errorf("status door: got %q, want Vented", st.Door)
	}
	if st.LastCommand == nil || st.LastCommand.Command != "DOWN" {
		t.Errorf("last_command: got %+v", st.LastCommand)
	}
	if st.Counts.ButtonPresses != 1 || st.Counts.ButtonBounces != 1 {
		t.Errorf("button counts: got %+v", st.Counts)
	}
	if st.Counts.Commands != 1 || st.Counts.Pulses != 1 {
		t.Errorf("counts: got %+v", st.Counts)
	}
}

// TestIntegrationWebVent submits the vent form and runs the maneuver.
func TestIntegrationWebVent(t *testing.T) {
	// Start 50in, moving after settle (60in), then past the 80in setpoint.
	s := newSystem(t, logic.Inches(50), logic.Inches(60), logic.Inches(82))

	resp, err := noRedirect().Get(s.http.URL + "/?DOOR=VENT")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	if st := s.statusJSON(t); st.Pending != "VENT" {
		t.Errorf("pending: got %q, want VENT", st.Pending)
	}

	ev := s.runPending(t)
	if ev.Vent != logic.VentSetpoint {
		t.Errorf("vent outcome: got %q, want SETPOINT", ev.Vent)
	}
	want := []logic.PulseKind{logic.PulseDown, logic.PulseStop}
	if len(ev.Pulses) != len(want) || ev.Pulses[0] != want[0] || ev.Pulses[1] != want[1] {
		t.Errorf("pulses: got %v, want %v", ev.Pulses, want)
	}
	if s.outputs.LED.Level() {
		t.Error("indicator should be off after vent")
	}

	st := s.statusJSON(t)
	if st.Pending != "" {
		t.Errorf("pending should be cleared, got %q", st.Pending)
	}
	if st.LastCommand == nil || st.LastCommand.Vent != "SETPOINT" {
		t.Errorf("last_command: got %+v", st.LastCommand)
	}
	if st.Distance == nil || *st.Distance != 82 {
		t.Errorf("distance_in: got %v, want 82", st.Distance)
	}
}

// TestIntegrationRefreshDoesNotCommand checks that reloading the status page
// never reaches the relays.
func TestIntegrationRefreshDoesNotCommand(t *testing.T) {
	s := newSystem(t, logic.Inches(90))

	for _, path := range []string{"/", "/?DOOR=up", "/index.json"} {
		resp, err := http.Get(s.http.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
	}
	if got := s.slot.Pending(); got != logic.CommandNone {
		t.Errorf("pending: got %s, want NONE", got)
	}
}

// TestIntegrationWorkerLoop runs the worker goroutine and waits for the
// tracker to report the finished command.
func TestIntegrationWorkerLoop(t *testing.T) {
	s := newSystem(t, logic.Inches(90))
	changes, cancelSub := s.tracker.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.worker.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := s.buttons.Press(pinLight, s.clock.Now()); err != nil {
		t.Fatalf("press: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		if last := s.tracker.Snapshot().Last; last != nil {
			if last.Command != logic.CommandLight {
				t.Errorf("last: got %s, want LIGHT", last.Command)
			}
			break
		}
		select {
		case <-changes:
		case <-timeout:
			t.Fatal("timed out waiting for command to finish")
		}
	}
	if got := s.outputs.Light.Rises(); got != 1 {
		t.Errorf("light relay rises: got %d, want 1", got)
	}
	if s.distance.Reads != 0 {
		t.Errorf("light should not read the sensor, got %d reads", s.distance.Reads)
	}
}
