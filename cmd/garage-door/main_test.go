package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/sensor"
	"github.com/sweeney/garage-door/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type loopHarness struct {
	distance *sensor.FakeDistance
	climate  *sensor.FakeClimate
	tracker  *status.Tracker
	pub      *mqtt.FakePublisher

	sample    chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	restart   chan string
	errCh     chan error
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &loopHarness{
		distance:  sensor.Static(90),
		climate:   &sensor.FakeClimate{Sample: sensor.Climate{Celsius: 20, Humidity: 40}},
		tracker:   status.NewTracker(start, status.Config{GarageName: "Test"}, logic.DefaultThresholds),
		pub:       mqtt.NewFakePublisher(),
		sample:    make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		restart:   make(chan string, 1),
		errCh:     make(chan error, 1),
	}
	deps := loopDeps{
		distance:   h.distance,
		climate:    h.climate,
		tracker:    h.tracker,
		publisher:  h.pub,
		mqttStatus: h.pub,
		now:        fakeClock(start, time.Second),
	}
	go func() {
		h.errCh <- runLoop(deps, h.sample, h.heartbeat, h.sig, h.restart)
	}()
	return h
}

// stop sends sig and waits for runLoop to return.
func (h *loopHarness) stop(sig os.Signal) error {
	h.sig <- sig
	return <-h.errCh
}

func TestRunLoopShutdown(t *testing.T) {
	h := newLoopHarness(t)
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	ev := h.pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}
	if !strings.Contains(string(ev.RawPayload), `"reason":"SIGTERM"`) {
		t.Errorf("shutdown payload missing reason: %s", ev.RawPayload)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := newLoopHarness(t)
	if err := h.stop(syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if got := h.pub.SystemEvents[0].Reason; got != "SIGINT" {
		t.Errorf("reason: got %q, want SIGINT", got)
	}
}

func TestRunLoopSampleUpdatesTracker(t *testing.T) {
	h := newLoopHarness(t)
	h.sample <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	snap := h.tracker.Snapshot()
	if snap.Position != logic.Inches(90) {
		t.Errorf("Position: got %v, want 90.0in", snap.Position)
	}
	if snap.Door != logic.StatusClosed {
		t.Errorf("Door: got %s, want Closed", snap.Door)
	}
	if !snap.HasClimate || snap.Climate.Celsius != 20 {
		t.Errorf("climate not recorded: %+v", snap.Climate)
	}
	if len(h.pub.Events) != 0 {
		t.Errorf("sampling must not publish door events, got %d", len(h.pub.Events))
	}
}

func TestRunLoopSampleSkippedWhileBusy(t *testing.T) {
	h := newLoopHarness(t)
	h.tracker.Started(logic.CommandDown, time.Now())
	h.sample <- time.Time{}
	h.sample <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if h.distance.Reads != 0 {
		t.Errorf("expected no sensor reads while a command runs, got %d", h.distance.Reads)
	}
}

func TestRunLoopClimateError(t *testing.T) {
	h := newLoopHarness(t)
	h.climate.Err = errors.New("bus fault")
	h.sample <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if h.tracker.Snapshot().HasClimate {
		t.Error("failed climate read should clear HasClimate")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newLoopHarness(t)
	h.heartbeat <- time.Time{}
	h.heartbeat <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	got := h.pub.SystemEventNames()
	want := []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("system events: got %v, want %v", got, want)
	}
	hb := h.pub.SystemEvents[0]
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
	if !bytes.Contains(hb.RawPayload, []byte("HEARTBEAT")) {
		t.Errorf("heartbeat payload: %s", hb.RawPayload)
	}
}

func TestRunLoopRefreshesMQTTState(t *testing.T) {
	h := newLoopHarness(t)
	h.pub.Connected = true
	h.heartbeat <- time.Time{}
	if err := h.stop(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if !h.tracker.Snapshot().MQTTConnected {
		t.Error("expected tracker to report MQTT connected")
	}
}

func TestRunLoopRestart(t *testing.T) {
	h := newLoopHarness(t)
	h.restart <- "ping failed"
	err := <-h.errCh
	if err == nil {
		t.Fatal("expected error on restart")
	}
	if !strings.Contains(err.Error(), "ping failed") {
		t.Errorf("error should carry the reason: %v", err)
	}
	if len(h.pub.SystemEvents) != 0 {
		t.Errorf("restart should not publish SHUTDOWN, got %v", h.pub.SystemEventNames())
	}
}

func TestRunLoopNilMQTTStatus(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{}, logic.DefaultThresholds)
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	err := runLoop(loopDeps{
		distance:  sensor.Absent{},
		climate:   sensor.NoClimate{},
		tracker:   tracker,
		publisher: mqtt.NopPublisher{},
		now:       time.Now,
	}, nil, nil, sig, nil)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestEventPublisherForwardsFinished(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	ep := eventPublisher{pub}
	ep.Started(logic.CommandUp, time.Now())
	if pub.EventCount() != 0 {
		t.Fatal("Started should not publish")
	}
	ep.Finished(logic.Event{Command: logic.CommandUp, Pulses: []logic.PulseKind{logic.PulseUp}})
	if pub.EventCount() != 1 {
		t.Fatalf("expected 1 event, got %d", pub.EventCount())
	}
}

func TestOverridesApply(t *testing.T) {
	cfg := config.Default()
	overrides{
		httpAddr: ":8080",
		broker:   "tcp://broker:1883",
		debounce: 300 * time.Millisecond,
		pingURL:  "off",
	}.apply(&cfg)

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr: got %q", cfg.HTTP.Addr)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.Door.DebounceMs != 300 {
		t.Errorf("DebounceMs: got %d, want 300", cfg.Door.DebounceMs)
	}
	if cfg.Liveness.URL != "" {
		t.Errorf("Liveness.URL: got %q, want disabled", cfg.Liveness.URL)
	}
}

func TestOverridesEmptyKeepsConfig(t *testing.T) {
	cfg := config.Default()
	want := config.Default()
	overrides{}.apply(&cfg)
	if cfg.HTTP.Addr != want.HTTP.Addr || cfg.Liveness.URL != want.Liveness.URL || cfg.Door.DebounceMs != want.Door.DebounceMs {
		t.Errorf("empty overrides changed config: %+v", cfg)
	}

	overrides{httpAddr: "off", broker: "off"}.apply(&cfg)
	if cfg.HTTP.Addr != "" || cfg.MQTT.Broker != "" {
		t.Errorf("off should disable: http=%q broker=%q", cfg.HTTP.Addr, cfg.MQTT.Broker)
	}
}

func TestReadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.json")
	if err := os.WriteFile(path, []byte(`{"version": 7}`), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := readVersion(path)
	if err != nil {
		t.Fatalf("readVersion: %v", err)
	}
	if v != 7 {
		t.Errorf("got %d, want 7", v)
	}
}

func TestReadVersionErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := readVersion(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readVersion(bad); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestPrintDoorState(t *testing.T) {
	var buf bytes.Buffer
	climate := &sensor.FakeClimate{Sample: sensor.Climate{Celsius: 25, Humidity: 50}}
	if err := printDoorState(&buf, sensor.Static(20), climate, logic.DefaultThresholds); err != nil {
		t.Fatal(err)
	}
	want := "Door: Open (20.0in)\nClimate: 77.0F 50.0%\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDoorStateNoSensors(t *testing.T) {
	var buf bytes.Buffer
	if err := printDoorState(&buf, sensor.Absent{}, sensor.NoClimate{}, logic.DefaultThresholds); err != nil {
		t.Fatal(err)
	}
	want := "Door: Unknown (unavailable)\nClimate: n/a\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
