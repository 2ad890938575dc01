// Command garage-door drives a garage door opener from buttons, a web page
// and MQTT, using a ranging sensor to confirm the door actually moved.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/liveness"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/sensor"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

// LED patterns shown once at startup.
const (
	blinkReadyPeriod = 500 * time.Millisecond
	blinkReadyCount  = 2
	blinkFailPeriod  = 100 * time.Millisecond
	blinkFailCount   = 10
)

// overrides are command-line values that replace config file settings.
// Empty/zero values leave the config untouched; "off" disables a feature.
type overrides struct {
	httpAddr string
	broker   string
	debounce time.Duration
	pingURL  string
}

func (o overrides) apply(cfg *config.Config) {
	switch o.httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = o.httpAddr
	}
	switch o.broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = o.broker
	}
	if o.debounce > 0 {
		cfg.Door.DebounceMs = int(o.debounce / time.Millisecond)
	}
	switch o.pingURL {
	case "":
	case "off":
		cfg.Liveness.URL = ""
	default:
		cfg.Liveness.URL = o.pingURL
	}
}

func main() {
	cfgPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	httpAddr := flag.String("http", "", `HTTP address, overrides config ("off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address, overrides config ("off" disables)`)
	debounce := flag.Duration("debounce", 0, "Button debounce window, overrides config")
	pingURL := flag.String("ping-url", "", `Liveness ping URL, overrides config ("off" disables)`)
	printState := flag.Bool("print-state", false, "Print current door state and exit")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	overrides{httpAddr: *httpAddr, broker: *broker, debounce: *debounce, pingURL: *pingURL}.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// openSensors probes the I2C bus. Missing devices are not fatal: the
// controller runs without position feedback.
func openSensors(cfg config.Config) (sensor.Distance, sensor.ClimateReader, io.Closer) {
	bus, err := sensor.OpenBus(cfg.I2C.Bus)
	if err != nil {
		log.Printf("sensor: %v, running without sensors", err)
		return sensor.Absent{}, sensor.NoClimate{}, io.NopCloser(nil)
	}

	var distance sensor.Distance = sensor.Absent{}
	if rs, err := sensor.NewRangeSensor(bus); err != nil {
		log.Printf("sensor: %v, running without position feedback", err)
	} else {
		distance = rs
	}

	var climate sensor.ClimateReader = sensor.NoClimate{}
	if cs, err := sensor.NewClimateSensor(bus, cfg.I2C.ClimateAddr); err != nil {
		log.Printf("sensor: %v, running without climate", err)
	} else {
		climate = cs
	}
	return distance, climate, bus
}

func run(cfg config.Config, printState bool) error {
	distance, climate, bus := openSensors(cfg)
	defer bus.Close()

	if printState {
		return printDoorState(os.Stdout, distance, climate, cfg.Thresholds())
	}

	outputs, err := gpio.NewRealOutputs(cfg.GPIO.Chip, cfg.OutputPins())
	if err != nil {
		return fmt.Errorf("init gpio outputs: %w", err)
	}
	defer outputs.Close()

	clock := door.RealClock
	act := door.NewActuator(outputs.Outputs, cfg.Hold(), clock)

	slot := door.NewSlot()
	router := door.NewRouter(cfg.Bindings(), logic.NewDebouncer(cfg.Debounce()), slot)
	buttons, err := gpio.NewRealButtons(cfg.GPIO.Chip, router.Pins(), router.HandleEdge)
	if err != nil {
		act.Blink(context.Background(), blinkFailPeriod, blinkFailCount)
		return fmt.Errorf("init gpio buttons: %w", err)
	}
	defer buttons.Close()
	act.Blink(context.Background(), blinkReadyPeriod, blinkReadyCount)

	tracker := status.NewTracker(time.Now(), status.Config{
		GarageName:   cfg.GarageName,
		DebounceMs:   cfg.Debounce().Milliseconds(),
		HoldMs:       cfg.Hold().Milliseconds(),
		VentSetpoint: cfg.Settings().VentSetpoint,
		VentTimeoutS: int64(cfg.Settings().VentTimeout.Seconds()),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		PingURL:      cfg.Liveness.URL,
	}, cfg.Thresholds())
	tracker.SetPendingSource(slot.Pending)
	tracker.SetButtonSource(router.Stats)
	if v, err := readVersion(cfg.VersionFile); err != nil {
		log.Printf("version: %v", err)
	} else {
		tracker.SetVersion(v)
	}
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetReading(distance.Read(), time.Now())

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Prefix:     cfg.MQTT.Prefix,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
			Thresholds: cfg.Thresholds(),
			OnCommand: func(cmd logic.Command) {
				if prev := slot.Offer(cmd); prev != logic.CommandNone {
					log.Printf("mqtt: %s replaces pending %s", cmd, prev)
				}
			},
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := door.NewController(act, distance, clock, cfg.Settings())
	controller.OnReading(tracker.SetReading)
	worker := door.NewWorker(slot, controller, door.Observers{tracker, eventPublisher{publisher}}, clock)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	// Let an in-flight motion finish its stop pulse before outputs close.
	defer wg.Wait()
	defer cancel()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, slot, web.Options{
			Users:    cfg.HTTP.Users,
			Location: cfg.Location(),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTP.Addr)
	}

	restart := make(chan string, 1)
	if cfg.Liveness.URL != "" {
		var restarter liveness.Restarter = liveness.RestarterFunc(func(reason string) {
			select {
			case restart <- reason:
			default:
			}
		})
		if cfg.Liveness.Reboot {
			restarter = liveness.RebootRestarter{Fallback: restarter}
		}
		pinger := liveness.New(cfg.PingConfig(), restarter, tracker)
		go pinger.Run(ctx)
	}

	log.Printf("started: garage=%q debounce=%v hold=%v vent=%.0fin/%v broker=%q",
		cfg.GarageName, cfg.Debounce(), cfg.Hold(), cfg.Settings().VentSetpoint, cfg.Settings().VentTimeout, cfg.MQTT.Broker)

	sample := time.NewTicker(cfg.SampleInterval())
	defer sample.Stop()
	var heartbeat <-chan time.Time
	if hb := cfg.Heartbeat(); hb > 0 {
		t := time.NewTicker(hb)
		defer t.Stop()
		heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		distance:   distance,
		climate:    climate,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		now:        time.Now,
	}, sample.C, heartbeat, sigCh, restart)
}

// eventPublisher forwards completed commands to MQTT.
type eventPublisher struct {
	pub mqtt.Publisher
}

func (eventPublisher) Started(logic.Command, time.Time) {}

func (e eventPublisher) Finished(ev logic.Event) {
	if err := e.pub.Publish(ev); err != nil {
		log.Printf("publish error: %v", err)
	}
}

type loopDeps struct {
	distance   sensor.Distance
	climate    sensor.ClimateReader
	tracker    *status.Tracker
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	now        func() time.Time
}

// runLoop samples the sensors for the status page, publishes heartbeats
// and waits for shutdown. Door motion happens on the worker goroutine.
func runLoop(d loopDeps, sample, heartbeat <-chan time.Time, sig <-chan os.Signal, restart <-chan string) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			d.refreshMQTT()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			return nil

		case reason := <-restart:
			return fmt.Errorf("liveness lost, restarting: %s", reason)

		case <-sample:
			d.refreshMQTT()
			// The controller owns the sensor while a command runs and
			// reports its own readings to the tracker.
			if d.tracker.Snapshot().Busy != logic.CommandNone {
				continue
			}
			d.tracker.SetReading(d.distance.Read(), d.now())
			c, err := d.climate.Read()
			if err != nil && !errors.Is(err, sensor.ErrNoDevice) {
				log.Printf("climate read error: %v", err)
			}
			d.tracker.SetClimate(c, err == nil)

		case <-heartbeat:
			d.refreshMQTT()
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v door=%s commands=%d compensations=%d buttons=%d bounces=%d",
				snap.Uptime().Truncate(time.Second), snap.Door, snap.Counts.Commands, snap.Counts.Compensations,
				snap.ButtonPresses, snap.ButtonBounces)
			hb := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := d.publisher.PublishSystem(hb); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func (d loopDeps) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func printDoorState(w io.Writer, distance sensor.Distance, climate sensor.ClimateReader, th logic.Thresholds) error {
	r := distance.Read()
	fmt.Fprintf(w, "Door: %s (%v)\n", th.Classify(r), r)
	c, err := climate.Read()
	if err != nil {
		fmt.Fprintf(w, "Climate: n/a\n")
		return nil
	}
	fmt.Fprintf(w, "Climate: %.1fF %.1f%%\n", c.Fahrenheit(), c.Humidity)
	return nil
}

// versionFile is the layout of version.json shipped with each release.
type versionFile struct {
	Version int `json:"version"`
}

func readVersion(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	var v versionFile
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v.Version, nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
