package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Garage        string           `json:"garage"`
	Door          string           `json:"door"`
	Distance      *float64         `json:"distance_in"`
	TemperatureF  *float64         `json:"temperature_f,omitempty"`
	Humidity      *float64         `json:"humidity,omitempty"`
	Busy          string           `json:"busy,omitempty"`
	Pending       string           `json:"pending,omitempty"`
	LastCommand   *LastCommandJSON `json:"last_command,omitempty"`
	Version       int              `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Counts        CountsJSON       `json:"counts"`
	Liveness      LivenessJSON     `json:"liveness"`
	Network       *NetworkJSON     `json:"network,omitempty"`
	Config        ConfigJSON       `json:"config"`
}

// LastCommandJSON summarises the most recent completed command.
type LastCommandJSON struct {
	Command     string   `json:"command"`
	Timestamp   string   `json:"timestamp"`
	Pulses      []string `json:"pulses"`
	Compensated bool     `json:"compensated"`
	Vent        string   `json:"vent,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of command counts.
type CountsJSON struct {
	Commands      int    `json:"commands"`
	Pulses        int    `json:"pulses"`
	Compensations int    `json:"compensations"`
	VentTimeouts  int    `json:"vent_timeouts"`
	ButtonPresses uint64 `json:"button_presses"`
	ButtonBounces uint64 `json:"button_bounces"`
}

// LivenessJSON is the JSON representation of the ping loop.
type LivenessJSON struct {
	LastPing   string `json:"last_ping,omitempty"`
	IntervalS  int64  `json:"interval_s"`
	Failures   int    `json:"failures"`
	PingTarget string `json:"url,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs   int64   `json:"debounce_ms"`
	HoldMs       int64   `json:"hold_ms"`
	VentSetpoint float64 `json:"vent_setpoint_in"`
	VentTimeoutS int64   `json:"vent_timeout_s"`
	Broker       string  `json:"broker"`
	HTTPAddr     string  `json:"http_addr"`
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}

// LastCommand converts an event for JSON output.
func LastCommand(ev logic.Event) *LastCommandJSON {
	pulses := make([]string, len(ev.Pulses))
	for i, p := range ev.Pulses {
		pulses[i] = string(p)
	}
	lc := &LastCommandJSON{
		Command:     ev.Command.String(),
		Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		Pulses:      pulses,
		Compensated: ev.Compensated,
		Vent:        string(ev.Vent),
		DurationMs:  ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		lc.Error = ev.Err.Error()
	}
	return lc
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Garage:        snap.Config.GarageName,
		Door:          string(snap.Door),
		Version:       snap.Version,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commands:      snap.Counts.Commands,
			Pulses:        snap.Counts.Pulses,
			Compensations: snap.Counts.Compensations,
			VentTimeouts:  snap.Counts.VentTimeouts,
			ButtonPresses: snap.ButtonPresses,
			ButtonBounces: snap.ButtonBounces,
		},
		Liveness: LivenessJSON{
			IntervalS:  int64(snap.Liveness.Interval.Seconds()),
			Failures:   snap.Liveness.Failures,
			PingTarget: snap.Config.PingURL,
		},
		Config: ConfigJSON{
			DebounceMs:   snap.Config.DebounceMs,
			HoldMs:       snap.Config.HoldMs,
			VentSetpoint: snap.Config.VentSetpoint,
			VentTimeoutS: snap.Config.VentTimeoutS,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if inner.Door == "" {
		inner.Door = string(logic.StatusUnknown)
	}
	if snap.Position.Valid {
		inner.Distance = round1(snap.Position.Inches)
	}
	if snap.HasClimate {
		inner.TemperatureF = round1(snap.Climate.Fahrenheit())
		inner.Humidity = round1(snap.Climate.Humidity)
	}
	if snap.Busy != logic.CommandNone {
		inner.Busy = snap.Busy.String()
	}
	if snap.Pending != logic.CommandNone {
		inner.Pending = snap.Pending.String()
	}
	if snap.Last != nil {
		inner.LastCommand = LastCommand(*snap.Last)
	}
	if !snap.Liveness.LastPing.IsZero() {
		inner.Liveness.LastPing = snap.Liveness.LastPing.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
