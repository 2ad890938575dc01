// Package mqtt publishes door events and accepts remote commands over MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/garage/door"

// Topics are the MQTT topics under one prefix.
type Topics struct {
	Events  string // completed door commands
	System  string // lifecycle: STARTUP, SHUTDOWN, HEARTBEAT, RECONNECTED
	Command string // inbound commands
}

// NewTopics derives the topic set from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a door event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the door event details.
type DoorPayload struct {
	Timestamp   string   `json:"timestamp"`
	Command     string   `json:"command"`
	Status      string   `json:"status"`
	Start       *float64 `json:"start_in"`
	End         *float64 `json:"end_in"`
	Pulses      []string `json:"pulses"`
	Compensated bool     `json:"compensated"`
	Vent        string   `json:"vent,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

func inches(r logic.Reading) *float64 {
	if !r.Valid {
		return nil
	}
	v := math.Round(r.Inches*10) / 10
	return &v
}

// FormatPayload creates the JSON payload for a door event. The status is
// the classification of the final reading.
func FormatPayload(event logic.Event, th logic.Thresholds) ([]byte, error) {
	pulses := make([]string, len(event.Pulses))
	for i, p := range event.Pulses {
		pulses[i] = string(p)
	}
	payload := Payload{
		Door: DoorPayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Command:     event.Command.String(),
			Status:      string(th.Classify(event.End)),
			Start:       inches(event.Start),
			End:         inches(event.End),
			Pulses:      pulses,
			Compensated: event.Compensated,
			Vent:        string(event.Vent),
			DurationMs:  event.Duration.Milliseconds(),
		},
	}
	if event.Err != nil {
		payload.Door.Error = event.Err.Error()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// commandPayload is the JSON form accepted on the command topic.
type commandPayload struct {
	Command string `json:"command"`
}

// ParseCommand decodes a command message. Both a bare name ("UP") and
// {"command":"UP"} are accepted; names are case-insensitive.
func ParseCommand(payload []byte) (logic.Command, bool) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var cp commandPayload
		if err := json.Unmarshal([]byte(s), &cp); err != nil {
			return logic.CommandNone, false
		}
		s = cp.Command
	}
	return logic.ParseCommandName(strings.ToUpper(strings.TrimSpace(s)))
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(logic.Event) error { return nil }

// PublishSystem implements Publisher.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
