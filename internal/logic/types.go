// Package logic contains pure business logic for garage door control.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Command is a logical door command produced by a button, HTTP or MQTT.
type Command int32

const (
	CommandNone Command = iota
	CommandUp
	CommandDown
	CommandVent
	CommandLight
	CommandStop
)

var commandNames = map[Command]string{
	CommandNone:  "NONE",
	CommandUp:    "UP",
	CommandDown:  "DOWN",
	CommandVent:  "VENT",
	CommandLight: "LIGHT",
	CommandStop:  "STOP",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%d)", int32(c))
}

// ParseCommandName maps "UP", "DOWN", "VENT", "LIGHT" or "STOP" to a Command.
// Anything else yields CommandNone and false.
func ParseCommandName(s string) (Command, bool) {
	for c, name := range commandNames {
		if c != CommandNone && name == s {
			return c, true
		}
	}
	return CommandNone, false
}

// PulseKind selects which output the actuator pulses.
type PulseKind string

const (
	PulseStop  PulseKind = "STOP"
	PulseUp    PulseKind = "UP"
	PulseDown  PulseKind = "DOWN"
	PulseLight PulseKind = "LIGHT"
)

// DoorStatus is the door position inferred from a distance reading.
type DoorStatus string

const (
	StatusOpen    DoorStatus = "Open"
	StatusClosed  DoorStatus = "Closed"
	StatusVented  DoorStatus = "Vented"
	StatusUnknown DoorStatus = "Unknown"
)

// VentOutcome records how a vent maneuver ended.
type VentOutcome string

const (
	VentNone     VentOutcome = ""
	VentSetpoint VentOutcome = "SETPOINT"
	VentTimeout  VentOutcome = "TIMEOUT"
	VentAtTarget VentOutcome = "AT_TARGET"
	VentSkipped  VentOutcome = "SKIPPED"
)

// Session is the ephemeral state of one executing command.
type Session struct {
	Command       Command
	StartPosition Reading
	StartTime     time.Time
	Target        *float64 // vent setpoint, nil for other commands
}

// NewSession starts a session for cmd. target is only kept for CommandVent.
func NewSession(cmd Command, start Reading, now time.Time, target float64) Session {
	s := Session{Command: cmd, StartPosition: start, StartTime: now}
	if cmd == CommandVent {
		t := target
		s.Target = &t
	}
	return s
}

// Event describes a completed command.
type Event struct {
	Timestamp   time.Time
	Command     Command
	Start       Reading
	End         Reading
	Pulses      []PulseKind
	Compensated bool
	Vent        VentOutcome
	Duration    time.Duration
	Err         error
}

// Counts tracks activity since startup.
type Counts struct {
	Commands      int
	Pulses        int
	Compensations int
	VentTimeouts  int
}

// Add folds a completed event into the counts.
func (c *Counts) Add(e Event) {
	c.Commands++
	c.Pulses += len(e.Pulses)
	if e.Compensated {
		c.Compensations++
	}
	if e.Vent == VentTimeout {
		c.VentTimeouts++
	}
}
