// Package gpio provides GPIO output control and edge-triggered input
// watching with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Pin is a single digital output.
type Pin interface {
	// Set drives the output: true = high (energized), false = low.
	Set(on bool) error
}

// Outputs groups the outputs the actuator drives.
type Outputs struct {
	Relay Pin // shared relay gating the door and light outputs
	Door  Pin // door control button emulation
	Light Pin // light relay
	LED   Pin // indicator
}

// OutputPins holds the line offsets for each output.
type OutputPins struct {
	Relay int
	Door  int
	Light int
	LED   int
}

// Edge is a falling edge observed on an input line.
type Edge struct {
	Pin  int
	Time time.Time
}

// EdgeHandler is called for every falling edge. It runs on the GPIO
// library's event goroutine and must not block.
type EdgeHandler func(Edge)

// Buttons watches a set of active-low input lines.
type Buttons interface {
	// Close stops watching and releases the lines.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip = "gpiochip0"

	DefaultPinDoor  = 18
	DefaultPinRelay = 20
	DefaultPinLight = 22
	DefaultPinLED   = 21

	DefaultPinButtonLight = 10
	DefaultPinButtonUp    = 11
	DefaultPinButtonDown  = 12
	DefaultPinButtonVent  = 13
)
