// Package sensor reads the ranging and climate sensors.
// Hardware faults never propagate out of a distance read: they degrade to an
// unavailable reading so the control loop keeps running.
package sensor

import (
	"errors"

	"github.com/sweeney/garage-door/internal/logic"
)

// Distance reads the door distance.
type Distance interface {
	// Read returns a fresh reading, or logic.Unavailable() on fault.
	Read() logic.Reading
}

// Climate is a temperature and humidity sample.
type Climate struct {
	Celsius  float64
	Humidity float64 // percent relative humidity
}

// Fahrenheit converts the temperature for display.
func (c Climate) Fahrenheit() float64 {
	return c.Celsius*9/5 + 32
}

// ClimateReader reads the climate sensor.
type ClimateReader interface {
	Read() (Climate, error)
}

// ErrNoDevice is returned when a sensor does not answer on the bus.
var ErrNoDevice = errors.New("no device")

// Absent is a Distance used when no ranging sensor was found at startup.
type Absent struct{}

// Read always returns an unavailable reading.
func (Absent) Read() logic.Reading {
	return logic.Unavailable()
}

// NoClimate is a ClimateReader used when no climate sensor was found.
type NoClimate struct{}

// Read always fails with ErrNoDevice.
func (NoClimate) Read() (Climate, error) {
	return Climate{}, ErrNoDevice
}
