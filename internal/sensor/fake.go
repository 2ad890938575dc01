package sensor

import (
	"sync"

	"github.com/sweeney/garage-door/internal/logic"
)

// FakeDistance is a test double that returns scripted readings.
type FakeDistance struct {
	mu sync.Mutex

	// Readings contains scripted values. Each call to Read() consumes the
	// next one; once exhausted the last value repeats.
	Readings []logic.Reading

	index int

	// Reads counts calls to Read.
	Reads int
}

// NewFakeDistance creates a FakeDistance returning readings in order.
func NewFakeDistance(readings ...logic.Reading) *FakeDistance {
	return &FakeDistance{Readings: readings}
}

// Static creates a FakeDistance stuck at one value.
func Static(inches float64) *FakeDistance {
	return NewFakeDistance(logic.Inches(inches))
}

// Read returns the next scripted reading, or unavailable if none are set.
func (f *FakeDistance) Read() logic.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if len(f.Readings) == 0 {
		return logic.Unavailable()
	}
	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r
}

// Set replaces the script with a single repeating value.
func (f *FakeDistance) Set(r logic.Reading) {
	f.mu.Lock()
	f.Readings = []logic.Reading{r}
	f.index = 0
	f.mu.Unlock()
}

// FakeClimate returns a fixed sample or error.
type FakeClimate struct {
	Sample Climate
	Err    error
}

// Read returns the configured sample.
func (f *FakeClimate) Read() (Climate, error) {
	if f.Err != nil {
		return Climate{}, f.Err
	}
	return f.Sample, nil
}
