package sensor

import (
	"fmt"
	"log"
	"sync"

	"github.com/sweeney/garage-door/internal/logic"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers/bme280"
	"tinygo.org/x/drivers/vl53l1x"
)

// Default I2C addresses.
const (
	AddrRange   = 0x29
	AddrClimate = 0x77
)

// Bus is an opened I2C bus. It satisfies tinygo.org/x/drivers.I2C so the
// TinyGo device drivers run on top of periph.io.
type Bus struct {
	mu  sync.Mutex
	bus i2c.BusCloser
}

// OpenBus initializes the host drivers and opens the named bus ("" picks
// the first available bus).
func OpenBus(name string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return &Bus{bus: b}, nil
}

// Tx performs a write then read transaction with the device at addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Tx(addr, w, r)
}

// Close releases the bus.
func (b *Bus) Close() error {
	return b.bus.Close()
}

// ranger is the subset of the VL53L1X driver the adapter uses.
type ranger interface {
	Connected() bool
	Read(blocking bool) uint16
}

// RangeSensor is the VL53L1X time-of-flight distance adapter.
type RangeSensor struct {
	mu  sync.Mutex
	dev ranger
}

// NewRangeSensor configures a VL53L1X in continuous ranging mode.
func NewRangeSensor(bus *Bus) (*RangeSensor, error) {
	dev := vl53l1x.New(bus)
	if !dev.Connected() {
		return nil, fmt.Errorf("vl53l1x at 0x%02x: %w", AddrRange, ErrNoDevice)
	}
	if !dev.Configure(true) {
		return nil, fmt.Errorf("vl53l1x: configure failed")
	}
	dev.SetMeasurementTimingBudget(50000)
	dev.StartContinuous(50)
	return &RangeSensor{dev: &dev}, nil
}

// Read returns the distance in inches, or an unavailable reading if the
// device stopped answering or timed out.
func (s *RangeSensor) Read() logic.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dev.Connected() {
		log.Printf("sensor: distance sensor not detected")
		return logic.Unavailable()
	}
	mm := s.dev.Read(true)
	if mm == 0 {
		// The driver reports 0 on a measurement timeout.
		log.Printf("sensor: distance measurement timed out")
		return logic.Unavailable()
	}
	return logic.FromMillimeters(float64(mm))
}

// climateDevice is the subset of the BME280 driver the adapter uses.
type climateDevice interface {
	Connected() bool
	ReadTemperature() (int32, error)
	ReadHumidity() (int32, error)
}

// ClimateSensor reads a BME280.
type ClimateSensor struct {
	mu  sync.Mutex
	dev climateDevice
}

// NewClimateSensor configures a BME280 at addr.
func NewClimateSensor(bus *Bus, addr uint16) (*ClimateSensor, error) {
	dev := bme280.New(bus)
	dev.Address = addr
	if !dev.Connected() {
		return nil, fmt.Errorf("bme280 at 0x%02x: %w", addr, ErrNoDevice)
	}
	dev.Configure()
	return &ClimateSensor{dev: &dev}, nil
}

// Read returns temperature and humidity.
func (s *ClimateSensor) Read() (Climate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	milliC, err := s.dev.ReadTemperature()
	if err != nil {
		return Climate{}, fmt.Errorf("read temperature: %w", err)
	}
	centiRH, err := s.dev.ReadHumidity()
	if err != nil {
		return Climate{}, fmt.Errorf("read humidity: %w", err)
	}
	return Climate{
		Celsius:  float64(milliC) / 1000,
		Humidity: float64(centiRH) / 100,
	}, nil
}
