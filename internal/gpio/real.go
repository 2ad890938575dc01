//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

type linePin struct {
	line *gpiocdev.Line
}

func (p linePin) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return p.line.SetValue(v)
}

// RealOutputs drives output lines on actual hardware using the Linux GPIO
// character device.
type RealOutputs struct {
	Outputs
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealOutputs requests all output lines, initially low.
func NewRealOutputs(chipName string, pins OutputPins) (*RealOutputs, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	o := &RealOutputs{chip: chip}
	request := func(name string, offset int) (Pin, error) {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, offset, err)
		}
		o.lines = append(o.lines, line)
		return linePin{line: line}, nil
	}

	if o.Relay, err = request("relay", pins.Relay); err != nil {
		o.Close()
		return nil, err
	}
	if o.Door, err = request("door", pins.Door); err != nil {
		o.Close()
		return nil, err
	}
	if o.Light, err = request("light", pins.Light); err != nil {
		o.Close()
		return nil, err
	}
	if o.LED, err = request("led", pins.LED); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// Close drives every output low, then reconfigures the lines as inputs with
// pull-down (matching Pi boot defaults) before releasing them so the relay
// cannot latch across a restart.
func (o *RealOutputs) Close() error {
	var errs []error
	for _, line := range o.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", line.Offset(), err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	o.lines = nil
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		o.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealButtons watches active-low push buttons for falling edges.
type RealButtons struct {
	lines *gpiocdev.Lines
}

// NewRealButtons requests the input lines with pull-up bias and falling-edge
// detection. handler receives one Edge per kernel event.
func NewRealButtons(chipName string, pins []int, handler EdgeHandler) (*RealButtons, error) {
	lines, err := gpiocdev.RequestLines(chipName, pins,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(Edge{Pin: evt.Offset, Time: time.Now()})
		}))
	if err != nil {
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}
	return &RealButtons{lines: lines}, nil
}

// Close releases the input lines.
func (b *RealButtons) Close() error {
	if b.lines == nil {
		return nil
	}
	err := b.lines.Close()
	b.lines = nil
	if err != nil {
		return fmt.Errorf("close button pins: %w", err)
	}
	return nil
}
