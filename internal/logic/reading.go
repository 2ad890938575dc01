package logic

import "fmt"

// MillimetersToInches converts native ranging sensor units to inches.
const MillimetersToInches = 0.0393701

// Reading is a distance measurement in inches. Valid is false when the
// sensor is absent or faulted; Inches is meaningless in that case.
type Reading struct {
	Inches float64
	Valid  bool
}

// Inches returns a valid reading.
func Inches(in float64) Reading {
	return Reading{Inches: in, Valid: true}
}

// FromMillimeters converts a raw sensor value to a valid reading.
func FromMillimeters(mm float64) Reading {
	return Reading{Inches: mm * MillimetersToInches, Valid: true}
}

// Unavailable returns the reading used when the sensor cannot be read.
func Unavailable() Reading {
	return Reading{}
}

func (r Reading) String() string {
	if !r.Valid {
		return "unavailable"
	}
	return fmt.Sprintf("%.1fin", r.Inches)
}

// Thresholds classify a reading into a DoorStatus.
type Thresholds struct {
	OpenMax   float64 // at or below: open
	ClosedMin float64 // at or above: closed
}

// DefaultThresholds matches the sensor mounting of the original install.
var DefaultThresholds = Thresholds{OpenMax: 40, ClosedMin: 85}

// Classify returns the door status for a reading.
func (t Thresholds) Classify(r Reading) DoorStatus {
	if !r.Valid {
		return StatusUnknown
	}
	switch {
	case r.Inches <= t.OpenMax:
		return StatusOpen
	case r.Inches >= t.ClosedMin:
		return StatusClosed
	default:
		return StatusVented
	}
}

// MovedAsExpected reports whether a directional pulse moved the door the
// right way. Up expects the distance to shrink, Down expects it to grow.
// ok is false when either reading is unavailable and no judgement can be made.
func MovedAsExpected(dir Command, before, after Reading) (moved, ok bool) {
	if !before.Valid || !after.Valid {
		return false, false
	}
	switch dir {
	case CommandUp:
		return after.Inches < before.Inches, true
	case CommandDown:
		return after.Inches > before.Inches, true
	}
	return false, false
}

// VentDirection picks the directional command that approaches target from r.
// It returns CommandNone when r is unavailable or already at target.
func VentDirection(r Reading, target float64) Command {
	switch {
	case !r.Valid:
		return CommandNone
	case r.Inches < target:
		return CommandDown
	case r.Inches > target:
		return CommandUp
	}
	return CommandNone
}

// Approaching reports whether r is still on the near side of target while
// moving in dir. Unavailable readings count as approaching.
func Approaching(dir Command, r Reading, target float64) bool {
	if !r.Valid {
		return true
	}
	switch dir {
	case CommandDown:
		return r.Inches <= target
	case CommandUp:
		return r.Inches >= target
	}
	return false
}
