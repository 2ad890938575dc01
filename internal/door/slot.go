package door

import (
	"sync/atomic"

	"github.com/sweeney/garage-door/internal/logic"
)

// Slot holds at most one pending command. A newer offer overwrites an
// unconsumed one; there is no queue. Offer and Take are lock-free so they
// can be called from edge-event handlers.
type Slot struct {
	cmd   atomic.Int32
	ready chan struct{}
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{ready: make(chan struct{}, 1)}
}

// Offer stores cmd as the pending command and returns the command it
// replaced (CommandNone if the slot was empty). Offering CommandNone is a
// no-op.
func (s *Slot) Offer(cmd logic.Command) logic.Command {
	if cmd == logic.CommandNone {
		return logic.CommandNone
	}
	prev := logic.Command(s.cmd.Swap(int32(cmd)))
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return prev
}

// Take removes and returns the pending command, or CommandNone.
func (s *Slot) Take() logic.Command {
	return logic.Command(s.cmd.Swap(int32(logic.CommandNone)))
}

// Pending returns the pending command without consuming it.
func (s *Slot) Pending() logic.Command {
	return logic.Command(s.cmd.Load())
}

// Ready is signalled after an Offer.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}
