package door

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

// Router maps physical input lines to commands, debounces them and places
// accepted commands into the pending slot. Trigger does no blocking work.
type Router struct {
	bindings map[int]logic.Command
	debounce *logic.Debouncer
	slot     *Slot

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewRouter creates a router. bindings must not be modified afterwards.
func NewRouter(bindings map[int]logic.Command, debounce *logic.Debouncer, slot *Slot) *Router {
	return &Router{bindings: bindings, debounce: debounce, slot: slot}
}

// Trigger handles a falling edge on line at time at. It reports whether the
// edge produced a pending command. Unbound lines are ignored and do not
// consume the debounce window.
func (r *Router) Trigger(line int, at time.Time) bool {
	cmd, ok := r.bindings[line]
	if !ok {
		return false
	}
	if !r.debounce.Accept(at) {
		r.rejected.Add(1)
		return false
	}
	r.slot.Offer(cmd)
	r.accepted.Add(1)
	return true
}

// HandleEdge adapts Trigger to gpio.EdgeHandler.
func (r *Router) HandleEdge(e gpio.Edge) {
	r.Trigger(e.Pin, e.Time)
}

// Pins returns the bound line offsets in ascending order.
func (r *Router) Pins() []int {
	pins := make([]int, 0, len(r.bindings))
	for p := range r.bindings {
		pins = append(pins, p)
	}
	sort.Ints(pins)
	return pins
}

// Stats returns the accepted and rejected (debounced) trigger counts.
func (r *Router) Stats() (accepted, rejected uint64) {
	return r.accepted.Load(), r.rejected.Load()
}
