package door

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// Executor runs a single command to completion.
type Executor interface {
	Execute(ctx context.Context, cmd logic.Command) logic.Event
}

// Observer is told when a command starts and finishes.
type Observer interface {
	Started(cmd logic.Command, at time.Time)
	Finished(ev logic.Event)
}

// Observers fans out to several observers in order.
type Observers []Observer

// Started implements Observer.
func (o Observers) Started(cmd logic.Command, at time.Time) {
	for _, obs := range o {
		obs.Started(cmd, at)
	}
}

// Finished implements Observer.
func (o Observers) Finished(ev logic.Event) {
	for _, obs := range o {
		obs.Finished(ev)
	}
}

// Worker is the only goroutine that executes commands. Every entry point
// (buttons, HTTP, MQTT) offers into the slot; the worker drains it, so at
// most one motion session exists and the actuator is never driven twice at
// once. Commands offered during a motion wait in the slot, newest wins.
type Worker struct {
	slot  *Slot
	exec  Executor
	obs   Observer
	clock Clock
}

// NewWorker creates a worker. obs may be nil.
func NewWorker(slot *Slot, exec Executor, obs Observer, clock Clock) *Worker {
	return &Worker{slot: slot, exec: exec, obs: obs, clock: clock}
}

// Run drains the slot until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.slot.Ready():
		}
		for {
			cmd := w.slot.Take()
			if cmd == logic.CommandNone {
				break
			}
			w.RunOnce(ctx, cmd)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// RunOnce executes cmd and notifies the observer.
func (w *Worker) RunOnce(ctx context.Context, cmd logic.Command) logic.Event {
	if w.obs != nil {
		w.obs.Started(cmd, w.clock.Now())
	}
	ev := w.exec.Execute(ctx, cmd)
	if ev.Err != nil {
		log.Printf("door: %s failed after %v: %v", cmd, ev.Duration, ev.Err)
	} else {
		log.Printf("door: %s done in %v, pulses=%v compensated=%v", cmd, ev.Duration, ev.Pulses, ev.Compensated)
	}
	if w.obs != nil {
		w.obs.Finished(ev)
	}
	return ev
}
