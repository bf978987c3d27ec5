package flight

import (
	"context"
	"sync/atomic"
	"time"
)

// Stepper turns a snapshot and an elapsed interval into a command.
// The controller manager implements this.
type Stepper interface {
	Step(s VehicleState, dt float64) ControlOutput
}

// Sink receives every command the loop produces.
type Sink func(ControlOutput)

// Observer is notified after each tick; used for recording and live views.
type Observer func(s VehicleState, out ControlOutput, t time.Duration)

// Loop runs the fixed-rate control cycle. It is the only caller of
// Step and the only writer of commands. Sensor updates arrive through
// Submit from an independently timed source; the loop always reads the
// most recent complete snapshot via an atomic slot, so partial updates
// are never observed.
type Loop struct {
	period    time.Duration
	stepper   Stepper
	sink      Sink
	neutral   ControlOutput
	slot      atomic.Pointer[VehicleState]
	observers []Observer
	ticks     atomic.Int64
}

func NewLoop(period time.Duration, stepper Stepper, sink Sink, neutral ControlOutput) *Loop {
	return &Loop{
		period:  period,
		stepper: stepper,
		sink:    sink,
		neutral: neutral,
	}
}

// AddObserver must not be called while Run is active.
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// Submit publishes a new sensor snapshot. Safe to call from another
// goroutine; the previous snapshot is replaced whole.
func (l *Loop) Submit(s VehicleState) {
	cp := s
	l.slot.Store(&cp)
}

// Ticks reports how many control cycles have completed.
func (l *Loop) Ticks() int64 { return l.ticks.Load() }

// Run drives the loop until ctx is cancelled. Cancellation is
// cooperative: the current tick completes, one neutral command is
// issued, and Run returns. No command is left pending.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	start := time.Now()
	last := start

	for {
		select {
		case <-ctx.Done():
			l.sink(l.neutral)
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			snap := l.slot.Load()
			if snap == nil {
				// No complete snapshot yet; nothing to act on.
				continue
			}

			out := l.stepper.Step(*snap, dt)
			l.sink(out)
			l.ticks.Add(1)

			for _, o := range l.observers {
				o(*snap, out, now.Sub(start))
			}
		}
	}
}
