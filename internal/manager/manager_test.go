package manager_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quadkit/descent/internal/flight"
	"github.com/quadkit/descent/internal/manager"
)

// fakeController records the calls the manager makes so the specs can
// assert on activation, reset and delegation.
type fakeController struct {
	target flight.DesiredState
	steps  int
	resets int
	out    flight.ControlOutput
	lastZ  float64
}

func (f *fakeController) Init(flight.Config) error        { return nil }
func (f *fakeController) SetTarget(d flight.DesiredState) { f.target = d }
func (f *fakeController) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	f.steps++
	f.lastZ = s.Pos[2]
	return f.out
}
func (f *fakeController) Reset() { f.resets++; f.steps = 0 }
func (f *fakeController) Status() flight.Status {
	return flight.Status{Name: "fake", Iterations: f.steps}
}

var _ = Describe("Manager", func() {
	var (
		mgr  *manager.Manager
		ctrl *fakeController
		base time.Time
	)

	fresh := func(z float64) flight.VehicleState {
		return flight.VehicleState{
			Stamp:   base,
			Pos:     flight.Vec3{0, 0, z},
			Battery: 0.9,
		}
	}

	BeforeEach(func() {
		base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mgr = manager.New(manager.Limits{
			BatteryFloor:  0.15,
			StaleAfter:    100 * time.Millisecond,
			MaxStaleTicks: 3,
			MaxTilt:       45 * math.Pi / 180,
		}, 0.5)
		mgr.Now = func() time.Time { return base }

		ctrl = &fakeController{out: flight.ControlOutput{Thrust: 0.62}}
		Expect(mgr.Register("fake", ctrl)).To(Succeed())
	})

	Describe("mode transitions", func() {
		It("starts in MANUAL with a neutral output", func() {
			Expect(mgr.Mode()).To(Equal(manager.Manual))
			Expect(mgr.Step(fresh(1.0), 0.02)).To(Equal(flight.Neutral(0.5)))
		})

		It("activates the named controller on entering POSITION", func() {
			mgr.SetTarget(flight.DesiredState{Pos: flight.Vec3{0, 0, 1.6}})
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())

			Expect(mgr.Mode()).To(Equal(manager.Position))
			Expect(mgr.ActiveName()).To(Equal("fake"))
			Expect(ctrl.target.Pos[2]).To(Equal(1.6))

			out := mgr.Step(fresh(1.0), 0.02)
			Expect(out.Thrust).To(Equal(0.62))
			Expect(ctrl.steps).To(Equal(1))
		})

		It("rejects activation of an unregistered controller", func() {
			Expect(mgr.Switch(manager.Position, "nobody")).To(HaveOccurred())
			Expect(mgr.Mode()).To(Equal(manager.Manual))
		})

		It("allows any normal mode to reach any other", func() {
			Expect(mgr.Switch(manager.Attitude, "fake")).To(Succeed())
			Expect(mgr.Switch(manager.Velocity, "fake")).To(Succeed())
			Expect(mgr.Switch(manager.Trajectory, "fake")).To(Succeed())
			Expect(mgr.Switch(manager.Manual, "")).To(Succeed())
		})

		It("resets the controller it deactivates", func() {
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
			mgr.Step(fresh(1.0), 0.02)
			Expect(mgr.Switch(manager.Manual, "")).To(Succeed())
			Expect(ctrl.resets).To(Equal(1))
		})
	})

	Describe("EMERGENCY", func() {
		It("is reachable from any mode and terminal", func() {
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
			mgr.Emergency("test")
			Expect(mgr.Mode()).To(Equal(manager.Emergency))
			Expect(mgr.Switch(manager.Position, "fake")).NotTo(Succeed())
		})

		It("neutralizes output and resets the active controller", func() {
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
			mgr.Step(fresh(1.2), 0.02)
			Expect(ctrl.steps).To(Equal(1))

			mgr.Emergency("operator request")
			Expect(mgr.Step(fresh(1.2), 0.02)).To(Equal(flight.Neutral(0.5)))
			Expect(ctrl.resets).To(Equal(1))
			Expect(ctrl.Status().Iterations).To(BeZero())
			Expect(mgr.Reason()).To(Equal("operator request"))
		})
	})

	Describe("interlocks", func() {
		BeforeEach(func() {
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
		})

		It("trips on battery below the floor", func() {
			s := fresh(1.0)
			s.Battery = 0.10
			Expect(mgr.Step(s, 0.02)).To(Equal(flight.Neutral(0.5)))
			Expect(mgr.Mode()).To(Equal(manager.Emergency))
			Expect(mgr.Reason()).To(ContainSubstring("battery"))
		})

		It("ignores an absent battery reading", func() {
			s := fresh(1.0)
			s.Battery = 0
			mgr.Step(s, 0.02)
			Expect(mgr.Mode()).To(Equal(manager.Position))
		})

		It("trips on attitude excursion", func() {
			s := fresh(1.0)
			s.Roll = 60 * math.Pi / 180
			Expect(mgr.Step(s, 0.02)).To(Equal(flight.Neutral(0.5)))
			Expect(mgr.Reason()).To(Equal("attitude excursion"))
		})

		It("holds the last good snapshot while the feed is stale", func() {
			mgr.Step(fresh(1.5), 0.02)
			Expect(ctrl.lastZ).To(Equal(1.5))

			stale := fresh(0.2)
			stale.Stamp = base.Add(-200 * time.Millisecond)
			mgr.Step(stale, 0.02)

			Expect(ctrl.lastZ).To(Equal(1.5), "stale position must not reach the controller")
			Expect(mgr.Mode()).To(Equal(manager.Position))
		})

		It("escalates to EMERGENCY after consecutive stale ticks", func() {
			mgr.Step(fresh(1.5), 0.02)

			stale := fresh(1.5)
			stale.Stamp = base.Add(-200 * time.Millisecond)
			mgr.Step(stale, 0.02)
			mgr.Step(stale, 0.02)
			Expect(mgr.Mode()).To(Equal(manager.Position))

			Expect(mgr.Step(stale, 0.02)).To(Equal(flight.Neutral(0.5)))
			Expect(mgr.Mode()).To(Equal(manager.Emergency))
			Expect(mgr.Reason()).To(Equal("sensor feed stale"))
			Expect(mgr.StaleTicks()).To(Equal(3))
		})

		It("clears the stale count on a fresh snapshot", func() {
			stale := fresh(1.5)
			stale.Stamp = base.Add(-200 * time.Millisecond)
			mgr.Step(stale, 0.02)
			mgr.Step(stale, 0.02)

			mgr.Step(fresh(1.5), 0.02)

			mgr.Step(stale, 0.02)
			mgr.Step(stale, 0.02)
			Expect(mgr.Mode()).To(Equal(manager.Position), "the consecutive count must restart")
		})
	})

	Describe("registration", func() {
		It("lets the last registration win", func() {
			other := &fakeController{out: flight.ControlOutput{Thrust: 0.4}}
			Expect(mgr.Register("fake", other)).To(Succeed())
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
			Expect(mgr.Step(fresh(1.0), 0.02).Thrust).To(Equal(0.4))
		})

		It("rejects registration while the loop is running", func() {
			Expect(mgr.Switch(manager.Position, "fake")).To(Succeed())
			mgr.Step(fresh(1.0), 0.02)

			Expect(mgr.Register("late", &fakeController{})).NotTo(Succeed())

			mgr.StopLoop()
			Expect(mgr.Register("late", &fakeController{})).To(Succeed())
		})
	})
})
