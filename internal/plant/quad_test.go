package plant

import (
	"math"
	"testing"
	"time"

	"github.com/quadkit/descent/internal/flight"
)

func TestQuadHoverHoldsAltitude(t *testing.T) {
	q := New(0.087, 0.5, 0.15)
	q.SetPosition(flight.Vec3{0, 0, 1.0})

	cmd := flight.ControlOutput{Thrust: 0.5}
	for i := 0; i < 100; i++ {
		q.Step(cmd, 0.02)
	}

	s := q.State(time.Now())
	if math.Abs(s.Pos[2]-1.0) > 1e-9 {
		t.Errorf("z = %g after 2 s of hover thrust, want 1.0", s.Pos[2])
	}
	if math.Abs(s.Vel[2]) > 1e-9 {
		t.Errorf("vz = %g, want 0", s.Vel[2])
	}
}

func TestQuadClimbsAboveHover(t *testing.T) {
	q := New(0.087, 0.5, 0.15)
	q.SetPosition(flight.Vec3{0, 0, 1.0})

	cmd := flight.ControlOutput{Thrust: 0.6}
	for i := 0; i < 50; i++ {
		q.Step(cmd, 0.02)
	}

	s := q.State(time.Now())
	if s.Pos[2] <= 1.0 {
		t.Errorf("z = %g, want climb above 1.0", s.Pos[2])
	}
	if s.Vel[2] <= 0 {
		t.Errorf("vz = %g, want positive", s.Vel[2])
	}
}

func TestQuadGroundClamp(t *testing.T) {
	q := New(0.087, 0.5, 0.15)
	q.SetPosition(flight.Vec3{0, 0, 0.05})

	cmd := flight.ControlOutput{Thrust: 0.3}
	for i := 0; i < 100; i++ {
		q.Step(cmd, 0.02)
	}

	s := q.State(time.Now())
	if s.Pos[2] != 0 {
		t.Errorf("z = %g, want pinned at the pad", s.Pos[2])
	}
	if s.Vel[2] < 0 {
		t.Errorf("vz = %g, downward velocity must clear on contact", s.Vel[2])
	}
}

func TestQuadYawIntegration(t *testing.T) {
	q := New(0.087, 0.5, 0)
	cmd := flight.ControlOutput{Thrust: 0.5, YawRate: 0.5}
	for i := 0; i < 50; i++ {
		q.Step(cmd, 0.02)
	}
	if got := q.State(time.Now()).Yaw; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("yaw = %g after 1 s at 0.5 rad/s, want 0.5", got)
	}
}

func TestQuadWindBias(t *testing.T) {
	q := New(0.087, 0.5, 0)
	q.SetPosition(flight.Vec3{0, 0, 1.0})
	q.WindBiasZ = 0.5

	cmd := flight.ControlOutput{Thrust: 0.5}
	for i := 0; i < 50; i++ {
		q.Step(cmd, 0.02)
	}
	if got := q.State(time.Now()).Pos[2]; got <= 1.0 {
		t.Errorf("z = %g, want drift above 1.0 under an upward bias", got)
	}
}

func TestQuadTiltProducesLateralMotion(t *testing.T) {
	q := New(0.087, 0.5, 0)
	q.SetPosition(flight.Vec3{0, 0, 1.0})

	// Positive pitch tips the thrust axis toward +x.
	cmd := flight.ControlOutput{Thrust: 0.5, Pitch: 0.1}
	for i := 0; i < 50; i++ {
		q.Step(cmd, 0.02)
	}
	s := q.State(time.Now())
	if s.Pos[0] <= 0 {
		t.Errorf("x = %g, want forward motion under positive pitch", s.Pos[0])
	}
}
