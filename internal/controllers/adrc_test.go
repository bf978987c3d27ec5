package controllers

import (
	"math"
	"testing"

	"github.com/quadkit/descent/internal/flight"
)

func adrcConfig() flight.Config {
	return flight.Config{
		"quad_mass":   0.087,
		"hov_percent": 0.5,
		"k":           0.8,
		"k1":          -0.15,
		"k2":          -3.0,
		"c1":          1.5,
		"c2":          0.6,
		"lambda_D":    1.0,
		"beta_max":    1.0,
		"gamma":       0.2,
		"lambda":      0.8,
		"sigma":       0.9,
		"omega_star":  0.02,
		"t1":          0.02,
		"t2":          0.04,
		"l":           5.0,
	}
}

func TestADRCHoverEquilibrium(t *testing.T) {
	// At zero error every internal state stays at rest and the output is
	// the hover fraction, tick after tick.
	a := NewADRC()
	if err := a.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	a.SetTarget(hoverTarget(1.0))

	for i := 0; i < 50; i++ {
		out := a.Step(hoverState(1.0), 0.02)
		if math.Abs(out.Thrust-0.5) > 1e-9 {
			t.Fatalf("tick %d: thrust = %g, want hover 0.5", i, out.Thrust)
		}
		if math.Abs(out.Roll) > 1e-9 || math.Abs(out.Pitch) > 1e-9 {
			t.Fatalf("tick %d: tilt = (%g, %g), want level", i, out.Roll, out.Pitch)
		}
	}
	if a.Status().Saturations != 0 {
		t.Errorf("saturations = %d at equilibrium, want 0", a.Status().Saturations)
	}
}

func TestADRCThrustBand(t *testing.T) {
	// Commands stay inside the narrowed descent band whatever the error.
	a := NewADRC()
	if err := a.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	a.SetTarget(hoverTarget(1.6))

	st := hoverState(0.0)
	for i := 0; i < 200; i++ {
		out := a.Step(st, 0.02)
		if out.Thrust < 0.3 || out.Thrust > 0.7 {
			t.Fatalf("tick %d: thrust = %g outside [0.3, 0.7]", i, out.Thrust)
		}
	}
}

func TestADRCDeadZoneFreezesWeights(t *testing.T) {
	// With the innovation inside the dead zone the weight vector is left
	// untouched bit for bit, however many ticks pass.
	a := NewADRC()
	if err := a.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	a.SetTarget(hoverTarget(1.0))

	a.obs.weights = [nBasis]float64{0.5, -0.2, 0.1, 0.3, -0.4, 0.05, -0.05, 0.2, -0.1}
	before := a.obs.weights

	// At zero tracking error the differentiator and nominal system stay
	// at rest, so the innovation stays at zero throughout.
	for i := 0; i < 200; i++ {
		a.Step(hoverState(1.0), 0.02)
		if a.obs.weights != before {
			t.Fatalf("tick %d: weights changed inside the dead zone", i)
		}
	}
}

func TestObserverAdaptsOutsideDeadZone(t *testing.T) {
	o := amesoObserver{l: 5.0, lambda: 0.8, sigma: 0.9, omegaStar: 0.02, distBound: 50}
	phi := basisFunctions(1.0, 0.0)

	if o.adapt(0.01, phi, 0.02) {
		t.Error("innovation 0.01 is inside the dead zone, expected no update")
	}
	if o.weights != ([nBasis]float64{}) {
		t.Error("weights moved without an update")
	}

	if !o.adapt(0.1, phi, 0.02) {
		t.Fatal("innovation 0.1 is outside the dead zone, expected an update")
	}
	// phi[0] = 1, so the bias weight moves by lambda*innov*dt.
	want := 0.8 * 0.1 * 0.02
	if math.Abs(o.weights[0]-want) > 1e-12 {
		t.Errorf("weights[0] = %g, want %g", o.weights[0], want)
	}
}

func TestObserverDeadZoneThreshold(t *testing.T) {
	// The flight-tested threshold is 0.02. A threshold of 1.0 (seen in
	// an older parameter table) disables adaptation for any innovation a
	// descent actually produces.
	phi := basisFunctions(1.0, 0.0)
	innov := 0.5

	tuned := amesoObserver{l: 5.0, lambda: 0.8, sigma: 0.9, omegaStar: 0.02}
	if !tuned.adapt(innov, phi, 0.02) {
		t.Error("omega_star=0.02: expected adaptation at innovation 0.5")
	}

	stale := amesoObserver{l: 5.0, lambda: 0.8, sigma: 0.9, omegaStar: 1.0}
	if stale.adapt(innov, phi, 0.02) {
		t.Error("omega_star=1.0: adaptation fired below the threshold")
	}
}

func TestObserverDivergenceFallback(t *testing.T) {
	o := amesoObserver{l: 5.0, lambda: 0.8, sigma: 0.9, omegaStar: 0.02, distBound: 50}
	o.lastValid = 2.5
	o.z3 = 100 // out of bounds

	if got := o.disturbance(); got != 2.5 {
		t.Errorf("disturbance = %g, want last valid 2.5", got)
	}
	if !o.frozen {
		t.Error("expected adaptation frozen while diverged")
	}
	if o.divergences != 1 {
		t.Errorf("divergences = %d, want 1", o.divergences)
	}
	if o.adapt(0.5, basisFunctions(1.0, 0), 0.02) {
		t.Error("adapt must not fire while frozen")
	}

	// Repeated reads of the same excursion count one divergence.
	o.disturbance()
	if o.divergences != 1 {
		t.Errorf("divergences = %d after repeat read, want 1", o.divergences)
	}

	// Returning in bounds lifts the freeze.
	o.z3 = 1.0
	if got := o.disturbance(); got != 1.0 {
		t.Errorf("disturbance = %g after recovery, want 1.0", got)
	}
	if o.frozen {
		t.Error("freeze should lift once the estimate is back in bounds")
	}
	if o.lastValid != 1.0 {
		t.Errorf("lastValid = %g, want 1.0", o.lastValid)
	}
}

func TestTrackingDifferentiatorConverges(t *testing.T) {
	td := trackingDifferentiator{t1: 0.02, t2: 0.04}
	dt := 0.001
	for i := 0; i < 5000; i++ {
		td.update(1.0, dt)
	}
	if math.Abs(td.r1-1.0) > 0.02 {
		t.Errorf("r1 = %g, want ~1.0", td.r1)
	}
	if math.Abs(td.r2) > 0.02 {
		t.Errorf("r2 = %g, want ~0 at steady state", td.r2)
	}
}

func TestVariableExponent(t *testing.T) {
	sl := slidingLaw{betaMax: 1.0, gamma: 0.2}
	tests := []struct {
		e    float64
		lo   float64
		hi   float64
		name string
	}{
		{0, 1.0, 1.0, "zero error keeps beta 1"},
		{0.5, 0.1, 1.0, "small error softens below 1"},
		{1.0, 1.0, 1.0, "unit error keeps beta 1"},
		{4.0, 1.0, 2.0, "large error sharpens above 1"},
		{1e9, 0.1, 2.0, "clamped to [0.1, betaMax+1]"},
	}
	for _, tt := range tests {
		beta := sl.variableExponent(tt.e)
		if beta < tt.lo || beta > tt.hi {
			t.Errorf("%s: beta(%g) = %g outside [%g, %g]", tt.name, tt.e, beta, tt.lo, tt.hi)
		}
	}
	// Symmetric in the sign of the error.
	if sl.variableExponent(-0.5) != sl.variableExponent(0.5) {
		t.Error("beta should depend on |e| only")
	}
}

func TestADRCResetMatchesFresh(t *testing.T) {
	used := NewADRC()
	if err := used.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	used.SetTarget(hoverTarget(1.6))
	st := hoverState(0.5)
	st.Vel[2] = 0.1
	for i := 0; i < 100; i++ {
		used.Step(st, 0.02)
	}
	used.Reset()
	used.SetTarget(hoverTarget(1.0))

	fresh := NewADRC()
	if err := fresh.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	fresh.SetTarget(hoverTarget(1.0))

	a := used.Step(hoverState(1.0), 0.02)
	b := fresh.Step(hoverState(1.0), 0.02)
	if a != b {
		t.Errorf("after reset %+v, fresh %+v", a, b)
	}
}

func TestADRCZeroDtReturnsPrevious(t *testing.T) {
	a := NewADRC()
	if err := a.Init(adrcConfig()); err != nil {
		t.Fatalf("init: %v", err)
	}
	a.SetTarget(hoverTarget(1.5))

	first := a.Step(hoverState(1.0), 0.02)
	if got := a.Step(hoverState(1.2), 0); got != first {
		t.Errorf("dt=0: output %+v, want previous %+v", got, first)
	}
}

func TestADRCInitRequiresObserverGains(t *testing.T) {
	for _, key := range []string{"lambda", "omega_star", "l", "t1", "c2"} {
		cfg := adrcConfig()
		delete(cfg, key)
		if err := NewADRC().Init(cfg); err == nil {
			t.Errorf("missing %s: expected init error", key)
		}
	}
}
