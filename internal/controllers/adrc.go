package controllers

import (
	"math"

	"github.com/quadkit/descent/internal/flight"
)

// nBasis is the fixed size of the adaptive basis expansion. The
// observer state and weight vector never resize after construction.
const nBasis = 9

// trackingDifferentiator smooths the raw vertical error into a
// reference and its derivative, so a setpoint jump never produces a
// derivative spike downstream. Second order, time constants t1 (fast)
// and t2 (filtering).
type trackingDifferentiator struct {
	t1, t2 float64
	r1, r2 float64
}

func (td *trackingDifferentiator) update(target, dt float64) {
	r1dot := td.r2
	r2dot := -(1.0/(td.t1*td.t2))*(td.r1-target) - (td.t1+td.t2)/(td.t1*td.t2)*td.r2
	td.r1 += r1dot * dt
	td.r2 += r2dot * dt
}

func (td *trackingDifferentiator) reset() {
	td.r1, td.r2 = 0, 0
}

// amesoObserver is a third-order extended state observer whose model
// term is an adaptive expansion over nBasis fixed basis functions.
// z1/z2 estimate vertical error and its rate, z3 the lumped
// disturbance.
type amesoObserver struct {
	l         float64 // linear pole placement
	lambda    float64 // adaptation rate
	sigma     float64 // shrinkage
	omegaStar float64 // dead-zone threshold
	distBound float64 // sanity bound on the disturbance estimate

	z1, z2, z3 float64
	weights    [nBasis]float64

	lastValid   float64
	frozen      bool
	divergences int
}

// basisFunctions captures the mass/aerodynamic nonlinearities as low
// harmonics of height and vertical speed.
func basisFunctions(z, zDot float64) [nBasis]float64 {
	return [nBasis]float64{
		1.0,
		math.Sin(z),
		math.Sin(zDot),
		math.Cos(z),
		math.Cos(zDot),
		math.Sin(2 * z),
		math.Sin(2 * zDot),
		math.Cos(2 * z),
		math.Cos(2 * zDot),
	}
}

func (o *amesoObserver) modelOutput(phi [nBasis]float64) float64 {
	var f float64
	for i, w := range o.weights {
		f += w * phi[i]
	}
	return f
}

// adapt applies the gradient update with sigma-shrinkage. Inside the
// dead zone (|innov| < omegaStar) the weights are left untouched
// bit-for-bit; this is what keeps sensor noise from walking the
// parameters. Returns whether an update was applied.
func (o *amesoObserver) adapt(innov float64, phi [nBasis]float64, dt float64) bool {
	if o.frozen || math.Abs(innov) < o.omegaStar {
		return false
	}
	for i := range o.weights {
		wDot := o.lambda*innov*phi[i] - o.sigma*o.lambda*math.Abs(innov)*o.weights[i]
		o.weights[i] += wDot * dt
	}
	return true
}

// disturbance returns the usable lumped-disturbance estimate. An
// estimate outside the sanity bound freezes adaptation and falls back
// to the last valid value; the observer keeps integrating and the
// freeze lifts once the estimate returns in bounds.
func (o *amesoObserver) disturbance() float64 {
	if math.Abs(o.z3) > o.distBound {
		if !o.frozen {
			o.divergences++
		}
		o.frozen = true
		return o.lastValid
	}
	o.frozen = false
	o.lastValid = o.z3
	return o.z3
}

func (o *amesoObserver) observe(dt, errZ, uZ, fzHat, mass, accFF float64) {
	e := errZ - o.z1
	z1dot := o.z2 + 3*o.l*e
	z2dot := -flight.Gravity + uZ/mass + fzHat - accFF + 3*o.l*o.l*e
	z3dot := o.l * o.l * o.l * e
	o.z1 += z1dot * dt
	o.z2 += z2dot * dt
	o.z3 += z3dot * dt
}

func (o *amesoObserver) reset() {
	o.z1, o.z2, o.z3 = 0, 0, 0
	o.weights = [nBasis]float64{}
	o.lastValid = 0
	o.frozen = false
	o.divergences = 0
}

// slidingLaw holds the integral sliding surface and the nominal-system
// states it is built from.
type slidingLaw struct {
	k, k1, k2 float64
	c1, c2    float64
	lambdaD   float64
	betaMax   float64
	gamma     float64
	boundary  float64 // sat() boundary-layer width

	integral       float64
	n1, n2         float64 // nominal error and error rate
	n1Init, n2Init float64
}

// variableExponent implements the beta(|e|) schedule: exponents below
// one near the surface soften the switching action, above one far away
// they speed convergence. beta stays in [0.1, betaMax+1].
func (sl *slidingLaw) variableExponent(e float64) float64 {
	ae := math.Abs(e)
	if ae < 1e-6 {
		return 1.0
	}
	beta := 1.0 + math.Min(sl.betaMax, math.Pow(ae, sl.gamma))*flight.Sign(ae-1.0)
	return math.Max(0.1, math.Min(beta, sl.betaMax+1.0))
}

// powBeta is sign(e)*|e|^beta with a linear bypass for tiny arguments.
func powBeta(e, beta float64) float64 {
	if math.Abs(e) < 1e-6 {
		return e
	}
	return flight.Sign(e) * math.Pow(math.Abs(e), beta)
}

func (sl *slidingLaw) reset() {
	sl.integral = 0
	sl.n1, sl.n2 = 0, 0
	sl.n1Init, sl.n2Init = 0, 0
}

// ADRC is the adaptive active-disturbance-rejection law for the
// vertical axis. Horizontal axes are served by an independently
// instantiated PID that shares the tick but no state.
type ADRC struct {
	mass       float64
	hovPercent float64
	minThrust  float64
	maxThrust  float64

	td  trackingDifferentiator
	obs amesoObserver
	sl  slidingLaw
	xy  *PID

	target flight.DesiredState
	last   flight.ControlOutput

	initialized bool
	primed      bool
	iterations  int
	saturations int
	lastPosErr  flight.Vec3
}

func NewADRC() *ADRC { return &ADRC{xy: NewPID()} }

func (a *ADRC) Init(cfg flight.Config) error {
	var err error
	if a.mass, err = cfg.RequirePositive("quad_mass"); err != nil {
		return err
	}
	if a.hovPercent, err = cfg.RequireRange("hov_percent", 0.05, 1.0); err != nil {
		return err
	}

	if a.sl.k, err = cfg.Require("k"); err != nil {
		return err
	}
	if a.sl.k1, err = cfg.Require("k1"); err != nil {
		return err
	}
	if a.sl.k2, err = cfg.Require("k2"); err != nil {
		return err
	}
	if a.sl.c1, err = cfg.RequirePositive("c1"); err != nil {
		return err
	}
	if a.sl.c2, err = cfg.RequirePositive("c2"); err != nil {
		return err
	}
	if a.sl.lambdaD, err = cfg.Require("lambda_D"); err != nil {
		return err
	}
	if a.sl.betaMax, err = cfg.RequirePositive("beta_max"); err != nil {
		return err
	}
	if a.sl.gamma, err = cfg.RequirePositive("gamma"); err != nil {
		return err
	}
	a.sl.boundary = cfg.Value("boundary_layer", 0.1)

	if a.obs.lambda, err = cfg.RequirePositive("lambda"); err != nil {
		return err
	}
	if a.obs.sigma, err = cfg.RequirePositive("sigma"); err != nil {
		return err
	}
	if a.obs.omegaStar, err = cfg.RequirePositive("omega_star"); err != nil {
		return err
	}
	if a.obs.l, err = cfg.RequirePositive("l"); err != nil {
		return err
	}
	a.obs.distBound = cfg.Value("dist_bound", 50.0)

	if a.td.t1, err = cfg.RequirePositive("t1"); err != nil {
		return err
	}
	if a.td.t2, err = cfg.RequirePositive("t2"); err != nil {
		return err
	}

	// ADRC flies the descent with a narrower safe throttle band than
	// the linear laws.
	a.minThrust = cfg.Value("thrust_min", 0.3)
	a.maxThrust = cfg.Value("thrust_max", 0.7)

	// The horizontal PID runs on its own scalar gain triple.
	kp := cfg.Value("kp", 2.0)
	ki := cfg.Value("ki", 0.3)
	kd := cfg.Value("kd", 2.0)
	xyCfg := flight.Config{
		"quad_mass":      a.mass,
		"hov_percent":    a.hovPercent,
		"Kp_xy":          kp,
		"Kp_z":           kp,
		"Kv_xy":          kd,
		"Kv_z":           kd,
		"Kvi_xy":         ki,
		"Kvi_z":          ki,
		"tilt_angle_max": cfg.Value("tilt_angle_max", 10.0),
		"pxy_int_max":    cfg.Value("pxy_int_max", 0.5),
		"pz_int_max":     cfg.Value("pz_int_max", 0.5),
		"yaw_gain":       cfg.Value("yaw_gain", 1.0),
	}
	if err := a.xy.Init(xyCfg); err != nil {
		return err
	}

	a.initialized = true
	return nil
}

func (a *ADRC) SetTarget(d flight.DesiredState) {
	a.target = d
	a.xy.SetTarget(d)
}

func (a *ADRC) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	if dt <= 0 || !a.initialized {
		return a.last
	}

	// Error convention follows the nominal system: current minus
	// desired, so a vehicle below target carries a negative error.
	epsZ := s.Pos[2] - a.target.Pos[2]

	if !a.primed {
		a.sl.n1 = epsZ
		a.sl.n2 = s.Vel[2] - a.target.Vel[2]
		a.sl.n1Init = a.sl.n1
		a.sl.n2Init = a.sl.n2
		a.sl.integral = 0
		a.td.reset()
		a.primed = true
	}

	m := a.mass
	sl := &a.sl

	// 1. Variable-exponent terms of the integral sliding surface.
	beta1 := sl.variableExponent(sl.n1)
	beta2 := sl.variableExponent(sl.n2)
	epsBeta1 := powBeta(sl.n1, beta1)
	epsBeta2 := powBeta(sl.n2, beta2)

	// 2. Surface value, anchored at zero by the initial errors.
	surf := sl.c1*sl.n1 + sl.c2*sl.n2 + sl.lambdaD*sl.integral -
		sl.c1*sl.n1Init - sl.c2*sl.n2Init
	sl.integral += (sl.c1*epsBeta1 + sl.c2*epsBeta2) * dt

	// 3. Nominal law with boundary-layer saturated switching term.
	uN := -(m*sl.k/sl.c2)*flight.SatUnit(surf, sl.boundary) -
		(m*sl.c1/sl.c2)*sl.n2 +
		m*flight.Gravity + m*a.target.Acc[2] -
		sl.lambdaD*m*sl.c1/sl.c2*epsBeta1 -
		sl.lambdaD*m*epsBeta2

	// 4. Feedback law pulling the real error toward the nominal one.
	uF := m*sl.k1*(epsZ-sl.n1) + m*sl.k2*(a.td.r2-sl.n2)

	// 5. Adaptive model and disturbance compensation.
	phi := basisFunctions(s.Pos[2], a.td.r2+a.target.Vel[2])
	fA := a.obs.modelOutput(phi)
	innov := a.td.r2 - sl.n2
	a.obs.adapt(innov, phi, dt)
	fzHat := fA + a.obs.disturbance()
	uC := -m * fzHat

	uZ := uN + uF + uC

	// 6. Propagate observer, differentiator and nominal system.
	a.obs.observe(dt, epsZ, uZ, fzHat, m, a.target.Acc[2])
	a.td.update(epsZ, dt)
	n1dot := sl.n2
	n2dot := -flight.Gravity + uN/m - a.target.Acc[2]
	sl.n1 += n1dot * dt
	sl.n2 += n2dot * dt

	// 7. Z command; X/Y from the independent PID sharing the tick.
	fullThrust := m * flight.Gravity / a.hovPercent
	thrust := uZ / fullThrust
	if thrust > a.maxThrust {
		thrust = a.maxThrust
		a.saturations++
	} else if thrust < a.minThrust {
		thrust = a.minThrust
		a.saturations++
	}

	xyOut := a.xy.Step(s, dt)
	a.iterations++
	a.lastPosErr = flight.Vec3{
		a.target.Pos[0] - s.Pos[0],
		a.target.Pos[1] - s.Pos[1],
		a.target.Pos[2] - s.Pos[2],
	}

	a.last = flight.ControlOutput{
		Roll:    xyOut.Roll,
		Pitch:   xyOut.Pitch,
		YawRate: xyOut.YawRate,
		Thrust:  thrust,
	}
	return a.last
}

func (a *ADRC) Reset() {
	a.td.reset()
	a.obs.reset()
	a.sl.reset()
	a.xy.Reset()
	a.primed = false
	a.last = flight.ControlOutput{}
	a.iterations = 0
	a.saturations = 0
	a.lastPosErr = flight.Vec3{}
}

// Weights exposes a copy of the adaptive weight vector for tests and
// diagnostics.
func (a *ADRC) Weights() [nBasis]float64 { return a.obs.weights }

func (a *ADRC) Status() flight.Status {
	return flight.Status{
		Name: "adrc",
		Gains: map[string]float64{
			"k": a.sl.k, "k1": a.sl.k1, "k2": a.sl.k2,
			"c1": a.sl.c1, "c2": a.sl.c2,
			"lambda_D": a.sl.lambdaD, "beta_max": a.sl.betaMax, "gamma": a.sl.gamma,
			"lambda": a.obs.lambda, "sigma": a.obs.sigma, "omega_star": a.obs.omegaStar,
			"t1": a.td.t1, "t2": a.td.t2, "l": a.obs.l,
			"divergences": float64(a.obs.divergences),
		},
		Iterations:  a.iterations,
		Saturations: a.saturations,
		LastPosErr:  a.lastPosErr,
		LastOutput:  a.last,
	}
}
