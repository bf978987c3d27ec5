package flight

import (
	"math"
	"time"
)

// Gravity is the vertical acceleration constant used throughout the
// control laws, matching the value baked into the gain tables.
const Gravity = 9.8

type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3   { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3   { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v Vec3) Norm() float64      { return math.Sqrt(v.Dot(v)) }

// VehicleState is one fused sensor snapshot, produced once per control
// tick by the external estimator. Controllers treat it as read-only.
type VehicleState struct {
	Stamp   time.Time
	Pos     Vec3 // m, z up, takeoff point as origin
	Vel     Vec3 // m/s
	Roll    float64
	Pitch   float64
	Yaw     float64
	Battery float64 // 0..1; zero means no reading and bypasses the battery interlock
}

// BodyZ returns the third column of the vehicle's rotation matrix
// (ZYX euler convention): the body thrust axis expressed in world frame.
func (s VehicleState) BodyZ() Vec3 {
	sr, cr := math.Sincos(s.Roll)
	sp, cp := math.Sincos(s.Pitch)
	sy, cy := math.Sincos(s.Yaw)
	return Vec3{
		cr*sp*cy + sr*sy,
		cr*sp*sy - sr*cy,
		cr * cp,
	}
}

// DesiredState is the trajectory point the active controller tracks.
// It is held constant between SetTarget calls.
type DesiredState struct {
	Pos Vec3
	Vel Vec3
	Acc Vec3 // feed-forward
	Yaw float64
}

// ControlOutput is the sole result of a control step. Mapping to the
// vehicle's native command encoding happens outside the core.
type ControlOutput struct {
	Roll    float64 // desired roll angle, rad
	Pitch   float64 // desired pitch angle, rad
	YawRate float64 // rad/s
	Thrust  float64 // normalized, clamped to the controller's band
}

// Neutral is the command issued on emergency or loop shutdown:
// zero tilt, hover-or-descend-safe thrust.
func Neutral(hovPercent float64) ControlOutput {
	return ControlOutput{Thrust: hovPercent}
}

func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Sat clamps x to [-limit, limit].
func Sat(x, limit float64) float64 {
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

// SatUnit is the boundary-layer saturation substituting for sign() in
// the sliding-mode law: linear inside |s| < width, ±1 outside.
func SatUnit(s, width float64) float64 {
	if width <= 0 {
		return Sign(s)
	}
	return Sat(s/width, 1)
}

// WrapPi wraps an angle to (-pi, pi].
func WrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
