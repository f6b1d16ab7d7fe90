// Package motor provides a simulated motor for running a VESC node without
// power hardware.
package motor

import (
	"math"
	"time"
)

// Params describe the simulated drive train.
type Params struct {
	CurrentLimit float64 // A
	TorqueConst  float64 // Nm/A
	Inertia      float64 // kg·m²
	Damping      float64 // Nm per rad/s
}

// DefaultParams returns a small hobby-grade outrunner.
func DefaultParams(currentLimit float64) Params {
	return Params{
		CurrentLimit: currentLimit,
		TorqueConst:  0.05,
		Inertia:      1e-4,
		Damping:      1e-3,
	}
}

// Sim is a first-order rigid rotor driven by a current command. It
// satisfies vesc.Motor. Sim is not safe for concurrent use; drive it from the
// same loop as the node.
type Sim struct {
	p Params

	enabled  bool
	target   float64
	velocity float64 // rad/s
	angle    float64 // rad, unwrapped
}

// NewSim returns a disabled motor at rest.
func NewSim(p Params) *Sim {
	return &Sim{p: p}
}

func (s *Sim) Enabled() bool { return s.enabled }

func (s *Sim) Enable() { s.enabled = true }

// Disable removes drive. The commanded target is cleared so re-enabling does
// not resume a stale command.
func (s *Sim) Disable() {
	s.enabled = false
	s.target = 0
}

// SetTarget commands a current, clamped to the current limit.
func (s *Sim) SetTarget(amps float64) {
	lim := math.Abs(s.p.CurrentLimit)
	s.target = math.Max(-lim, math.Min(lim, amps))
}

// Target returns the clamped current command.
func (s *Sim) Target() float64 { return s.target }

func (s *Sim) CurrentLimit() float64 { return s.p.CurrentLimit }

func (s *Sim) ShaftAngle() float64 { return s.angle }

// Velocity returns the shaft speed in rad/s.
func (s *Sim) Velocity() float64 { return s.velocity }

// Step advances the simulation by dt. Drive torque is applied only while
// enabled; damping always acts.
func (s *Sim) Step(dt time.Duration) {
	sec := dt.Seconds()
	if sec <= 0 || s.p.Inertia <= 0 {
		return
	}
	torque := -s.p.Damping * s.velocity
	if s.enabled {
		torque += s.p.TorqueConst * s.target
	}
	s.velocity += torque / s.p.Inertia * sec
	s.angle += s.velocity * sec
}
