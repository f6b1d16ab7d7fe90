package vesc

// Motor is the motor-control object a Node commands. Implementations own
// enable state, current limiting and shaft-angle sensing.
type Motor interface {
	Enabled() bool
	Enable()
	Disable()
	// SetTarget sets the commanded current in amps.
	SetTarget(amps float64)
	// CurrentLimit returns the configured current limit in amps.
	CurrentLimit() float64
	// ShaftAngle returns the mechanical angle in radians, unwrapped.
	ShaftAngle() float64
}
