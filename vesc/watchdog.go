package vesc

import "time"

// WatchdogTimeout is how long remote control may go without a
// GET_VALUES_SELECTIVE query before the motor is disabled.
const WatchdogTimeout = 900 * time.Millisecond

// Clock is a free-running microsecond counter. It may wrap.
type Clock interface {
	Micros() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

func (f ClockFunc) Micros() uint32 { return f() }

type monotonicClock struct{ start time.Time }

// MonotonicClock returns a Clock counting microseconds since its creation.
func MonotonicClock() Clock {
	return monotonicClock{start: time.Now()}
}

func (c monotonicClock) Micros() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}

// Watchdog tracks the time of the last authorized command. Comparisons use
// unsigned subtraction so a single wrap of the clock is tolerated.
type Watchdog struct {
	last    uint32
	timeout uint32
}

// NewWatchdog returns a watchdog fed at time zero.
func NewWatchdog(timeout time.Duration) Watchdog {
	return Watchdog{timeout: uint32(timeout.Microseconds())}
}

// Feed records now as the last authorized command.
func (w *Watchdog) Feed(now uint32) { w.last = now }

// Last returns the time of the last Feed.
func (w Watchdog) Last() uint32 { return w.last }

// Expired reports whether more than the timeout has elapsed since Feed.
func (w Watchdog) Expired(now uint32) bool {
	return now-w.last > w.timeout
}
