package canbus

import "fmt"

// FrameFilter decides whether a frame should be accepted.
type FrameFilter func(Frame) bool

// ByID returns a filter that matches frames with the exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByMask matches when (frame.ID & mask) == (id & mask).
func ByMask(id uint32, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return (f.ID & mask) == want }
}

// StandardOnly matches standard (11-bit) identifiers.
func StandardOnly() FrameFilter {
	return func(f Frame) bool { return !f.Extended }
}

// ExtendedOnly matches extended (29-bit) identifiers.
func ExtendedOnly() FrameFilter {
	return func(f Frame) bool { return f.Extended }
}

// DataOnly matches non-RTR frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// RTROnly matches remote transmission request frames.
func RTROnly() FrameFilter {
	return func(f Frame) bool { return f.RTR }
}

// And composes two filters; the result matches when both match.
func And(a, b FrameFilter) FrameFilter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return func(f Frame) bool { return a(f) && b(f) }
	}
}

// Or composes two filters; the result matches when either matches.
func Or(a, b FrameFilter) FrameFilter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return func(f Frame) bool { return a(f) || b(f) }
	}
}

// Not inverts a filter.
func Not(a FrameFilter) FrameFilter {
	if a == nil {
		return func(f Frame) bool { return true }
	}
	return func(f Frame) bool { return !a(f) }
}

// FrameKind selects data frames, remote frames or both in a Filter.
type FrameKind uint8

const (
	AnyFrame FrameKind = iota
	DataFrame
	RemoteFrame
)

func (k FrameKind) String() string {
	switch k {
	case AnyFrame:
		return "any"
	case DataFrame:
		return "data"
	case RemoteFrame:
		return "remote"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// Filter is a single acceptance filter as found on CAN controllers: an
// identifier/mask pair bound to one identifier width, plus a frame kind.
// The zero value accepts every frame.
type Filter struct {
	ID       uint32
	Mask     uint32
	Extended bool
	Frames   FrameKind
}

// AcceptAll is a Filter that lets every frame through.
var AcceptAll = Filter{}

// Func returns the filter as a composable FrameFilter. A zero mask accepts
// both identifier widths.
func (flt Filter) Func() FrameFilter {
	ff := ByMask(flt.ID, flt.Mask)
	if flt.Mask != 0 {
		if flt.Extended {
			ff = And(ExtendedOnly(), ff)
		} else {
			ff = And(StandardOnly(), ff)
		}
	}
	switch flt.Frames {
	case DataFrame:
		ff = And(DataOnly(), ff)
	case RemoteFrame:
		ff = And(RTROnly(), ff)
	}
	return ff
}

// Match reports whether f passes the filter.
func (flt Filter) Match(f Frame) bool {
	return flt.Func()(f)
}
