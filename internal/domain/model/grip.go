package model

// Hand identifies a controller hand. Values match the classifier wire format.
type Hand int

// Hand values.
const (
	HandNone  Hand = -1
	HandLeft  Hand = 0
	HandRight Hand = 1
)

// String implements fmt.Stringer.
func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	default:
		return "none"
	}
}

// Valid reports whether h is a concrete hand.
func (h Hand) Valid() bool { return h == HandLeft || h == HandRight }

// GripState is the per-tick grip reading of both hands.
type GripState struct {
	LeftHeld  bool
	RightHeld bool
}

// ExactlyOne reports whether exactly one hand is held.
func (g GripState) ExactlyOne() bool { return g.LeftHeld != g.RightHeld }

// Normalize maps both-held to neither-held.
func (g GripState) Normalize() GripState {
	if g.LeftHeld && g.RightHeld {
		return GripState{}
	}
	return g
}

// Hand returns the held hand, or HandNone unless exactly one hand is held.
func (g GripState) Hand() Hand {
	switch {
	case !g.ExactlyOne():
		return HandNone
	case g.LeftHeld:
		return HandLeft
	default:
		return HandRight
	}
}
