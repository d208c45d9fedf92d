package model

// Position is the body location of a tap.
type Position int

// Position values as emitted by the classifier.
const (
	PositionWrist Position = 0
	PositionMid   Position = 1
	PositionElbow Position = 2
)

// String implements fmt.Stringer.
func (p Position) String() string {
	switch p {
	case PositionWrist:
		return "wrist"
	case PositionMid:
		return "mid"
	case PositionElbow:
		return "elbow"
	default:
		return "unknown"
	}
}

// PredictionMessage is one classification read from the latest-prediction feed.
// Hand and Position are only meaningful when Tapping is 1.
type PredictionMessage struct {
	Tapping  int      `json:"tapping"`
	Hand     Hand     `json:"hand"`
	Position Position `json:"position"`
}

// IsTap reports whether the message describes a tap.
func (p PredictionMessage) IsTap() bool { return p.Tapping == 1 }
