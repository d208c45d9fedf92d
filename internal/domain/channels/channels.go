// Package channels defines the event bus vocabulary shared by producers and consumers.
package channels

import "github.com/okian/tapsense/internal/domain/model"

// Tap pipeline channels.
const (
	BeginTap      = "BEGIN_TAP"
	TapRightWrist = "TAPP_RIGHT_WRIST"
	TapLeftWrist  = "TAPP_LEFT_WRIST"
	TapRightMid   = "TAPP_RIGHT_MID"
	TapLeftMid    = "TAPP_LEFT_MID"
	TapRightElbow = "TAPP_RIGHT_ELBOW"
	TapLeftElbow  = "TAPP_LEFT_ELBOW"
	NoTap         = "NO_TAPP"
)

// Gesture channels share the bus with the tap pipeline.
const (
	GestureActionStart = "GESTURE_ACTION_START"
	RightGesture       = "RIGHT_GESTURE"
	LeftGesture        = "LEFT_GESTURE"
	UpGesture          = "UP_GESTURE"
	DownGesture        = "DOWN_GESTURE"
	NoGesture          = "NO_GESTURE"
)

type tapKey struct {
	hand     model.Hand
	position model.Position
}

var tapTable = map[tapKey]string{ //nolint:gochecknoglobals // fixed lookup table
	{model.HandLeft, model.PositionWrist}:  TapLeftWrist,
	{model.HandLeft, model.PositionMid}:    TapLeftMid,
	{model.HandLeft, model.PositionElbow}:  TapLeftElbow,
	{model.HandRight, model.PositionWrist}: TapRightWrist,
	{model.HandRight, model.PositionMid}:   TapRightMid,
	{model.HandRight, model.PositionElbow}: TapRightElbow,
}

// TapChannel maps a (hand, position) pair to its tap channel.
// The table is partial; ok is false for any other combination.
func TapChannel(hand model.Hand, position model.Position) (string, bool) {
	name, ok := tapTable[tapKey{hand, position}]
	return name, ok
}

// TapChannels returns the six tap-location channels.
func TapChannels() []string {
	return []string{
		TapRightWrist, TapLeftWrist,
		TapRightMid, TapLeftMid,
		TapRightElbow, TapLeftElbow,
	}
}

// PredictionChannels returns every channel that resolves a prediction wait.
func PredictionChannels() []string {
	return append(TapChannels(), NoTap)
}

// Known returns the bootstrap list used to pre-seed the bus.
func Known() []string {
	out := []string{BeginTap}
	out = append(out, PredictionChannels()...)
	return append(out,
		RightGesture, LeftGesture, UpGesture, DownGesture,
		GestureActionStart, NoGesture,
	)
}

// IsKnown reports whether name is part of the bootstrap vocabulary.
func IsKnown(name string) bool {
	for _, n := range Known() {
		if n == name {
			return true
		}
	}
	return false
}
