package device

import "github.com/okian/tapsense/internal/domain/model"

// GripThreshold is the analog grip value above which a hand counts as held.
const GripThreshold = 0.5

// ReadGrip returns the normalized grip state of both controllers.
func ReadGrip(left, right DeviceReader) model.GripState {
	return model.GripState{
		LeftHeld:  held(left),
		RightHeld: held(right),
	}.Normalize()
}

// held prefers the grip button and falls back to the analog grip axis.
func held(d DeviceReader) bool {
	if !valid(d) {
		return false
	}
	if v, ok := d.TryReadBool(FeatureGripButton); ok {
		return v
	}
	if v, ok := d.TryReadFloat(FeatureGrip); ok {
		return v > GripThreshold
	}
	return false
}
