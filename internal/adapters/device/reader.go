// Package device reads controller state through a small polling abstraction.
package device

import "sync"

// Feature names a readable device usage.
type Feature string

// Features read by the pipeline.
const (
	FeatureGripButton Feature = "gripButton"
	FeatureGrip       Feature = "grip"
	FeaturePosition   Feature = "devicePosition"
	FeatureVelocity   Feature = "deviceVelocity"
)

// Node is a tracked body location.
type Node int

// Tracked nodes.
const (
	NodeLeftHand Node = iota
	NodeRightHand
)

// DeviceReader is a polled view of one device. The TryRead methods report
// false when the device does not support the feature.
type DeviceReader interface {
	IsValid() bool
	TryReadBool(f Feature) (bool, bool)
	TryReadFloat(f Feature) (float64, bool)
	TryReadVec3(f Feature) (Vec3, bool)
}

// Provider looks up the device currently bound to a node. It returns nil when
// no device is present.
type Provider interface {
	DeviceAt(n Node) DeviceReader
}

// Tracker holds the left and right controllers and re-acquires them from the
// provider whenever they become invalid.
type Tracker struct {
	provider Provider

	mu    sync.Mutex
	left  DeviceReader
	right DeviceReader
}

// NewTracker creates a Tracker and performs the first acquisition.
func NewTracker(p Provider) *Tracker {
	t := &Tracker{provider: p}
	t.Reacquire()
	return t
}

// Reacquire replaces any missing or invalid controller.
func (t *Tracker) Reacquire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !valid(t.left) {
		t.left = t.provider.DeviceAt(NodeLeftHand)
	}
	if !valid(t.right) {
		t.right = t.provider.DeviceAt(NodeRightHand)
	}
}

// Controllers returns the current left and right readers; either may be nil.
func (t *Tracker) Controllers() (left, right DeviceReader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left, t.right
}

func valid(d DeviceReader) bool {
	return d != nil && d.IsValid()
}
