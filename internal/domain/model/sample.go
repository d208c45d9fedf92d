// Package model contains domain models passed between layers.
package model

import "math"

// Device identifiers used by the controller sampler.
const (
	DeviceLeftController  = "LeftController"
	DeviceRightController = "RightController"
)

// Vec3 is a position or velocity in XR origin space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Magnitude returns the Euclidean length of v.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is one motion reading of a single controller.
// Samples are immutable values; buffers copy them by value.
type Sample struct {
	TimestampMs  int64   `json:"timestampMs"`  // UTC time in ms
	DeviceID     string  `json:"deviceId"`     // LeftController / RightController
	Position     Vec3    `json:"position"`     // world position
	Velocity     float64 `json:"velocity"`     // m/s, >= 0
	Acceleration float64 `json:"acceleration"` // m/s^2 from dv/dt, >= 0
}

// Batch is the upload unit of a recording window.
type Batch struct {
	SessionID   string   `json:"sessionId"`
	Samples     []Sample `json:"samples"`
	TappingHand Hand     `json:"tappingHand"`
}

// NewBatch builds a Batch that owns a private copy of samples.
func NewBatch(sessionID string, samples []Sample, hand Hand) Batch {
	owned := make([]Sample, len(samples))
	copy(owned, samples)
	return Batch{SessionID: sessionID, Samples: owned, TappingHand: hand}
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Samples) }
