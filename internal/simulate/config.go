package simulate

import (
	"time"

	"github.com/okian/tapsense/internal/domain/model"
)

// Gesture is one scripted grip window.
type Gesture struct {
	Hand  model.Hand `json:"hand"`
	Steps int        `json:"steps"` // samples recorded while the grip is held
	Peak  float64    `json:"peak"`  // peak speed in m/s
}

// Config holds configuration for a simulation run.
type Config struct {
	Session           string        // Session id; generated when empty
	Strategy          string        // Upload strategy: batch or release
	Threshold         int           // Batch strategy flush size
	AlsoWriteSingles  bool          // Write every sample individually as well
	PredictionTimeout time.Duration // Release strategy wait bound
	StepDelay         time.Duration // Pause between sampler polls
	Gestures          []Gesture     // Script, played in order
}

// Report holds run statistics.
type Report struct {
	Session     string
	Strategy    string
	Gestures    int
	Batches     int
	Samples     int
	Events      map[string]int
	Predictions []model.PredictionMessage
	StartTime   time.Time
	Duration    time.Duration
}

// DefaultGestures is a script touching every tap channel plus a no-tap.
func DefaultGestures() []Gesture {
	return []Gesture{
		{Hand: model.HandRight, Steps: 24, Peak: 2.5},
		{Hand: model.HandLeft, Steps: 24, Peak: 2.5},
		{Hand: model.HandRight, Steps: 24, Peak: 1.4},
		{Hand: model.HandLeft, Steps: 24, Peak: 1.4},
		{Hand: model.HandRight, Steps: 24, Peak: 0.6},
		{Hand: model.HandLeft, Steps: 24, Peak: 0.6},
		{Hand: model.HandRight, Steps: 24, Peak: 0.1},
	}
}

// DefaultConfig returns a release-strategy run over DefaultGestures.
func DefaultConfig() Config {
	return Config{
		Strategy:          "release",
		Threshold:         10,
		PredictionTimeout: 50 * time.Millisecond,
		StepDelay:         2 * time.Millisecond,
		Gestures:          DefaultGestures(),
	}
}
