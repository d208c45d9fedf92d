package mqttfeed

import "github.com/okian/tapsense/internal/adapters/store"

// SampleTopic is the retained topic of one sample.
func SampleTopic(p store.Paths, session, key string) string {
	return p.Sample(session, key)
}

// SampleFilter matches every sample of a session.
func SampleFilter(p store.Paths, session string) string {
	return p.Samples(session) + "/+"
}

// PredictionTopic is the retained last-value topic of the classifier.
func PredictionTopic(p store.Paths) string {
	return p.Prediction()
}
