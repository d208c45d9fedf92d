package mqttfeed

import (
	"testing"

	"github.com/okian/tapsense/internal/adapters/store"
)

func TestTopics(t *testing.T) {
	p := store.NewPaths("sessions")

	if got := SampleTopic(p, "s1", "k1"); got != "sessions/s1/samples/k1" {
		t.Errorf("unexpected sample topic %q", got)
	}
	if got := SampleFilter(p, "s1"); got != "sessions/s1/samples/+" {
		t.Errorf("unexpected sample filter %q", got)
	}
	if got := PredictionTopic(p); got != "sessions/predictions/latest" {
		t.Errorf("unexpected prediction topic %q", got)
	}
}

func TestFilterMatching(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/x/c", true},
		{"a/+", "a/x/c", false},
		{"a/#", "a/x/c", true},
		{"a/b/+", "a/b", false},
		{"sessions/s1/samples/+", "sessions/s2/samples/k", false},
		{"sessions/predictions/latest", "sessions/predictions/latest", true},
	}

	for _, tt := range tests {
		if got := matches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("matches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
