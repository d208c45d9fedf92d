package prediction_test

import (
	"errors"
	"testing"

	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/prediction"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    model.PredictionMessage
		wantErr bool
	}{
		{"no tap", `{"tapping":0}`, model.PredictionMessage{Tapping: 0, Hand: model.HandNone, Position: -1}, false},
		{"tap", `{"tapping":1,"hand":1,"position":2}`, model.PredictionMessage{Tapping: 1, Hand: model.HandRight, Position: model.PositionElbow}, false},
		{"unknown fields ignored", `{"tapping":1,"hand":0,"position":0,"score":0.9}`, model.PredictionMessage{Tapping: 1, Hand: model.HandLeft, Position: model.PositionWrist}, false},
		{"missing tapping", `{"hand":1,"position":1}`, model.PredictionMessage{}, true},
		{"bad tapping", `{"tapping":3}`, model.PredictionMessage{}, true},
		{"tap without position", `{"tapping":1,"hand":0}`, model.PredictionMessage{}, true},
		{"not json", `tapping=1`, model.PredictionMessage{}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := prediction.Decode([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, prediction.ErrMalformed) {
					t.Fatalf("Decode(%s) error = %v, want ErrMalformed", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%s) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%s) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
