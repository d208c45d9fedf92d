package simulate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/tapsense/internal/domain/model"
)

// Peak velocity bands (m/s) used by the synthetic classifier.
const (
	TapMinVelocity   = 0.3
	MidMinVelocity   = 1.0
	WristMinVelocity = 2.0
)

// Publisher overwrites the latest-prediction record.
type Publisher interface {
	PublishPrediction(ctx context.Context, raw []byte) error
}

// Classifier stands in for the remote model: it labels a recording by the
// peak controller speed and writes the result to the prediction record.
type Classifier struct {
	pub Publisher
}

// NewClassifier creates a Classifier writing through pub.
func NewClassifier(pub Publisher) *Classifier {
	return &Classifier{pub: pub}
}

// Classify labels samples recorded for hand. Slow recordings and recordings
// without a hand are not taps.
func (c *Classifier) Classify(hand model.Hand, samples []model.Sample) model.PredictionMessage {
	peak := 0.0
	for _, s := range samples {
		if s.Velocity > peak {
			peak = s.Velocity
		}
	}
	if !hand.Valid() || peak < TapMinVelocity {
		return model.PredictionMessage{Tapping: 0}
	}

	msg := model.PredictionMessage{Tapping: 1, Hand: hand, Position: model.PositionElbow}
	switch {
	case peak >= WristMinVelocity:
		msg.Position = model.PositionWrist
	case peak >= MidMinVelocity:
		msg.Position = model.PositionMid
	}
	return msg
}

// Publish writes msg as the latest prediction.
func (c *Classifier) Publish(ctx context.Context, msg model.PredictionMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	if err := c.pub.PublishPrediction(ctx, raw); err != nil {
		return fmt.Errorf("publish prediction: %w", err)
	}
	return nil
}

// Prime stores an initial no-tap record so the replay a subscriber receives
// on attach is never a real classification.
func (c *Classifier) Prime(ctx context.Context) error {
	return c.Publish(ctx, model.PredictionMessage{Tapping: 0})
}
