package prediction

import (
	"encoding/json"
	"fmt"

	"github.com/okian/tapsense/internal/domain/model"
)

// wireMessage keeps field presence so missing keys can be told apart from zero.
type wireMessage struct {
	Tapping  *int `json:"tapping"`
	Hand     *int `json:"hand"`
	Position *int `json:"position"`
}

// Decode parses a latest-prediction record.
func Decode(raw []byte) (model.PredictionMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.PredictionMessage{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if w.Tapping == nil {
		return model.PredictionMessage{}, fmt.Errorf("%w: missing tapping", ErrMalformed)
	}

	msg := model.PredictionMessage{Tapping: *w.Tapping, Hand: model.HandNone, Position: -1}
	switch msg.Tapping {
	case 0:
		return msg, nil
	case 1:
		if w.Hand == nil || w.Position == nil {
			return model.PredictionMessage{}, fmt.Errorf("%w: tap without hand or position", ErrMalformed)
		}
		msg.Hand = model.Hand(*w.Hand)
		msg.Position = model.Position(*w.Position)
		return msg, nil
	default:
		return model.PredictionMessage{}, fmt.Errorf("%w: tapping=%d", ErrMalformed, msg.Tapping)
	}
}
