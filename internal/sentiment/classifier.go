// Package sentiment resolves sentiment labels for messages, combining
// persisted classifications, an in-memory cache, and a bounded fan-out to
// the model for whatever remains unscored.
package sentiment

import "context"

// Sentiment labels. Polarity is the signed confidence: positive confidence
// for positive labels, negated for negative, zero for neutral.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Score is a classification result for one message.
type Score struct {
	Label    string
	Polarity float64
}

// Neutral is the degraded score applied when classification fails.
var Neutral = Score{Label: LabelNeutral, Polarity: 0}

// Classifier scores a single piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Score, error)
}

// ValidLabel reports whether the model returned a label we recognize.
func ValidLabel(label string) bool {
	switch label {
	case LabelPositive, LabelNegative, LabelNeutral:
		return true
	}
	return false
}
