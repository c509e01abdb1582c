package domain

// Sentiment is the coarse mood a text-understanding collaborator extracted.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Perception is the structured record produced upstream from one user
// message. The core never sees raw text.
type Perception struct {
	Symptoms           []string  `json:"symptoms,omitempty"`
	Sentiment          Sentiment `json:"sentiment,omitempty"`
	NutrientsMentioned []string  `json:"nutrients_mentioned,omitempty"`
	FoodsMentioned     []string  `json:"foods_mentioned,omitempty"`

	// FeedbackTarget is an action id, or a food naming the latest pending
	// suggestion of that food.
	FeedbackTarget  string `json:"feedback_target,omitempty"`
	FeedbackOutcome string `json:"feedback_outcome,omitempty"`

	Intent string `json:"intent,omitempty"`

	// Confidence scales the sentiment nudge. Nil means full weight; an
	// explicit 0 means the sentiment is ignored.
	Confidence *float64 `json:"confidence,omitempty"`
}

// SentimentScale returns the weight the sentiment nudge should carry.
func (p Perception) SentimentScale() float64 {
	if p.Confidence == nil {
		return 1
	}
	return *p.Confidence
}

// Prediction is a raw estimate from the statistical predictor.
type Prediction struct {
	Nutrient        NutrientID `json:"nutrient"`
	Value           float64    `json:"value"`
	ModelConfidence float64    `json:"model_confidence"`
}
