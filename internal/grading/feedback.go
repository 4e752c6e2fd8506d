package grading

// FeedbackTemplates maps normalized score bands to feedback wording. The
// band boundaries are fixed; the wording is deployment configuration.
type FeedbackTemplates struct {
	Excellent        string
	Good             string
	Partial          string
	NeedsImprovement string
}

// DefaultFeedbackTemplates returns the stock wording.
func DefaultFeedbackTemplates() FeedbackTemplates {
	return FeedbackTemplates{
		Excellent:        "Excellent answer that covers the expected content.",
		Good:             "Good answer with most of the expected content present.",
		Partial:          "Partially correct answer; several expected parts are weak or missing.",
		NeedsImprovement: "The answer needs improvement; little of the expected content was found.",
	}
}

// For returns the feedback text for a normalized score.
func (t FeedbackTemplates) For(normalized float64) string {
	switch {
	case normalized >= 0.9:
		return t.Excellent
	case normalized >= 0.7:
		return t.Good
	case normalized >= 0.5:
		return t.Partial
	default:
		return t.NeedsImprovement
	}
}

// Label returns the band name for a normalized score, used as the predicted
// grade label.
func (t FeedbackTemplates) Label(normalized float64) string {
	switch {
	case normalized >= 0.9:
		return "excellent"
	case normalized >= 0.7:
		return "good"
	case normalized >= 0.5:
		return "partial"
	default:
		return "needs_improvement"
	}
}
