package pose

import "math"

// Default thresholds used by [NewEvaluator].
const (
	DefaultFramingConfidence  = 0.3
	DefaultKeypointConfidence = 0.3
	DefaultFalloffDegrees     = 45.0
)

// Option configures an [Evaluator].
type Option func(*Evaluator)

// WithFramingConfidence sets the minimum mean keypoint confidence a frame
// needs before any rule is evaluated.
func WithFramingConfidence(c float64) Option {
	return func(e *Evaluator) { e.framing = c }
}

// WithKeypointConfidence sets the confidence each of a rule's three keypoints
// must strictly exceed for the rule to be evaluated.
func WithKeypointConfidence(c float64) Option {
	return func(e *Evaluator) { e.keypoint = c }
}

// WithFalloffDegrees sets how many degrees beyond the tolerance band the
// partial score takes to decay from 1 to 0. Non-positive values are ignored.
func WithFalloffDegrees(d float64) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.falloff = d
		}
	}
}

// Evaluator scores frames against rule sets. It holds no per-frame state and
// is safe for concurrent use.
type Evaluator struct {
	framing  float64
	keypoint float64
	falloff  float64
}

// NewEvaluator returns an Evaluator with default thresholds, overridden by
// opts.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		framing:  DefaultFramingConfidence,
		keypoint: DefaultKeypointConfidence,
		falloff:  DefaultFalloffDegrees,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var defaultEvaluator = NewEvaluator()

// Evaluate scores frame against rules with the default thresholds.
func Evaluate(frame []Keypoint, rules RuleSet) Evaluation {
	return defaultEvaluator.Evaluate(frame, rules)
}

// Evaluate scores frame against rules.
//
// A frame whose mean confidence is below the framing threshold, or an empty
// rule set, yields the [MsgPositionInFrame] notice with accuracy 0. Rules
// whose keypoints are missing or not confident are skipped entirely. If no
// rule could be evaluated the result is the [MsgHoldPose] notice. If rules
// were scored but none carried text the result is [MsgAnalyzing] with the
// computed accuracy.
func (e *Evaluator) Evaluate(frame []Keypoint, rules RuleSet) Evaluation {
	if len(rules) == 0 || len(frame) == 0 || MeanConfidence(frame) < e.framing {
		return Evaluation{
			Feedback: []Feedback{{Text: MsgPositionInFrame, Kind: KindNotice}},
			Outcome:  OutcomeUnframed,
		}
	}

	var (
		feedback []Feedback
		total    float64
		count    int
	)
	for _, r := range rules {
		p1, ok1 := e.confident(frame, r.P1)
		v, ok2 := e.confident(frame, r.Vertex)
		p3, ok3 := e.confident(frame, r.P3)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		count++

		angle := AngleDegrees(&p1, &v, &p3)
		dev := math.Abs(angle - r.TargetDegrees)
		if dev <= r.ToleranceDegrees {
			total++
			if r.FeedbackGood != "" {
				feedback = append(feedback, Feedback{Text: r.FeedbackGood, Kind: KindGood, Rule: r.Name})
			}
			continue
		}

		total += math.Max(0, 1-(dev-r.ToleranceDegrees)/e.falloff)
		text, kind := r.FeedbackHigh, KindHigh
		if angle < r.TargetDegrees {
			text, kind = r.FeedbackLow, KindLow
		}
		if text != "" {
			feedback = append(feedback, Feedback{Text: text, Kind: kind, Rule: r.Name})
		}
	}

	if count == 0 {
		return Evaluation{
			Feedback: []Feedback{{Text: MsgHoldPose, Kind: KindNotice}},
			Outcome:  OutcomeHold,
		}
	}

	accuracy := 100 * total / float64(count)
	if len(feedback) == 0 {
		feedback = []Feedback{{Text: MsgAnalyzing, Kind: KindAnalyzing}}
	}
	return Evaluation{
		Feedback:  feedback,
		Accuracy:  accuracy,
		Evaluated: count,
		Outcome:   OutcomeScored,
	}
}

func (e *Evaluator) confident(frame []Keypoint, idx int) (Keypoint, bool) {
	kp, ok := Lookup(frame, idx)
	if !ok || kp.Confidence <= e.keypoint {
		return Keypoint{}, false
	}
	return kp, true
}
