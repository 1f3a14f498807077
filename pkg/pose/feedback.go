package pose

// Kind classifies a feedback item at the moment it is generated so that
// consumers never have to infer intent from the wording.
type Kind int

const (
	// KindNotice is a status message about the input itself, such as a
	// request to step into the frame.
	KindNotice Kind = iota

	// KindGood affirms that a joint is within its tolerance band.
	KindGood

	// KindLow asks the user to increase a joint angle.
	KindLow

	// KindHigh asks the user to decrease a joint angle.
	KindHigh

	// KindAnalyzing is the placeholder emitted when rules were scored but
	// none produced text.
	KindAnalyzing
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotice:
		return "notice"
	case KindGood:
		return "good"
	case KindLow:
		return "low"
	case KindHigh:
		return "high"
	case KindAnalyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

// Corrective reports whether the item asks the user to change something.
func (k Kind) Corrective() bool { return k == KindLow || k == KindHigh }

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Sentinel feedback strings.
const (
	MsgPositionInFrame = "Please position yourself clearly in the frame."
	MsgHoldPose        = "Hold the pose..."
	MsgAnalyzing       = "Analyzing..."
)

// Feedback is one coaching message.
type Feedback struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`

	// Rule names the rule that produced the message. Empty for sentinels.
	Rule string `json:"rule,omitempty"`
}

// Outcome summarises how a frame was handled.
type Outcome int

const (
	// OutcomeUnframed means the framing gate failed or no rules were given.
	OutcomeUnframed Outcome = iota
	// OutcomeHold means rules exist but none could be evaluated.
	OutcomeHold
	// OutcomeScored means at least one rule was evaluated.
	OutcomeScored
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnframed:
		return "unframed"
	case OutcomeHold:
		return "hold"
	case OutcomeScored:
		return "scored"
	default:
		return "unknown"
	}
}

// Evaluation is the result of scoring one frame.
type Evaluation struct {
	// Feedback is never empty.
	Feedback []Feedback

	// Accuracy is in [0, 100].
	Accuracy float64

	// Evaluated is the number of rules whose keypoints were all present and
	// confident.
	Evaluated int

	Outcome Outcome
}

// Texts returns the feedback strings in order.
func (e Evaluation) Texts() []string {
	out := make([]string, len(e.Feedback))
	for i, f := range e.Feedback {
		out[i] = f.Text
	}
	return out
}
