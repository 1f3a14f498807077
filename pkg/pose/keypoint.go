// Package pose turns a single frame of body landmarks into coaching feedback.
//
// A frame is a slice of [Keypoint] values produced by an upstream landmark
// detector (the 33-point BlazePose topology is assumed for the named
// [Landmark] constants). [Evaluator.Evaluate] scores the frame against an
// ordered [RuleSet] of joint-angle targets and returns tagged [Feedback]
// together with an accuracy percentage.
//
// Everything in this package is pure and allocation-light; it is safe to call
// from any goroutine.
package pose

import "strings"

// Keypoint is one detected body landmark in a frame.
//
// X and Y are planar coordinates in any consistent unit (pixels or normalised
// image coordinates). Z is carried for completeness and ignored by angle
// computation. Confidence is in [0, 1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Confidence float64 `json:"confidence"`

	// Index is the landmark identifier within the skeleton topology.
	Index int `json:"index"`
}

// Landmark identifies a point of the 33-landmark BlazePose skeleton.
type Landmark int

// BlazePose landmark indices.
const (
	Nose Landmark = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// NumLandmarks is the size of the BlazePose topology.
	NumLandmarks int = iota
)

var landmarkNames = [...]string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// String returns the snake_case name of the landmark, e.g. "left_hip".
func (l Landmark) String() string {
	if l < 0 || int(l) >= len(landmarkNames) {
		return "unknown"
	}
	return landmarkNames[l]
}

// ParseLandmark resolves a landmark by its snake_case name. Matching is
// case-insensitive and accepts hyphens or spaces in place of underscores.
func ParseLandmark(name string) (Landmark, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	for i, s := range landmarkNames {
		if s == n {
			return Landmark(i), true
		}
	}
	return 0, false
}

// Lookup returns the keypoint in frame whose Index equals idx. Frames emitted
// by detectors are usually ordered by index, so the positional slot is tried
// first before falling back to a scan. ok is false when the landmark is absent.
func Lookup(frame []Keypoint, idx int) (kp Keypoint, ok bool) {
	if idx >= 0 && idx < len(frame) && frame[idx].Index == idx {
		return frame[idx], true
	}
	for _, k := range frame {
		if k.Index == idx {
			return k, true
		}
	}
	return Keypoint{}, false
}

// MeanConfidence returns the arithmetic mean of the confidence of every
// keypoint in frame, or 0 for an empty frame.
func MeanConfidence(frame []Keypoint) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, k := range frame {
		sum += k.Confidence
	}
	return sum / float64(len(frame))
}
