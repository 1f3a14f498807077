// Package rules loads pose rule sets and serves them by id or spoken name.
//
// Rule sets are YAML documents holding a list of poses. Each pose maps rule
// names to joint angle targets; the mapping order in the file is the order in
// which rules are checked and feedback is emitted. Landmarks may be written
// as BlazePose names ("left_knee") or indices (25).
//
//	poses:
//	  - id: chair
//	    name: Chair
//	    rules:
//	      knees:
//	        p1: left_hip
//	        vertex: left_knee
//	        p3: left_ankle
//	        target: 100
//	        tolerance: 15
//	        feedback_low: Rise up a little.
//	        feedback_high: Sit deeper into the pose.
//
// A built-in catalog of four poses is embedded in the binary.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// ErrPoseNotFound is returned when no pose matches an id or query.
var ErrPoseNotFound = errors.New("rules: pose not found")

//go:embed builtin.yaml
var builtinYAML []byte

// Pose is a named rule set a user can select.
type Pose struct {
	// ID is the stable, lower-case identifier (e.g. "warrior_ii").
	ID string `json:"id"`

	// Name is the display name (e.g. "Warrior II").
	Name string `json:"name"`

	// Description is a one-line summary of the target posture.
	Description string `json:"description,omitempty"`

	// Rules are checked in order against every frame.
	Rules pose.RuleSet `json:"-"`
}

// RuleNames returns the rule names in evaluation order.
func (p Pose) RuleNames() []string {
	names := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		names[i] = r.Name
	}
	return names
}

// Builtin returns the embedded pose catalog. It panics if the embedded file
// is malformed, which is caught by the package tests.
func Builtin() []Pose {
	poses, err := Parse(bytes.NewReader(builtinYAML))
	if err != nil {
		panic("rules: embedded catalog: " + err.Error())
	}
	return poses
}

// LoadFile parses the pose file at path.
func LoadFile(path string) ([]Pose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rules: open %q: %w", path, err)
	}
	defer f.Close()

	poses, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("rules: parse %q: %w", path, err)
	}
	return poses, nil
}

// ---- YAML document ----

type fileDoc struct {
	Poses []poseDoc `yaml:"poses"`
}

type poseDoc struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Rules       yaml.Node `yaml:"rules"`
}

type ruleDoc struct {
	P1           landmarkRef `yaml:"p1"`
	Vertex       landmarkRef `yaml:"vertex"`
	P3           landmarkRef `yaml:"p3"`
	Target       float64     `yaml:"target"`
	Tolerance    float64     `yaml:"tolerance"`
	FeedbackLow  string      `yaml:"feedback_low"`
	FeedbackHigh string      `yaml:"feedback_high"`
	FeedbackGood string      `yaml:"feedback_good"`
}

// landmarkRef accepts a landmark name or a non-negative index.
type landmarkRef struct {
	idx int
	set bool
}

func (l *landmarkRef) UnmarshalYAML(n *yaml.Node) error {
	var i int
	if err := n.Decode(&i); err == nil {
		l.idx, l.set = i, true
		return nil
	}
	var name string
	if err := n.Decode(&name); err != nil {
		return fmt.Errorf("line %d: landmark must be a name or index", n.Line)
	}
	lm, ok := pose.ParseLandmark(name)
	if !ok {
		return fmt.Errorf("line %d: unknown landmark %q", n.Line, name)
	}
	l.idx, l.set = int(lm), true
	return nil
}

// Parse decodes a pose file. Unknown fields are rejected. Every pose must have
// a unique id and at least one valid rule.
func Parse(r io.Reader) ([]Pose, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rules: decode yaml: %w", err)
	}

	var errs []error
	poses := make([]Pose, 0, len(doc.Poses))
	seen := make(map[string]int, len(doc.Poses))
	for i, pd := range doc.Poses {
		p, err := pd.toPose()
		if err != nil {
			errs = append(errs, fmt.Errorf("poses[%d]: %w", i, err))
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("poses[%d]: id %q is a duplicate of poses[%d]", i, p.ID, prev))
			continue
		}
		seen[p.ID] = i
		poses = append(poses, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return poses, nil
}

func (pd poseDoc) toPose() (Pose, error) {
	p := Pose{
		ID:          NormalizeID(pd.ID),
		Name:        strings.TrimSpace(pd.Name),
		Description: strings.TrimSpace(pd.Description),
	}
	if p.ID == "" {
		p.ID = NormalizeID(p.Name)
	}
	if p.ID == "" {
		return Pose{}, errors.New("id or name is required")
	}
	if p.Name == "" {
		p.Name = pd.ID
	}

	rules, err := decodeRules(&pd.Rules)
	if err != nil {
		return Pose{}, fmt.Errorf("pose %q: %w", p.ID, err)
	}
	if len(rules) == 0 {
		return Pose{}, fmt.Errorf("pose %q: at least one rule is required", p.ID)
	}
	if err := rules.Validate(); err != nil {
		return Pose{}, fmt.Errorf("pose %q: %w", p.ID, err)
	}
	p.Rules = rules
	return p, nil
}

// decodeRules walks the rules mapping in document order.
func decodeRules(n *yaml.Node) (pose.RuleSet, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: rules must be a mapping of rule name to rule", n.Line)
	}
	var (
		rs   pose.RuleSet
		errs []error
	)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var rd ruleDoc
		if err := decodeStrict(val, &rd); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", key.Value, err))
			continue
		}
		if !rd.P1.set || !rd.Vertex.set || !rd.P3.set {
			errs = append(errs, fmt.Errorf("rule %q: p1, vertex and p3 are required", key.Value))
			continue
		}
		rs = append(rs, pose.NamedRule{
			Name: key.Value,
			AngleRule: pose.AngleRule{
				P1:               rd.P1.idx,
				Vertex:           rd.Vertex.idx,
				P3:               rd.P3.idx,
				TargetDegrees:    rd.Target,
				ToleranceDegrees: rd.Tolerance,
				FeedbackLow:      rd.FeedbackLow,
				FeedbackHigh:     rd.FeedbackHigh,
				FeedbackGood:     rd.FeedbackGood,
			},
		})
	}
	return rs, errors.Join(errs...)
}

// decodeStrict decodes n into v rejecting unknown keys. yaml.Node.Decode does
// not honour the decoder's KnownFields setting, so the node is re-encoded and
// decoded through a strict decoder.
func decodeStrict(n *yaml.Node, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(n); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)
	return dec.Decode(v)
}

// NormalizeID lower-cases s and replaces runs of spaces and hyphens with a
// single underscore, so "Warrior II" and "warrior-ii" both become
// "warrior_ii".
func NormalizeID(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	return strings.Join(fields, "_")
}
