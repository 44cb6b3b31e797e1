// pkg/validator/spec.go
package validator

import (
	"fmt"
	"strings"
)

// Spec is the declarative form of a validator tree, suitable for YAML/JSON
// configuration and for the command line.
//
//	kind: all
//	children:
//	  - {kind: starts_with, value: "ORDER:"}
//	  - {kind: contains, value: "EURUSD"}
type Spec struct {
	Kind     string `mapstructure:"kind" json:"kind"`
	Value    string `mapstructure:"value" json:"value,omitempty"`
	Children []Spec `mapstructure:"children" json:"children,omitempty"`
}

// Build constructs the validator described by s. An empty Kind builds the
// match-any validator.
func (s Spec) Build() (Validator, error) {
	return s.build("$")
}

func (s Spec) build(path string) (Validator, error) {
	k := strings.ToLower(strings.TrimSpace(s.Kind))
	switch k {
	case "", "match_any", "none":
		return MatchAny(), nil
	case "regex":
		v, err := Regex(s.Value)
		if err != nil {
			return Validator{}, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	case "starts_with":
		return StartsWith(s.Value), nil
	case "ends_with":
		return EndsWith(s.Value), nil
	case "contains":
		return Contains(s.Value), nil
	case "all", "any":
		children, err := s.buildChildren(path)
		if err != nil {
			return Validator{}, err
		}
		if k == "all" {
			return All(children...), nil
		}
		return Any(children...), nil
	case "not":
		if len(s.Children) != 1 {
			return Validator{}, fmt.Errorf("validator: %s: not requires exactly one child, got %d", path, len(s.Children))
		}
		child, err := s.Children[0].build(path + ".children[0]")
		if err != nil {
			return Validator{}, err
		}
		return Not(child), nil
	default:
		return Validator{}, fmt.Errorf("validator: %s: unknown kind %q", path, s.Kind)
	}
}

func (s Spec) buildChildren(path string) ([]Validator, error) {
	out := make([]Validator, 0, len(s.Children))
	for i, c := range s.Children {
		v, err := c.build(fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Spec returns the declarative form of v. Build(v.Spec()) is Equal to v.
func (v Validator) Spec() Spec {
	s := Spec{Kind: v.kind.String(), Value: v.text}
	if len(v.children) > 0 {
		s.Children = make([]Spec, len(v.children))
		for i, c := range v.children {
			s.Children[i] = c.Spec()
		}
	}
	return s
}
