package protocol

import (
	"gopkg.in/yaml.v3"
)

// MatchingRule scores one attribute of a candidate.
type MatchingRule struct {
	ID         string     `yaml:"id"`
	Attribute  string     `yaml:"attribute"`
	Constraint Constraint `yaml:"constraint"`
	// Weight added to the score on match. Unset is read as 1.
	Weight   *int `yaml:"weight"`
	Required bool `yaml:"required"`
}

// Weight returns a rule weight for struct literals.
func Weight(n int) *int {
	return &n
}

// EffectiveWeight returns the weight, defaulting to 1 when unset.
func (r MatchingRule) EffectiveWeight() int {
	if r.Weight == nil {
		return 1
	}
	return *r.Weight
}

// Constraint holds the operators of a rule. Every non-nil operator must hold.
type Constraint struct {
	Equals      *Operand `yaml:"equals"`
	NotEquals   *Operand `yaml:"notEquals"`
	Contains    *Operand `yaml:"contains"`
	ContainsI   *Operand `yaml:"containsI"`
	GreaterThan *Operand `yaml:"greaterThan"`
}

// Empty reports whether no operator is set.
func (c Constraint) Empty() bool {
	return c.Equals == nil && c.NotEquals == nil && c.Contains == nil &&
		c.ContainsI == nil && c.GreaterThan == nil
}

// Operand is a constraint argument. Files may write it either bare
// (`equals: CT`) or wrapped (`equals: {value: CT}`).
type Operand struct {
	Value any
}

// Value wraps v as an operand.
func Value(v any) *Operand {
	return &Operand{Value: v}
}

// UnmarshalYAML accepts both the bare and the wrapped form.
func (op *Operand) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var wrapped struct {
			Value any `yaml:"value"`
		}
		if err := node.Decode(&wrapped); err != nil {
			return err
		}
		if len(node.Content) == 2 && node.Content[0].Value == "value" {
			op.Value = wrapped.Value
			return nil
		}
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	op.Value = v
	return nil
}

// MarshalYAML writes the wrapped form.
func (op Operand) MarshalYAML() (any, error) {
	return map[string]any{"value": op.Value}, nil
}
