package matching

import (
	"errors"
	"testing"

	"github.com/mrsinham/dicomhang/internal/protocol"
)

func rule(attr string, c protocol.Constraint) protocol.MatchingRule {
	return protocol.MatchingRule{Attribute: attr, Constraint: c}
}

func TestMatch_Operators(t *testing.T) {
	candidate := Bag{
		"Modality":          "CT",
		"SeriesDescription": "AX Chest PA",
		"SeriesNumber":      3,
		"SliceThickness":    "2.5",
		"ImageType":         []any{"ORIGINAL", "PRIMARY", "AXIAL"},
		"Single":            []string{"MR"},
		"numImageFrames":    int64(120),
		"study": map[string]any{
			"ModalitiesInStudy": []any{"CT", "PT"},
		},
		"empty": nil,
	}

	v := protocol.Value
	tests := []struct {
		name string
		rule protocol.MatchingRule
		want bool
	}{
		{"equals string", rule("Modality", protocol.Constraint{Equals: v("CT")}), true},
		{"equals mismatch", rule("Modality", protocol.Constraint{Equals: v("MR")}), false},
		{"equals across int kinds", rule("numImageFrames", protocol.Constraint{Equals: v(120)}), true},
		{"equals float and int", rule("SeriesNumber", protocol.Constraint{Equals: v(3.0)}), true},
		{"equals string is not a number", rule("SliceThickness", protocol.Constraint{Equals: v(2.5)}), false},
		{"equals list", rule("ImageType", protocol.Constraint{Equals: v([]any{"ORIGINAL", "PRIMARY", "AXIAL"})}), true},
		{"equals list order matters", rule("ImageType", protocol.Constraint{Equals: v([]any{"PRIMARY", "ORIGINAL", "AXIAL"})}), false},
		{"single element list equals scalar", rule("Single", protocol.Constraint{Equals: v("MR")}), true},
		{"notEquals", rule("Modality", protocol.Constraint{NotEquals: v("MR")}), true},
		{"notEquals same", rule("Modality", protocol.Constraint{NotEquals: v("CT")}), false},
		{"notEquals missing attribute", rule("Laterality", protocol.Constraint{NotEquals: v("L")}), false},
		{"nil attribute never matches", rule("empty", protocol.Constraint{NotEquals: v("x")}), false},
		{"contains substring", rule("SeriesDescription", protocol.Constraint{Contains: v("Chest")}), true},
		{"contains is case sensitive", rule("SeriesDescription", protocol.Constraint{Contains: v("chest")}), false},
		{"contains membership", rule("ImageType", protocol.Constraint{Contains: v("AXIAL")}), true},
		{"contains any of list operand", rule("SeriesDescription", protocol.Constraint{Contains: v([]any{"LAT", "PA"})}), true},
		{"contains none of list operand", rule("SeriesDescription", protocol.Constraint{Contains: v([]any{"LAT", "AP"})}), false},
		{"contains on number", rule("SeriesNumber", protocol.Constraint{Contains: v("3")}), false},
		{"containsI substring", rule("SeriesDescription", protocol.Constraint{ContainsI: v("chest pa")}), true},
		{"containsI membership", rule("ImageType", protocol.Constraint{ContainsI: v("axial")}), true},
		{"greaterThan", rule("numImageFrames", protocol.Constraint{GreaterThan: v(0)}), true},
		{"greaterThan equal", rule("SeriesNumber", protocol.Constraint{GreaterThan: v(3)}), false},
		{"greaterThan numeric string", rule("SliceThickness", protocol.Constraint{GreaterThan: v("1")}), true},
		{"greaterThan non numeric", rule("Modality", protocol.Constraint{GreaterThan: v(0)}), false},
		{"dot path", rule("study.ModalitiesInStudy", protocol.Constraint{Contains: v("PT")}), true},
		{"dot path missing", rule("study.Laterality", protocol.Constraint{Contains: v("L")}), false},
		{"all operators must hold", rule("numImageFrames", protocol.Constraint{GreaterThan: v(0), NotEquals: v(120)}), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Match(tc.rule, candidate)
			if err != nil {
				t.Fatalf("Match() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Match() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluate_Scoring(t *testing.T) {
	candidate := Bag{"Modality": "CR", "SeriesDescription": "PA", "numImageFrames": 1}
	v := protocol.Value

	weighted := rule("SeriesDescription", protocol.Constraint{Equals: v("PA")})
	weighted.Weight = protocol.Weight(10)
	zero := rule("Modality", protocol.Constraint{Equals: v("CR")})
	zero.Weight = protocol.Weight(0)
	requiredMiss := rule("Modality", protocol.Constraint{Equals: v("DX")})
	requiredMiss.Required = true

	tests := []struct {
		name  string
		rules []protocol.MatchingRule
		want  Result
	}{
		{"no rules", nil, Result{Score: 0, Satisfied: true, Matched: true}},
		{"default weight", []protocol.MatchingRule{rule("Modality", protocol.Constraint{Equals: v("CR")})}, Result{Score: 1, Satisfied: true, Matched: true}},
		{
			"weights sum",
			[]protocol.MatchingRule{weighted, rule("numImageFrames", protocol.Constraint{GreaterThan: v(0)})},
			Result{Score: 11, Satisfied: true, Matched: true},
		},
		{"explicit zero weight adds nothing", []protocol.MatchingRule{zero, weighted}, Result{Score: 10, Satisfied: true, Matched: true}},
		{"only zero weights never match", []protocol.MatchingRule{zero}, Result{Score: 0, Satisfied: true, Matched: false}},
		{"zero score is not a match", []protocol.MatchingRule{rule("Modality", protocol.Constraint{Equals: v("MR")})}, Result{Score: 0, Satisfied: true, Matched: false}},
		{
			"required miss rejects regardless of score",
			[]protocol.MatchingRule{weighted, weighted, requiredMiss},
			Result{Score: 0, Satisfied: false, Matched: false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(tc.rules, candidate)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestEvaluate_MalformedRule(t *testing.T) {
	tests := []struct {
		name string
		rule protocol.MatchingRule
	}{
		{"empty attribute", protocol.MatchingRule{Constraint: protocol.Constraint{Equals: protocol.Value(1)}}},
		{"empty segment", protocol.MatchingRule{Attribute: ".x", Constraint: protocol.Constraint{Equals: protocol.Value(1)}}},
		{"no operator", protocol.MatchingRule{Attribute: "x"}},
		{"nil operand", protocol.MatchingRule{Attribute: "x", Constraint: protocol.Constraint{Equals: &protocol.Operand{}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate([]protocol.MatchingRule{tc.rule}, Bag{"x": 1})
			if !errors.Is(err, ErrMatchingRule) {
				t.Errorf("Evaluate() error = %v, want ErrMatchingRule", err)
			}
		})
	}
}

func TestRank(t *testing.T) {
	results := []Result{
		{Score: 1, Satisfied: true, Matched: true},
		{Score: 5, Satisfied: true, Matched: true},
		{Satisfied: false},
		{Score: 5, Satisfied: true, Matched: true},
		{Score: 0, Satisfied: true, Matched: false},
	}
	got := Rank(results)
	want := []Ranked{{1, 5}, {3, 5}, {0, 1}}
	if len(got) != len(want) {
		t.Fatalf("Rank() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Rank()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
