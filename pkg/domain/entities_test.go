package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParameterEffectiveValue(t *testing.T) {
	cases := []struct {
		name  string
		param Parameter
		want  float64
	}{
		{"override wins", Parameter{DefaultValue: Float(10), Value: Float(3)}, 3},
		{"default when no override", Parameter{DefaultValue: Float(10)}, 10},
		{"zero override is still an override", Parameter{DefaultValue: Float(10), Value: Float(0)}, 0},
		{"zero fallback", Parameter{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.param.EffectiveValue(); got != tc.want {
				t.Fatalf("EffectiveValue() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHierarchySetAndAt(t *testing.T) {
	var h Hierarchy
	for l := LevelIndustry; l <= MaxHierarchyLevel; l++ {
		if err := h.Set(l, l.String()); err != nil {
			t.Fatalf("set level %d: %v", l, err)
		}
	}
	if h.IndustryID != "industry" || h.VariantID != "variant" {
		t.Fatalf("unexpected hierarchy %+v", h)
	}
	if h.At(LevelSolution) != "solution" {
		t.Fatalf("expected solution, got %q", h.At(LevelSolution))
	}
	if err := h.Set(LevelCost, "x"); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
	if h.At(Level(0)) != "" {
		t.Fatalf("expected empty id for level 0")
	}
}

func TestHierarchyDepthStopsAtFirstGap(t *testing.T) {
	h := Hierarchy{IndustryID: "datacenter", SolutionID: "air-cooling"}
	if got := h.Depth(); got != LevelIndustry {
		t.Fatalf("Depth() = %d, want 1", got)
	}
	h.TechnologyID = "cooling"
	if got := h.Depth(); got != LevelSolution {
		t.Fatalf("Depth() = %d, want 3", got)
	}
}

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	err := error(NotFoundError{Entity: EntityParameter, ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is to match ErrNotFound")
	}
	if err.Error() != "parameter missing not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestParameterJSONUsesCamelCaseAndNulls(t *testing.T) {
	p := Parameter{ID: "cooling_load", Name: "Cooling Load", Level: LevelTechnology, Units: "kW", DefaultValue: Float(500)}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["defaultValue"] != 500.0 {
		t.Fatalf("expected defaultValue 500, got %v", raw["defaultValue"])
	}
	if v, ok := raw["value"]; !ok || v != nil {
		t.Fatalf("expected explicit null value, got %v (present=%v)", v, ok)
	}
}

func TestCloneDoesNotAliasOptionalValues(t *testing.T) {
	orig := []Parameter{{ID: "a", Value: Float(1)}}
	cp := CloneParameters(orig)
	*cp[0].Value = 2
	if *orig[0].Value != 1 {
		t.Fatalf("clone aliased the override pointer")
	}
	calcs := CloneCalculations([]Calculation{{ID: "c", Value: Float(4)}})
	if calcs[0].Value == nil || *calcs[0].Value != 4 {
		t.Fatalf("calculation value not copied")
	}
	if CloneParameters(nil) != nil {
		t.Fatalf("expected nil clone of nil slice")
	}
}
