// Package domain defines the configuration entities, the patch sum type and
// the persisted snapshot shared by the store, its backends and its shells.
package domain

import (
	"errors"
	"fmt"
)

// EntityType identifies the kind of record a patch or error refers to.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityParameter identifies a configurable numeric parameter.
	EntityParameter EntityType = "parameter"
	// EntityCalculation identifies a formula-based calculation.
	EntityCalculation EntityType = "calculation"
	EntityHierarchy   EntityType = "hierarchy"
)

// Level identifies a hierarchy tier. Parameters may live on levels 1..5;
// hierarchy selections and calculation templates exist for levels 1..4.
type Level int

// Hierarchy tiers.
const (
	LevelIndustry   Level = 1
	LevelTechnology Level = 2
	LevelSolution   Level = 3
	LevelVariant    Level = 4
	// LevelCost holds the fixed cost parameter set seeded alongside the catalog.
	LevelCost Level = 5
)

// MaxHierarchyLevel is the deepest selectable hierarchy tier.
const MaxHierarchyLevel = LevelVariant

// Valid reports whether l is a parameter level (1..5).
func (l Level) Valid() bool { return l >= LevelIndustry && l <= LevelCost }

// Selectable reports whether l is a hierarchy selection level (1..4).
func (l Level) Selectable() bool { return l >= LevelIndustry && l <= MaxHierarchyLevel }

func (l Level) String() string {
	switch l {
	case LevelIndustry:
		return "industry"
	case LevelTechnology:
		return "technology"
	case LevelSolution:
		return "solution"
	case LevelVariant:
		return "variant"
	case LevelCost:
		return "cost"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Parameter is a configurable numeric quantity. Its ID is also the token
// formulas use to reference it.
type Parameter struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Level        Level    `json:"level"`
	Units        string   `json:"units"`
	DefaultValue *float64 `json:"defaultValue"`
	Value        *float64 `json:"value"`
	Description  string   `json:"description"`
}

// EffectiveValue returns the override when set, else the default, else zero.
func (p Parameter) EffectiveValue() float64 {
	if p.Value != nil {
		return *p.Value
	}
	if p.DefaultValue != nil {
		return *p.DefaultValue
	}
	return 0
}

// Overridden reports whether the user has set a value.
func (p Parameter) Overridden() bool { return p.Value != nil }

// Calculation is a named formula over parameter and calculation ids. Value
// holds the most recent evaluation; nil signals evaluation failure.
type Calculation struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Formula     string   `json:"formula" validate:"required"`
	Units       string   `json:"units" validate:"required"`
	Description string   `json:"description"`
	Value       *float64 `json:"value,omitempty"`
}

// Hierarchy is the four-level selection path. A level-N id is only
// meaningful when every level below N is set.
type Hierarchy struct {
	IndustryID   string `json:"industryId,omitempty"`
	TechnologyID string `json:"technologyId,omitempty"`
	SolutionID   string `json:"solutionId,omitempty"`
	VariantID    string `json:"variantId,omitempty"`
}

// At returns the id selected at level, or "" when unset or out of range.
func (h Hierarchy) At(level Level) string {
	switch level {
	case LevelIndustry:
		return h.IndustryID
	case LevelTechnology:
		return h.TechnologyID
	case LevelSolution:
		return h.SolutionID
	case LevelVariant:
		return h.VariantID
	default:
		return ""
	}
}

// Set assigns id at level. Downstream levels are left untouched.
func (h *Hierarchy) Set(level Level, id string) error {
	switch level {
	case LevelIndustry:
		h.IndustryID = id
	case LevelTechnology:
		h.TechnologyID = id
	case LevelSolution:
		h.SolutionID = id
	case LevelVariant:
		h.VariantID = id
	default:
		return fmt.Errorf("%w: %d", ErrInvalidLevel, int(level))
	}
	return nil
}

// Depth returns the number of leading levels that are set.
func (h Hierarchy) Depth() Level {
	var depth Level
	for l := LevelIndustry; l <= MaxHierarchyLevel; l++ {
		if h.At(l) == "" {
			break
		}
		depth = l
	}
	return depth
}

// HierarchyOption is one selectable catalog entry.
type HierarchyOption struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Sentinel errors returned by store mutators.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidLevel       = errors.New("invalid hierarchy level")
	ErrInvalidField       = errors.New("invalid field")
	ErrInvalidValue       = errors.New("invalid value")
	ErrDuplicateID        = errors.New("id already exists")
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidStep        = errors.New("invalid wizard step")
	ErrRollbackOutOfRange = errors.New("rollback index out of range")
)

// NotFoundError is returned when a mutator targets an id that does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Float returns a pointer to v; handy for optional numeric fields.
func Float(v float64) *float64 { return &v }

// CloneFloat copies an optional numeric field.
func CloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Clone returns a deep copy of p.
func (p Parameter) Clone() Parameter {
	cp := p
	cp.DefaultValue = CloneFloat(p.DefaultValue)
	cp.Value = CloneFloat(p.Value)
	return cp
}

// Clone returns a deep copy of c.
func (c Calculation) Clone() Calculation {
	cp := c
	cp.Value = CloneFloat(c.Value)
	return cp
}

// CloneParameters deep-copies a parameter list.
func CloneParameters(in []Parameter) []Parameter {
	if in == nil {
		return nil
	}
	out := make([]Parameter, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// CloneCalculations deep-copies a calculation list.
func CloneCalculations(in []Calculation) []Calculation {
	if in == nil {
		return nil
	}
	out := make([]Calculation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
