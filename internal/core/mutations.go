package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"configforge/internal/formula"
	"configforge/pkg/domain"
)

// ParameterField names a parameter attribute UpdateParameter may set.
type ParameterField string

// Parameter fields.
const (
	ParamFieldValue        ParameterField = "value"
	ParamFieldDefaultValue ParameterField = "defaultValue"
	ParamFieldName         ParameterField = "name"
	ParamFieldUnits        ParameterField = "units"
	ParamFieldDescription  ParameterField = "description"
	ParamFieldLevel        ParameterField = "level"
)

// CalculationField names a calculation attribute UpdateCalculation may set.
type CalculationField string

// Calculation fields.
const (
	CalcFieldName        CalculationField = "name"
	CalcFieldFormula     CalculationField = "formula"
	CalcFieldUnits       CalculationField = "units"
	CalcFieldDescription CalculationField = "description"
)

// SetHierarchy selects id at level (1..4). Template calculations of level
// and deeper are dropped, then the templates for levels 1..level that are
// missing are appended. Deeper selections are kept as they are.
func (s *ConfigStore) SetHierarchy(ctx context.Context, level domain.Level, id string) error {
	if !level.Selectable() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidLevel, int(level))
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty selection at %s", domain.ErrInvalidID, level)
	}
	return s.update(ctx, true, func(st *configState) error {
		if err := st.hierarchy.Set(level, id); err != nil {
			return err
		}
		kept := make([]domain.Calculation, 0, len(st.calculations))
		for _, c := range st.calculations {
			if l, ok := s.catalog.TemplateLevel(c.ID); ok && l >= level {
				continue
			}
			kept = append(kept, c)
		}
		st.calculations = kept
		for _, tpl := range s.catalog.TemplatesThrough(level) {
			if st.calculationIndex(tpl.ID) < 0 {
				st.calculations = append(st.calculations, tpl)
			}
		}
		return nil
	})
}

// UpdateParameter sets one field of a parameter and recomputes.
func (s *ConfigStore) UpdateParameter(ctx context.Context, id string, field ParameterField, value any) error {
	return s.update(ctx, true, func(st *configState) error {
		i := st.parameterIndex(id)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityParameter, ID: id}
		}
		p := &st.parameters[i]
		switch field {
		case ParamFieldValue, ParamFieldDefaultValue:
			n, err := coerceNumber(value)
			if err != nil {
				return fmt.Errorf("parameter %s %s: %w", id, field, err)
			}
			if field == ParamFieldValue {
				p.Value = n
			} else {
				p.DefaultValue = n
			}
		case ParamFieldName, ParamFieldUnits, ParamFieldDescription:
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("parameter %s %s: %w: want string, got %T", id, field, domain.ErrInvalidValue, value)
			}
			switch field {
			case ParamFieldName:
				p.Name = str
			case ParamFieldUnits:
				p.Units = str
			default:
				p.Description = str
			}
		case ParamFieldLevel:
			level, err := coerceLevel(value)
			if err != nil {
				return fmt.Errorf("parameter %s level: %w", id, err)
			}
			p.Level = level
		default:
			return fmt.Errorf("%w: parameter field %q", domain.ErrInvalidField, field)
		}
		return nil
	})
}

// ResetParam clears the user override so the default applies again.
func (s *ConfigStore) ResetParam(ctx context.Context, id string) error {
	return s.update(ctx, true, func(st *configState) error {
		i := st.parameterIndex(id)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityParameter, ID: id}
		}
		st.parameters[i].Value = nil
		return nil
	})
}

// UpdateCalculation sets one text field of a calculation and recomputes.
func (s *ConfigStore) UpdateCalculation(ctx context.Context, id string, field CalculationField, value string) error {
	return s.update(ctx, true, func(st *configState) error {
		i := st.calculationIndex(id)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityCalculation, ID: id}
		}
		c := &st.calculations[i]
		switch field {
		case CalcFieldName:
			c.Name = value
		case CalcFieldFormula:
			c.Formula = value
		case CalcFieldUnits:
			c.Units = value
		case CalcFieldDescription:
			c.Description = value
		default:
			return fmt.Errorf("%w: calculation field %q", domain.ErrInvalidField, field)
		}
		return nil
	})
}

// AddCalculation appends calc, generating an id when it has none, and
// returns it as stored after the recompute.
func (s *ConfigStore) AddCalculation(ctx context.Context, calc domain.Calculation) (domain.Calculation, error) {
	calc = calc.Clone()
	calc.Value = nil
	if calc.ID == "" {
		calc.ID = s.newID()
	}
	if !formula.ValidIdentifier(calc.ID) {
		return domain.Calculation{}, fmt.Errorf("%w: %q", domain.ErrInvalidID, calc.ID)
	}
	err := s.update(ctx, true, func(st *configState) error {
		if st.calculationIndex(calc.ID) >= 0 {
			return fmt.Errorf("%w: calculation %s", domain.ErrDuplicateID, calc.ID)
		}
		st.calculations = append(st.calculations, calc)
		return nil
	})
	if err != nil {
		return domain.Calculation{}, err
	}
	stored, _ := s.Calculation(calc.ID)
	return stored, nil
}

// MutateCalculation applies mutator to the calculation with id and
// recomputes. The id cannot be changed.
func (s *ConfigStore) MutateCalculation(ctx context.Context, id string, mutator func(*domain.Calculation) error) (domain.Calculation, error) {
	err := s.update(ctx, true, func(st *configState) error {
		i := st.calculationIndex(id)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityCalculation, ID: id}
		}
		current := st.calculations[i].Clone()
		if err := mutator(&current); err != nil {
			return err
		}
		current.ID = id
		st.calculations[i] = current
		return nil
	})
	if err != nil {
		return domain.Calculation{}, err
	}
	updated, _ := s.Calculation(id)
	return updated, nil
}

// RemoveCalculation deletes a calculation and recomputes.
func (s *ConfigStore) RemoveCalculation(ctx context.Context, id string) error {
	return s.update(ctx, true, func(st *configState) error {
		i := st.calculationIndex(id)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityCalculation, ID: id}
		}
		st.calculations = append(st.calculations[:i], st.calculations[i+1:]...)
		return nil
	})
}

// Recalc runs one recompute pass and persists the result.
func (s *ConfigStore) Recalc(ctx context.Context) error {
	return s.update(ctx, true, func(*configState) error { return nil })
}

// SetCurrentStep records the wizard step (1..5).
func (s *ConfigStore) SetCurrentStep(ctx context.Context, step int) error {
	if step < FirstStep || step > LastStep {
		return fmt.Errorf("%w: %d", domain.ErrInvalidStep, step)
	}
	return s.update(ctx, false, func(st *configState) error {
		st.currentStep = step
		return nil
	})
}

// ApplyPatch applies patches in order, appends every one of them to the
// queue and recomputes once. Update patches whose id is unknown, or whose
// value does not fit the field, leave state unchanged but are still queued.
func (s *ConfigStore) ApplyPatch(ctx context.Context, patches ...domain.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	return s.update(ctx, true, func(st *configState) error {
		for _, p := range patches {
			switch v := p.(type) {
			case domain.UpdatePatch:
				s.applyUpdate(st, v)
			case domain.CreateCalculationPatch:
				s.applyCreate(st, v)
			}
			st.patches = append(st.patches, domain.ClonePatch(p))
		}
		return nil
	})
}

func (s *ConfigStore) applyUpdate(st *configState, p domain.UpdatePatch) {
	if i := st.parameterIndex(p.ID); i >= 0 {
		param := &st.parameters[i]
		switch p.Field {
		case domain.FieldValue:
			if n, err := coerceNumber(p.NewValue); err == nil {
				param.Value = n
			} else {
				s.logger.Debug("patch value ignored", "parameter", p.ID, "error", err)
			}
		case domain.FieldDescription:
			if str, ok := p.NewValue.(string); ok {
				param.Description = str
			}
		}
	}
	if i := st.calculationIndex(p.ID); i >= 0 {
		calc := &st.calculations[i]
		switch p.Field {
		case domain.FieldFormula:
			if str, ok := p.NewValue.(string); ok {
				calc.Formula = str
			}
		case domain.FieldDescription:
			if str, ok := p.NewValue.(string); ok {
				calc.Description = str
			}
		}
	}
}

func (s *ConfigStore) applyCreate(st *configState, p domain.CreateCalculationPatch) {
	calc := p.Calculation.Clone()
	calc.Value = nil
	if calc.ID == "" {
		calc.ID = s.newID()
	}
	if !formula.ValidIdentifier(calc.ID) || st.calculationIndex(calc.ID) >= 0 {
		s.logger.Debug("create patch ignored", "calculation", calc.ID)
		return
	}
	st.calculations = append(st.calculations, calc)
}

// Rollback drops the most recent queue entry. Applied mutations stay.
func (s *ConfigStore) Rollback() {
	_ = s.updateQueue(func(q []domain.Patch) ([]domain.Patch, error) {
		if len(q) == 0 {
			return q, nil
		}
		return q[:len(q)-1], nil
	})
}

// RollbackTo truncates the queue to its first k entries, 0 <= k < len.
// Applied mutations stay.
func (s *ConfigStore) RollbackTo(k int) error {
	return s.updateQueue(func(q []domain.Patch) ([]domain.Patch, error) {
		if k < 0 || k >= len(q) {
			return q, fmt.Errorf("%w: %d (queue length %d)", domain.ErrRollbackOutOfRange, k, len(q))
		}
		return q[:k], nil
	})
}

// CommitPatches clears the queue. Live values are untouched.
func (s *ConfigStore) CommitPatches() {
	_ = s.updateQueue(func([]domain.Patch) ([]domain.Patch, error) { return nil, nil })
}

// coerceNumber accepts nil (clear), Go numerics, json.Number and numeric
// strings. Non-finite values are rejected.
func coerceNumber(v any) (*float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil, nil
	case *float64:
		return domain.CloneFloat(n), nil
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidValue, n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidValue, n)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("%w: want number, got %T", domain.ErrInvalidValue, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number", domain.ErrInvalidValue)
	}
	return &f, nil
}

func coerceLevel(v any) (domain.Level, error) {
	n, err := coerceNumber(v)
	if err != nil {
		return 0, err
	}
	if n == nil || *n != math.Trunc(*n) {
		return 0, fmt.Errorf("%w: level must be an integer", domain.ErrInvalidValue)
	}
	level := domain.Level(int(*n))
	if !level.Valid() {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidLevel, int(level))
	}
	return level, nil
}
