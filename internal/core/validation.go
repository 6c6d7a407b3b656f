package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"configforge/internal/formula"
	"configforge/pkg/domain"
)

// Rejection reasons. Each rejection message starts with one of these.
const (
	ReasonInvalidAction     = "invalid patch action"
	ReasonNotFound          = "not found"
	ReasonInvalidField      = "invalid field"
	ReasonIncompletePayload = "incomplete payload"
	ReasonInvalidID         = "invalid id"
	ReasonDuplicateID       = "id already exists"
	ReasonInvalidFormula    = "invalid formula"
)

// Rejection explains why a proposed patch was not accepted.
type Rejection struct {
	Index  int                  `json:"index"`
	Patch  domain.PatchEnvelope `json:"patch"`
	Reason string               `json:"reason"`
}

// ValidationReport partitions proposed patches. Valid keeps the input order.
type ValidationReport struct {
	Valid    []domain.Patch `json:"valid"`
	Rejected []Rejection    `json:"rejected,omitempty"`
}

// Reasons lists the rejection messages in input order.
func (r ValidationReport) Reasons() []string {
	out := make([]string, 0, len(r.Rejected))
	for _, rej := range r.Rejected {
		out = append(out, rej.Reason)
	}
	return out
}

// PatchValidator checks assistant-proposed patches against live state
// before they can be applied.
type PatchValidator struct {
	engine *domain.RulesEngine
}

// NewPatchValidator registers the default patch rules on a fresh engine.
func NewPatchValidator(ev formula.Evaluator) *PatchValidator {
	if ev == nil {
		ev = formula.NewEvaluator()
	}
	engine := domain.NewRulesEngine()
	for _, rule := range DefaultPatchRules(ev) {
		engine.Register(rule)
	}
	return &PatchValidator{engine: engine}
}

// DefaultPatchRules returns the patch rules in evaluation order. The engine
// stops at the first blocking rule, so later rules can assume earlier ones
// passed.
func DefaultPatchRules(ev formula.Evaluator) []domain.Rule {
	return []domain.Rule{
		patchActionRule{},
		updateTargetRule{},
		updateFieldRule{},
		createPayloadRule{validate: validator.New(validator.WithRequiredStructEnabled())},
		createIDRule{},
		formulaRule{evaluator: ev},
	}
}

// Engine exposes the underlying rules engine so callers can register extra
// rules.
func (v *PatchValidator) Engine() *domain.RulesEngine { return v.engine }

// Validate evaluates every envelope against view.
func (v *PatchValidator) Validate(ctx context.Context, view domain.RuleView, envelopes []domain.PatchEnvelope) ValidationReport {
	report := ValidationReport{Valid: make([]domain.Patch, 0, len(envelopes))}
	for i, env := range envelopes {
		res, err := v.engine.Evaluate(ctx, view, env)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{Index: i, Patch: env, Reason: err.Error()})
			continue
		}
		if violation, blocked := res.FirstBlocking(); blocked {
			report.Rejected = append(report.Rejected, Rejection{Index: i, Patch: env, Reason: violation.Message})
			continue
		}
		patch, err := env.Patch()
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{Index: i, Patch: env, Reason: fmt.Sprintf("%s: %v", ReasonInvalidAction, err)})
			continue
		}
		report.Valid = append(report.Valid, patch)
	}
	return report
}

// ValidatePatches checks envelopes against the given parameter and
// calculation lists with the default rules.
func ValidatePatches(ctx context.Context, envelopes []domain.PatchEnvelope, parameters []domain.Parameter, calculations []domain.Calculation) ValidationReport {
	return NewPatchValidator(nil).Validate(ctx, newStateView(parameters, calculations), envelopes)
}

func block(rule string, entity domain.EntityType, id, message string) domain.Result {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}}}
}

func isUpdate(p domain.PatchEnvelope) bool { return p.Action == string(domain.PatchActionUpdate) }

func isCreateCalculation(p domain.PatchEnvelope) bool {
	return p.Action == string(domain.PatchActionCreate) && p.Entity == string(domain.EntityCalculation)
}

type patchActionRule struct{}

func (patchActionRule) Name() string { return "patch_action" }

func (r patchActionRule) Evaluate(_ context.Context, _ domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	if isUpdate(p) || isCreateCalculation(p) {
		return domain.Result{}, nil
	}
	msg := fmt.Sprintf("%s: %q", ReasonInvalidAction, p.Action)
	if p.Entity != "" {
		msg = fmt.Sprintf("%s: %q on %q", ReasonInvalidAction, p.Action, p.Entity)
	}
	return block(r.Name(), "", p.ID, msg), nil
}

type updateTargetRule struct{}

func (updateTargetRule) Name() string { return "update_target" }

func (r updateTargetRule) Evaluate(_ context.Context, view domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	if !isUpdate(p) {
		return domain.Result{}, nil
	}
	if _, ok := view.FindParameter(p.ID); ok {
		return domain.Result{}, nil
	}
	if _, ok := view.FindCalculation(p.ID); ok {
		return domain.Result{}, nil
	}
	return block(r.Name(), "", p.ID, fmt.Sprintf("%s: %q", ReasonNotFound, p.ID)), nil
}

type updateFieldRule struct{}

func (updateFieldRule) Name() string { return "update_field" }

func (r updateFieldRule) Evaluate(_ context.Context, _ domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	if !isUpdate(p) || domain.PatchField(p.Field).Valid() {
		return domain.Result{}, nil
	}
	return block(r.Name(), "", p.ID, fmt.Sprintf("%s: %q on %q", ReasonInvalidField, p.Field, p.ID)), nil
}

type createPayloadRule struct {
	validate *validator.Validate
}

func (createPayloadRule) Name() string { return "create_payload" }

func (r createPayloadRule) Evaluate(_ context.Context, _ domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	if !isCreateCalculation(p) {
		return domain.Result{}, nil
	}
	if p.Payload == nil {
		return block(r.Name(), domain.EntityCalculation, "", ReasonIncompletePayload+": missing payload"), nil
	}
	err := r.validate.Struct(p.Payload)
	if err == nil {
		return domain.Result{}, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Result{}, err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, strings.ToLower(fe.Field()))
	}
	msg := fmt.Sprintf("%s: missing %s", ReasonIncompletePayload, strings.Join(missing, ", "))
	return block(r.Name(), domain.EntityCalculation, p.Payload.ID, msg), nil
}

type createIDRule struct{}

func (createIDRule) Name() string { return "create_id" }

func (r createIDRule) Evaluate(_ context.Context, view domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	if !isCreateCalculation(p) || p.Payload == nil {
		return domain.Result{}, nil
	}
	id := p.Payload.ID
	if !formula.ValidIdentifier(id) {
		return block(r.Name(), domain.EntityCalculation, id, fmt.Sprintf("%s: %q", ReasonInvalidID, id)), nil
	}
	if _, exists := view.FindCalculation(id); exists {
		return block(r.Name(), domain.EntityCalculation, id, fmt.Sprintf("%s: %q", ReasonDuplicateID, id)), nil
	}
	return domain.Result{}, nil
}

type formulaRule struct {
	evaluator formula.Evaluator
}

func (formulaRule) Name() string { return "formula" }

// Evaluate binds every known id to 1 and requires the formula to produce a
// finite number.
func (r formulaRule) Evaluate(_ context.Context, view domain.RuleView, p domain.PatchEnvelope) (domain.Result, error) {
	var id, expression string
	switch {
	case isUpdate(p) && p.Field == string(domain.FieldFormula):
		str, ok := p.NewValue.(string)
		if !ok {
			return block(r.Name(), domain.EntityCalculation, p.ID, fmt.Sprintf("%s: %q: formula must be a string", ReasonInvalidFormula, p.ID)), nil
		}
		id, expression = p.ID, str
	case isCreateCalculation(p) && p.Payload != nil:
		id, expression = p.Payload.ID, p.Payload.Formula
	default:
		return domain.Result{}, nil
	}
	if err := formula.Check(r.evaluator, expression, knownIDs(view)); err != nil {
		return block(r.Name(), domain.EntityCalculation, id, fmt.Sprintf("%s: %q: %v", ReasonInvalidFormula, id, err)), nil
	}
	return domain.Result{}, nil
}

func knownIDs(view domain.RuleView) []string {
	params := view.ListParameters()
	calcs := view.ListCalculations()
	ids := make([]string, 0, len(params)+len(calcs))
	for _, p := range params {
		ids = append(ids, p.ID)
	}
	for _, c := range calcs {
		ids = append(ids, c.ID)
	}
	return ids
}
