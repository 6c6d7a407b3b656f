package domain

import (
	"encoding/json"
	"fmt"
)

// PatchAction is the wire discriminator of a patch envelope.
type PatchAction string

// Recognised patch actions.
const (
	PatchActionUpdate PatchAction = "update"
	PatchActionCreate PatchAction = "create"
)

// PatchField names the field an update patch overwrites.
type PatchField string

// Fields an update patch may target.
const (
	FieldValue       PatchField = "value"
	FieldFormula     PatchField = "formula"
	FieldDescription PatchField = "description"
)

// Valid reports whether f is one of value, formula or description.
func (f PatchField) Valid() bool {
	switch f {
	case FieldValue, FieldFormula, FieldDescription:
		return true
	}
	return false
}

// Patch is a proposed or applied mutation. It is a closed sum type: the only
// implementations are UpdatePatch and CreateCalculationPatch.
type Patch interface {
	Action() PatchAction
	Envelope() PatchEnvelope
	sealedPatch()
}

// UpdatePatch overwrites one field of an existing parameter or calculation.
type UpdatePatch struct {
	ID       string
	Field    PatchField
	NewValue any
}

// CreateCalculationPatch introduces a brand-new calculation.
type CreateCalculationPatch struct {
	Calculation Calculation
}

var (
	_ Patch = UpdatePatch{}
	_ Patch = CreateCalculationPatch{}
)

func (UpdatePatch) Action() PatchAction            { return PatchActionUpdate }
func (CreateCalculationPatch) Action() PatchAction { return PatchActionCreate }
func (UpdatePatch) sealedPatch()                   {}
func (CreateCalculationPatch) sealedPatch()        {}

// Envelope returns the wire form of p.
func (p UpdatePatch) Envelope() PatchEnvelope {
	return PatchEnvelope{Action: string(PatchActionUpdate), ID: p.ID, Field: string(p.Field), NewValue: p.NewValue}
}

// Envelope returns the wire form of p.
func (p CreateCalculationPatch) Envelope() PatchEnvelope {
	calc := p.Calculation.Clone()
	return PatchEnvelope{Action: string(PatchActionCreate), Entity: string(EntityCalculation), Payload: &calc}
}

// MarshalJSON encodes the patch in its envelope form.
func (p UpdatePatch) MarshalJSON() ([]byte, error) { return json.Marshal(p.Envelope()) }

// MarshalJSON encodes the patch in its envelope form.
func (p CreateCalculationPatch) MarshalJSON() ([]byte, error) { return json.Marshal(p.Envelope()) }

// PatchEnvelope is the loosely typed wire form produced by the assistant.
// Any combination of fields can arrive; Patch converts the structurally
// valid ones into the sum type.
type PatchEnvelope struct {
	Action   string       `json:"action"`
	ID       string       `json:"id,omitempty"`
	Field    string       `json:"field,omitempty"`
	NewValue any          `json:"newValue,omitempty"`
	Entity   string       `json:"entity,omitempty"`
	Payload  *Calculation `json:"payload,omitempty"`
}

// Patch converts the envelope into the typed sum. Only the action/entity
// shape is checked here; semantic validation happens against live state.
func (e PatchEnvelope) Patch() (Patch, error) {
	switch {
	case e.Action == string(PatchActionUpdate):
		return UpdatePatch{ID: e.ID, Field: PatchField(e.Field), NewValue: e.NewValue}, nil
	case e.Action == string(PatchActionCreate) && e.Entity == string(EntityCalculation):
		if e.Payload == nil {
			return CreateCalculationPatch{}, nil
		}
		return CreateCalculationPatch{Calculation: e.Payload.Clone()}, nil
	default:
		return nil, fmt.Errorf("invalid patch action %q/%q", e.Action, e.Entity)
	}
}

// Envelopes converts typed patches to their wire form.
func Envelopes(patches []Patch) []PatchEnvelope {
	out := make([]PatchEnvelope, 0, len(patches))
	for _, p := range patches {
		out = append(out, p.Envelope())
	}
	return out
}

// ClonePatch copies the mutable parts of a patch.
func ClonePatch(p Patch) Patch {
	switch v := p.(type) {
	case UpdatePatch:
		return v
	case CreateCalculationPatch:
		return CreateCalculationPatch{Calculation: v.Calculation.Clone()}
	default:
		panic(fmt.Sprintf("domain: unknown patch type %T", p))
	}
}

// ClonePatches copies a patch queue.
func ClonePatches(in []Patch) []Patch {
	out := make([]Patch, len(in))
	for i, p := range in {
		out[i] = ClonePatch(p)
	}
	return out
}
