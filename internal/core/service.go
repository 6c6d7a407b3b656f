package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"configforge/internal/assistant"
	blobcore "configforge/internal/blob/core"
	"configforge/internal/formula"
	"configforge/pkg/domain"
)

// ErrInvalidDraft is returned when the calculation builder rejects a draft.
var ErrInvalidDraft = errors.New("invalid calculation draft")

// Service is the controller the shells call. It wraps store operations with
// logging, metrics, tracing and audit, and hosts the assistant round trip,
// the calculation builder and configuration export.
type Service struct {
	store        *ConfigStore
	validator    *PatchValidator
	assistant    assistant.Client
	blobs        blobcore.Store
	exportPrefix string
	drafts       *validator.Validate
	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	audit        AuditRecorder
	clock        Clock
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithClock overrides the clock used for audit timestamps and exports.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAssistant sets the assistant backend used by Ask.
func WithAssistant(client assistant.Client) ServiceOption {
	return func(s *Service) { s.assistant = client }
}

// WithBlobStore sets where SaveConfiguration writes review documents.
func WithBlobStore(store blobcore.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// WithExportPrefix sets the key prefix of exported documents.
func WithExportPrefix(prefix string) ServiceOption {
	return func(s *Service) { s.exportPrefix = prefix }
}

// NewService constructs a service backed by store.
func NewService(store *ConfigStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		validator:    NewPatchValidator(store.evaluator),
		exportPrefix: "configurations",
		drafts:       validator.New(validator.WithRequiredStructEnabled()),
		logger:       noopLogger{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		audit:        noopAuditRecorder{},
		clock:        ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over the default catalog without
// persistence.
func NewInMemoryService(ctx context.Context, opts ...ServiceOption) (*Service, error) {
	store, err := NewConfigStore(ctx, nil)
	if err != nil {
		return nil, err
	}
	return NewService(store, opts...), nil
}

// Store returns the underlying configuration store.
func (s *Service) Store() *ConfigStore { return s.store }

// Validator returns the patch validator so callers can register extra rules.
func (s *Service) Validator() *PatchValidator { return s.validator }

// run wraps fn with a trace span, a metrics observation, an audit entry and
// a log line.
func (s *Service) run(ctx context.Context, op string, entity domain.EntityType, entityID string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Entity:    entity,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Warn("operation failed", "operation", op, "entity", entity, "entity_id", entityID, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "entity", entity, "entity_id", entityID, "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}

// State is the full read model served to shells.
type State struct {
	Hierarchy    domain.Hierarchy       `json:"hierarchy"`
	Parameters   []domain.Parameter     `json:"parameters"`
	Calculations []domain.Calculation   `json:"calculations"`
	Patches      []domain.PatchEnvelope `json:"patches"`
	CurrentStep  int                    `json:"currentStep"`
}

// State returns a consistent copy of the live configuration.
func (s *Service) State() State {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	st := s.store.state.clone()
	out := State{
		Hierarchy:    st.hierarchy,
		Parameters:   st.parameters,
		Calculations: st.calculations,
		Patches:      domain.Envelopes(st.patches),
		CurrentStep:  st.currentStep,
	}
	if out.Parameters == nil {
		out.Parameters = []domain.Parameter{}
	}
	if out.Calculations == nil {
		out.Calculations = []domain.Calculation{}
	}
	return out
}

// Options returns the catalog choices at level for the current selection.
func (s *Service) Options(level domain.Level) []domain.HierarchyOption {
	return s.store.Catalog().OptionsFor(level, s.store.Hierarchy())
}

// SelectHierarchy records a hierarchy selection.
func (s *Service) SelectHierarchy(ctx context.Context, level domain.Level, id string) error {
	return s.run(ctx, "set_hierarchy", domain.EntityHierarchy, id, func(ctx context.Context) error {
		return s.store.SetHierarchy(ctx, level, id)
	})
}

// UpdateParameter sets one parameter field.
func (s *Service) UpdateParameter(ctx context.Context, id string, field ParameterField, value any) error {
	return s.run(ctx, "update_parameter", domain.EntityParameter, id, func(ctx context.Context) error {
		return s.store.UpdateParameter(ctx, id, field, value)
	})
}

// ResetParameter clears a parameter override.
func (s *Service) ResetParameter(ctx context.Context, id string) error {
	return s.run(ctx, "reset_parameter", domain.EntityParameter, id, func(ctx context.Context) error {
		return s.store.ResetParam(ctx, id)
	})
}

// UpdateCalculation sets one calculation field.
func (s *Service) UpdateCalculation(ctx context.Context, id string, field CalculationField, value string) error {
	return s.run(ctx, "update_calculation", domain.EntityCalculation, id, func(ctx context.Context) error {
		return s.store.UpdateCalculation(ctx, id, field, value)
	})
}

// AddCalculation appends a calculation.
func (s *Service) AddCalculation(ctx context.Context, calc domain.Calculation) (domain.Calculation, error) {
	var created domain.Calculation
	err := s.run(ctx, "add_calculation", domain.EntityCalculation, calc.ID, func(ctx context.Context) error {
		var err error
		created, err = s.store.AddCalculation(ctx, calc)
		return err
	})
	return created, err
}

// RemoveCalculation deletes a calculation.
func (s *Service) RemoveCalculation(ctx context.Context, id string) error {
	return s.run(ctx, "remove_calculation", domain.EntityCalculation, id, func(ctx context.Context) error {
		return s.store.RemoveCalculation(ctx, id)
	})
}

// Recalc forces a recompute pass.
func (s *Service) Recalc(ctx context.Context) error {
	return s.run(ctx, "recalc", "", "", s.store.Recalc)
}

// SetCurrentStep records the wizard step.
func (s *Service) SetCurrentStep(ctx context.Context, step int) error {
	return s.run(ctx, "set_step", "", "", func(ctx context.Context) error {
		return s.store.SetCurrentStep(ctx, step)
	})
}

// ApplyPatches applies patches as one batch.
func (s *Service) ApplyPatches(ctx context.Context, patches ...domain.Patch) error {
	return s.run(ctx, "apply_patch", "", "", func(ctx context.Context) error {
		return s.store.ApplyPatch(ctx, patches...)
	})
}

// Rollback drops the last queued patch.
func (s *Service) Rollback(ctx context.Context) error {
	return s.run(ctx, "rollback", "", "", func(context.Context) error {
		s.store.Rollback()
		return nil
	})
}

// RollbackTo truncates the queue to its first k entries.
func (s *Service) RollbackTo(ctx context.Context, k int) error {
	return s.run(ctx, "rollback", "", "", func(context.Context) error {
		return s.store.RollbackTo(k)
	})
}

// CommitPatches clears the queue.
func (s *Service) CommitPatches(ctx context.Context) error {
	return s.run(ctx, "commit_patches", "", "", func(context.Context) error {
		s.store.CommitPatches()
		return nil
	})
}

// ValidatePatches checks envelopes against live state.
func (s *Service) ValidatePatches(ctx context.Context, envelopes []domain.PatchEnvelope) ValidationReport {
	return s.validator.Validate(ctx, s.store.View(), envelopes)
}

// AskResult is an assistant reply with its proposals already validated.
type AskResult struct {
	Answer           string         `json:"answer"`
	DescriptionDraft string         `json:"descriptionDraft,omitempty"`
	Suggestions      []domain.Patch `json:"suggestions"`
	Rejected         []Rejection    `json:"rejected,omitempty"`
}

// Ask sends message with the live configuration to the assistant and
// validates any proposed patches. State is never modified here.
func (s *Service) Ask(ctx context.Context, message string) (AskResult, error) {
	var result AskResult
	err := s.run(ctx, "ask", "", "", func(ctx context.Context) error {
		if s.assistant == nil {
			return fmt.Errorf("%w: no assistant configured", assistant.ErrAssistantUnavailable)
		}
		s.store.mu.RLock()
		st := s.store.state.clone()
		s.store.mu.RUnlock()

		req := assistant.Request{
			Context: assistant.NewContext(st.hierarchy, st.parameters, st.calculations, st.patches),
			Message: message,
		}
		resp, err := s.assistant.Chat(ctx, req)
		if err != nil {
			return err
		}
		report := s.validator.Validate(ctx, newStateView(st.parameters, st.calculations), resp.Patch)
		result = AskResult{
			Answer:           resp.Answer,
			DescriptionDraft: resp.DescriptionDraft,
			Suggestions:      report.Valid,
			Rejected:         report.Rejected,
		}
		if len(report.Rejected) > 0 {
			s.logger.Info("assistant proposals rejected", "count", len(report.Rejected), "reasons", report.Reasons())
		}
		return nil
	})
	return result, err
}

// ApplySuggestions applies the validated proposals of an Ask round trip.
func (s *Service) ApplySuggestions(ctx context.Context, result AskResult) error {
	if len(result.Suggestions) == 0 {
		return nil
	}
	return s.ApplyPatches(ctx, result.Suggestions...)
}

// CalculationDraft is the calculation builder form.
type CalculationDraft struct {
	Name        string `json:"name" validate:"required"`
	Formula     string `json:"formula" validate:"required"`
	Units       string `json:"units"`
	Description string `json:"description"`
}

// SaveCalculation validates a builder draft and either creates a new
// calculation (editID empty) or updates the existing one in place.
func (s *Service) SaveCalculation(ctx context.Context, draft CalculationDraft, editID string) (domain.Calculation, error) {
	var saved domain.Calculation
	err := s.run(ctx, "save_calculation", domain.EntityCalculation, editID, func(ctx context.Context) error {
		if err := s.drafts.Struct(draft); err != nil {
			return fmt.Errorf("%w: name and formula are required", ErrInvalidDraft)
		}
		if err := formula.Check(s.store.evaluator, draft.Formula, knownIDs(s.store.View())); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
		}
		var err error
		if editID == "" {
			saved, err = s.store.AddCalculation(ctx, domain.Calculation{
				Name:        draft.Name,
				Formula:     draft.Formula,
				Units:       draft.Units,
				Description: draft.Description,
			})
			return err
		}
		saved, err = s.store.MutateCalculation(ctx, editID, func(c *domain.Calculation) error {
			c.Name = draft.Name
			c.Formula = draft.Formula
			c.Units = draft.Units
			c.Description = draft.Description
			return nil
		})
		return err
	})
	return saved, err
}

// DescribePatch renders a queue entry for the pending changes list.
func (s *Service) DescribePatch(p domain.Patch) string {
	switch v := p.(type) {
	case domain.UpdatePatch:
		name := "Unknown"
		if param, ok := s.store.Parameter(v.ID); ok {
			name = param.Name
		} else if calc, ok := s.store.Calculation(v.ID); ok {
			name = calc.Name
		}
		return fmt.Sprintf("Update %s: %s = %v", name, v.Field, v.NewValue)
	case domain.CreateCalculationPatch:
		return fmt.Sprintf("Create %s: %s", v.Calculation.Name, v.Calculation.Formula)
	default:
		return fmt.Sprintf("%T", p)
	}
}
