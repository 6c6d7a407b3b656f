package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"configforge/internal/catalog"
	"configforge/internal/formula"
	"configforge/pkg/domain"
)

// Wizard step bounds.
const (
	FirstStep = 1
	LastStep  = 5
)

type configState struct {
	hierarchy    domain.Hierarchy
	parameters   []domain.Parameter
	calculations []domain.Calculation
	patches      []domain.Patch
	currentStep  int
}

func (s configState) clone() configState {
	return configState{
		hierarchy:    s.hierarchy,
		parameters:   domain.CloneParameters(s.parameters),
		calculations: domain.CloneCalculations(s.calculations),
		patches:      domain.ClonePatches(s.patches),
		currentStep:  s.currentStep,
	}
}

func (s configState) snapshot() domain.Snapshot {
	return domain.Snapshot{
		Hierarchy:    s.hierarchy,
		Parameters:   domain.CloneParameters(s.parameters),
		Calculations: domain.CloneCalculations(s.calculations),
		CurrentStep:  s.currentStep,
	}
}

func (s configState) parameterIndex(id string) int {
	for i, p := range s.parameters {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s configState) calculationIndex(id string) int {
	for i, c := range s.calculations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// ConfigStore owns the live configuration: hierarchy selection, parameters,
// calculations, the current wizard step and the session patch queue.
// Mutations run against a clone of the state, recompute, swap it in and then
// save a snapshot when a snapshot store is configured.
type ConfigStore struct {
	mu        sync.RWMutex
	state     configState
	catalog   *catalog.Catalog
	evaluator formula.Evaluator
	snapshots domain.SnapshotStore
	logger    Logger
	newID     func() string
	passes    atomic.Uint64
}

// StoreOption configures a ConfigStore.
type StoreOption func(*ConfigStore)

// WithSnapshotStore persists state after every mutation and restores it at
// construction.
func WithSnapshotStore(store domain.SnapshotStore) StoreOption {
	return func(s *ConfigStore) { s.snapshots = store }
}

// WithStoreLogger sets the logger used for recompute diagnostics.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *ConfigStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvaluator replaces the formula evaluator.
func WithEvaluator(ev formula.Evaluator) StoreOption {
	return func(s *ConfigStore) {
		if ev != nil {
			s.evaluator = ev
		}
	}
}

// WithIDGenerator replaces the calculation id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *ConfigStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewCalculationID returns a fresh formula-safe calculation id.
func NewCalculationID() string {
	return "calc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewConfigStore seeds state from the catalog, or restores the last saved
// snapshot when a snapshot store holds one. A nil catalog selects the
// embedded default.
func NewConfigStore(ctx context.Context, cat *catalog.Catalog, opts ...StoreOption) (*ConfigStore, error) {
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	s := &ConfigStore{
		catalog:   cat,
		evaluator: formula.NewEvaluator(),
		logger:    noopLogger{},
		newID:     NewCalculationID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = configState{
		parameters:  cat.Parameters(),
		currentStep: FirstStep,
	}
	if s.snapshots == nil {
		return s, nil
	}
	snap, found, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if found {
		s.state = s.restore(snap)
		s.logger.Info("configuration restored",
			"parameters", len(s.state.parameters),
			"calculations", len(s.state.calculations),
			"step", s.state.currentStep)
	}
	return s, nil
}

// restore adopts a saved snapshot and appends catalog parameters the
// snapshot predates.
func (s *ConfigStore) restore(snap domain.Snapshot) configState {
	st := configState{
		hierarchy:    snap.Hierarchy,
		parameters:   domain.CloneParameters(snap.Parameters),
		calculations: domain.CloneCalculations(snap.Calculations),
		currentStep:  snap.CurrentStep,
	}
	if st.currentStep < FirstStep || st.currentStep > LastStep {
		st.currentStep = FirstStep
	}
	for _, p := range s.catalog.Parameters() {
		if st.parameterIndex(p.ID) < 0 {
			st.parameters = append(st.parameters, p)
		}
	}
	return st
}

// Catalog returns the catalog the store was seeded from.
func (s *ConfigStore) Catalog() *catalog.Catalog { return s.catalog }

// update runs fn against a clone of the state, optionally recomputes, swaps
// the clone in and saves a snapshot. A failing fn leaves state untouched; a
// failing save is returned after the swap.
func (s *ConfigStore) update(ctx context.Context, recalc bool, fn func(*configState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if recalc {
		s.recalc(&next)
	}
	s.state = next
	if s.snapshots == nil {
		return nil
	}
	if err := s.snapshots.Save(ctx, next.snapshot()); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// updateQueue mutates the session patch queue only; nothing is recomputed
// or persisted.
func (s *ConfigStore) updateQueue(fn func([]domain.Patch) ([]domain.Patch, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	patches, err := fn(s.state.patches)
	if err != nil {
		return err
	}
	s.state.patches = patches
	return nil
}

// recalc evaluates every calculation once, in list order. Each formula sees
// every parameter's effective value and every other calculation's current
// value; results are written back as the pass proceeds, so earlier
// calculations are fresh and later ones carry the previous pass's value.
// Parameters shadow calculations sharing an id. Calculations without a value
// are unbound.
func (s *ConfigStore) recalc(st *configState) {
	s.passes.Add(1)
	for i := range st.calculations {
		vars := make(map[string]float64, len(st.parameters)+len(st.calculations))
		for j, c := range st.calculations {
			if j == i || c.Value == nil {
				continue
			}
			vars[c.ID] = *c.Value
		}
		for _, p := range st.parameters {
			vars[p.ID] = p.EffectiveValue()
		}
		calc := &st.calculations[i]
		v, err := s.evaluator.Evaluate(calc.Formula, vars)
		if err != nil {
			s.logger.Debug("calculation evaluation failed", "calculation", calc.ID, "formula", calc.Formula, "error", err)
			calc.Value = nil
			continue
		}
		calc.Value = domain.Float(v)
	}
}

// RecalcPasses reports how many recompute passes have run.
func (s *ConfigStore) RecalcPasses() uint64 { return s.passes.Load() }

// Hierarchy returns the current selection path.
func (s *ConfigStore) Hierarchy() domain.Hierarchy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.hierarchy
}

// Parameters returns a copy of the parameter list.
func (s *ConfigStore) Parameters() []domain.Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneParameters(s.state.parameters)
}

// Calculations returns a copy of the calculation list.
func (s *ConfigStore) Calculations() []domain.Calculation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneCalculations(s.state.calculations)
}

// Patches returns a copy of the patch queue in application order.
func (s *ConfigStore) Patches() []domain.Patch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ClonePatches(s.state.patches)
}

// CurrentStep returns the wizard step (1..5).
func (s *ConfigStore) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.currentStep
}

// Snapshot returns the persistable subset of state.
func (s *ConfigStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// Parameter looks up a parameter by id.
func (s *ConfigStore) Parameter(id string) (domain.Parameter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.parameterIndex(id); i >= 0 {
		return s.state.parameters[i].Clone(), true
	}
	return domain.Parameter{}, false
}

// Calculation looks up a calculation by id.
func (s *ConfigStore) Calculation(id string) (domain.Calculation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.state.calculationIndex(id); i >= 0 {
		return s.state.calculations[i].Clone(), true
	}
	return domain.Calculation{}, false
}

// View returns a read-only view of parameters and calculations for rule
// evaluation.
func (s *ConfigStore) View() domain.RuleView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newStateView(s.state.parameters, s.state.calculations)
}

// stateView is a detached copy of parameters and calculations.
type stateView struct {
	parameters   []domain.Parameter
	calculations []domain.Calculation
}

var _ domain.RuleView = stateView{}

func newStateView(params []domain.Parameter, calcs []domain.Calculation) stateView {
	return stateView{parameters: domain.CloneParameters(params), calculations: domain.CloneCalculations(calcs)}
}

func (v stateView) ListParameters() []domain.Parameter { return domain.CloneParameters(v.parameters) }

func (v stateView) ListCalculations() []domain.Calculation {
	return domain.CloneCalculations(v.calculations)
}

func (v stateView) FindParameter(id string) (domain.Parameter, bool) {
	for _, p := range v.parameters {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return domain.Parameter{}, false
}

func (v stateView) FindCalculation(id string) (domain.Calculation, bool) {
	for _, c := range v.calculations {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return domain.Calculation{}, false
}
