// Package catalog holds the read-only selection catalog: hierarchy options
// keyed by parent id, calculation templates per hierarchy level and the seed
// parameter list.
package catalog

import (
	"bytes"
	_ "embed" // default catalog
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"configforge/internal/formula"
	"configforge/pkg/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type optionSpec = domain.HierarchyOption

type calculationSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Formula     string `yaml:"formula"`
	Units       string `yaml:"units"`
	Description string `yaml:"description"`
}

type templateSpec struct {
	Level        domain.Level      `yaml:"level"`
	Calculations []calculationSpec `yaml:"calculations"`
}

type parameterSpec struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Level        domain.Level `yaml:"level"`
	Units        string       `yaml:"units"`
	DefaultValue *float64     `yaml:"defaultValue"`
	Description  string       `yaml:"description"`
}

type file struct {
	Industries     []optionSpec            `yaml:"industries"`
	Technologies   map[string][]optionSpec `yaml:"technologies"`
	Solutions      map[string][]optionSpec `yaml:"solutions"`
	Variants       map[string][]optionSpec `yaml:"variants"`
	Templates      []templateSpec          `yaml:"templates"`
	Parameters     []parameterSpec         `yaml:"parameters"`
	CostParameters []parameterSpec         `yaml:"costParameters"`
}

// Catalog is immutable once loaded; accessors return copies.
type Catalog struct {
	industries     []domain.HierarchyOption
	children       map[domain.Level]map[string][]domain.HierarchyOption
	templates      map[domain.Level][]domain.Calculation
	templateLevel  map[string]domain.Level
	parameters     []domain.Parameter
	costParameters []domain.Parameter
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return c, nil
}

// Load decodes and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var raw file
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{
		industries: append([]domain.HierarchyOption(nil), raw.Industries...),
		children: map[domain.Level]map[string][]domain.HierarchyOption{
			domain.LevelTechnology: cloneOptionMap(raw.Technologies),
			domain.LevelSolution:   cloneOptionMap(raw.Solutions),
			domain.LevelVariant:    cloneOptionMap(raw.Variants),
		},
		templates:     make(map[domain.Level][]domain.Calculation),
		templateLevel: make(map[string]domain.Level),
	}
	for _, spec := range raw.Parameters {
		c.parameters = append(c.parameters, spec.parameter())
	}
	for _, spec := range raw.CostParameters {
		c.costParameters = append(c.costParameters, spec.parameter())
	}
	for _, tpl := range raw.Templates {
		if !tpl.Level.Selectable() {
			return nil, fmt.Errorf("template level %d: %w", int(tpl.Level), domain.ErrInvalidLevel)
		}
		for _, spec := range tpl.Calculations {
			if _, dup := c.templateLevel[spec.ID]; dup {
				return nil, fmt.Errorf("template %q: %w", spec.ID, domain.ErrDuplicateID)
			}
			c.templateLevel[spec.ID] = tpl.Level
			c.templates[tpl.Level] = append(c.templates[tpl.Level], domain.Calculation{
				ID:          spec.ID,
				Name:        spec.Name,
				Formula:     spec.Formula,
				Units:       spec.Units,
				Description: spec.Description,
			})
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s parameterSpec) parameter() domain.Parameter {
	return domain.Parameter{
		ID:           s.ID,
		Name:         s.Name,
		Level:        s.Level,
		Units:        s.Units,
		DefaultValue: domain.CloneFloat(s.DefaultValue),
		Description:  s.Description,
	}
}

// validate enforces the id invariant and checks every template formula
// against the full identifier set.
func (c *Catalog) validate() error {
	ids := make(map[string]struct{})
	for _, p := range c.Parameters() {
		if !formula.ValidIdentifier(p.ID) {
			return fmt.Errorf("parameter %q: %w", p.ID, domain.ErrInvalidID)
		}
		if !p.Level.Valid() {
			return fmt.Errorf("parameter %q level %d: %w", p.ID, int(p.Level), domain.ErrInvalidLevel)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("parameter %q: %w", p.ID, domain.ErrDuplicateID)
		}
		ids[p.ID] = struct{}{}
	}
	for id := range c.templateLevel {
		if !formula.ValidIdentifier(id) {
			return fmt.Errorf("template %q: %w", id, domain.ErrInvalidID)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("template %q collides with a parameter: %w", id, domain.ErrDuplicateID)
		}
	}
	known := make([]string, 0, len(ids)+len(c.templateLevel))
	for id := range ids {
		known = append(known, id)
	}
	for id := range c.templateLevel {
		known = append(known, id)
	}
	ev := formula.NewEvaluator()
	for level, calcs := range c.templates {
		for _, calc := range calcs {
			if err := formula.Check(ev, calc.Formula, known); err != nil {
				return fmt.Errorf("template %q (level %d): %w", calc.ID, int(level), err)
			}
		}
	}
	return nil
}

// Options returns the choices at level under parentID. Level 1 ignores the
// parent.
func (c *Catalog) Options(level domain.Level, parentID string) []domain.HierarchyOption {
	if level == domain.LevelIndustry {
		return append([]domain.HierarchyOption(nil), c.industries...)
	}
	byParent, ok := c.children[level]
	if !ok {
		return nil
	}
	return append([]domain.HierarchyOption(nil), byParent[parentID]...)
}

// OptionsFor returns the choices at level given the current selection path.
func (c *Catalog) OptionsFor(level domain.Level, h domain.Hierarchy) []domain.HierarchyOption {
	if level == domain.LevelIndustry {
		return c.Options(level, "")
	}
	parent := h.At(level - 1)
	if parent == "" {
		return nil
	}
	return c.Options(level, parent)
}

// Lookup finds the option with id at level regardless of parent.
func (c *Catalog) Lookup(level domain.Level, id string) (domain.HierarchyOption, bool) {
	if level == domain.LevelIndustry {
		for _, o := range c.industries {
			if o.ID == id {
				return o, true
			}
		}
		return domain.HierarchyOption{}, false
	}
	for _, opts := range c.children[level] {
		for _, o := range opts {
			if o.ID == id {
				return o, true
			}
		}
	}
	return domain.HierarchyOption{}, false
}

// Templates returns the canonical calculations introduced at level.
func (c *Catalog) Templates(level domain.Level) []domain.Calculation {
	return domain.CloneCalculations(c.templates[level])
}

// TemplatesThrough returns the templates for levels 1..level in level order.
func (c *Catalog) TemplatesThrough(level domain.Level) []domain.Calculation {
	var out []domain.Calculation
	for l := domain.LevelIndustry; l <= level && l <= domain.MaxHierarchyLevel; l++ {
		out = append(out, c.Templates(l)...)
	}
	return out
}

// TemplateLevel reports the level whose template set contains id.
func (c *Catalog) TemplateLevel(id string) (domain.Level, bool) {
	l, ok := c.templateLevel[id]
	return l, ok
}

// Parameters returns the seed parameters followed by the cost parameters.
func (c *Catalog) Parameters() []domain.Parameter {
	out := make([]domain.Parameter, 0, len(c.parameters)+len(c.costParameters))
	out = append(out, domain.CloneParameters(c.parameters)...)
	out = append(out, domain.CloneParameters(c.costParameters)...)
	return out
}

func cloneOptionMap(in map[string][]domain.HierarchyOption) map[string][]domain.HierarchyOption {
	out := make(map[string][]domain.HierarchyOption, len(in))
	for k, v := range in {
		out[k] = append([]domain.HierarchyOption(nil), v...)
	}
	return out
}
