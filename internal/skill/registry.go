package skill

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// Registry holds all registered skills. Registration happens at startup;
// after Validate the registry is read-only and safe for concurrent use
// without locking.
type Registry struct {
	byName map[string]*Definition

	// order preserves registration order for deterministic tie-breaks.
	order []string

	validated bool
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]*Definition),
		logger: logger.Named("registry"),
	}
}

// Register adds a skill. Duplicate names and malformed patterns fail
// immediately; requires/conflicts referencing unknown names are caught
// by Validate once all skills are in (forward references between skills
// are legal during registration).
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" {
		return ErrSkillNameEmpty
	}
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, def.Name)
	}

	def.compiled = make([]*regexp.Regexp, 0, len(def.Patterns))
	for _, p := range def.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("%w: skill %s pattern %q: %v", ErrInvalidPattern, def.Name, p, err)
		}
		def.compiled = append(def.compiled, re)
	}

	r.byName[def.Name] = def
	r.order = append(r.order, def.Name)
	r.validated = false

	r.logger.Debug("registered skill",
		zap.String("skill", def.Name),
		zap.Int("priority", def.Priority),
		zap.Int("tools", len(def.Tools)))
	return nil
}

// MustRegister registers a skill and panics on error. For static skill
// tables wired at process start.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(fmt.Sprintf("failed to register skill %s: %v", def.Name, err))
	}
}

// Validate checks every requires/conflicts edge against the registered
// names. Fatal to startup when it fails; resolve never has to handle
// dangling references.
func (r *Registry) Validate() error {
	for _, name := range r.order {
		def := r.byName[name]
		for _, req := range def.Requires {
			if _, ok := r.byName[req]; !ok {
				return fmt.Errorf("%w: skill %s requires unknown skill %s", ErrInvalidDependency, name, req)
			}
		}
		for _, conf := range def.Conflicts {
			if _, ok := r.byName[conf]; !ok {
				return fmt.Errorf("%w: skill %s conflicts with unknown skill %s", ErrInvalidDependency, name, conf)
			}
		}
	}
	r.validated = true
	return nil
}

// Get returns a skill by name, or nil.
func (r *Registry) Get(name string) *Definition {
	return r.byName[name]
}

// Names returns all skill names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered skills.
func (r *Registry) Count() int {
	return len(r.byName)
}

// AllTools returns every tool identifier across all skills, sorted and
// deduplicated.
func (r *Registry) AllTools() []string {
	seen := make(map[string]bool)
	var tools []string
	for _, name := range r.order {
		for _, tool := range r.byName[name].Tools {
			if !seen[tool] {
				seen[tool] = true
				tools = append(tools, tool)
			}
		}
	}
	sort.Strings(tools)
	return tools
}

// registrationIndex returns the position of name in registration order.
func (r *Registry) registrationIndex(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return len(r.order)
}
