package skill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Router resolves one utterance to an ActivationSet. It never mutates
// shared state, so a single Router serves concurrent turns without
// locking once constructed.
type Router struct {
	registry *Registry

	// scorer drives the optional semantic pass; nil disables it.
	scorer Scorer

	// threshold is the default semantic score a skill must reach.
	// Per-skill thresholds override it.
	threshold float64

	logger *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithScorer enables the semantic pass.
func WithScorer(s Scorer) RouterOption {
	return func(r *Router) { r.scorer = s }
}

// WithThreshold sets the default semantic threshold.
func WithThreshold(t float64) RouterOption {
	return func(r *Router) { r.threshold = t }
}

// NewRouter validates the registry and builds a router over it. The
// registry must not be mutated afterwards.
func NewRouter(registry *Registry, logger *zap.Logger, opts ...RouterOption) (*Router, error) {
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("registry validation failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		registry:  registry,
		threshold: 0.3,
		logger:    logger.Named("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve activates skills for one utterance.
//
// Pipeline: keyword/pattern pass, optional semantic pass, union,
// requires-closure and conflict resolution iterated to a fixpoint,
// always-on skills, then ordering by descending priority with
// registration order breaking ties.
//
// Resolve is total and deterministic: malformed or empty input yields the
// always-on skills, never an error. Calling it twice with an unchanged
// registry returns an identical ActivationSet.
func (r *Router) Resolve(ctx context.Context, utterance string) *ActivationSet {
	active := make(map[string]bool)

	// Pass 1: keywords and patterns.
	lowered := strings.ToLower(utterance)
	for _, name := range r.registry.order {
		def := r.registry.byName[name]
		if def.AlwaysOn {
			continue
		}
		if r.matchesKeyword(def, lowered) || r.matchesPattern(def, utterance) {
			active[name] = true
		}
	}

	// Pass 2: semantic, best-effort. A scorer failure downgrades this
	// turn to keyword-only matching; it never fails the resolve.
	if r.scorer != nil && strings.TrimSpace(utterance) != "" {
		r.semanticPass(ctx, utterance, active)
	}

	// Always-on core skills are unconditional.
	for _, name := range r.registry.order {
		if r.registry.byName[name].AlwaysOn {
			active[name] = true
		}
	}

	r.settle(active)

	return r.build(active)
}

func (r *Router) matchesKeyword(def *Definition, loweredUtterance string) bool {
	for _, kw := range def.Keywords {
		if kw != "" && strings.Contains(loweredUtterance, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (r *Router) matchesPattern(def *Definition, utterance string) bool {
	for _, re := range def.compiled {
		if re.MatchString(utterance) {
			return true
		}
	}
	return false
}

func (r *Router) semanticPass(ctx context.Context, utterance string, active map[string]bool) {
	for _, name := range r.registry.order {
		def := r.registry.byName[name]
		if active[name] || def.AlwaysOn {
			continue
		}
		score, err := r.scorer.Score(ctx, utterance, def.semanticText())
		if err != nil {
			r.logger.Warn("semantic scorer unavailable, degrading to keyword matching",
				zap.Error(err))
			return
		}
		threshold := def.Threshold
		if threshold <= 0 {
			threshold = r.threshold
		}
		if score >= threshold {
			r.logger.Debug("semantic activation",
				zap.String("skill", name), zap.Float64("score", score))
			active[name] = true
		}
	}
}

// settle iterates requires-closure, conflict resolution, and dangling
// pruning until the active set stops changing. A skill removed along
// the way is excluded for the rest of the resolution, so closure can
// never re-add a conflict loser. Skills only move from active to
// excluded, never back, which bounds the loop on any registry.
func (r *Router) settle(active map[string]bool) {
	excluded := make(map[string]bool)
	for {
		changed := r.closeRequires(active, excluded)
		if r.resolveConflicts(active, excluded) {
			changed = true
		}
		if r.pruneDangling(active, excluded) {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// closeRequires adds every skill named in an active skill's Requires,
// except skills already excluded this resolution.
func (r *Router) closeRequires(active, excluded map[string]bool) bool {
	changed := false
	for {
		grew := false
		for _, name := range r.registry.order {
			if !active[name] {
				continue
			}
			for _, req := range r.registry.byName[name].Requires {
				if !active[req] && !excluded[req] {
					active[req] = true
					grew = true
					changed = true
				}
			}
		}
		if !grew {
			return changed
		}
	}
}

// resolveConflicts drops the loser of each active conflicting pair:
// lower priority loses, ties lose by later registration. Always-on
// skills never lose.
func (r *Router) resolveConflicts(active, excluded map[string]bool) bool {
	changed := false
	for _, name := range r.registry.order {
		if !active[name] {
			continue
		}
		def := r.registry.byName[name]
		for _, other := range def.Conflicts {
			if !active[other] || other == name {
				continue
			}
			loser := r.pickLoser(def, r.registry.byName[other])
			if loser != "" && active[loser] {
				r.logger.Debug("conflict resolved",
					zap.String("kept", otherOf(loser, name, other)),
					zap.String("dropped", loser))
				delete(active, loser)
				excluded[loser] = true
				changed = true
			}
		}
	}
	return changed
}

func (r *Router) pickLoser(a, b *Definition) string {
	switch {
	case a.AlwaysOn && b.AlwaysOn:
		return ""
	case a.AlwaysOn:
		return b.Name
	case b.AlwaysOn:
		return a.Name
	case a.Priority > b.Priority:
		return b.Name
	case b.Priority > a.Priority:
		return a.Name
	case r.registry.registrationIndex(a.Name) < r.registry.registrationIndex(b.Name):
		return b.Name
	default:
		return a.Name
	}
}

func otherOf(loser, a, b string) string {
	if loser == a {
		return b
	}
	return a
}

// pruneDangling removes skills whose requirements are no longer active
// (a conflict may have evicted a dependency). Always-on skills stay
// even when a requirement was excluded; everything else removed here is
// excluded too, so it cannot oscillate back in via closure.
func (r *Router) pruneDangling(active, excluded map[string]bool) bool {
	changed := false
	for {
		shrunk := false
		for _, name := range r.registry.order {
			if !active[name] {
				continue
			}
			def := r.registry.byName[name]
			if def.AlwaysOn {
				continue
			}
			for _, req := range def.Requires {
				if !active[req] {
					delete(active, name)
					excluded[name] = true
					shrunk = true
					changed = true
					break
				}
			}
		}
		if !shrunk {
			return changed
		}
	}
}

// build orders the active set and unions tool identifiers.
func (r *Router) build(active map[string]bool) *ActivationSet {
	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.registry.byName[names[i]], r.registry.byName[names[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return r.registry.registrationIndex(a.Name) < r.registry.registrationIndex(b.Name)
	})

	set := &ActivationSet{Skills: make([]*Definition, 0, len(names))}
	seen := make(map[string]bool)
	for _, name := range names {
		def := r.registry.byName[name]
		set.Skills = append(set.Skills, def)
		for _, tool := range def.Tools {
			if !seen[tool] {
				seen[tool] = true
				set.Tools = append(set.Tools, tool)
			}
		}
	}
	return set
}
