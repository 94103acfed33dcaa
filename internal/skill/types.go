// Package skill implements the skill registry and the intent router that
// decides, per user turn, which tool groups the agent may invoke.
//
// A skill is a named bundle of tool identifiers plus matching rules.
// The router activates skills from one utterance; the agent loop then
// picks a tool from the activated set. Keeping the active tool surface
// small is what keeps the model's context cheap.
package skill

import "regexp"

// Definition describes one registerable skill. Immutable after
// registration; the registry owns the only references handed out.
type Definition struct {
	// Name is the unique identifier, e.g. "modification".
	Name string

	// DisplayName is a human-readable label.
	DisplayName string

	// Description is the semantic text scored by the semantic pass.
	Description string

	// Keywords trigger activation on case-insensitive substring match.
	Keywords []string

	// Patterns trigger activation on regexp match. Compiled eagerly at
	// registration so malformed patterns fail at startup.
	Patterns []string

	// Examples are sample utterances; they enrich the semantic text.
	Examples []string

	// Tools lists tool identifiers in presentation order.
	Tools []string

	// Priority orders output and wins conflicts. Higher wins; ties break
	// by registration order (first registered wins).
	Priority int

	// Requires names skills pulled in transitively on activation.
	Requires []string

	// Conflicts names mutually exclusive skills.
	Conflicts []string

	// Threshold overrides the router's semantic threshold when > 0.
	Threshold float64

	// AlwaysOn skills activate on every turn regardless of matching.
	AlwaysOn bool

	// SystemPrompt is appended to the agent prompt while active.
	SystemPrompt string

	compiled []*regexp.Regexp
}

// semanticText returns the text the semantic scorer compares against.
func (d *Definition) semanticText() string {
	text := d.Description
	for _, ex := range d.Examples {
		text += "\n" + ex
	}
	return text
}

// ActivationSet is the router's output for one turn: an ordered,
// deduplicated, requires-closed, conflict-free sequence of skills plus
// the union of their tools. Owned by the caller; discard after the turn.
type ActivationSet struct {
	Skills []*Definition
	Tools  []string
}

// Names returns the activated skill names in output order.
func (a *ActivationSet) Names() []string {
	names := make([]string, len(a.Skills))
	for i, s := range a.Skills {
		names[i] = s.Name
	}
	return names
}

// Contains reports whether the named skill is active.
func (a *ActivationSet) Contains(name string) bool {
	for _, s := range a.Skills {
		if s.Name == name {
			return true
		}
	}
	return false
}

// SystemPrompts returns the non-empty prompt additions of active skills,
// in output order.
func (a *ActivationSet) SystemPrompts() []string {
	var prompts []string
	for _, s := range a.Skills {
		if s.SystemPrompt != "" {
			prompts = append(prompts, s.SystemPrompt)
		}
	}
	return prompts
}
