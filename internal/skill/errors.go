package skill

import "errors"

// Registry errors. These surface at startup, not at query time.
var (
	// ErrDuplicateSkill is returned when registering a name twice.
	ErrDuplicateSkill = errors.New("skill already registered")

	// ErrSkillNameEmpty is returned when a skill has no name.
	ErrSkillNameEmpty = errors.New("skill name cannot be empty")

	// ErrInvalidPattern is returned when a trigger pattern does not compile.
	ErrInvalidPattern = errors.New("invalid trigger pattern")

	// ErrInvalidDependency is returned when requires/conflicts reference
	// an unknown skill name.
	ErrInvalidDependency = errors.New("invalid skill dependency")
)
