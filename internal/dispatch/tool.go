package dispatch

import (
	"context"
	"fmt"
	"strconv"
)

// Kind separates cacheable reads from mutations.
type Kind int

const (
	// KindRead tools are pure functions of the document at its current
	// version; their results are cached keyed on that version.
	KindRead Kind = iota

	// KindWrite tools mutate the document or other state and are never
	// cached.
	KindWrite
)

// Tool is one dispatchable operation.
type Tool struct {
	Name        string
	Description string
	Kind        Kind

	// NoCache opts a read tool out of caching, for results that can
	// change without a version bump (the change log grows on save and
	// rollback records too).
	NoCache bool

	// Required lists argument names validated before Execute runs.
	Required []string

	Execute func(ctx context.Context, args map[string]any) (any, error)
}

// ---- argument extraction helpers ----
// Tool arguments arrive as map[string]any decoded from JSON, so numbers
// are float64 and everything needs coercion.

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgument, key)
	}
	return s, nil
}

func optString(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return fallback
}

func argInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	return coerceInt(v, key)
}

func optInt(args map[string]any, key string, fallback int) (int, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	return coerceInt(v, key)
}

func coerceInt(v any, key string) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidArgument, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgument, key)
	}
}

func argFloat(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidArgument, key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, key)
	}
}

func optBool(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}
