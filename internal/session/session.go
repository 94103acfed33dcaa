// Package session binds one conversation to one document. A session
// resolves each utterance to an activation set and then gates tool
// invocation on it: a tool outside the activated skills cannot run, no
// matter what the caller asks for.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sheetnerd/internal/dispatch"
	"sheetnerd/internal/document"
	"sheetnerd/internal/skill"
)

// ErrToolNotPermitted is returned when a tool is invoked without any
// activated skill advertising it.
var ErrToolNotPermitted = errors.New("tool not permitted by active skills")

// ErrNoActivation is returned when a tool is invoked before any
// utterance has been resolved.
var ErrNoActivation = errors.New("no utterance resolved yet")

// Turn records one resolved utterance for inspection.
type Turn struct {
	Utterance string
	Skills    []string
	At        time.Time
}

// Session is safe for concurrent use.
type Session struct {
	id     string
	log    *zap.Logger
	router *skill.Router
	disp   *dispatch.Dispatcher
	ctrl   *document.Controller

	mu         sync.RWMutex
	activation *skill.ActivationSet
	history    []Turn
}

// New creates a session over the given router and dispatcher.
func New(log *zap.Logger, router *skill.Router, disp *dispatch.Dispatcher, ctrl *document.Controller) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		id:     uuid.NewString(),
		router: router,
		disp:   disp,
		ctrl:   ctrl,
	}
	s.log = log.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Controller exposes the bound document controller.
func (s *Session) Controller() *document.Controller { return s.ctrl }

// Dispatcher exposes the underlying dispatcher for ungated invocation.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.disp }

// Resolve routes an utterance and installs the resulting activation set
// as the gate for subsequent InvokeTool calls.
func (s *Session) Resolve(ctx context.Context, utterance string) *skill.ActivationSet {
	set := s.router.Resolve(ctx, utterance)

	s.mu.Lock()
	s.activation = set
	s.history = append(s.history, Turn{
		Utterance: utterance,
		Skills:    set.Names(),
		At:        time.Now(),
	})
	s.mu.Unlock()

	s.log.Info("utterance resolved",
		zap.Strings("skills", set.Names()),
		zap.Int("tools", len(set.Tools)))
	return set
}

// InvokeTool runs a tool if and only if the current activation set
// permits it.
func (s *Session) InvokeTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	set := s.activation
	s.mu.RUnlock()

	if set == nil {
		return nil, ErrNoActivation
	}
	if !permitted(set, name) {
		s.log.Warn("tool blocked by skill gate",
			zap.String("tool", name),
			zap.Strings("active_skills", set.Names()))
		return nil, fmt.Errorf("%w: %q (active: %v)", ErrToolNotPermitted, name, set.Names())
	}
	return s.disp.Invoke(ctx, name, args)
}

// SystemPrompts returns the activated skills' prompt fragments in
// activation order, for assembling the model's system prompt.
func (s *Session) SystemPrompts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activation == nil {
		return nil
	}
	return s.activation.SystemPrompts()
}

// History returns the resolved turns so far.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

func permitted(set *skill.ActivationSet, tool string) bool {
	for _, t := range set.Tools {
		if t == tool {
			return true
		}
	}
	return false
}
