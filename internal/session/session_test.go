package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetnerd/internal/cache"
	"sheetnerd/internal/dispatch"
	"sheetnerd/internal/document"
	"sheetnerd/internal/skill"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())
	require.NoError(t, ctrl.WriteRange("A1", [][]any{
		{"name", "score"},
		{"ana", 90.0},
		{"bo", 72.0},
	}))

	reg := skill.NewBuiltinRegistry()
	router, err := skill.NewRouter(reg, nil)
	require.NoError(t, err)
	disp, err := dispatch.NewDispatcher(nil, ctrl, cache.New(32), nil, reg)
	require.NoError(t, err)
	return New(nil, router, disp, ctrl)
}

func TestSkillGating(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	t.Run("invoke before resolve is blocked", func(t *testing.T) {
		_, err := s.InvokeTool(ctx, "get_data_preview", nil)
		assert.ErrorIs(t, err, ErrNoActivation)
	})

	t.Run("query utterance permits reads but not writes", func(t *testing.T) {
		set := s.Resolve(ctx, "显示前10行数据")
		require.True(t, set.Contains(skill.CoreQuery))

		_, err := s.InvokeTool(ctx, "get_data_preview", nil)
		require.NoError(t, err)

		_, err = s.InvokeTool(ctx, "write_cell", map[string]any{"ref": "A1", "value": 1.0})
		require.ErrorIs(t, err, ErrToolNotPermitted)
		assert.Contains(t, err.Error(), "write_cell")
	})

	t.Run("write utterance opens the write tools", func(t *testing.T) {
		set := s.Resolve(ctx, "写入100到B2")
		require.True(t, set.Contains(skill.Modification))

		_, err := s.InvokeTool(ctx, "write_cell", map[string]any{"ref": "B2", "value": 100.0})
		require.NoError(t, err)

		v, err := s.Controller().ReadCell("B2")
		require.NoError(t, err)
		assert.Equal(t, 100.0, v)
	})

	t.Run("gate tightens again on the next utterance", func(t *testing.T) {
		s.Resolve(ctx, "这个表有多少行")
		_, err := s.InvokeTool(ctx, "write_cell", map[string]any{"ref": "C1", "value": 1.0})
		assert.ErrorIs(t, err, ErrToolNotPermitted)
	})
}

func TestSessionHistoryAndPrompts(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.Resolve(ctx, "筛选 score 大于 80 的行")
	s.Resolve(ctx, "写入100到A1")

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "写入100到A1", history[1].Utterance)
	assert.Contains(t, history[1].Skills, skill.Modification)

	prompts := s.SystemPrompts()
	require.NotEmpty(t, prompts)
	// core_query has the highest priority, so its prompt leads.
	assert.Contains(t, prompts[0], "数据查询工具")
}
