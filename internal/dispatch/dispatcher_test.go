package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetnerd/internal/cache"
	"sheetnerd/internal/document"
	"sheetnerd/internal/sandbox"
	"sheetnerd/internal/skill"
)

type stubExecutor struct {
	resp  sandbox.Response
	err   error
	calls int
	last  sandbox.Request
}

func (s *stubExecutor) Execute(_ context.Context, req sandbox.Request) (sandbox.Response, error) {
	s.calls++
	s.last = req
	return s.resp, s.err
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *document.Controller) {
	t.Helper()
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())
	require.NoError(t, ctrl.WriteRange("A1", [][]any{
		{"region", "sales"},
		{"north", 100.0},
		{"south", 250.0},
		{"east", 175.0},
		{"north", 50.0},
	}))
	d, err := NewDispatcher(nil, ctrl, cache.New(64), &stubExecutor{}, skill.NewBuiltinRegistry())
	require.NoError(t, err)
	return d, ctrl
}

func TestDispatcherCoversRegistry(t *testing.T) {
	// Every tool a builtin skill advertises must dispatch.
	d, _ := newTestDispatcher(t)
	for _, name := range skill.NewBuiltinRegistry().AllTools() {
		_, ok := d.Lookup(name)
		assert.True(t, ok, "tool %q advertised but not dispatchable", name)
	}
}

func TestDispatcherRejectsUnknownRegistryTool(t *testing.T) {
	reg := skill.NewRegistry(nil)
	require.NoError(t, reg.Register(&skill.Definition{
		Name:  "bogus",
		Tools: []string{"no_such_tool"},
	}))
	_, err := NewDispatcher(nil, document.NewController(nil), nil, nil, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_tool")
}

func TestInvokeValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Invoke(ctx, "definitely_not_a_tool", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = d.Invoke(ctx, "write_cell", map[string]any{"ref": "A1"})
	require.ErrorIs(t, err, ErrMissingArgument)
	assert.Contains(t, err.Error(), "value")
}

func TestInvokeReadTools(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	t.Run("filter_data", func(t *testing.T) {
		res, err := d.Invoke(ctx, "filter_data", map[string]any{
			"column": "sales", "op": "gt", "value": 150.0,
		})
		require.NoError(t, err)
		table := res.(*Table)
		assert.Equal(t, 2, table.Total)
		assert.Equal(t, "south", table.Rows[0][0])
	})

	t.Run("search_data", func(t *testing.T) {
		res, err := d.Invoke(ctx, "search_data", map[string]any{"term": "NORTH"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.(*Table).Total)
	})

	t.Run("get_column_stats", func(t *testing.T) {
		res, err := d.Invoke(ctx, "get_column_stats", map[string]any{"column": "sales"})
		require.NoError(t, err)
		stats := res.(*ColumnStats)
		assert.Equal(t, 4, stats.Numeric)
		assert.Equal(t, 575.0, stats.Sum)
		assert.Equal(t, 50.0, stats.Min)
		assert.Equal(t, 250.0, stats.Max)
	})

	t.Run("get_unique_values", func(t *testing.T) {
		res, err := d.Invoke(ctx, "get_unique_values", map[string]any{"column": "region"})
		require.NoError(t, err)
		uniq := res.([]UniqueValue)
		require.Len(t, uniq, 3)
		assert.Equal(t, "north", uniq[0].Value)
		assert.Equal(t, 2, uniq[0].Count)
	})

	t.Run("aggregate_data", func(t *testing.T) {
		res, err := d.Invoke(ctx, "aggregate_data", map[string]any{
			"column": "sales", "op": "avg",
		})
		require.NoError(t, err)
		assert.InDelta(t, 143.75, res.(float64), 1e-9)
	})

	t.Run("group_and_aggregate", func(t *testing.T) {
		res, err := d.Invoke(ctx, "group_and_aggregate", map[string]any{
			"group_by": "region", "column": "sales", "op": "sum",
		})
		require.NoError(t, err)
		groups := res.([]GroupResult)
		require.Len(t, groups, 3)
		assert.Equal(t, GroupResult{Key: "north", Value: 150.0, Count: 2}, groups[0])
	})

	t.Run("sort_data descending", func(t *testing.T) {
		res, err := d.Invoke(ctx, "sort_data", map[string]any{
			"column": "sales", "descending": true,
		})
		require.NoError(t, err)
		rows := res.(*Table).Rows
		assert.Equal(t, 250.0, rows[0][1])
		assert.Equal(t, 50.0, rows[3][1])
	})

	t.Run("generate_chart infers columns", func(t *testing.T) {
		res, err := d.Invoke(ctx, "generate_chart", map[string]any{"type": "bar"})
		require.NoError(t, err)
		spec := res.(*ChartSpec)
		assert.Equal(t, "region", spec.XLabel)
		assert.Equal(t, "sales", spec.YLabel)
		assert.Equal(t, []string{"north", "south", "east", "north"}, spec.Labels)
	})

	t.Run("unknown column names alternatives", func(t *testing.T) {
		_, err := d.Invoke(ctx, "get_column_stats", map[string]any{"column": "profit"})
		require.ErrorIs(t, err, ErrColumnNotFound)
		assert.Contains(t, err.Error(), "sales")
	})
}

func TestInvokeCaching(t *testing.T) {
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())
	require.NoError(t, ctrl.WriteCell("A1", "h"))
	require.NoError(t, ctrl.WriteCell("A2", 1.0))

	results := cache.New(64)
	d, err := NewDispatcher(nil, ctrl, results, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	args := map[string]any{"column": "h"}

	_, err = d.Invoke(ctx, "get_column_stats", args)
	require.NoError(t, err)
	_, err = d.Invoke(ctx, "get_column_stats", args)
	require.NoError(t, err)

	hits, _ := results.Stats()
	assert.Equal(t, uint64(1), hits, "second identical read must hit")

	t.Run("write invalidates", func(t *testing.T) {
		require.NoError(t, ctrl.WriteCell("A3", 2.0))
		res, err := d.Invoke(ctx, "get_column_stats", args)
		require.NoError(t, err)
		assert.Equal(t, 2, res.(*ColumnStats).Numeric, "post-write read sees new data")
	})

	t.Run("sheet switch changes the key", func(t *testing.T) {
		require.NoError(t, ctrl.CreateSheet("Other"))
		require.NoError(t, ctrl.WriteCell("A1", "h"))
		v := ctrl.Version()
		res, err := d.Invoke(ctx, "get_column_stats", args)
		require.NoError(t, err)
		assert.Zero(t, res.(*ColumnStats).Numeric)
		assert.Equal(t, v, ctrl.Version(), "reads must not move the version")
	})
}

func TestInvokeTransactionIsolation(t *testing.T) {
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())
	require.NoError(t, ctrl.WriteFormula("C2", "=SUM(B1:B2)"))

	results := cache.New(64)
	d, err := NewDispatcher(nil, ctrl, results, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	args := map[string]any{"ref": "C2"}

	_, err = d.Invoke(ctx, "begin_transaction", nil)
	require.NoError(t, err)
	_, err = d.Invoke(ctx, "write_formula", map[string]any{"ref": "C2", "formula": "=B1*9"})
	require.NoError(t, err)

	t.Run("reads inside the transaction serve committed data uncached", func(t *testing.T) {
		res, err := d.Invoke(ctx, "read_formula", args)
		require.NoError(t, err)
		assert.Equal(t, "SUM(B1:B2)", res)
		assert.Zero(t, results.Len(), "transactional read must not land in the cache")
	})

	t.Run("reads after rollback see committed data", func(t *testing.T) {
		_, err := d.Invoke(ctx, "rollback_transaction", nil)
		require.NoError(t, err)

		res, err := d.Invoke(ctx, "read_formula", args)
		require.NoError(t, err)
		assert.Equal(t, "SUM(B1:B2)", res)
	})
}

func TestInvokeWriteTools(t *testing.T) {
	d, ctrl := newTestDispatcher(t)
	ctx := context.Background()

	t.Run("write then read round trip", func(t *testing.T) {
		_, err := d.Invoke(ctx, "write_cell", map[string]any{"ref": "C1", "value": "profit"})
		require.NoError(t, err)
		v, err := ctrl.ReadCell("C1")
		require.NoError(t, err)
		assert.Equal(t, "profit", v)
	})

	t.Run("write_range coerces JSON rows", func(t *testing.T) {
		_, err := d.Invoke(ctx, "write_range", map[string]any{
			"range":  "C2",
			"values": []any{[]any{10.0}, []any{20.0}},
		})
		require.NoError(t, err)
		v, err := ctrl.ReadCell("C3")
		require.NoError(t, err)
		assert.Equal(t, 20.0, v)
	})

	t.Run("transaction tools", func(t *testing.T) {
		before := ctrl.Version()
		_, err := d.Invoke(ctx, "begin_transaction", nil)
		require.NoError(t, err)
		_, err = d.Invoke(ctx, "write_cell", map[string]any{"ref": "D1", "value": 1.0})
		require.NoError(t, err)
		_, err = d.Invoke(ctx, "rollback_transaction", nil)
		require.NoError(t, err)
		assert.Equal(t, before, ctrl.Version())
		v, err := ctrl.ReadCell("D1")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("delete_rows defaults end to start", func(t *testing.T) {
		_, err := d.Invoke(ctx, "delete_rows", map[string]any{"start": 5.0})
		require.NoError(t, err)
	})

	t.Run("insert_cols accepts letters", func(t *testing.T) {
		_, err := d.Invoke(ctx, "insert_cols", map[string]any{"at": "B"})
		require.NoError(t, err)
		v, err := ctrl.ReadCell("B2")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("set_cell_style decodes nested object", func(t *testing.T) {
		_, err := d.Invoke(ctx, "set_cell_style", map[string]any{
			"range": "A1:B1",
			"style": map[string]any{
				"font": map[string]any{"bold": true},
				"fill": map[string]any{"color": "FFFF00"},
			},
		})
		require.NoError(t, err)
	})
}

func TestRunCode(t *testing.T) {
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())
	require.NoError(t, ctrl.WriteCell("A1", 5.0))

	exec := &stubExecutor{resp: sandbox.Response{Result: 42.0, Stdout: "hi"}}
	d, err := NewDispatcher(nil, ctrl, nil, exec, nil)
	require.NoError(t, err)

	res, err := d.Invoke(context.Background(), "run_code", map[string]any{
		"code": "func Run(data [][]any) (any, error) { return 42.0, nil }",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 42.0, "stdout": "hi"}, res)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, [][]any{{5.0}}, exec.last.Data, "sandbox receives a data copy")
}

func TestCalculate(t *testing.T) {
	ctrl := document.NewController(nil)
	require.NoError(t, ctrl.New())

	d, err := NewDispatcher(nil, ctrl, nil, sandbox.NewYaegiExecutor(nil), nil)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := d.Invoke(ctx, "calculate", map[string]any{"expression": "100 * 1.5 + 200"})
	require.NoError(t, err)
	assert.InDelta(t, 350.0, res.(float64), 1e-9)

	t.Run("non-arithmetic input rejected", func(t *testing.T) {
		for _, expr := range []string{"", "os.Exit(1)", `len("x")`, "1; 2"} {
			_, err := d.Invoke(ctx, "calculate", map[string]any{"expression": expr})
			assert.ErrorIs(t, err, ErrInvalidArgument, expr)
		}
	})
}
