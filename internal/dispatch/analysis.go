package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"sheetnerd/internal/document"
)

// Read-side analysis over the document snapshot: filtering, searching,
// aggregation, grouping, sorting and chart spec generation. These never
// touch the write model, so their results are safe to cache per
// version.

// Table is the row-oriented result shape shared by the query tools.
type Table struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`

	// Total counts matches before any limit was applied.
	Total int `json:"total"`
}

// ColumnStats summarizes one column.
type ColumnStats struct {
	Column  string  `json:"column"`
	Count   int     `json:"count"`
	Numeric int     `json:"numeric"`
	Sum     float64 `json:"sum"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// UniqueValue is one distinct value with its occurrence count, in
// first-appearance order.
type UniqueValue struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// GroupResult is one group's aggregate.
type GroupResult struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// ChartSpec is a renderer-agnostic chart description. The agent emits
// the spec; drawing it is the caller's problem.
type ChartSpec struct {
	Type   string    `json:"type"` // bar, line, pie, scatter
	Title  string    `json:"title,omitempty"`
	Labels []string  `json:"labels"`
	Series []float64 `json:"series"`
	XLabel string    `json:"x_label,omitempty"`
	YLabel string    `json:"y_label,omitempty"`
}

func columnValues(snap *document.Snapshot, name string) ([]any, error) {
	col, ok := snap.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)",
			ErrColumnNotFound, name, strings.Join(snap.Headers, ", "))
	}
	return col, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// matchFilter applies op between a cell value and the target. Numeric
// comparison is used when both sides are numeric, string comparison
// otherwise.
func matchFilter(v any, op string, target any) (bool, error) {
	vn, vok := toFloat(v)
	tn, tok := toFloat(target)
	if vok && tok {
		switch op {
		case "eq", "==", "=":
			return vn == tn, nil
		case "ne", "!=":
			return vn != tn, nil
		case "gt", ">":
			return vn > tn, nil
		case "ge", ">=":
			return vn >= tn, nil
		case "lt", "<":
			return vn < tn, nil
		case "le", "<=":
			return vn <= tn, nil
		}
	}
	vs := document.DisplayString(v)
	ts := document.DisplayString(target)
	switch op {
	case "eq", "==", "=":
		return strings.EqualFold(vs, ts), nil
	case "ne", "!=":
		return !strings.EqualFold(vs, ts), nil
	case "contains":
		return strings.Contains(strings.ToLower(vs), strings.ToLower(ts)), nil
	case "gt", ">":
		return vs > ts, nil
	case "ge", ">=":
		return vs >= ts, nil
	case "lt", "<":
		return vs < ts, nil
	case "le", "<=":
		return vs <= ts, nil
	default:
		return false, fmt.Errorf("%w: operator %q", ErrInvalidArgument, op)
	}
}

func filterRows(snap *document.Snapshot, column, op string, target any, limit int) (*Table, error) {
	col, err := columnValues(snap, column)
	if err != nil {
		return nil, err
	}
	out := &Table{Headers: snap.Headers}
	for i := range col {
		ok, err := matchFilter(col[i], op, target)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out.Total++
		if limit > 0 && len(out.Rows) >= limit {
			continue
		}
		row, _ := snap.Row(i + 1)
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func searchRows(snap *document.Snapshot, term string, limit int) *Table {
	needle := strings.ToLower(term)
	out := &Table{Headers: snap.Headers}
	for n := 1; n <= snap.Rows-1; n++ {
		row, ok := snap.Row(n)
		if !ok {
			break
		}
		hit := false
		for _, v := range row {
			if strings.Contains(strings.ToLower(document.DisplayString(v)), needle) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		out.Total++
		if limit > 0 && len(out.Rows) >= limit {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func columnStats(snap *document.Snapshot, column string) (*ColumnStats, error) {
	col, err := columnValues(snap, column)
	if err != nil {
		return nil, err
	}
	stats := &ColumnStats{Column: column}
	for _, v := range col {
		if v != nil && document.DisplayString(v) != "" {
			stats.Count++
		}
		n, ok := toFloat(v)
		if !ok {
			continue
		}
		if stats.Numeric == 0 {
			stats.Min, stats.Max = n, n
		} else {
			if n < stats.Min {
				stats.Min = n
			}
			if n > stats.Max {
				stats.Max = n
			}
		}
		stats.Numeric++
		stats.Sum += n
	}
	if stats.Numeric > 0 {
		stats.Mean = stats.Sum / float64(stats.Numeric)
	}
	return stats, nil
}

func uniqueValues(snap *document.Snapshot, column string, limit int) ([]UniqueValue, error) {
	col, err := columnValues(snap, column)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var out []UniqueValue
	for _, v := range col {
		key := document.DisplayString(v)
		if i, seen := index[key]; seen {
			out[i].Count++
			continue
		}
		index[key] = len(out)
		out = append(out, UniqueValue{Value: v, Count: 1})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func aggregate(values []any, op string) (float64, error) {
	var (
		acc   float64
		count int
		minV  float64
		maxV  float64
	)
	for _, v := range values {
		n, ok := toFloat(v)
		if !ok {
			continue
		}
		if count == 0 {
			minV, maxV = n, n
		} else {
			if n < minV {
				minV = n
			}
			if n > maxV {
				maxV = n
			}
		}
		count++
		acc += n
	}
	switch op {
	case "sum":
		return acc, nil
	case "avg", "average", "mean":
		if count == 0 {
			return 0, nil
		}
		return acc / float64(count), nil
	case "min":
		return minV, nil
	case "max":
		return maxV, nil
	case "count":
		return float64(count), nil
	default:
		return 0, fmt.Errorf("%w: aggregate op %q", ErrInvalidArgument, op)
	}
}

func groupAggregate(snap *document.Snapshot, groupBy, column, op string) ([]GroupResult, error) {
	keys, err := columnValues(snap, groupBy)
	if err != nil {
		return nil, err
	}
	vals, err := columnValues(snap, column)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]any)
	var order []string
	for i, k := range keys {
		key := document.DisplayString(k)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		var v any
		if i < len(vals) {
			v = vals[i]
		}
		groups[key] = append(groups[key], v)
	}
	out := make([]GroupResult, 0, len(order))
	for _, key := range order {
		agg, err := aggregate(groups[key], op)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupResult{Key: key, Value: agg, Count: len(groups[key])})
	}
	return out, nil
}

// sortRows returns the data rows ordered by the named column. This is a
// view over the snapshot; the document itself is untouched.
func sortRows(snap *document.Snapshot, column string, descending bool, limit int) (*Table, error) {
	col, err := columnValues(snap, column)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(col))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		cmp := compareValues(col[idx[a]], col[idx[b]])
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	out := &Table{Headers: snap.Headers, Total: len(idx)}
	for _, i := range idx {
		if limit > 0 && len(out.Rows) >= limit {
			break
		}
		row, _ := snap.Row(i + 1)
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// compareValues orders numbers before strings, numbers numerically and
// strings lexically. Nil sorts last.
func compareValues(a, b any) int {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case aok && bok:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(document.DisplayString(a), document.DisplayString(b))
	}
}

func buildChart(snap *document.Snapshot, chartType, xCol, yCol, title string) (*ChartSpec, error) {
	switch chartType {
	case "bar", "line", "pie", "scatter":
	default:
		return nil, fmt.Errorf("%w: chart type %q", ErrInvalidArgument, chartType)
	}

	// Default axes: first mostly-text column labels, first mostly-numeric
	// column values.
	if xCol == "" || yCol == "" {
		for i, h := range snap.Headers {
			numeric := 0
			for _, v := range snap.Columns[i] {
				if _, ok := toFloat(v); ok {
					numeric++
				}
			}
			mostlyNumeric := len(snap.Columns[i]) > 0 && numeric*2 > len(snap.Columns[i])
			if xCol == "" && !mostlyNumeric {
				xCol = h
			}
			if yCol == "" && mostlyNumeric {
				yCol = h
			}
		}
	}
	if xCol == "" || yCol == "" {
		return nil, fmt.Errorf("%w: cannot infer chart columns, pass x_column and y_column", ErrInvalidArgument)
	}

	xs, err := columnValues(snap, xCol)
	if err != nil {
		return nil, err
	}
	ys, err := columnValues(snap, yCol)
	if err != nil {
		return nil, err
	}

	spec := &ChartSpec{Type: chartType, Title: title, XLabel: xCol, YLabel: yCol}
	for i := range xs {
		var y float64
		if i < len(ys) {
			y, _ = toFloat(ys[i])
		}
		spec.Labels = append(spec.Labels, document.DisplayString(xs[i]))
		spec.Series = append(spec.Series, y)
	}
	return spec, nil
}
