package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"sheetnerd/internal/document"
	"sheetnerd/internal/sandbox"
)

// builtinTools assembles the full tool table. Names here are the public
// contract with the skill definitions; renaming one breaks resolution.
func (d *Dispatcher) builtinTools() []*Tool {
	var tools []*Tool
	add := func(t *Tool) { tools = append(tools, t) }

	// -- core query --

	add(&Tool{
		Name: "filter_data", Kind: KindRead,
		Description: "Filter rows where a column matches a condition",
		Required:    []string{"column", "value"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			column, _ := argString(args, "column")
			limit, err := optInt(args, "limit", 100)
			if err != nil {
				return nil, err
			}
			return filterRows(snap, column, optString(args, "op", "eq"), args["value"], limit)
		},
	})

	add(&Tool{
		Name: "search_data", Kind: KindRead,
		Description: "Find rows containing a term in any cell",
		Required:    []string{"term"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			term, err := argString(args, "term")
			if err != nil {
				return nil, err
			}
			limit, err := optInt(args, "limit", 100)
			if err != nil {
				return nil, err
			}
			return searchRows(snap, term, limit), nil
		},
	})

	add(&Tool{
		Name: "get_data_preview", Kind: KindRead,
		Description: "First rows of the active sheet, rendered as text",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return d.ctrl.Preview()
		},
	})

	add(&Tool{
		Name: "get_column_stats", Kind: KindRead,
		Description: "Count, sum, mean, min and max of a column",
		Required:    []string{"column"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			column, _ := argString(args, "column")
			return columnStats(snap, column)
		},
	})

	add(&Tool{
		Name: "get_unique_values", Kind: KindRead,
		Description: "Distinct values of a column with occurrence counts",
		Required:    []string{"column"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			column, _ := argString(args, "column")
			limit, err := optInt(args, "limit", 100)
			if err != nil {
				return nil, err
			}
			return uniqueValues(snap, column, limit)
		},
	})

	add(&Tool{
		Name: "get_structure", Kind: KindRead,
		Description: "Workbook shape: sheets, dimensions, active sheet",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return d.ctrl.Structure()
		},
	})

	// -- aggregation --

	add(&Tool{
		Name: "aggregate_data", Kind: KindRead,
		Description: "Sum, average, min, max or count over a column",
		Required:    []string{"column", "op"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			column, _ := argString(args, "column")
			op, _ := argString(args, "op")
			vals, err := columnValues(snap, column)
			if err != nil {
				return nil, err
			}
			return aggregate(vals, op)
		},
	})

	add(&Tool{
		Name: "group_and_aggregate", Kind: KindRead,
		Description: "Group rows by one column and aggregate another",
		Required:    []string{"group_by", "column", "op"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			groupBy, _ := argString(args, "group_by")
			column, _ := argString(args, "column")
			op, _ := argString(args, "op")
			return groupAggregate(snap, groupBy, column, op)
		},
	})

	add(&Tool{
		Name: "sort_data", Kind: KindRead,
		Description: "Rows ordered by a column; a view, not a mutation",
		Required:    []string{"column"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			column, _ := argString(args, "column")
			limit, err := optInt(args, "limit", 100)
			if err != nil {
				return nil, err
			}
			return sortRows(snap, column, optBool(args, "descending", false), limit)
		},
	})

	// -- visualization --

	add(&Tool{
		Name: "generate_chart", Kind: KindRead,
		Description: "Build a chart spec (bar, line, pie, scatter) from two columns",
		Required:    []string{"type"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			snap, err := d.ctrl.Snapshot()
			if err != nil {
				return nil, err
			}
			chartType, _ := argString(args, "type")
			return buildChart(snap, chartType,
				optString(args, "x_column", ""),
				optString(args, "y_column", ""),
				optString(args, "title", ""))
		},
	})

	// -- calculation --

	add(&Tool{
		Name: "calculate", Kind: KindRead, NoCache: true,
		Description: "Evaluate an arithmetic expression",
		Required:    []string{"expression"},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			expr, err := argString(args, "expression")
			if err != nil {
				return nil, err
			}
			return d.calculate(ctx, expr)
		},
	})

	// -- utility --

	add(&Tool{
		Name: "get_current_time", Kind: KindRead, NoCache: true,
		Description: "Current local time",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return time.Now().Format("2006-01-02 15:04:05"), nil
		},
	})

	// -- sheet management --

	add(&Tool{
		Name: "switch_sheet", Kind: KindWrite,
		Description: "Make another sheet active",
		Required:    []string{"name"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			name, _ := argString(args, "name")
			return okResult(d.ctrl.SwitchSheet(name))
		},
	})

	add(&Tool{
		Name: "create_sheet", Kind: KindWrite,
		Description: "Create an empty sheet and switch to it",
		Required:    []string{"name"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			name, _ := argString(args, "name")
			return okResult(d.ctrl.CreateSheet(name))
		},
	})

	add(&Tool{
		Name: "delete_sheet", Kind: KindWrite,
		Description: "Delete a sheet (the last one cannot be deleted)",
		Required:    []string{"name"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			name, _ := argString(args, "name")
			return okResult(d.ctrl.DeleteSheet(name))
		},
	})

	add(&Tool{
		Name: "rename_sheet", Kind: KindWrite,
		Description: "Rename a sheet in place",
		Required:    []string{"old_name", "new_name"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			oldName, _ := argString(args, "old_name")
			newName, _ := argString(args, "new_name")
			return okResult(d.ctrl.RenameSheet(oldName, newName))
		},
	})

	// -- modification --

	add(&Tool{
		Name: "write_cell", Kind: KindWrite,
		Description: "Write a literal value to one cell",
		Required:    []string{"ref", "value"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			ref, err := argString(args, "ref")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.WriteCell(ref, args["value"]))
		},
	})

	add(&Tool{
		Name: "write_range", Kind: KindWrite,
		Description: "Write a block of values anchored at a range's top-left cell",
		Required:    []string{"range", "values"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, err := argString(args, "range")
			if err != nil {
				return nil, err
			}
			values, err := coerceGrid(args["values"])
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.WriteRange(rng, values))
		},
	})

	add(&Tool{
		Name: "insert_rows", Kind: KindWrite,
		Description: "Insert blank rows before a row; formulas re-address",
		Required:    []string{"at"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			at, err := argInt(args, "at")
			if err != nil {
				return nil, err
			}
			count, err := optInt(args, "count", 1)
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.InsertRows(at, count))
		},
	})

	add(&Tool{
		Name: "delete_rows", Kind: KindWrite,
		Description: "Delete rows start..end; dangling references become #REF!",
		Required:    []string{"start"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			start, err := argInt(args, "start")
			if err != nil {
				return nil, err
			}
			end, err := optInt(args, "end", start)
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.DeleteRows(start, end))
		},
	})

	add(&Tool{
		Name: "insert_cols", Kind: KindWrite,
		Description: "Insert blank columns before a column",
		Required:    []string{"at"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			at, err := colArg(args, "at")
			if err != nil {
				return nil, err
			}
			count, err := optInt(args, "count", 1)
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.InsertCols(at, count))
		},
	})

	add(&Tool{
		Name: "delete_cols", Kind: KindWrite,
		Description: "Delete columns start..end",
		Required:    []string{"start"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			start, err := colArg(args, "start")
			if err != nil {
				return nil, err
			}
			end := start
			if _, present := args["end"]; present {
				if end, err = colArg(args, "end"); err != nil {
					return nil, err
				}
			}
			return okResult(d.ctrl.DeleteCols(start, end))
		},
	})

	add(&Tool{
		Name: "begin_transaction", Kind: KindWrite,
		Description: "Open a transaction; later writes publish together on commit",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return okResult(d.ctrl.Begin())
		},
	})

	add(&Tool{
		Name: "commit_transaction", Kind: KindWrite,
		Description: "Publish all buffered writes as one versioned change",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return okResult(d.ctrl.Commit())
		},
	})

	add(&Tool{
		Name: "rollback_transaction", Kind: KindWrite,
		Description: "Discard all writes since begin_transaction",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return okResult(d.ctrl.Rollback())
		},
	})

	add(&Tool{
		Name: "save_file", Kind: KindWrite,
		Description: "Save the workbook to a path (.xlsx or .csv)",
		Required:    []string{"path"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			path, err := argString(args, "path")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.Save(path))
		},
	})

	add(&Tool{
		Name: "save_to_original", Kind: KindWrite,
		Description: "Overwrite the file the workbook was loaded from",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return okResult(d.ctrl.SaveToOriginal())
		},
	})

	add(&Tool{
		Name: "export_csv", Kind: KindWrite,
		Description: "Export the active sheet's values as CSV",
		Required:    []string{"path"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			path, err := argString(args, "path")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.ExportCSV(path))
		},
	})

	add(&Tool{
		Name: "get_change_log", Kind: KindRead, NoCache: true,
		Description: "Committed changes after a sequence number",
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			since, err := optInt(args, "since", 0)
			if err != nil {
				return nil, err
			}
			return d.ctrl.ChangesSince(uint64(since)), nil
		},
	})

	// -- formulas --

	add(&Tool{
		Name: "write_formula", Kind: KindWrite,
		Description: "Write formula text to a cell (evaluated by Excel, not here)",
		Required:    []string{"ref", "formula"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			ref, err := argString(args, "ref")
			if err != nil {
				return nil, err
			}
			formula, err := argString(args, "formula")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.WriteFormula(ref, formula))
		},
	})

	add(&Tool{
		Name: "read_formula", Kind: KindRead,
		Description: "Formula text at a cell, empty for value cells",
		Required:    []string{"ref"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			ref, _ := argString(args, "ref")
			return d.ctrl.ReadFormula(ref)
		},
	})

	add(&Tool{
		Name: "list_formulas", Kind: KindRead,
		Description: "Every formula cell on the active sheet",
		Execute: func(_ context.Context, _ map[string]any) (any, error) {
			return d.ctrl.ListFormulas()
		},
	})

	// -- formatting --

	add(&Tool{
		Name: "set_font", Kind: KindWrite,
		Description: "Set font attributes on a range",
		Required:    []string{"range"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			size, err := optFloatArg(args, "size")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.SetFont(rng, document.Font{
				Name:      optString(args, "name", ""),
				Size:      size,
				Bold:      optBool(args, "bold", false),
				Italic:    optBool(args, "italic", false),
				Underline: optString(args, "underline", ""),
				Color:     optString(args, "color", ""),
			}))
		},
	})

	add(&Tool{
		Name: "set_fill", Kind: KindWrite,
		Description: "Set background fill on a range",
		Required:    []string{"range", "color"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			color, _ := argString(args, "color")
			return okResult(d.ctrl.SetFill(rng, document.Fill{
				Color:   color,
				Pattern: optString(args, "pattern", ""),
			}))
		},
	})

	add(&Tool{
		Name: "set_alignment", Kind: KindWrite,
		Description: "Set horizontal/vertical alignment and wrapping on a range",
		Required:    []string{"range"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			return okResult(d.ctrl.SetAlignment(rng, document.Alignment{
				Horizontal: optString(args, "horizontal", ""),
				Vertical:   optString(args, "vertical", ""),
				WrapText:   optBool(args, "wrap_text", false),
			}))
		},
	})

	add(&Tool{
		Name: "set_border", Kind: KindWrite,
		Description: "Apply a border to a range's cells",
		Required:    []string{"range"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			all := !anyPresent(args, "left", "right", "top", "bottom")
			return okResult(d.ctrl.SetBorder(rng, document.Border{
				Style:  optString(args, "style", "thin"),
				Color:  optString(args, "color", "000000"),
				Left:   all || optBool(args, "left", false),
				Right:  all || optBool(args, "right", false),
				Top:    all || optBool(args, "top", false),
				Bottom: all || optBool(args, "bottom", false),
			}))
		},
	})

	add(&Tool{
		Name: "set_number_format", Kind: KindWrite,
		Description: "Set a number format code on a range",
		Required:    []string{"range", "format"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			format, _ := argString(args, "format")
			return okResult(d.ctrl.SetNumberFormat(rng, format))
		},
	})

	add(&Tool{
		Name: "set_cell_style", Kind: KindWrite,
		Description: "Apply a full style object to a range in one change",
		Required:    []string{"range", "style"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			style, err := coerceStyle(args["style"])
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.SetCellStyle(rng, style))
		},
	})

	add(&Tool{
		Name: "merge_cells", Kind: KindWrite,
		Description: "Merge a multi-cell region",
		Required:    []string{"range"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			return okResult(d.ctrl.MergeCells(rng))
		},
	})

	add(&Tool{
		Name: "unmerge_cells", Kind: KindWrite,
		Description: "Remove merges overlapping a region",
		Required:    []string{"range"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			rng, _ := argString(args, "range")
			return okResult(d.ctrl.UnmergeCells(rng))
		},
	})

	add(&Tool{
		Name: "set_column_width", Kind: KindWrite,
		Description: "Set an explicit column width",
		Required:    []string{"column", "width"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			column, _ := argString(args, "column")
			width, err := argFloat(args, "width")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.SetColumnWidth(column, width))
		},
	})

	add(&Tool{
		Name: "set_row_height", Kind: KindWrite,
		Description: "Set an explicit row height",
		Required:    []string{"row", "height"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			row, err := argInt(args, "row")
			if err != nil {
				return nil, err
			}
			height, err := argFloat(args, "height")
			if err != nil {
				return nil, err
			}
			return okResult(d.ctrl.SetRowHeight(row, height))
		},
	})

	add(&Tool{
		Name: "auto_fit_column", Kind: KindWrite,
		Description: "Size a column to its longest value",
		Required:    []string{"column"},
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			column, _ := argString(args, "column")
			return okResult(d.ctrl.AutoFitColumn(column))
		},
	})

	// -- code execution --

	add(&Tool{
		Name: "run_code", Kind: KindRead, NoCache: true,
		Description: "Run a Go snippet in the sandbox against a copy of sheet data",
		Required:    []string{"code"},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			if d.exec == nil {
				return nil, fmt.Errorf("%w: sandbox disabled", ErrUnknownTool)
			}
			code, err := argString(args, "code")
			if err != nil {
				return nil, err
			}
			data, err := d.snippetData(optString(args, "range", ""))
			if err != nil {
				return nil, err
			}
			resp, err := d.exec.Execute(ctx, sandbox.Request{Code: code, Data: data})
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": resp.Result, "stdout": resp.Stdout}, nil
		},
	})

	return tools
}

// snippetData copies the requested region (or the whole used grid) for
// the sandbox. The copy is by value; the interpreter can never reach
// the document.
func (d *Dispatcher) snippetData(rng string) ([][]any, error) {
	if rng != "" {
		return d.ctrl.ReadRange(rng)
	}
	st, err := d.ctrl.Structure()
	if err != nil {
		return nil, err
	}
	for _, sheet := range st.Sheets {
		if sheet.Active {
			if sheet.Rows == 0 || sheet.Cols == 0 {
				return nil, nil
			}
			full := document.Range{
				Start: document.Ref{Row: 1, Col: 1},
				End:   document.Ref{Row: sheet.Rows, Col: sheet.Cols},
			}
			return d.ctrl.ReadRange(full.String())
		}
	}
	return nil, nil
}

// calcExprPattern permits only arithmetic: digits, operators, parens,
// decimal points and spaces. Anything else never reaches the
// interpreter.
var calcExprPattern = regexp.MustCompile(`^[0-9+\-*/%().\s]+$`)

// calculate evaluates an arithmetic expression by interpreting it in
// the sandbox, which already exists and handles timeouts; no point
// hand-rolling an evaluator next to it.
func (d *Dispatcher) calculate(ctx context.Context, expr string) (any, error) {
	if !calcExprPattern.MatchString(expr) || expr == "" {
		return nil, fmt.Errorf("%w: expression %q", ErrInvalidArgument, expr)
	}
	if d.exec == nil {
		return nil, fmt.Errorf("%w: sandbox disabled", ErrUnknownTool)
	}
	code := "func Run(data [][]any) (any, error) {\n\treturn float64(" + expr + "), nil\n}"
	resp, err := d.exec.Execute(ctx, sandbox.Request{Code: code})
	if err != nil {
		return nil, fmt.Errorf("%w: expression %q: %v", ErrInvalidArgument, expr, err)
	}
	return resp.Result, nil
}

// okResult maps a controller error into the uniform tool result shape.
func okResult(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func anyPresent(args map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := args[k]; ok {
			return true
		}
	}
	return false
}

func optFloatArg(args map[string]any, key string) (float64, error) {
	if _, ok := args[key]; !ok {
		return 0, nil
	}
	return argFloat(args, key)
}

// colArg accepts a column either as a letter ("B") or a 1-based number.
func colArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case string:
		idx, err := document.ColumnIndex(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidArgument, key, v)
		}
		return idx, nil
	default:
		return argInt(args, key)
	}
}

// coerceGrid converts a JSON-decoded values argument into [][]any.
func coerceGrid(v any) ([][]any, error) {
	switch grid := v.(type) {
	case [][]any:
		return grid, nil
	case []any:
		out := make([][]any, 0, len(grid))
		for _, rowAny := range grid {
			row, ok := rowAny.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: values must be a list of rows", ErrInvalidArgument)
			}
			out = append(out, row)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: values must be a list of rows", ErrInvalidArgument)
	}
}

// coerceStyle decodes a JSON-shaped style object into document.Style.
func coerceStyle(v any) (document.Style, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return document.Style{}, fmt.Errorf("%w: style: %v", ErrInvalidArgument, err)
	}
	var style document.Style
	if err := json.Unmarshal(raw, &style); err != nil {
		return document.Style{}, fmt.Errorf("%w: style: %v", ErrInvalidArgument, err)
	}
	return style, nil
}
