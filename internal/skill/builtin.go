package skill

// Builtin skill table. Tool identifiers here must stay in sync with the
// dispatcher's tool table; dispatch.NewDispatcher cross-checks at startup.

// BuiltinNames used across packages.
const (
	CoreQuery       = "core_query"
	Aggregation     = "aggregation"
	Visualization   = "visualization"
	Calculation     = "calculation"
	SheetManagement = "sheet_management"
	Utility         = "utility"
	Modification    = "modification"
	Formula         = "formula"
	Formatting      = "formatting"
	CodeExecution   = "code_execution"
)

// RegisterBuiltin registers the built-in skill set into r.
func RegisterBuiltin(r *Registry) error {
	for _, def := range builtinDefinitions() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return r.Validate()
}

// NewBuiltinRegistry builds a registry preloaded with the built-in skills.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry(nil)
	for _, def := range builtinDefinitions() {
		r.MustRegister(def)
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}

func builtinDefinitions() []*Definition {
	return []*Definition{
		{
			Name:        CoreQuery,
			DisplayName: "数据查询",
			Description: "Excel 数据的基础查询、筛选、搜索、预览和统计功能",
			AlwaysOn:    true,
			Tools: []string{
				"filter_data", "search_data", "get_data_preview",
				"get_column_stats", "get_unique_values", "get_structure",
			},
			Keywords: []string{
				"查询", "筛选", "过滤", "搜索", "查找", "显示", "列出", "预览",
				"query", "filter", "search", "find", "show", "list",
			},
			Examples: []string{
				"帮我筛选出销售额大于1000的记录",
				"显示前20行数据",
				"这个表有多少行",
			},
			Priority:     100,
			SystemPrompt: "你可以使用数据查询工具来筛选、搜索和预览 Excel 数据。",
		},
		{
			Name:        Aggregation,
			DisplayName: "聚合分析",
			Description: "数据聚合、分组统计、排序等高级分析功能",
			Tools:       []string{"aggregate_data", "group_and_aggregate", "sort_data"},
			Keywords: []string{
				"求和", "平均", "最大", "最小", "总计", "合计", "统计",
				"分组", "汇总", "聚合", "排序", "排名",
				"sum", "average", "max", "min", "total", "count", "group", "sort",
			},
			Patterns: []string{
				`(求和|平均|最大|最小|总计|合计)`,
				`按.+分组`,
				`(升序|降序)排`,
			},
			Examples: []string{
				"计算销售额的总和",
				"按地区分组统计销售额",
			},
			Priority:     80,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以使用聚合工具进行求和、平均、分组等统计分析。",
		},
		{
			Name:        Visualization,
			DisplayName: "数据可视化",
			Description: "生成各类图表规格，包括柱状图、折线图、饼图等",
			Tools:       []string{"generate_chart"},
			Keywords: []string{
				"图表", "柱状图", "折线图", "饼图", "散点图", "可视化", "画图",
				"chart", "plot", "graph",
			},
			Patterns: []string{
				`(画|绘制|生成|创建).*(图|chart)`,
				`(柱状|折线|饼|散点|雷达)图`,
			},
			Examples:     []string{"画一个销售额的柱状图"},
			Priority:     70,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以使用图表工具生成图表规格。支持柱状图、折线图、饼图、散点图。",
		},
		{
			Name:        Calculation,
			DisplayName: "数学计算",
			Description: "执行数学计算和表达式求值",
			Tools:       []string{"calculate"},
			Keywords: []string{
				"计算", "表达式", "数学", "calculate", "compute", "math",
			},
			Patterns: []string{
				`\d+\s*[\+\-\*\/]\s*\d+`,
			},
			Examples:     []string{"计算 100 * 1.5 + 200"},
			Priority:     50,
			SystemPrompt: "你可以使用计算工具执行数学运算。",
		},
		{
			Name:        SheetManagement,
			DisplayName: "工作表管理",
			Description: "切换、创建、删除和重命名 Excel 工作表",
			Tools: []string{
				"switch_sheet", "create_sheet", "delete_sheet", "rename_sheet",
			},
			Keywords: []string{"工作表", "sheet", "切换"},
			Patterns: []string{
				`切换到.+(表|sheet)`,
				`打开.+(表|sheet)`,
			},
			Examples:     []string{"切换到 Sheet2"},
			Priority:     60,
			SystemPrompt: "你可以使用工作表管理工具切换和管理工作表。",
		},
		{
			Name:        Utility,
			DisplayName: "实用工具",
			Description: "获取当前时间等实用功能",
			Tools:       []string{"get_current_time"},
			Keywords: []string{
				"时间", "日期", "今天", "现在", "time", "date", "today", "now",
			},
			Examples: []string{"现在几点了"},
			Priority: 30,
		},
		{
			Name:        Modification,
			DisplayName: "数据修改",
			Description: "写入、修改、删除 Excel 数据，包括单元格写入、批量写入、行列操作、事务和保存文件",
			Tools: []string{
				"write_cell", "write_range", "insert_rows", "delete_rows",
				"insert_cols", "delete_cols", "begin_transaction",
				"commit_transaction", "rollback_transaction",
				"save_file", "save_to_original", "export_csv", "get_change_log",
			},
			Keywords: []string{
				"写入", "修改", "更新", "删除", "添加", "插入", "保存", "另存",
				"导出", "覆盖", "追加", "事务", "回滚",
				"write", "update", "delete", "insert", "save", "export", "append",
			},
			Patterns: []string{
				`(写入|修改|更新|删除).+`,
				`把.+(改成|设为|设置为)`,
				`在.+(添加|插入|加上)`,
				`保存(文件|表格|到原始)?`,
				`导出(到|为)?`,
			},
			Examples: []string{
				"把 A1 单元格写入 100",
				"删除第 5 行",
				"保存文件",
			},
			Priority:     75,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以使用数据修改工具来写入和修改 Excel 数据。" +
				"所有修改默认保存到工作副本；save_to_original 才会覆盖原始文件（慎用）。" +
				"多步修改可以用 begin_transaction/commit_transaction 合并为一次变更。",
		},
		{
			Name:        Formula,
			DisplayName: "Excel 公式",
			Description: "读取和写入 Excel 公式，支持各种 Excel 函数",
			Tools:       []string{"write_formula", "read_formula", "list_formulas"},
			Keywords: []string{
				"公式", "函数", "SUM", "AVERAGE", "COUNT", "VLOOKUP", "SUMIF",
				"formula", "function",
			},
			Patterns: []string{
				`=\w+\(`,
				`(添加|写入|设置).*(公式|函数)`,
				`(读取|查看|获取).*(公式|函数)`,
			},
			Examples: []string{
				"在 C1 添加求和公式 =SUM(A1:B1)",
				"读取 D1 单元格的公式",
			},
			Priority:     70,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以读取和写入 Excel 公式。公式以文本形式存储，" +
				"将在 Excel 中打开时计算，不会立即显示结果。",
		},
		{
			Name:        Formatting,
			DisplayName: "格式设置",
			Description: "设置单元格格式、样式、字体、颜色、边框、合并单元格、调整行高列宽等",
			Tools: []string{
				"set_font", "set_fill", "set_alignment", "set_border",
				"set_number_format", "set_cell_style", "merge_cells",
				"unmerge_cells", "set_column_width", "set_row_height",
				"auto_fit_column",
			},
			Keywords: []string{
				"格式", "样式", "字体", "颜色", "边框", "对齐", "加粗", "斜体",
				"背景色", "合并", "列宽", "行高", "居中",
				"format", "style", "font", "color", "border", "merge",
			},
			Patterns: []string{
				`(设置|修改).*(格式|样式|字体|颜色|背景|边框)`,
				`把.+(加粗|变色|居中|合并)`,
				`(调整|设置).*(列宽|行高)`,
			},
			Examples: []string{
				"把标题行加粗",
				"合并 A1:C1 单元格",
			},
			Priority:     65,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以设置单元格的字体、填充、对齐、边框、数字格式，" +
				"以及合并单元格和调整行高列宽。格式化需要保存文件后才能在 Excel 中看到效果。",
		},
		{
			Name:        CodeExecution,
			DisplayName: "代码执行",
			Description: "在沙箱中对数据快照执行代码进行复杂分析",
			Tools:       []string{"run_code"},
			Keywords: []string{
				"代码", "脚本", "执行", "code", "script", "run",
			},
			Patterns: []string{
				`(执行|运行).*(代码|脚本)`,
			},
			Examples:     []string{"用代码计算每列的方差"},
			Priority:     40,
			Requires:     []string{CoreQuery},
			SystemPrompt: "你可以提交一段只依赖标准库的 Go 代码在沙箱中运行；" +
				"沙箱只拿到数据快照的只读副本，写回必须通过写入工具。",
		},
	}
}
