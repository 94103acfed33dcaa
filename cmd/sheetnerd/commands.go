package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sheetnerd/internal/cache"
	"sheetnerd/internal/config"
	"sheetnerd/internal/dispatch"
	"sheetnerd/internal/document"
	"sheetnerd/internal/sandbox"
	"sheetnerd/internal/session"
	"sheetnerd/internal/skill"
	"sheetnerd/internal/store"
)

const version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sheetnerd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sheetnerd", version)
		},
	}
}

func newSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the built-in skills",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := skill.NewBuiltinRegistry()
			out := cmd.OutOrStdout()
			for _, name := range reg.Names() {
				def := reg.Get(name)
				mark := " "
				if def.AlwaysOn {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-18s p%-3d %s\n", mark, def.Name, def.Priority, def.DisplayName)
				fmt.Fprintf(out, "    tools: %s\n", strings.Join(def.Tools, ", "))
			}
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <utterance>",
		Short: "Show which skills an utterance activates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			router, err := buildRouter(cfg, log)
			if err != nil {
				return err
			}
			set := router.Resolve(cmd.Context(), strings.Join(args, " "))

			out := cmd.OutOrStdout()
			for _, def := range set.Skills {
				fmt.Fprintf(out, "%-18s p%d\n", def.Name, def.Priority)
			}
			fmt.Fprintf(out, "tools: %s\n", strings.Join(set.Tools, ", "))
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show a workbook's structure and a data preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctrl := document.NewController(log,
				document.WithPreviewRows(cfg.Document.PreviewRows))
			if err := ctrl.Load(args[0]); err != nil {
				return err
			}

			st, err := ctrl.Structure()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (version %d)\n", st.Source, st.Version)
			for _, sheet := range st.Sheets {
				mark := " "
				if sheet.Active {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-24s %d x %d\n", mark, sheet.Name, sheet.Rows, sheet.Cols)
			}

			preview, err := ctrl.Preview()
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, row := range preview {
				fmt.Fprintln(out, strings.Join(row, "\t"))
			}
			return nil
		},
	}
}

func newToolCmd() *cobra.Command {
	var (
		flagArgs  string
		flagGated bool
	)
	cmd := &cobra.Command{
		Use:   "tool <file> <utterance> <tool-name>",
		Short: "Resolve an utterance, then invoke one tool against a workbook",
		Long: `Resolves the utterance to an activation set and invokes the named tool.
With --gated (default) the invocation fails if no activated skill
advertises the tool, exactly as an agent conversation would behave.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			toolArgs := map[string]any{}
			if flagArgs != "" {
				if err := json.Unmarshal([]byte(flagArgs), &toolArgs); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			sess, watcher, cleanup, err := buildSession(cfg, log, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			if watcher != nil && watcher.SourceChanged() {
				log.Info("source file changed on disk, reloading")
				if err := sess.Controller().Reload(); err != nil {
					return err
				}
				watcher.Reset()
			}

			set := sess.Resolve(cmd.Context(), args[1])
			log.Debug("activation", zap.Strings("skills", set.Names()))

			var result any
			if flagGated {
				result, err = sess.InvokeTool(cmd.Context(), args[2], toolArgs)
			} else {
				result, err = sess.Dispatcher().Invoke(cmd.Context(), args[2], toolArgs)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&flagArgs, "args", "", "tool arguments as JSON")
	cmd.Flags().BoolVar(&flagGated, "gated", true, "enforce the skill gate")
	return cmd
}

// buildRouter assembles the router per config: builtin skills plus the
// configured semantic scorer.
func buildRouter(cfg *config.Config, log *zap.Logger) (*skill.Router, error) {
	reg := skill.NewBuiltinRegistry()
	opts := []skill.RouterOption{skill.WithThreshold(cfg.Router.SemanticThreshold)}
	switch cfg.Router.Scorer {
	case "lexical":
		opts = append(opts, skill.WithScorer(skill.NewLexicalScorer()))
	case "genai":
		scorer, err := skill.NewGenAIScorer(cfg.Router.GenAIAPIKey, cfg.Router.GenAIModel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, skill.WithScorer(scorer))
	}
	return skill.NewRouter(reg, log, opts...)
}

// buildSession wires a full session over one workbook file. The
// returned watcher is nil when source watching is disabled or
// unavailable; callers poll it before acting on possibly stale data.
func buildSession(cfg *config.Config, log *zap.Logger, path string) (*session.Session, *document.Watcher, func(), error) {
	ctrlOpts := []document.Option{
		document.WithPreviewRows(cfg.Document.PreviewRows),
		document.WithChangeLogPayloadLimit(cfg.Document.ChangeLogPayloadLimit),
	}

	cleanup := func() {}
	ctrl := document.NewController(log, ctrlOpts...)
	if cfg.Audit.Enabled {
		audit, err := store.Open(cfg.Audit.DatabasePath, ctrl.ID(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		ctrl.SetSink(audit)
		cleanup = func() { audit.Close() }
	}

	if err := ctrl.Load(path); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	var watcher *document.Watcher
	if cfg.Document.WatchSource {
		w, err := document.NewWatcher(log, path)
		if err != nil {
			log.Warn("source watch unavailable", zap.Error(err))
		} else {
			watcher = w
			prev := cleanup
			cleanup = func() {
				w.Close()
				prev()
			}
		}
	}

	router, err := buildRouter(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	reg := skill.NewBuiltinRegistry()
	exec := sandbox.NewYaegiExecutor(log, sandbox.WithBudget(sandbox.Budget{
		Timeout:        cfg.Sandbox.Timeout,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		MaxMemoryBytes: cfg.Sandbox.MaxMemoryBytes,
	}))
	disp, err := dispatch.NewDispatcher(log, ctrl, cache.New(cfg.Cache.Capacity), exec, reg)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return session.New(log, router, disp, ctrl), watcher, cleanup, nil
}
