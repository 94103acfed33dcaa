// sheetnerd is a spreadsheet agent core: it routes natural-language
// utterances to skill activations and executes the activated tools
// against an Excel or CSV document.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sheetnerd/internal/config"
	"sheetnerd/internal/logging"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "sheetnerd",
		Short: "Skill-routed spreadsheet agent core",
		Long: `sheetnerd loads an Excel or CSV workbook, resolves natural-language
utterances to skill activations, and executes the activated tools against
the document with versioned, transactional edits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "sheetnerd.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newVersionCmd(),
		newSkillsCmd(),
		newResolveCmd(),
		newInspectCmd(),
		newToolCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all
// subcommands.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	if flagVerbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
