// Package cmd implements the CLI commands for loom.
package cmd

import (
	"fmt"
	"os"

	"github.com/loom-build/loom/config"
	"github.com/loom-build/loom/manifest"
	"github.com/loom-build/loom/term"
	"github.com/loom-build/loom/workspaceroot"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagVerbose     bool
	flagQuiet       bool
	flagColor       string
	flagDir         string
	flagConcurrency int
	flagNoUI        bool
	flagConfigFile  string

	// Loaded configuration and workspace, populated by PersistentPreRunE.
	cfg *config.Config
	ws  *manifest.Workspace
	sink term.Sink
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Affected-project build orchestration for JS/TS monorepos",
	Long: `loom - affected-project build orchestration for JS/TS monorepos

Builds only the projects a change set affects, in dependency order,
and can keep rebuilding them and supervising dev servers as files change.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing to directory %s: %w", flagDir, err)
			}
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}

		root, err := workspaceroot.FindFrom(cwd)
		if err != nil {
			return fmt.Errorf("finding workspace root: %w", err)
		}

		result, err := config.Load(config.LoadOptions{
			CWD:           cwd,
			WorkspaceRoot: root,
			ConfigFile:    flagConfigFile,
			Verbose:       flagVerbose,
		})
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = result.Config
		applyFlagOverrides()

		term.SetVerbose(cfg.Verbose)
		term.SetQuiet(cfg.Quiet)
		switch cfg.Color {
		case "always":
			term.SetColorMode(term.ColorModeAlways)
		case "never":
			term.SetColorMode(term.ColorModeNever)
		default:
			term.SetColorMode(term.ColorModeAuto)
		}

		if flagNoUI {
			// Degrade to line-oriented output: no ANSI, and progress/status
			// lines print with a trailing newline instead of overwriting in
			// place (see Terminal.Status). TermSink still carries every
			// event through, just rendered plainly.
			term.SetPlain(true)
			term.SetProgress(true)
		}
		sink = term.NewSink(term.Default)

		loaded, err := manifest.Load(root)
		if err != nil {
			return fmt.Errorf("loading workspace at %s: %w", root, err)
		}
		ws = loaded

		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Quiet mode - suppress progress output")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "", "Color output mode: auto, always, never")
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", "", "Change to directory before running")
	rootCmd.PersistentFlags().IntVarP(&flagConcurrency, "concurrency", "j", 0, "Number of parallel workers (0 = auto)")
	rootCmd.PersistentFlags().BoolVar(&flagNoUI, "no-ui", false, "Disable the live task sink, degrade to plain lines on stderr")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Config file path (overrides auto-discovery)")
}

// applyFlagOverrides applies command-line flag values to the config.
// Flags only override when set to a non-zero value; a flag set to its
// zero value (e.g. --verbose=false) leaves the config value as loaded.
func applyFlagOverrides() {
	if flagVerbose {
		cfg.Verbose = true
	}
	if flagQuiet {
		cfg.Quiet = true
	}
	if flagColor != "" {
		cfg.Color = flagColor
	}
	if flagConcurrency != 0 {
		cfg.Concurrency = flagConcurrency
	}
}

// GetConfig returns the loaded configuration.
// Must be called after PersistentPreRunE has executed.
func GetConfig() *config.Config {
	return cfg
}
