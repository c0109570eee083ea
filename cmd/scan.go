package cmd

import (
	"os"
	"path/filepath"

	"github.com/loom-build/loom/generator"
	"github.com/loom-build/loom/scanner"
	"github.com/loom-build/loom/term"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan source imports for unresolved workspace references",
	Long: `Walk every project's source files, resolve relative imports against
the workspace, and report any that don't resolve to a real file.

Exits 1 if any unresolved import is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := generator.Load(ws)
		if err != nil {
			return err
		}
		outputs := make([]string, 0, len(specs))
		for _, spec := range specs {
			outputs = append(outputs, filepath.Join(ws.Root, spec.Key))
		}

		report, err := scanner.Scan(ws, outputs)
		if err != nil {
			return err
		}

		if len(report.Unresolved) == 0 {
			term.Success("no unresolved imports")
			return nil
		}

		for _, u := range report.Unresolved {
			term.Printf("  %s%s%s in %s%s%s, imported by %v\n",
				term.ColorRed, u.Specifier, term.ColorReset,
				term.ColorDim, u.Project, term.ColorReset,
				u.ImportedBy)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
