package cmd

import (
	"os"

	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/term"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print the workspace dependency graph and detect cycles",
	Long: `Load the workspace, build the dependency graph, and print it.

Exits 1 if the graph contains a cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := graph.Build(ws.Projects)

		colors := graph.DefaultColors()
		if term.IsPlain() {
			colors = graph.PlainColors()
		}

		for _, name := range ws.SortedNames() {
			var deps []string
			for dep := range g.Deps[name] {
				deps = append(deps, dep)
			}
			if len(deps) == 0 {
				term.Printf("  %s%s%s\n", colors.Green, name, colors.Reset)
			} else {
				term.Printf("  %s%s%s %sdepends on %v%s\n", colors.Green, name, colors.Reset, colors.Dim, deps, colors.Reset)
			}
		}

		cycles := graph.DetectCycles(g)
		if len(cycles) == 0 {
			return nil
		}

		term.Println("")
		term.Errorf("%d cycle(s) detected:", len(cycles))
		for _, cycle := range cycles {
			term.Printf("  %v\n", cycle)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
