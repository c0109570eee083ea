package cmd

import (
	"fmt"
	"os"

	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/term"
	"github.com/spf13/cobra"
)

var planFlagChanged []string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the build wave schedule for a change set",
	Long: `Compute the affected set and wave schedule for --changed ids and print
it, without building anything.

Displays how projects would be scheduled in parallel waves based on
their dependency relationships. Useful for understanding build order
and identifying potential bottlenecks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := resolveIDs(planFlagChanged)
		if err != nil {
			return err
		}
		if len(seed) == 0 {
			for name := range ws.Projects {
				seed[name] = true
			}
		}

		g := graph.Build(ws.Projects)
		if cycles := graph.DetectCycles(g); len(cycles) > 0 {
			return fmt.Errorf("dependency cycle(s) detected, refusing to plan: %v", cycles)
		}
		affected := graph.Affected(seed, g)
		plan, err := graph.PlanWaves(affected, g)
		if err != nil {
			return err
		}

		colors := graph.DefaultColors()
		if term.IsPlain() {
			colors = graph.PlainColors()
		}
		plan.Print(os.Stdout, g, colors)
		return nil
	},
}

func init() {
	planCmd.Flags().StringSliceVar(&planFlagChanged, "changed", nil, "Project ids to treat as changed (default: every project)")
	rootCmd.AddCommand(planCmd)
}

// resolveProjectIDs resolves each id against the loaded workspace, per the
// identifier resolution rule: exact name, then workspace-relative path,
// then "/<id>" suffix match. An id that fails to resolve is dropped and
// warned about, not fatal — the list is fatal only if every id in a
// non-empty list fails to resolve.
func resolveProjectIDs(ids []string) ([]string, error) {
	resolved := make([]string, 0, len(ids))
	var unresolved []string
	for _, id := range ids {
		name, ok := ws.Resolve(id)
		if !ok {
			unresolved = append(unresolved, id)
			continue
		}
		resolved = append(resolved, name)
	}
	if len(unresolved) > 0 {
		if len(resolved) == 0 {
			return nil, fmt.Errorf("no identifier resolved to a project: %v", unresolved)
		}
		term.Warn("unresolved project id(s), dropped: %v", unresolved)
	}
	return resolved, nil
}

// resolveIDs resolves a list of --changed identifiers into a seed set.
func resolveIDs(ids []string) (map[string]bool, error) {
	resolved, err := resolveProjectIDs(ids)
	if err != nil {
		return nil, err
	}
	seed := make(map[string]bool, len(resolved))
	for _, name := range resolved {
		seed[name] = true
	}
	return seed, nil
}
