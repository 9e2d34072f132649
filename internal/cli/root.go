// Package cli implements KnowCode's command-line surface: analyze (build
// the knowledge store and hybrid index), retrieve-context, search,
// entity-context, trace-calls and impact (the retrieval API operations),
// watch (incremental reindexing), mcp (expose the retrieval API over MCP)
// and version. Grounded on the teacher's internal/cli package (cobra
// command tree, one file per command, persistent --quiet/--root flags
// in root.go).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	quietFlag   bool
	rootDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "knowcode",
	Short: "KnowCode - a code knowledge graph and hybrid retrieval engine",
	Long: `KnowCode analyzes a codebase into a queryable knowledge graph, builds a
hybrid (lexical + semantic) retrieval index over it, and synthesizes
task-aware, token-budgeted context bundles for downstream callers.`,
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().StringVar(&rootDirFlag, "root", "", "root directory to analyze (default: current directory)")
}

func resolveRootDir() (string, error) {
	if rootDirFlag != "" {
		return rootDirFlag, nil
	}
	return os.Getwd()
}
