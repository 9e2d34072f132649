package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/knowcode/knowcode/internal/config"
	"github.com/knowcode/knowcode/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the root directory and incrementally reindex on change",
	Long: `watch observes the analyzed root for filesystem events, debounces bursts
into coalesced batches, and runs an incremental reindex for every batch
(the whole tree is re-parsed; only chunks whose content changed are
re-embedded). It honors a
stop signal (Ctrl-C) by draining its pending debounce batch before exit,
so a change made immediately before shutdown is never silently dropped.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nstopping watcher...")
		cancel()
	}()

	rootDir, err := resolveRootDir()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	outDir := filepath.Join(rootDir, indexDirName)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", indexDirName, err)
	}

	rt, err := openIncrementalRuntime(rootDir, outDir, cfg)
	if err != nil {
		return fmt.Errorf("open incremental index runtime: %w", err)
	}
	defer rt.Close()

	reindex := func(ctx context.Context, changedPaths []string) error {
		if !quietFlag {
			fmt.Printf("reindexing (%d changed path(s))...\n", len(changedPaths))
		}
		// The Graph Builder re-resolves the whole tree (it has no
		// incremental-removal API, and a changed file can complete an
		// unresolved call or import in any other file), but the chunk,
		// vector, and lexical layers are patched by chunk id: only chunks
		// whose content actually changed are re-embedded, only ids that
		// disappeared are pruned. See incrementalRuntime's doc comment.
		result, err := rt.reindex(ctx, outDir, newStageProgress(true))
		if err != nil {
			return err
		}
		if !quietFlag {
			fmt.Printf("reindexed: %d entities, %d chunks\n", len(result.Entities), result.ChunkCount)
		}
		return nil
	}

	w, err := watch.New(rootDir, globExtensions(cfg.Paths.Code), reindex)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if cfg.Watch.DebounceMS > 0 {
		w.SetDebounce(time.Duration(cfg.Watch.DebounceMS) * time.Millisecond)
	}
	w.Start(ctx)
	if !quietFlag {
		fmt.Printf("watching %s (Ctrl-C to stop)\n", rootDir)
	}
	<-ctx.Done()
	return w.Stop()
}

// globExtensions extracts the file extension (e.g. ".go") from each
// "**/*.ext"-shaped glob in patterns, for the Watcher's flat extension
// allowlist. Patterns it can't reduce to a single extension are skipped.
func globExtensions(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	var out []string
	for _, p := range patterns {
		ext := filepath.Ext(p)
		if ext == "" || strings.ContainsAny(ext, "*?[{},") {
			continue
		}
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}
