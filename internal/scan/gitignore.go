package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// gitignoreRule is one compiled line from a .gitignore file, with the
// precedence metadata the canonical gitignore rules require: rule order
// matters (later rules override earlier ones), a leading "!" negates, and
// a rule scoped to a directory only applies under that directory.
type gitignoreRule struct {
	dir      string // slash-separated directory the rule was read from, "" for root
	pattern  glob.Glob
	negate   bool
	dirOnly  bool
	anchored bool
}

// loadGitignores walks the tree collecting every .gitignore file and
// compiling its rules in file-then-line order, which is what gives deeper
// .gitignore files precedence over shallower ones in the canonical
// semantics (most specific match wins, ties broken by later declaration).
func (s *Scanner) loadGitignores() []gitignoreRule {
	var rules []gitignoreRule
	filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Base(path) != ".gitignore" {
			return nil
		}
		dir, relErr := filepath.Rel(s.root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		dir = filepath.ToSlash(dir)
		if dir == "." {
			dir = ""
		}
		rules = append(rules, parseGitignoreFile(path, dir)...)
		return nil
	})
	return rules
}

func parseGitignoreFile(path, dir string) []gitignoreRule {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []gitignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		negate := false
		if strings.HasPrefix(trimmed, "!") {
			negate = true
			trimmed = trimmed[1:]
		}
		dirOnly := strings.HasSuffix(trimmed, "/")
		trimmed = strings.TrimSuffix(trimmed, "/")
		anchored := strings.HasPrefix(trimmed, "/")
		pat := strings.TrimPrefix(trimmed, "/")
		if !anchored && !strings.Contains(pat, "/") {
			pat = "**/" + pat
		}
		g, err := glob.Compile(pat, '/')
		if err != nil {
			continue
		}
		rules = append(rules, gitignoreRule{dir: dir, pattern: g, negate: negate, dirOnly: dirOnly, anchored: anchored})
	}
	return rules
}

// matchGitignore applies rules in order (later wins), scoped to the
// directory the rule came from, and returns the final ignored/not-ignored
// verdict — the same last-match-wins precedence the canonical gitignore
// rules define.
func matchGitignore(rules []gitignoreRule, relPath string, isDir bool) bool {
	ignored := false
	for _, r := range rules {
		if r.dirOnly && !isDir {
			continue
		}
		scoped := relPath
		if r.dir != "" {
			if !strings.HasPrefix(relPath, r.dir+"/") {
				continue
			}
			scoped = strings.TrimPrefix(relPath, r.dir+"/")
		}
		// An unanchored rule was compiled with a "**/" prefix, which needs a
		// separator; matching "/"+scoped also lets it hit the top level.
		if r.pattern.Match(scoped) || (!r.anchored && r.pattern.Match("/"+scoped)) {
			ignored = !r.negate
		}
	}
	return ignored
}
