package graph

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/knowcode/knowcode/internal/model"
)

// TemporalIngestor shells out to `git log` and turns its output into
// commit/author entities plus authored/modified/changed_by edges. Grounded
// on the teacher's internal/git/operations.go, which invokes git the same
// way (exec.CommandContext against a repo root, parsing a custom
// --pretty=format delimiter) rather than a CGO git binding, since the
// teacher's own choice was the shell-out.
//
// Optional: per spec §4.3, a Knowledge Store built without a .git
// directory simply omits commit/author entities entirely.
type TemporalIngestor struct {
	RepoRoot string
}

const gitLogFormat = "%x1e%H%x1f%an%x1f%ae%x1f%aI%x1f%s%x1e"

// Ingest runs `git log --name-only` against RepoRoot and returns the
// commit, author, authored, modified, and changed_by entities/edges it
// produces. fileEntityID maps a repo-relative path to the module entity id
// that represents it, so "modified" edges can target real entities; a
// path with no known module entity is skipped.
func (t *TemporalIngestor) Ingest(ctx context.Context, fileEntityID func(relPath string) (string, bool)) ([]model.Entity, []model.Relationship, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", t.RepoRoot, "log", "--name-only", "--pretty=format:"+gitLogFormat)
	out, err := cmd.Output()
	if err != nil {
		return nil, nil, fmt.Errorf("git log: %w", err)
	}

	var entities []model.Entity
	var relationships []model.Relationship
	seenAuthors := map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var currentCommitID string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "\x1e") {
			parts := strings.Split(strings.Trim(line, "\x1e"), "\x1f")
			if len(parts) < 5 {
				continue
			}
			hash, name, email, date, subject := parts[0], parts[1], parts[2], parts[3], parts[4]
			commitID := "commit:" + hash
			currentCommitID = commitID
			authorID := "author:" + email

			entities = append(entities, model.Entity{
				ID: commitID, Kind: model.KindCommit, ShortName: hash[:minInt(8, len(hash))],
				QualifiedName: hash,
				Attrs: model.Attrs{
					"subject": {Str: subject},
					"date":    {Str: date},
				},
			})
			if !seenAuthors[authorID] {
				seenAuthors[authorID] = true
				entities = append(entities, model.Entity{
					ID: authorID, Kind: model.KindAuthor, ShortName: name, QualifiedName: email,
				})
			}
			relationships = append(relationships, model.Relationship{SourceID: authorID, TargetID: commitID, Kind: model.RelAuthored})
			continue
		}
		if line == "" || currentCommitID == "" {
			continue
		}
		entID, ok := fileEntityID(line)
		if !ok {
			continue
		}
		relationships = append(relationships,
			model.Relationship{SourceID: currentCommitID, TargetID: entID, Kind: model.RelModified},
			model.Relationship{SourceID: entID, TargetID: currentCommitID, Kind: model.RelChangedBy},
		)
	}
	return entities, relationships, scanner.Err()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
