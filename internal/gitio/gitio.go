// Package gitio enumerates source changes and reads file contents at
// specific revisions. It shells out to git with NUL-separated output so
// paths with spaces survive, and can alternatively ingest a pre-computed
// unified diff.
package gitio

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"tia/internal/changeset"
	tiaerrors "tia/internal/errors"
	"tia/internal/logging"
	"tia/internal/paths"
)

// WorkingTree is the revision identifier for the on-disk working tree.
const WorkingTree = ""

// Runner enumerates changes and reads revisioned content for one repository.
type Runner struct {
	repoRoot string
	logger   *logging.Logger
}

// NewRunner creates a Runner rooted at repoRoot.
func NewRunner(repoRoot string, logger *logging.Logger) *Runner {
	return &Runner{repoRoot: repoRoot, logger: logger}
}

// git runs a git subcommand in the repo root and returns stdout.
func (r *Runner) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, tiaerrors.New(tiaerrors.SourceEnumerationFailed,
			"git "+strings.Join(args, " ")+" failed: "+strings.TrimSpace(stderr.String()), err)
	}
	return out, nil
}

// DiffBaseHead compares base against HEAD with rename detection enabled.
func (r *Runner) DiffBaseHead(base string) ([]changeset.Entry, []string, error) {
	out, err := r.git("diff", "--name-status", "-z", "--find-renames", base, "HEAD")
	if err != nil {
		return nil, nil, err
	}
	entries, warnings := r.parseNameStatusNUL(out, changeset.SourceBaseHead)
	return entries, warnings, nil
}

// DiffWorkingTree compares the working tree (staged and unstaged) against HEAD.
func (r *Runner) DiffWorkingTree() ([]changeset.Entry, []string, error) {
	out, err := r.git("diff", "--name-status", "-z", "--find-renames", "HEAD")
	if err != nil {
		return nil, nil, err
	}
	entries, warnings := r.parseNameStatusNUL(out, changeset.SourceWorkingTree)
	return entries, warnings, nil
}

// ListUntracked returns untracked files as Added entries. Listing failures
// degrade to a warning: untracked files are supplementary, not a
// comparison source.
func (r *Runner) ListUntracked() ([]changeset.Entry, []string) {
	out, err := r.git("ls-files", "-z", "--others", "--exclude-standard")
	if err != nil {
		return nil, []string{"untracked listing failed: " + err.Error()}
	}

	var entries []changeset.Entry
	for _, raw := range bytes.Split(out, []byte{0}) {
		path := paths.NormalizePath(string(raw))
		if path == "" {
			continue
		}
		entries = append(entries, changeset.Entry{
			Status:        changeset.StatusAdded,
			NewPath:       path,
			EffectivePath: path,
			RawStatus:     "A",
			Source:        changeset.SourceUntracked,
		})
	}
	return entries, nil
}

// parseNameStatusNUL parses `git diff --name-status -z` output.
// Format: STATUS\0PATH\0, or STATUS\0OLDPATH\0NEWPATH\0 for renames and
// copies. Both paths must be read before classifying a rename; malformed
// records are skipped with a warning.
func (r *Runner) parseNameStatusNUL(output []byte, source changeset.Source) ([]changeset.Entry, []string) {
	var entries []changeset.Entry
	var warnings []string

	parts := bytes.Split(output, []byte{0})

	for i := 0; i < len(parts); {
		if len(parts[i]) == 0 {
			i++
			continue
		}

		rawStatus := string(parts[i])
		if i+1 >= len(parts) {
			warnings = append(warnings, "malformed diff record: status "+rawStatus+" without path")
			break
		}

		twoPath := strings.HasPrefix(rawStatus, "R") || strings.HasPrefix(rawStatus, "C")

		var oldPath, newPath string
		if twoPath {
			oldPath = paths.NormalizePath(string(parts[i+1]))
			i += 2
			if i >= len(parts) || len(parts[i]) == 0 {
				warnings = append(warnings, "malformed rename record for "+oldPath)
				continue
			}
			newPath = paths.NormalizePath(string(parts[i]))
			i++
		} else {
			newPath = paths.NormalizePath(string(parts[i+1]))
			i += 2
		}

		status, warn := changeset.ParseStatus(rawStatus)
		if warn != "" {
			warnings = append(warnings, warn)
		}

		entry := changeset.Entry{
			Status:    status,
			RawStatus: rawStatus,
			Source:    source,
		}
		switch status {
		case changeset.StatusAdded:
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		case changeset.StatusDeleted:
			entry.OldPath = newPath
			entry.EffectivePath = newPath
		case changeset.StatusRenamed:
			entry.OldPath = oldPath
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		default:
			entry.OldPath = newPath
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		}
		entries = append(entries, entry)
	}

	return entries, warnings
}

// ShowFile reads a file's content at a revision. The WorkingTree revision
// reads from disk.
func (r *Runner) ShowFile(revision, path string) ([]byte, error) {
	if revision == WorkingTree {
		return os.ReadFile(paths.JoinRepoPath(r.repoRoot, path))
	}

	cmd := exec.Command("git", "show", revision+":"+path)
	cmd.Dir = r.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveRevision resolves a revision identifier to a commit hash,
// or returns the identifier unchanged when resolution fails.
func (r *Runner) ResolveRevision(rev string) string {
	cmd := exec.Command("git", "rev-parse", rev)
	cmd.Dir = r.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return rev
	}
	return strings.TrimSpace(string(out))
}

// IsGitRepo checks whether the root is inside a git work tree.
func (r *Runner) IsGitRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = r.repoRoot
	return cmd.Run() == nil
}
