package gitio

import (
	godiff "github.com/sourcegraph/go-diff/diff"

	"tia/internal/changeset"
	tiaerrors "tia/internal/errors"
	"tia/internal/paths"
)

// ParseUnifiedDiff converts a pre-computed unified diff (as produced by
// `git diff` in CI) into canonical change entries. Used when the caller
// supplies a diff file instead of letting tia invoke git.
func ParseUnifiedDiff(diffContent []byte, source changeset.Source) ([]changeset.Entry, error) {
	if len(diffContent) == 0 {
		return nil, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff(diffContent)
	if err != nil {
		return nil, tiaerrors.New(tiaerrors.SourceEnumerationFailed, "unparseable unified diff", err)
	}

	entries := make([]changeset.Entry, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		oldPath := cleanDiffPath(fd.OrigName)
		newPath := cleanDiffPath(fd.NewName)

		entry := changeset.Entry{Source: source}
		switch {
		case oldPath == "" && newPath == "":
			continue
		case oldPath == "":
			entry.Status = changeset.StatusAdded
			entry.RawStatus = "A"
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		case newPath == "":
			entry.Status = changeset.StatusDeleted
			entry.RawStatus = "D"
			entry.OldPath = oldPath
			entry.EffectivePath = oldPath
		case oldPath != newPath:
			entry.Status = changeset.StatusRenamed
			entry.RawStatus = "R"
			entry.OldPath = oldPath
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		default:
			entry.Status = changeset.StatusModified
			entry.RawStatus = "M"
			entry.OldPath = oldPath
			entry.NewPath = newPath
			entry.EffectivePath = newPath
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// cleanDiffPath strips the a/ or b/ prefix and maps /dev/null to empty.
func cleanDiffPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if len(path) > 2 && (path[:2] == "a/" || path[:2] == "b/") {
		path = path[2:]
	}
	return paths.NormalizePath(path)
}
