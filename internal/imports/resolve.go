package imports

import (
	"encoding/json"
	"os"
	"path"
	"sort"
	"strings"

	"tia/internal/logging"
	"tia/internal/paths"
)

// AssetExtensions are included in dependency closures but never traversed.
var AssetExtensions = []string{".json", ".yml", ".yaml"}

// tsconfig models the subset of a tsconfig-like file the resolver needs.
type tsconfig struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// Resolver resolves module references to repo-relative file paths.
type Resolver struct {
	repoRoot   string
	baseURL    string
	aliases    []alias
	extensions []string
	logger     *logging.Logger
}

type alias struct {
	// prefix is the alias pattern up to a trailing `*`, or the whole
	// pattern for exact aliases
	prefix   string
	wildcard bool
	// targets are substitution templates relative to baseUrl
	targets []targetTemplate
}

type targetTemplate struct {
	prefix   string
	wildcard bool
}

// NewResolver loads compilerOptions.baseUrl and compilerOptions.paths
// from the project tsconfig-like file. JSON with comments and trailing
// commas is tolerated. A missing or malformed file leaves alias
// resolution disabled.
func NewResolver(repoRoot, tsconfigRel string, extensions []string, logger *logging.Logger) *Resolver {
	r := &Resolver{repoRoot: repoRoot, extensions: extensions, logger: logger}

	content, err := os.ReadFile(paths.JoinRepoPath(repoRoot, tsconfigRel))
	if err != nil {
		return r
	}

	var cfg tsconfig
	if err := json.Unmarshal(stripJSONC(content), &cfg); err != nil {
		logger.Warn("unparseable tsconfig, alias resolution disabled", map[string]interface{}{
			"path": tsconfigRel, "error": err.Error(),
		})
		return r
	}

	r.baseURL = strings.TrimPrefix(paths.NormalizePath(cfg.CompilerOptions.BaseURL), "./")

	patterns := make([]string, 0, len(cfg.CompilerOptions.Paths))
	for pattern := range cfg.CompilerOptions.Paths {
		patterns = append(patterns, pattern)
	}
	// Longest pattern first so the most specific alias wins
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	for _, pattern := range patterns {
		a := alias{prefix: pattern}
		if strings.HasSuffix(pattern, "*") {
			a.wildcard = true
			a.prefix = strings.TrimSuffix(pattern, "*")
		}
		for _, target := range cfg.CompilerOptions.Paths[pattern] {
			t := targetTemplate{prefix: strings.TrimPrefix(paths.NormalizePath(target), "./")}
			if strings.HasSuffix(t.prefix, "*") {
				t.wildcard = true
				t.prefix = strings.TrimSuffix(t.prefix, "*")
			}
			a.targets = append(a.targets, t)
		}
		r.aliases = append(r.aliases, a)
	}

	return r
}

// stripJSONC removes // and /* */ comments and trailing commas outside of
// string literals.
func stripJSONC(content []byte) []byte {
	var out []byte
	inString := false
	escaped := false

	for i := 0; i < len(content); i++ {
		c := content[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			for i < len(content) && content[i] != '\n' {
				i++
			}
			if i < len(content) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			i += 2
			for i+1 < len(content) && !(content[i] == '*' && content[i+1] == '/') {
				i++
			}
			i++
		case c == ',':
			// Drop the comma when the next non-whitespace closes a scope
			j := i + 1
			for j < len(content) && (content[j] == ' ' || content[j] == '\t' || content[j] == '\n' || content[j] == '\r') {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}

	return out
}

// Resolve maps a module reference from a file to an existing repo-relative
// path. Relative references resolve against the importing file's
// directory; other references try tsconfig aliases, then baseUrl.
func (r *Resolver) Resolve(ref, fromRel string) (string, bool) {
	ref = paths.NormalizePath(ref)

	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") {
		base := path.Join(path.Dir(fromRel), ref)
		return r.firstExisting(base)
	}

	for _, a := range r.aliases {
		if a.wildcard {
			if !strings.HasPrefix(ref, a.prefix) {
				continue
			}
			rest := strings.TrimPrefix(ref, a.prefix)
			for _, t := range a.targets {
				candidate := t.prefix
				if t.wildcard {
					candidate += rest
				}
				if resolved, ok := r.firstExisting(r.underBaseURL(candidate)); ok {
					return resolved, true
				}
			}
		} else if ref == a.prefix {
			for _, t := range a.targets {
				if resolved, ok := r.firstExisting(r.underBaseURL(t.prefix)); ok {
					return resolved, true
				}
			}
		}
	}

	if r.baseURL != "" {
		if resolved, ok := r.firstExisting(r.underBaseURL(ref)); ok {
			return resolved, true
		}
	}

	return "", false
}

// ResolveAsset searches for a bare asset literal by file name in the
// importing file's directory and each parent up to the repo root.
func (r *Resolver) ResolveAsset(name, fromRel string) (string, bool) {
	name = paths.NormalizePath(name)
	if strings.Contains(name, "/") {
		return r.firstExisting(path.Join(path.Dir(fromRel), name))
	}

	dir := path.Dir(fromRel)
	for {
		candidate := path.Join(dir, name)
		if r.exists(candidate) {
			return candidate, true
		}
		if dir == "." || dir == "/" {
			return "", false
		}
		dir = path.Dir(dir)
	}
}

func (r *Resolver) underBaseURL(rel string) string {
	if r.baseURL == "" || r.baseURL == "." {
		return rel
	}
	return path.Join(r.baseURL, rel)
}

// firstExisting tries a base path as-is, with each source extension, and
// as a directory with an index file.
func (r *Resolver) firstExisting(base string) (string, bool) {
	base = path.Clean(base)

	if paths.HasExtension(base, r.extensions) || paths.HasExtension(base, AssetExtensions) {
		if r.exists(base) {
			return base, true
		}
	}
	for _, ext := range r.extensions {
		if candidate := base + ext; r.exists(candidate) {
			return candidate, true
		}
	}
	for _, ext := range r.extensions {
		if candidate := path.Join(base, "index"+ext); r.exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Resolver) exists(rel string) bool {
	info, err := os.Stat(paths.JoinRepoPath(r.repoRoot, rel))
	return err == nil && !info.IsDir()
}

// IsTraversable reports whether a resolved dependency should itself be
// parsed for further references. Asset files are included in closures but
// never traversed.
func (r *Resolver) IsTraversable(rel string) bool {
	return paths.HasExtension(rel, r.extensions)
}
