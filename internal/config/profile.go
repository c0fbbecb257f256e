package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"tia/internal/globmatch"
)

// ProfilesDeclarationFile is the default filename for profile declarations
const ProfilesDeclarationFile = "PROFILES.toml"

// Profile declares one analysis profile in PROFILES.toml
type Profile struct {
	// Name is the profile identifier
	Name string `toml:"name"`

	// TestsRoot is the repo-relative directory spec files live under
	TestsRoot string `toml:"tests_root"`

	// ChangedSpecPrefix identifies direct spec changes by path prefix
	ChangedSpecPrefix string `toml:"changed_spec_prefix"`

	// RelevantPaths are globs selecting which changed source files
	// participate in analysis; defaults to the analysis roots
	RelevantPaths []string `toml:"relevant_paths,omitempty"`

	// AnalysisRoots are the directories scanned for class and call graphs
	AnalysisRoots []string `toml:"analysis_roots,omitempty"`

	// FixturesTypes is the fixture map declaration file
	FixturesTypes string `toml:"fixtures_types,omitempty"`

	// GlobalWatchPatterns trigger force-all when matched
	GlobalWatchPatterns []string `toml:"global_watch_patterns,omitempty"`

	// GlobalWatchMode is force-all-in-project or disabled
	GlobalWatchMode string `toml:"global_watch_mode,omitempty"`

	// FileExtensions are the source extensions, lowercase with leading dot
	FileExtensions []string `toml:"file_extensions,omitempty"`
}

// ProfilesFile represents the root structure of PROFILES.toml
type ProfilesFile struct {
	Version  int       `toml:"version"`
	Profiles []Profile `toml:"profiles"`
}

// LoadProfiles reads PROFILES.toml from the repo root. A missing file
// yields an empty declaration set.
func LoadProfiles(repoRoot string) (*ProfilesFile, error) {
	content, err := os.ReadFile(filepath.Join(repoRoot, ProfilesDeclarationFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfilesFile{Version: 1}, nil
		}
		return nil, err
	}

	var file ProfilesFile
	if err := toml.Unmarshal(content, &file); err != nil {
		return nil, &ConfigError{Field: ProfilesDeclarationFile, Message: err.Error()}
	}
	return &file, nil
}

// Resolve returns the named profile, or the only declared profile when
// name is empty and exactly one exists.
func (f *ProfilesFile) Resolve(name string) (*Profile, bool) {
	if name == "" {
		if len(f.Profiles) == 1 {
			p := f.Profiles[0]
			return &p, true
		}
		return nil, false
	}
	for _, p := range f.Profiles {
		if p.Name == name {
			resolved := p
			return &resolved, true
		}
	}
	return nil, false
}

// ApplyDefaults fills optional profile fields and normalizes extensions.
func (p *Profile) ApplyDefaults() {
	if len(p.AnalysisRoots) == 0 {
		p.AnalysisRoots = []string{"src"}
	}
	if len(p.RelevantPaths) == 0 {
		for _, root := range p.AnalysisRoots {
			p.RelevantPaths = append(p.RelevantPaths, strings.TrimSuffix(root, "/")+"/**")
		}
	}
	if p.FixturesTypes == "" {
		p.FixturesTypes = "src/fixtures/types.ts"
	}
	if p.GlobalWatchMode == "" {
		p.GlobalWatchMode = "force-all-in-project"
	}
	if len(p.FileExtensions) == 0 {
		p.FileExtensions = []string{".ts", ".tsx"}
	}

	normalized := make([]string, 0, len(p.FileExtensions))
	for _, ext := range p.FileExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	p.FileExtensions = normalized
}

// Validate checks the required profile fields.
func (p *Profile) Validate() error {
	if p.TestsRoot == "" {
		return &ConfigError{Field: "tests_root", Message: "required"}
	}
	if p.ChangedSpecPrefix == "" {
		return &ConfigError{Field: "changed_spec_prefix", Message: "required"}
	}
	switch p.GlobalWatchMode {
	case "", "force-all-in-project", "disabled":
	default:
		return &ConfigError{Field: "global_watch_mode", Message: "must be force-all-in-project or disabled"}
	}
	return nil
}

// IsRelevantPOMPath compiles the relevant-path globs into the predicate
// that selects analysis participants.
func (p *Profile) IsRelevantPOMPath() func(string) bool {
	set := globmatch.CompileSet(p.RelevantPaths)
	return set.MatchAny
}
