package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"tia/internal/analyzer"
)

// OutputFormat selects how a result is rendered.
type OutputFormat string

const (
	// FormatJSON renders indented JSON
	FormatJSON OutputFormat = "json"
	// FormatYAML renders YAML
	FormatYAML OutputFormat = "yaml"
	// FormatList renders one spec path per line for CI consumption
	FormatList OutputFormat = "list"
	// FormatHuman renders a readable report
	FormatHuman OutputFormat = "human"
)

// ParseOutputFormat validates a format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatJSON, FormatYAML, FormatList, FormatHuman:
		return OutputFormat(s), nil
	case "":
		return FormatHuman, nil
	default:
		return "", fmt.Errorf("unknown format %q (json, yaml, list, human)", s)
	}
}

// FormatResult renders a selection result in the requested format.
func FormatResult(result *analyzer.Result, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil

	case FormatYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return "", err
		}
		return string(data), nil

	case FormatList:
		return strings.Join(result.SelectedSpecs, "\n"), nil

	default:
		return formatHuman(result), nil
	}
}

func formatHuman(result *analyzer.Result) string {
	var b strings.Builder

	b.WriteString("Impacted Specs\n")
	b.WriteString("──────────────────────────────────────────────────────────\n\n")

	if result.ForcedAllSpecs {
		b.WriteString("Global watch triggered: running every spec.\n")
		if len(result.GlobalWatch.MatchedPaths) > 0 {
			b.WriteString(fmt.Sprintf("Matched: %s\n", strings.Join(result.GlobalWatch.MatchedPaths, ", ")))
		}
		b.WriteString("\n")
	}

	if len(result.SelectedSpecs) == 0 {
		b.WriteString("No impacted specs found.\n")
	} else {
		b.WriteString(fmt.Sprintf("Selected %d of %d spec files:\n", len(result.SelectedSpecs), result.Stats.SpecFilesTotal))
		for _, spec := range result.SelectedSpecs {
			b.WriteString(fmt.Sprintf("  ● %s (%s)\n", spec, result.ReasonsBySpec[spec]))
		}
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Change entries: %d", result.Stats.ChangeEntries))
	if len(result.Stats.CountsByStatus) > 0 {
		var parts []string
		for _, status := range []string{"A", "M", "D", "R"} {
			if count := result.Stats.CountsByStatus[status]; count > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", status, count))
			}
		}
		if len(parts) > 0 {
			b.WriteString(" (" + strings.Join(parts, ", ") + ")")
		}
	}
	b.WriteString("\n")

	if !result.ForcedAllSpecs {
		b.WriteString(fmt.Sprintf("Changed members: %d, impacted members: %d, fixture keys: %d\n",
			result.Stats.SemanticChangedMethodsCount,
			result.Stats.ImpactedMethodsCount,
			result.Stats.FixtureKeys))
		if result.Coverage.UncertainCallSites > 0 {
			b.WriteString(fmt.Sprintf("Uncertain call sites: %d\n", result.Coverage.UncertainCallSites))
		}
	}

	if len(result.Warnings) > 0 {
		b.WriteString(fmt.Sprintf("\nWarnings (%d):\n", len(result.Warnings)))
		for i, w := range result.Warnings {
			if i >= 20 {
				b.WriteString(fmt.Sprintf("  ... and %d more\n", len(result.Warnings)-20))
				break
			}
			b.WriteString("  - " + w + "\n")
		}
	}

	return b.String()
}
