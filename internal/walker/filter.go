package walker

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Format is the kind of document a file holds.
type Format string

const (
	FormatUnknown  Format = ""
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	// FormatQA is a JSON-lines question/answer dataset.
	FormatQA Format = "qa"
)

var extensionFormats = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".rst":      FormatText,
	".jsonl":    FormatQA,
}

// DetectFormat returns the document format for a file name.
func DetectFormat(name string) Format {
	return extensionFormats[strings.ToLower(path.Ext(name))]
}

// defaultExcludedDirs are never descended into.
var defaultExcludedDirs = []string{
	".git",
	".lanne",
	"node_modules",
	"vendor",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
}

func shouldExcludeDir(name string) bool {
	for _, excl := range defaultExcludedDirs {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// MatchesInclude reports whether rel matches any pattern. No patterns
// include everything.
func MatchesInclude(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(rel, patterns)
}

// MatchesExclude reports whether rel matches any pattern. No patterns
// exclude nothing.
func MatchesExclude(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(rel, patterns)
}

// matchesAny tries each pattern against the full path and the base name.
func matchesAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
