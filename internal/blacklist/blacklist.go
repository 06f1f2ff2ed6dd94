package blacklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultPath is where the rule file is looked up relative to the working directory.
const DefaultPath = "blackList.json"

var ErrMissingRules = errors.New("blacklist file not found")

// RuleSet describes which directories and files never make it into a sitemap.
// It is loaded once per crawl and must not be modified afterwards.
type RuleSet struct {
	FolderPatterns []string `json:"folderPatterns"`
	FilePatterns   []string `json:"filePatterns"`
	FileNames      []string `json:"fileNames"`
	FileExtensions []string `json:"fileExtensions"`

	folders    []*regexp.Regexp
	files      []*regexp.Regexp
	names      map[string]struct{}
	extensions map[string]struct{}
}

// Load reads and compiles the rule file at path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingRules, path)
		}
		return nil, fmt.Errorf("failed to read blacklist %s: %w", path, err)
	}

	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist %s: %w", path, err)
	}
	return rules, nil
}

func Parse(data []byte) (*RuleSet, error) {
	var rules RuleSet
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("malformed blacklist: %w", err)
	}
	if err := rules.compile(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *RuleSet) compile() error {
	var err error
	if r.folders, err = compilePatterns(r.FolderPatterns); err != nil {
		return fmt.Errorf("invalid folder pattern: %w", err)
	}
	if r.files, err = compilePatterns(r.FilePatterns); err != nil {
		return fmt.Errorf("invalid file pattern: %w", err)
	}

	r.names = make(map[string]struct{}, len(r.FileNames))
	for _, name := range r.FileNames {
		r.names[name] = struct{}{}
	}

	r.extensions = make(map[string]struct{}, len(r.FileExtensions))
	for _, ext := range r.FileExtensions {
		r.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return nil
}

// Patterns match from the start of the name but may stop short of its end.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(`^(?:` + pattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchFolder reports whether a directory name is pruned from traversal.
func (r *RuleSet) MatchFolder(name string) bool {
	return matchAny(r.folders, name)
}

// MatchFile reports whether a file name matches one of the file patterns.
func (r *RuleSet) MatchFile(name string) bool {
	return matchAny(r.files, name)
}

func (r *RuleSet) HasName(name string) bool {
	_, ok := r.names[name]
	return ok
}

// HasExtension returns the extension of name (the text after the last dot, or the
// whole name when there is none) and whether it is blacklisted.
func (r *RuleSet) HasExtension(name string) (string, bool) {
	ext := Extension(name)
	_, ok := r.extensions[ext]
	return ext, ok
}

func Extension(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func matchAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
