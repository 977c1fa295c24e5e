package diag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Filter describes one configured diagnostic filter. A diagnostic is
// hidden when every populated field of the filter matches it; empty
// fields match everything.
type Filter struct {
	// Include and Exclude are gitignore-style path patterns relative to
	// the workspace root. An empty Include applies the filter to all
	// paths.
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	// Codes is a list of regular expressions matched against the
	// diagnostic code. A diagnostic without a code never matches a
	// filter that lists codes.
	Codes []string `json:"codes,omitempty"`

	// Severities restricts the filter to the listed severities.
	Severities []Severity `json:"severities,omitempty"`
}

// FilterSet is a compiled list of filters. A diagnostic is hidden when
// any one filter matches it. The zero value hides nothing.
type FilterSet struct {
	filters []compiledFilter
}

type compiledFilter struct {
	include    gitignore.Matcher
	exclude    gitignore.Matcher
	codes      []*regexp.Regexp
	severities []Severity
}

// NewFilterSet compiles the given filters. An invalid code pattern is
// an error.
func NewFilterSet(filters []Filter) (*FilterSet, error) {
	fs := &FilterSet{}
	for _, f := range filters {
		cf := compiledFilter{severities: f.Severities}
		if len(f.Include) > 0 {
			cf.include = matcherFor(f.Include)
		}
		if len(f.Exclude) > 0 {
			cf.exclude = matcherFor(f.Exclude)
		}
		for _, code := range f.Codes {
			re, err := regexp.Compile(code)
			if err != nil {
				return nil, fmt.Errorf("compiling code pattern %q: %w", code, err)
			}
			cf.codes = append(cf.codes, re)
		}
		fs.filters = append(fs.filters, cf)
	}
	return fs, nil
}

func matcherFor(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(ps)
}

// Hidden reports whether the diagnostic should be dropped for the given
// workspace-relative path.
func (fs *FilterSet) Hidden(path string, d Diagnostic) bool {
	if fs == nil {
		return false
	}
	parts := strings.Split(path, "/")
	for i := range fs.filters {
		if fs.filters[i].matches(parts, d) {
			return true
		}
	}
	return false
}

func (f *compiledFilter) matches(path []string, d Diagnostic) bool {
	if f.include != nil && !f.include.Match(path, false) {
		return false
	}
	if f.exclude != nil && f.exclude.Match(path, false) {
		return false
	}
	if len(f.codes) > 0 {
		if d.Code == "" {
			return false
		}
		matched := false
		for _, re := range f.codes {
			if re.MatchString(d.Code) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.severities) > 0 {
		found := false
		for _, sev := range f.severities {
			if d.Severity == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
