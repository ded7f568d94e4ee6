package framework

import (
	"fmt"
	"path"
	"strings"

	"github.com/device-conformance/conformance-tests/catalog"
)

// StringList is a repeatable command-line option.
type StringList []string

func (s StringList) String() string {
	return strings.Join(s, ", ")
}

// Set is called by the command line parser.
func (s *StringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// TagList is a repeatable command-line option restricted to the known tag
// vocabulary.
type TagList []string

func (t TagList) String() string {
	return strings.Join(t, ", ")
}

func (t *TagList) Set(value string) error {
	value = strings.ToLower(value)
	for _, known := range catalog.AllTags {
		if value == known {
			*t = append(*t, value)
			return nil
		}
	}
	return fmt.Errorf("unknown tag %q (valid: %s)", value, strings.Join(catalog.AllTags, ", "))
}

// TagSet answers membership and intersection queries over tag names.
type TagSet map[string]bool

func NewTagSet(tags ...string) TagSet {
	if len(tags) == 0 {
		return nil
	}
	set := make(TagSet, len(tags))
	for _, tag := range tags {
		set[strings.ToLower(tag)] = true
	}
	return set
}

func (s TagSet) IsEmpty() bool {
	return len(s) == 0
}

func (s TagSet) Intersects(tags []string) bool {
	for _, tag := range tags {
		if s[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

func (s TagSet) String() string {
	var names []string
	for tag := range s {
		names = append(names, tag)
	}
	return strings.Join(names, ", ")
}

// Selection describes which tests a run should execute.
type Selection struct {
	Targets     StringList
	TargetGlob  string
	SkipGlob    string
	IncludeTags TagSet
	ExcludeTags TagSet
}

// EffectiveExcludeTags returns the exclusion set after applying the default
// policy: a plain "run everything" invocation with no explicit tag criteria
// excludes tests that are not meant for unattended runs.
func (sel Selection) EffectiveExcludeTags() TagSet {
	if len(sel.ExcludeTags) > 0 || len(sel.IncludeTags) > 0 {
		return sel.ExcludeTags
	}
	if len(sel.Targets) > 0 && !containsAll(sel.Targets) {
		return sel.ExcludeTags
	}
	return NewTagSet(catalog.DefaultExcludedTags...)
}

func containsAll(targets []string) bool {
	for _, t := range targets {
		if strings.EqualFold(t, "all") {
			return true
		}
	}
	return false
}

// TagSkipReason reports why a test should be skipped under the selection's
// tag criteria, or "" if it should run. Exclusion takes precedence over
// inclusion.
func (sel Selection) TagSkipReason(test catalog.Test) string {
	exclude := sel.EffectiveExcludeTags()
	if !exclude.IsEmpty() && exclude.Intersects(test.Tags) {
		return "excluded by tags"
	}
	if !sel.IncludeTags.IsEmpty() && !sel.IncludeTags.Intersects(test.Tags) {
		return "not in included tags"
	}
	return ""
}

// GlobMatches reports whether name matches pattern, case-insensitively.
// Patterns use shell-style wildcards (* and ?).
func GlobMatches(pattern, name string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}

// SelectTests applies target names and glob filters to the full catalog and
// returns the matching tests in catalog order. An empty result is an error:
// the message lists the valid target names, since this almost always means a
// typo in --target.
func SelectTests(all []catalog.Test, sel Selection) ([]catalog.Test, error) {
	tests := all
	if len(sel.Targets) > 0 && !containsAll(sel.Targets) {
		tests = nil
		for _, name := range sel.Targets {
			found := false
			for _, test := range all {
				if strings.EqualFold(test.Name, name) {
					tests = append(tests, test)
					found = true
				}
			}
			if !found {
				return nil, fmt.Errorf("unknown target: %s", name)
			}
		}
	}

	if sel.TargetGlob != "" {
		var matched []catalog.Test
		for _, test := range tests {
			if GlobMatches(sel.TargetGlob, test.Name) {
				matched = append(matched, test)
			}
		}
		tests = matched
	}

	if len(tests) == 0 {
		var names []string
		for _, test := range all {
			names = append(names, test.Name)
		}
		return nil, fmt.Errorf("no targets match; valid targets are (case-insensitive): %s",
			strings.Join(names, ", "))
	}

	if sel.SkipGlob != "" {
		var remaining []catalog.Test
		for _, test := range tests {
			if !GlobMatches(sel.SkipGlob, test.Name) {
				remaining = append(remaining, test)
			}
		}
		tests = remaining
	}

	return tests, nil
}
