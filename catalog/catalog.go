// Package catalog loads the test manifest: the list of conformance tests,
// their tags, and the opaque command material each test needs (which
// application binary to run and the controller-tool argument template).
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known tags. Tests carrying any of DefaultExcludedTags are skipped
// unless explicitly targeted or tag-selected.
const (
	TagManual            = "manual"
	TagSlow              = "slow"
	TagInDevelopment     = "in_development"
	TagFlaky             = "flaky"
	TagExtraSlow         = "extra_slow"
	TagPurposefulFailure = "purposeful_failure"
	TagWifiMock          = "wifi_mock"
)

// AllTags is the tag vocabulary accepted by the manifest schema and the
// --include-tags/--exclude-tags options.
var AllTags = []string{
	TagManual,
	TagSlow,
	TagInDevelopment,
	TagFlaky,
	TagExtraSlow,
	TagPurposefulFailure,
	TagWifiMock,
}

// DefaultExcludedTags are applied when a run selects "all" targets without
// any explicit tag criteria.
var DefaultExcludedTags = []string{
	TagManual,
	TagInDevelopment,
	TagFlaky,
	TagExtraSlow,
	TagPurposefulFailure,
}

// Test is one conformance test definition. Tool is an argument template for
// the controller tool; the placeholder "{pics}" is replaced with the resolved
// PICS file path at execution time.
type Test struct {
	Name string   `yaml:"name" json:"name"`
	Tags []string `yaml:"tags" json:"tags"`
	App  string   `yaml:"app" json:"app"`
	Tool []string `yaml:"tool" json:"tool"`
}

func (t Test) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// TagsString renders the tag set for display in `list` output.
func (t Test) TagsString() string {
	return strings.Join(t.Tags, ", ")
}

type manifest struct {
	Tests []Test `yaml:"tests"`
}

// Load reads, validates, and decodes a manifest file, returning the tests
// sorted by name.
func Load(path string) ([]Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test manifest: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes manifest bytes.
func Parse(data []byte) ([]Test, error) {
	if err := validateManifest(data); err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode test manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Tests))
	for _, t := range m.Tests {
		if seen[t.Name] {
			return nil, fmt.Errorf("test manifest: duplicate test name %q", t.Name)
		}
		seen[t.Name] = true
	}
	tests := m.Tests
	sort.Slice(tests, func(i, j int) bool { return tests[i].Name < tests[j].Name })
	return tests, nil
}
