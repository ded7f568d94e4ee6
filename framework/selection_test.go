package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-conformance/conformance-tests/catalog"
)

func sampleCatalog() []catalog.Test {
	return []catalog.Test{
		{Name: "TestAccessControl", App: "all-clusters"},
		{Name: "TestBasicInformation", App: "all-clusters"},
		{Name: "TestCommissioningWindow", App: "all-clusters", Tags: []string{catalog.TagSlow}},
		{Name: "TestManualPairing", App: "all-clusters", Tags: []string{catalog.TagManual}},
	}
}

func TestTagListRejectsUnknownTags(t *testing.T) {
	var tags TagList
	require.NoError(t, tags.Set("Flaky"))
	assert.Equal(t, TagList{"flaky"}, tags)

	err := tags.Set("no-such-tag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tag")
}

func TestTestRunsWhenAnyOfItsTagsIsIncluded(t *testing.T) {
	sel := Selection{IncludeTags: NewTagSet(catalog.TagSlow)}
	test := catalog.Test{Name: "t", Tags: []string{catalog.TagManual, catalog.TagSlow}}
	assert.Equal(t, "", sel.TagSkipReason(test))
}

func TestExclusionWinsOverInclusion(t *testing.T) {
	sel := Selection{
		IncludeTags: NewTagSet(catalog.TagSlow),
		ExcludeTags: NewTagSet(catalog.TagFlaky),
	}
	test := catalog.Test{Name: "t", Tags: []string{catalog.TagSlow, catalog.TagFlaky}}
	assert.Equal(t, "excluded by tags", sel.TagSkipReason(test))
}

func TestTestWithoutIncludedTagsIsSkipped(t *testing.T) {
	sel := Selection{IncludeTags: NewTagSet(catalog.TagSlow)}
	test := catalog.Test{Name: "t", Tags: []string{catalog.TagWifiMock}}
	assert.Equal(t, "not in included tags", sel.TagSkipReason(test))
}

func TestDefaultExclusionsApplyToUnfilteredRuns(t *testing.T) {
	sel := Selection{Targets: StringList{"all"}}
	manual := catalog.Test{Name: "t", Tags: []string{catalog.TagManual}}
	assert.Equal(t, "excluded by tags", sel.TagSkipReason(manual))

	// Naming a specific target disables the default exclusions.
	targeted := Selection{Targets: StringList{"TestManualPairing"}}
	assert.Equal(t, "", targeted.TagSkipReason(manual))

	// So does any explicit tag criterion.
	tagged := Selection{ExcludeTags: NewTagSet(catalog.TagSlow)}
	assert.Equal(t, "", tagged.TagSkipReason(manual))
}

func TestSelectTestsByTargetNameIsCaseInsensitive(t *testing.T) {
	tests, err := SelectTests(sampleCatalog(), Selection{Targets: StringList{"testaccesscontrol"}})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "TestAccessControl", tests[0].Name)
}

func TestSelectTestsRejectsUnknownTarget(t *testing.T) {
	_, err := SelectTests(sampleCatalog(), Selection{Targets: StringList{"TestTypo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target: TestTypo")
}

func TestSelectTestsAppliesGlobAndSkipGlob(t *testing.T) {
	tests, err := SelectTests(sampleCatalog(), Selection{
		TargetGlob: "Test*",
		SkipGlob:   "*Commissioning*",
	})
	require.NoError(t, err)
	var names []string
	for _, test := range tests {
		names = append(names, test.Name)
	}
	assert.Equal(t, []string{"TestAccessControl", "TestBasicInformation", "TestManualPairing"}, names)
}

func TestSelectTestsEmptyMatchListsValidTargets(t *testing.T) {
	_, err := SelectTests(sampleCatalog(), Selection{TargetGlob: "NoSuch*"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TestAccessControl")
	assert.Contains(t, err.Error(), "TestManualPairing")
}

func TestGlobMatchesIgnoresCase(t *testing.T) {
	assert.True(t, GlobMatches("test*PAIRING", "TestManualPairing"))
	assert.False(t, GlobMatches("Test?", "TestManualPairing"))
}
