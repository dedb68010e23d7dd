package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentfusion/rrfusion/internal/model"
)

func TestTruncateField_AddsEllipsisWhenShortened(t *testing.T) {
	out := TruncateField(strings.Repeat("a", 100), 10)
	assert.Equal(t, 10, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestTruncateField_LeavesShortValueUnchanged(t *testing.T) {
	assert.Equal(t, "short", TruncateField("short", 100))
}

func TestCoerceFieldCharLimits_UsesDefaultsWithinBudget(t *testing.T) {
	chars := CoerceFieldCharLimits([]string{"title", "abst"}, map[string]int{}, 10000)
	assert.Equal(t, DefaultChars["title"], chars["title"])
	assert.Equal(t, DefaultChars["abst"], chars["abst"])
}

func TestCoerceFieldCharLimits_ShrinksProportionallyUnderTightBudget(t *testing.T) {
	chars := CoerceFieldCharLimits([]string{"title", "abst", "claim", "description"}, map[string]int{}, 300)
	for field, v := range chars {
		assert.GreaterOrEqual(t, v, MinChars[field])
		assert.LessOrEqual(t, v, DefaultChars[field])
	}
}

func TestCoerceFieldCharLimits_NeverGoesBelowFloor(t *testing.T) {
	chars := CoerceFieldCharLimits([]string{"title", "abst", "claim", "description"}, map[string]int{}, 1)
	for field, v := range chars {
		assert.Equal(t, MinChars[field], v)
	}
}

func TestBuildItem_AlwaysIncludesIdentifierFields(t *testing.T) {
	doc := model.Document{Title: "a title", AppDocID: "APP-1", PubID: "PUB-1"}
	item := BuildItem("doc-1", doc, []string{"title"}, map[string]int{"title": 100})

	assert.Equal(t, "doc-1", item["id"])
	assert.Equal(t, "a title", item["title"])
	assert.Equal(t, "APP-1", item["app_doc_id"])
	assert.Equal(t, "PUB-1", item["pub_id"])
}

func TestCapByBudget_StopsAtFirstOverflowingItem(t *testing.T) {
	items := []map[string]string{
		{"id": "1", "title": strings.Repeat("x", 50)},
		{"id": "2", "title": strings.Repeat("y", 50)},
		{"id": "3", "title": strings.Repeat("z", 50)},
	}
	accepted, used, truncated := CapByBudget(items, 130)

	assert.True(t, truncated)
	assert.Less(t, len(accepted), len(items))
	assert.Greater(t, used, 0)
}

func TestCapByBudget_AcceptsEverythingWhenBudgetIsAmple(t *testing.T) {
	items := []map[string]string{{"id": "1", "title": "short"}}
	accepted, _, truncated := CapByBudget(items, 10000)

	assert.False(t, truncated)
	assert.Len(t, accepted, 1)
}

func TestFallbackSnippet_DropsTrailingFieldsUntilItFits(t *testing.T) {
	doc := model.Document{
		Title:       strings.Repeat("t", 200),
		Abstract:    strings.Repeat("a", 500),
		Claim:       strings.Repeat("c", 400),
		Description: strings.Repeat("d", 500),
	}

	item, used, ok := FallbackSnippet("doc-1", doc, []string{"title", "abst", "claim", "description"}, 150)
	require.True(t, ok)
	assert.LessOrEqual(t, used, 150)
	assert.Contains(t, item, "title")
}

func TestFallbackSnippet_FailsWhenEvenBareIDDoesNotFit(t *testing.T) {
	doc := model.Document{Title: "x"}
	_, _, ok := FallbackSnippet("a-very-long-document-identifier-that-does-not-fit", doc, []string{"title"}, 5)
	assert.False(t, ok)
}
