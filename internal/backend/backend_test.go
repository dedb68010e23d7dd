package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentfusion/rrfusion/internal/model"
)

func sampleCorpus() []model.Document {
	return []model.Document{
		{DocID: "JP2020-000001", Title: "battery thermal management", PubID: "JP2020000001"},
		{DocID: "JP2020-000002", Title: "solar cell encapsulation", PubID: "JP2020000002"},
		{DocID: "US2021-000003", Title: "battery pack cooling", PubID: "US2021000003"},
	}
}

func TestLocalStubBackend_SearchIsDeterministicAcrossCalls(t *testing.T) {
	b := NewLocalStubBackend(sampleCorpus())
	ctx := context.Background()

	first, err := b.Search(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	second, err := b.Search(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].DocID, second[i].DocID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestLocalStubBackend_SearchRespectsTopN(t *testing.T) {
	b := NewLocalStubBackend(sampleCorpus())

	docs, err := b.Search(context.Background(), model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery", TopN: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestLocalStubBackend_SearchFiltersByCountry(t *testing.T) {
	b := NewLocalStubBackend(sampleCorpus())

	docs, err := b.Search(context.Background(), model.SearchParams{
		Lane:     model.LaneFulltext,
		Fulltext: "battery",
		Filter: model.Filter{Conditions: []model.FilterCondition{
			{LogicalOp: model.LogicalAnd, Field: model.FieldCountry, Operator: model.OpIn, Value: []string{"US"}},
		}},
	})
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, "US2021-000003", d.DocID)
	}
}

func TestLocalStubBackend_FetchSnippetsReturnsRequestedFieldsOnly(t *testing.T) {
	b := NewLocalStubBackend(sampleCorpus())

	snippets, err := b.FetchSnippets(context.Background(), []string{"JP2020-000001"}, []string{"title"})
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0].Fields, "title")
	assert.NotContains(t, snippets[0].Fields, "abst")
}

func TestLocalStubBackend_FetchPublicationUnknownDocReturnsNil(t *testing.T) {
	b := NewLocalStubBackend(sampleCorpus())

	doc, err := b.FetchPublication(context.Background(), "does-not-exist", "")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRegistry_ClosesSharedBackendOnlyOnce(t *testing.T) {
	shared := &countingCloser{}
	reg := NewRegistry(map[string]LaneBackend{
		"fulltext": shared,
		"semantic": shared,
	})

	require.NoError(t, reg.Close())
	assert.Equal(t, 1, shared.closeCount)
}

type countingCloser struct {
	closeCount int
}

func (c *countingCloser) Search(context.Context, model.SearchParams) ([]model.Document, error) {
	return nil, nil
}
func (c *countingCloser) FetchSnippets(context.Context, []string, []string) ([]model.Snippet, error) {
	return nil, nil
}
func (c *countingCloser) FetchPublication(context.Context, string, string) (*model.Document, error) {
	return nil, nil
}
func (c *countingCloser) Close() error {
	c.closeCount++
	return nil
}
