package orchestrator

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentfusion/rrfusion/internal/backend"
	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/fusion"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.New(rdb, "test-snapshot", 12, 24)

	corpus := []model.Document{
		{DocID: "JP2020-000001", Title: "battery thermal management", Abstract: "cooling system for battery packs", IPCCodes: []string{"H01M10/00"}, FICodes: []string{"H01M10/00A"}},
		{DocID: "JP2020-000002", Title: "solar cell encapsulation", Abstract: "protective layer for photovoltaic cells", IPCCodes: []string{"H01L31/00"}},
		{DocID: "US2021-000003", Title: "battery pack cooling manifold", Abstract: "cooling manifold for electric vehicle battery pack", IPCCodes: []string{"H01M10/00"}, FICodes: []string{"H01M10/00B"}},
	}
	reg := backend.NewRegistry(map[string]backend.LaneBackend{
		"fulltext": backend.NewLocalStubBackend(corpus),
		"semantic": backend.NewLocalStubBackend(corpus),
	})

	return New(st, reg, DefaultConfig())
}

func TestLaneSearch_CachesRankedDocsAsANewRun(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	run, docs, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	assert.Equal(t, model.LaneFulltext, run.Lane)
	assert.NotEmpty(t, docs)
	assert.Equal(t, len(docs), run.Size)
}

func TestMultiLaneSearch_RunsAllRequestedLanesInOrder(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	result, err := o.MultiLaneSearch(ctx, []MultiLaneEntry{
		{Alias: "a", Tool: "fulltext", Params: model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"}},
		{Alias: "b", Tool: "semantic", Params: model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"}},
	}, "trace-1")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "a", result.Entries[0].Alias)
	assert.Equal(t, "success", result.Entries[0].Status)
	assert.Equal(t, "b", result.Entries[1].Alias)
	assert.Equal(t, "success", result.Entries[1].Status)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, "trace-1", result.TraceID)
	assert.NotEmpty(t, result.Entries[0].Docs)
}

func TestMultiLaneSearch_UnknownLaneDoesNotBlockOthersAndPreservesOrder(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	result, err := o.MultiLaneSearch(ctx, []MultiLaneEntry{
		{Alias: "ok", Tool: "fulltext", Params: model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery"}},
		{Alias: "bad", Tool: "fulltext", Params: model.SearchParams{Lane: "unconfigured", Fulltext: "battery"}},
	}, "")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "ok", result.Entries[0].Alias)
	assert.Equal(t, "success", result.Entries[0].Status)
	assert.Equal(t, "bad", result.Entries[1].Alias)
	assert.Equal(t, "error", result.Entries[1].Status)
	assert.Error(t, result.Entries[1].Err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
}

func TestBlend_FusesLaneRunsIntoARankedFusionRun(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"})
	require.NoError(t, err)

	result, err := o.Blend(ctx, BlendRequest{
		SourceRunIDs: []string{ftRun.RunID, semRun.RunID},
		Recipe:       model.Recipe{RRFK: 60, Weights: map[string]float64{"recall": 1.0, "semantic": 1.0}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Run.RunID)
	assert.Equal(t, "fusion", result.Run.RunType)
	assert.ElementsMatch(t, []string{ftRun.RunID, semRun.RunID}, result.Run.SourceRuns)
	require.NotEmpty(t, result.Ranked)
	for i := 1; i < len(result.Ranked); i++ {
		assert.GreaterOrEqual(t, result.Ranked[i-1].RRFScore, result.Ranked[i].RRFScore)
	}
}

func TestBlend_RejectsEmptySourceRuns(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Blend(context.Background(), BlendRequest{})
	assert.Error(t, err)
}

func TestMutate_CreatesChildRunWithParentAndLineage(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"})
	require.NoError(t, err)

	parent, err := o.Blend(ctx, BlendRequest{
		SourceRunIDs: []string{ftRun.RunID, semRun.RunID},
		Recipe:       model.Recipe{RRFK: 60, Weights: map[string]float64{"recall": 1.0, "semantic": 1.0}},
	})
	require.NoError(t, err)

	delta := model.Recipe{RRFK: 30, Weights: map[string]float64{"recall": 2.0}}
	rawDelta := map[string]any{"rrf_k": 30, "weights": map[string]float64{"recall": 2.0}}
	child, err := o.Mutate(ctx, parent.Run.RunID, delta, rawDelta, BlendRequest{})
	require.NoError(t, err)

	assert.Equal(t, parent.Run.RunID, child.Run.ParentRun)
	assert.Contains(t, child.Run.Lineage, parent.Run.RunID)
	assert.NotEqual(t, parent.Run.RunID, child.Run.RunID)
	assert.ElementsMatch(t, parent.Run.SourceRuns, child.Run.SourceRuns)

	// rrf_k replaces outright; recall weight replaces, semantic weight merges
	// forward from the parent untouched; the raw delta is persisted.
	assert.Equal(t, 30, child.Run.Recipe.RRFK)
	assert.Equal(t, 2.0, child.Run.Recipe.Weights["recall"])
	assert.Equal(t, 1.0, child.Run.Recipe.Weights["semantic"])
	assert.Equal(t, rawDelta, child.Run.Recipe.Delta)
}

func TestMutate_RejectsNonFusionParent(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery"})
	require.NoError(t, err)

	_, err = o.Mutate(ctx, ftRun.RunID, model.Recipe{}, nil, BlendRequest{})
	assert.Error(t, err)
}

func TestPeekSnippets_ReturnsBudgetCappedItemsForTopDocs(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	run, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)

	result, err := o.PeekSnippets(ctx, run.RunID, 0, 2, []string{"title", "abst"}, 2000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Items), 2)
	assert.Equal(t, run.Size, result.TotalDocs)
	for _, item := range result.Items {
		assert.Contains(t, item, "title")
	}
}

func TestPeekSnippets_OffsetAdvancesCursorUntilExhausted(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	run, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)

	first, err := o.PeekSnippets(ctx, run.RunID, 0, 1, []string{"title"}, 4000)
	require.NoError(t, err)
	require.NotNil(t, first.PeekCursor)
	assert.Equal(t, 1, *first.PeekCursor)

	last, err := o.PeekSnippets(ctx, run.RunID, run.Size-1, 1, []string{"title"}, 4000)
	require.NoError(t, err)
	assert.Nil(t, last.PeekCursor)
}

func TestPeekSnippets_ClampsTopNToConfiguredMax(t *testing.T) {
	o := newTestOrchestrator(t)
	o.cfg.PeekMaxDocs = 1
	ctx := context.Background()

	run, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)

	result, err := o.PeekSnippets(ctx, run.RunID, 0, 10, []string{"title"}, 4000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Items), 1)
}

func TestPeekSnippets_UnknownRunReturnsNotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.PeekSnippets(context.Background(), "fusion-doesnotexist", 0, 5, nil, 0)
	assert.Error(t, err)
}

func TestGetPublication_ReturnsCachedDocWithoutBackendCall(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	_, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)

	doc, err := o.GetPublication(ctx, "JP2020-000001", "")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "battery thermal management", doc.Title)
}

func TestGetPublication_UnknownDocReturnsNotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.GetPublication(context.Background(), "does-not-exist", "")
	assert.Error(t, err)
}

func TestGetPublication_UnresolvableIDTypeReturnsIntegrityError(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.GetPublication(context.Background(), "not-a-real-id", "pub_id")
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryIntegrity, ferrors.GetCategory(err))
}

func TestProvenance_ReportsRecipeAndLineage(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery"})
	require.NoError(t, err)

	result, err := o.Blend(ctx, BlendRequest{SourceRunIDs: []string{ftRun.RunID, semRun.RunID}, Recipe: model.Recipe{}})
	require.NoError(t, err)

	prov, err := o.Provenance(ctx, result.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "fusion", prov.RunType)
	assert.ElementsMatch(t, []string{ftRun.RunID, semRun.RunID}, prov.SourceRuns)
}

func TestRegisterRepresentatives_ReordersWithoutMintingNewRun(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"})
	require.NoError(t, err)

	result, err := o.Blend(ctx, BlendRequest{SourceRunIDs: []string{ftRun.RunID, semRun.RunID}, Recipe: model.Recipe{}})
	require.NoError(t, err)
	require.Len(t, result.Ranked, 3)

	last := result.Ranked[len(result.Ranked)-1].DocID
	err = o.RegisterRepresentatives(ctx, result.Run.RunID, []fusion.RepresentativeLabel{{DocID: last, Label: "A"}})
	require.NoError(t, err)

	reps, err := o.Representatives(ctx, result.Run.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, reps)
	assert.Equal(t, last, reps[0].DocID)
	assert.Equal(t, "A", reps[0].Label)
}

func TestRegisterRepresentatives_RejectsSecondCall(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"})
	require.NoError(t, err)

	result, err := o.Blend(ctx, BlendRequest{SourceRunIDs: []string{ftRun.RunID, semRun.RunID}, Recipe: model.Recipe{}})
	require.NoError(t, err)

	err = o.RegisterRepresentatives(ctx, result.Run.RunID, []fusion.RepresentativeLabel{{DocID: result.Ranked[0].DocID, Label: "A"}})
	require.NoError(t, err)

	err = o.RegisterRepresentatives(ctx, result.Run.RunID, []fusion.RepresentativeLabel{{DocID: result.Ranked[1].DocID, Label: "B"}})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryPrecondition, ferrors.GetCategory(err))
}

func TestRegisterRepresentatives_RejectsInvalidLabelAndCount(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	ftRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneFulltext, Fulltext: "battery cooling"})
	require.NoError(t, err)
	semRun, _, err := o.LaneSearch(ctx, model.SearchParams{Lane: model.LaneSemantic, Semantic: "battery cooling"})
	require.NoError(t, err)

	result, err := o.Blend(ctx, BlendRequest{SourceRunIDs: []string{ftRun.RunID, semRun.RunID}, Recipe: model.Recipe{}})
	require.NoError(t, err)

	err = o.RegisterRepresentatives(ctx, result.Run.RunID, nil)
	assert.Error(t, err)

	err = o.RegisterRepresentatives(ctx, result.Run.RunID, []fusion.RepresentativeLabel{{DocID: result.Ranked[0].DocID, Label: "Z"}})
	assert.Error(t, err)

	err = o.RegisterRepresentatives(ctx, result.Run.RunID, []fusion.RepresentativeLabel{
		{DocID: result.Ranked[0].DocID, Label: "A"},
		{DocID: result.Ranked[0].DocID, Label: "B"},
	})
	assert.Error(t, err)
}
