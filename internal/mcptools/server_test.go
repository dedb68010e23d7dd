package mcptools

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentfusion/rrfusion/internal/backend"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/orchestrator"
	"github.com/patentfusion/rrfusion/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.New(rdb, "test-snapshot", 12, 24)

	corpus := []model.Document{
		{DocID: "JP2020-000001", Title: "battery thermal management", Abstract: "cooling system for battery packs", IPCCodes: []string{"H01M10/00"}},
		{DocID: "US2021-000002", Title: "battery pack cooling manifold", Abstract: "cooling manifold for electric vehicle battery pack", IPCCodes: []string{"H01M10/00"}},
	}
	reg := backend.NewRegistry(map[string]backend.LaneBackend{
		"fulltext": backend.NewLocalStubBackend(corpus),
		"semantic": backend.NewLocalStubBackend(corpus),
	})

	orch := orchestrator.New(st, reg, orchestrator.DefaultConfig())
	srv, err := NewServer(orch, []string{"JP", "US"})
	require.NoError(t, err)
	return srv
}

func TestNewServer_RejectsNilOrchestrator(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestHandleLaneSearch_ReturnsRunID(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleLaneSearch(context.Background(), nil, LaneSearchInput{
		Lane:     "fulltext",
		Fulltext: "battery cooling",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "fulltext", out.Lane)
}

func TestHandleLaneSearch_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleLaneSearch(context.Background(), nil, LaneSearchInput{Lane: "fulltext"})
	assert.Error(t, err)
}

func TestHandleMultiLaneSearch_ReportsFailedLanesAndPreservesOrder(t *testing.T) {
	s := newTestServer(t)
	_, out, err := s.handleMultiLaneSearch(context.Background(), nil, MultiLaneSearchInput{
		Queries: []MultiLaneQueryInput{
			{Alias: "ok", Tool: "fulltext", Lane: "fulltext", Fulltext: "battery"},
			{Alias: "bad", Tool: "fulltext", Lane: "unconfigured", Fulltext: "battery"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, "ok", out.Entries[0].Alias)
	assert.Equal(t, "success", out.Entries[0].Status)
	assert.NotEmpty(t, out.Entries[0].RunID)
	assert.Equal(t, "bad", out.Entries[1].Alias)
	assert.Equal(t, "error", out.Entries[1].Status)
	assert.NotEmpty(t, out.Entries[1].Error)
	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, 1, out.ErrorCount)
	assert.NotEmpty(t, out.TraceID)
}

func TestHandleBlend_FusesLaneRuns(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, ft, err := s.handleLaneSearch(ctx, nil, LaneSearchInput{Lane: "fulltext", Fulltext: "battery cooling"})
	require.NoError(t, err)
	_, sem, err := s.handleLaneSearch(ctx, nil, LaneSearchInput{Lane: "semantic", Semantic: "battery cooling"})
	require.NoError(t, err)

	_, out, err := s.handleBlend(ctx, nil, BlendInput{
		SourceRunIDs: []string{ft.RunID, sem.RunID},
		Recipe:       RecipeInput{RRFK: 60, Weights: map[string]float64{"recall": 1.0, "semantic": 1.0}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	require.NotEmpty(t, out.Ranked)
}

func TestHandleBlend_RejectsEmptySources(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleBlend(context.Background(), nil, BlendInput{})
	assert.Error(t, err)
}

func TestHandleProvenance_UnknownRunMapsToNotFound(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleProvenance(context.Background(), nil, ProvenanceInput{RunID: "fusion-doesnotexist"})
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeRunNotFound, mcpErr.Code)
}

func TestHandleGetPublication_UnknownDocMapsToNotFound(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleGetPublication(context.Background(), nil, GetPublicationInput{DocID: "does-not-exist"})
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrCodePublicationMiss, mcpErr.Code)
}

func TestHandleRegisterRepresentatives_ReordersRankedOutput(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, ft, err := s.handleLaneSearch(ctx, nil, LaneSearchInput{Lane: "fulltext", Fulltext: "battery cooling"})
	require.NoError(t, err)
	_, sem, err := s.handleLaneSearch(ctx, nil, LaneSearchInput{Lane: "semantic", Semantic: "battery cooling"})
	require.NoError(t, err)

	_, blended, err := s.handleBlend(ctx, nil, BlendInput{SourceRunIDs: []string{ft.RunID, sem.RunID}})
	require.NoError(t, err)
	require.NotEmpty(t, blended.Ranked)

	last := blended.Ranked[len(blended.Ranked)-1].DocID
	_, out, err := s.handleRegisterRepresentatives(ctx, nil, RegisterRepresentativesInput{
		RunID:  blended.RunID,
		Labels: []RepresentativeLabel{{DocID: last, Label: "A"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Ranked)
	assert.Equal(t, last, out.Ranked[0].DocID)
}
