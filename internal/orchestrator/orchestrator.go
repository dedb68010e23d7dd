// Package orchestrator wires the lane backends, the Redis-backed store, and
// the fusion engine into the eight operations the MCP tool surface exposes:
// lane_search, multi_lane_search, blend, mutate, peek_snippets,
// get_snippets, get_publication, and provenance, plus representative
// registration.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/patentfusion/rrfusion/internal/backend"
	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/fusion"
	"github.com/patentfusion/rrfusion/internal/ids"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/store"
)

// Config carries the tunable defaults a recipe falls back to when the
// caller doesn't supply an explicit value.
type Config struct {
	RRFK               int
	Weights            map[string]float64
	TopMPerLane        int
	KGrid              []int
	LaneEvalK          int
	LambdaShape        float64
	BetaStruct         float64
	BetaFuse           float64
	SnippetFields      []string
	SnippetBudgetBytes int
	PeekMaxDocs        int
}

// DefaultConfig mirrors the reference implementation's tuning constants.
func DefaultConfig() Config {
	return Config{
		RRFK:               fusion.DefaultRRFK,
		Weights:            map[string]float64{"recall": 1.0, "semantic": 1.0, "code": 0.0, "code_secondary": 0.0},
		TopMPerLane:        200,
		KGrid:              []int{10, 20, 50, 100},
		LaneEvalK:          fusion.MetricsTopK,
		LambdaShape:        fusion.DefaultLambdaShape,
		BetaStruct:         fusion.DefaultBetaStruct,
		BetaFuse:           1.0,
		SnippetFields:      []string{"title", "abst", "claim", "description"},
		SnippetBudgetBytes: 16384,
		PeekMaxDocs:        100,
	}
}

// Orchestrator is the single entrypoint the MCP tool adapter drives.
type Orchestrator struct {
	store    *store.Store
	backends *backend.Registry
	cfg      Config
}

// New constructs an Orchestrator over an already-configured store and lane
// backend registry.
func New(st *store.Store, backends *backend.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{store: st, backends: backends, cfg: cfg}
}

// resolveRecipe fills in any zero-valued recipe fields from the configured
// defaults, so a caller can submit a partial recipe.
func (o *Orchestrator) resolveRecipe(recipe model.Recipe) model.Recipe {
	if recipe.RRFK <= 0 {
		recipe.RRFK = o.cfg.RRFK
	}
	if len(recipe.Weights) == 0 {
		recipe.Weights = o.cfg.Weights
	}
	if recipe.TopMPerLane <= 0 {
		recipe.TopMPerLane = o.cfg.TopMPerLane
	}
	if len(recipe.KGrid) == 0 {
		recipe.KGrid = o.cfg.KGrid
	}
	return recipe
}

// LaneSearch runs a single lane query against its configured backend and
// caches the ranked result as a new lane run.
func (o *Orchestrator) LaneSearch(ctx context.Context, params model.SearchParams) (model.LaneRun, []model.Document, error) {
	lb, ok := o.backends.Get(string(params.Lane))
	if !ok {
		return model.LaneRun{}, nil, ferrors.Validation("no backend configured for lane "+string(params.Lane), nil)
	}

	docs, err := lb.Search(ctx, params)
	if err != nil {
		return model.LaneRun{}, nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	queryText := params.Fulltext
	if queryText == "" {
		queryText = params.Semantic
	}
	run := model.LaneRun{
		RunID:     ids.NewLaneRunID(string(params.Lane)),
		Lane:      params.Lane,
		QueryHash: ids.HashQuery(queryText, filterToMap(params.Filter)),
		Params:    params,
		Size:      len(docs),
		CreatedAt: timeNow(),
	}

	freq := fusion.AggregateCodeFreqs(docCodesFromDocuments(docs), docIDsOf(docs))
	if err := o.store.StoreLaneRun(ctx, run, docs, freq); err != nil {
		return model.LaneRun{}, nil, err
	}
	return run, docs, nil
}

// MultiLaneEntry is a single request within a multi_lane_search batch:
// (alias, tool, lane, params). Tool/lane compatibility (tool=fulltext =>
// lane=fulltext; tool=semantic => lane in {semantic, semantic_alt}) is the
// caller's responsibility; LaneSearch validates the lane itself.
type MultiLaneEntry struct {
	Alias  string
	Tool   string
	Params model.SearchParams
}

// MultiLaneResult is one entry's outcome: either a run handle and the
// documents behind it, or an error, never both.
type MultiLaneResult struct {
	Alias  string
	Tool   string
	Lane   string
	Status string // "success" or "error"
	TookMS int64
	Run    *model.LaneRun
	Docs   []model.Document
	Err    error
}

// MultiLaneSearchResult is the ordered, per-entry outcome of a batch plus
// its aggregate counters.
type MultiLaneSearchResult struct {
	Entries      []MultiLaneResult
	SuccessCount int
	ErrorCount   int
	TookMSTotal  int64
	TraceID      string
}

// MultiLaneSearch runs one lane_search per requested entry, sequentially
// and in request order, to respect upstream rate limits — no internal
// parallelism across lanes in a batch. An error in one entry does not abort
// the rest: the batch result preserves input order and reports per-entry
// success/error status plus aggregate counts.
func (o *Orchestrator) MultiLaneSearch(ctx context.Context, entries []MultiLaneEntry, traceID string) (MultiLaneSearchResult, error) {
	result := MultiLaneSearchResult{
		Entries: make([]MultiLaneResult, len(entries)),
		TraceID: traceID,
	}

	batchStart := timeNow()
	for i, entry := range entries {
		entryStart := timeNow()
		run, docs, err := o.LaneSearch(ctx, entry.Params)
		tookMS := timeNow().Sub(entryStart).Milliseconds()

		r := MultiLaneResult{
			Alias:  entry.Alias,
			Tool:   entry.Tool,
			Lane:   string(entry.Params.Lane),
			TookMS: tookMS,
		}
		if err != nil {
			r.Status = "error"
			r.Err = err
			result.ErrorCount++
		} else {
			r.Status = "success"
			r.Run = &run
			r.Docs = docs
			result.SuccessCount++
		}
		result.Entries[i] = r
	}
	result.TookMSTotal = timeNow().Sub(batchStart).Milliseconds()

	return result, nil
}

func timeNow() time.Time { return time.Now() }

func filterToMap(f model.Filter) map[string]any {
	conditions := make([]map[string]any, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		conditions = append(conditions, map[string]any{
			"logical_op": c.LogicalOp,
			"field":      c.Field,
			"operator":   c.Operator,
			"value":      c.Value,
		})
	}
	return map[string]any{"conditions": conditions}
}

func docIDsOf(docs []model.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.DocID
	}
	return out
}

func docCodesFromDocuments(docs []model.Document) map[string]fusion.DocCodes {
	out := make(map[string]fusion.DocCodes, len(docs))
	for _, d := range docs {
		out[d.DocID] = fusion.DocCodes{IPC: d.IPCCodes, CPC: d.CPCCodes, FI: d.FICodes, FT: d.FTCodes}
	}
	return out
}

