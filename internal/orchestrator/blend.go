package orchestrator

import (
	"context"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/fusion"
	"github.com/patentfusion/rrfusion/internal/ids"
	"github.com/patentfusion/rrfusion/internal/model"
)

// BlendRequest carries the signals a blend or mutate needs beyond the raw
// lane runs: the target classification profile and facet terms driving
// code-aware and facet-aware scoring, both optional.
type BlendRequest struct {
	SourceRunIDs []string
	Recipe       model.Recipe
	Target       fusion.TargetProfile
	FacetTerms   fusion.FacetTerms
	FacetWeights map[string]float64
	PiWeights    map[string]float64
}

// BlendResult bundles a fusion run with everything computed alongside it.
type BlendResult struct {
	Run        model.FusionRun
	Ranked     []model.Representative
	Metrics    model.QualityMetrics
	Frontier   []model.FrontierPoint
}

// Blend fuses a set of cached lane runs into a new, immutable fusion run.
func (o *Orchestrator) Blend(ctx context.Context, req BlendRequest) (BlendResult, error) {
	if len(req.SourceRunIDs) == 0 {
		return BlendResult{}, ferrors.Validation("blend requires at least one source run", nil)
	}
	run, result, err := o.fuse(ctx, req)
	if err != nil {
		return BlendResult{}, err
	}
	run.RunID = ids.NewFusionRunID()
	run.CreatedAt = timeNow()

	if err := o.store.StoreFusionRun(ctx, run, result.Ranked); err != nil {
		return BlendResult{}, err
	}
	result.Run = run
	return result, nil
}

// Mutate re-blends a fusion run's original source runs with a delta applied
// on top of the parent's recipe, producing a new run id with a parent
// pointer and extended lineage. The parent run itself is never modified.
func (o *Orchestrator) Mutate(ctx context.Context, parentRunID string, delta model.Recipe, rawDelta map[string]any, extras BlendRequest) (BlendResult, error) {
	parentMeta, err := o.store.GetRunMeta(ctx, parentRunID)
	if err != nil {
		return BlendResult{}, err
	}
	if parentMeta == nil {
		return BlendResult{}, ferrors.NotFound(ferrors.ErrCodeRunNotFound, "run "+parentRunID+" not found")
	}
	if parentMeta.RunType != "fusion" {
		return BlendResult{}, ferrors.Precondition(ferrors.ErrCodeWrongRunType, "run "+parentRunID+" is not a fusion run")
	}

	req := extras
	req.SourceRunIDs = parentMeta.SourceRuns
	req.Recipe = mergeMutateRecipe(parentMeta.Recipe, delta, rawDelta)

	run, result, err := o.fuse(ctx, req)
	if err != nil {
		return BlendResult{}, err
	}
	run.RunID = ids.NewFusionRunID()
	run.CreatedAt = timeNow()
	run.ParentRun = parentRunID
	run.Lineage = append(append([]string{}, parentMeta.Lineage...), parentRunID)

	if err := o.store.StoreFusionRun(ctx, run, result.Ranked); err != nil {
		return BlendResult{}, err
	}
	result.Run = run
	return result, nil
}

// mergeMutateRecipe deep-copies the parent's recipe and overlays the
// mutate delta on top of it: weights merge key-by-key, while rrf_k and
// beta_fuse each replace the parent's value outright when the delta sets
// them. The raw delta payload is persisted on the merged recipe so it can be
// reported back via provenance.
func mergeMutateRecipe(parent model.Recipe, delta model.Recipe, rawDelta map[string]any) model.Recipe {
	merged := parent.Clone()
	for k, v := range delta.Weights {
		if merged.Weights == nil {
			merged.Weights = make(map[string]float64, len(delta.Weights))
		}
		merged.Weights[k] = v
	}
	if delta.RRFK > 0 {
		merged.RRFK = delta.RRFK
	}
	if delta.BetaFuse > 0 {
		merged.BetaFuse = delta.BetaFuse
	}
	if delta.TopMPerLane > 0 {
		merged.TopMPerLane = delta.TopMPerLane
	}
	if len(delta.KGrid) > 0 {
		merged.KGrid = append([]int{}, delta.KGrid...)
	}
	merged.Delta = rawDelta
	return merged
}

// fuse performs the shared RRF/code-boost/metrics/frontier computation for
// both Blend and Mutate, returning a run with RunID/CreatedAt/lineage left
// for the caller to fill in.
func (o *Orchestrator) fuse(ctx context.Context, req BlendRequest) (model.FusionRun, BlendResult, error) {
	recipe := o.resolveRecipe(req.Recipe)

	laneDocs := make(map[string][]fusion.RankedDoc, len(req.SourceRunIDs))
	allDocIDs := make(map[string]struct{})

	for _, runID := range req.SourceRunIDs {
		meta, err := o.store.GetRunMeta(ctx, runID)
		if err != nil {
			return model.FusionRun{}, BlendResult{}, err
		}
		if meta == nil {
			return model.FusionRun{}, BlendResult{}, ferrors.NotFound(ferrors.ErrCodeRunNotFound, "source run "+runID+" not found")
		}
		if meta.RunType != "lane" || meta.LaneKey == "" {
			return model.FusionRun{}, BlendResult{}, ferrors.Precondition(ferrors.ErrCodeWrongRunType, "source run "+runID+" is not a lane run")
		}

		scored, err := o.store.ZSlice(ctx, meta.LaneKey, 0, int64(recipe.TopMPerLane-1), true)
		if err != nil {
			return model.FusionRun{}, BlendResult{}, err
		}
		ranked := make([]fusion.RankedDoc, len(scored))
		for i, s := range scored {
			ranked[i] = fusion.RankedDoc{DocID: s.DocID, Score: s.Score}
			allDocIDs[s.DocID] = struct{}{}
		}
		laneDocs[meta.Lane] = ranked
	}

	docIDs := make([]string, 0, len(allDocIDs))
	for id := range allDocIDs {
		docIDs = append(docIDs, id)
	}
	docs, err := o.store.GetDocs(ctx, docIDs)
	if err != nil {
		return model.FusionRun{}, BlendResult{}, err
	}

	docCodes := make(map[string]fusion.DocCodes, len(docs))
	docText := make(map[string]fusion.DocText, len(docs))
	for id, d := range docs {
		docCodes[id] = fusion.DocCodes{IPC: d.IPCCodes, CPC: d.CPCCodes, FI: d.FICodes, FT: d.FTCodes}
		docText[id] = fusion.DocText{Claim: d.Claim, Abst: d.Abstract, Desc: d.Description}
	}

	scores, contributions := fusion.ComputeRRFScores(laneDocs, recipe.RRFK, recipe.Weights)
	fusion.ApplyCodeBoosts(scores, contributions, docCodes, req.Target, recipe.Weights)
	ordered := fusion.SortScores(scores)

	laneRanks := fusion.ComputeLaneRanks(laneDocs)
	piScores := fusion.ComputePiScores(docCodes, docText, req.Target, req.FacetTerms, req.FacetWeights, laneRanks, recipe.Weights, req.PiWeights)

	metrics := fusion.ComputeFusionMetrics(laneDocs, docCodes, ordered, o.cfg.LaneEvalK, o.cfg.LambdaShape, o.cfg.BetaStruct)

	orderedIDs := make([]string, len(ordered))
	for i, r := range ordered {
		orderedIDs[i] = r.DocID
	}
	betaFuse := recipe.BetaFuse
	if betaFuse <= 0 {
		betaFuse = o.cfg.BetaFuse
	}
	frontier := fusion.ComputeFrontier(orderedIDs, recipe.KGrid, piScores, betaFuse)

	representatives := make([]model.Representative, len(ordered))
	for i, r := range ordered {
		lScores := make(map[string]float64, len(laneDocs))
		for lane, laneRanked := range laneDocs {
			for _, d := range laneRanked {
				if d.DocID == r.DocID {
					lScores[lane] = d.Score
					break
				}
			}
		}
		representatives[i] = model.Representative{
			DocID:      r.DocID,
			Rank:       i + 1,
			RRFScore:   r.Score,
			LaneRanks:  laneRanks[r.DocID],
			LaneScores: lScores,
			CodeBoost:  contributions[r.DocID]["code"],
			PiPrime:    piScores[r.DocID],
		}
	}

	run := model.FusionRun{
		RunType:    "fusion",
		SourceRuns: req.SourceRunIDs,
		Recipe:     recipe,
		Size:       len(representatives),
	}

	modelFrontier := make([]model.FrontierPoint, len(frontier))
	for i, f := range frontier {
		modelFrontier[i] = model.FrontierPoint{K: f.K, Precision: f.Precision, Recall: f.Recall, FBeta: f.FBeta}
	}

	return run, BlendResult{
		Ranked: representatives,
		Metrics: model.QualityMetrics{
			LAS:     metrics.LAS,
			CCW:     metrics.CCW,
			SShape:  metrics.SShape,
			FStruct: metrics.FStruct,
			FProxy:  metrics.FProxy,
		},
		Frontier: modelFrontier,
	}, nil
}
