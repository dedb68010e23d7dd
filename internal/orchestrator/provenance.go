package orchestrator

import (
	"context"
	"time"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/fusion"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/store"
)

// Provenance reconstructs a run's recipe and lineage, for an agent asking
// "how did this run come to exist".
func (o *Orchestrator) Provenance(ctx context.Context, runID string) (model.Provenance, error) {
	meta, err := o.store.GetRunMeta(ctx, runID)
	if err != nil {
		return model.Provenance{}, err
	}
	if meta == nil {
		return model.Provenance{}, ferrors.NotFound(ferrors.ErrCodeRunNotFound, "run "+runID+" not found")
	}

	return model.Provenance{
		RunID:      meta.RunID,
		RunType:    meta.RunType,
		SourceRuns: meta.SourceRuns,
		ParentRun:  meta.ParentRun,
		Lineage:    meta.Lineage,
		Recipe:     meta.Recipe,
		CreatedAt:  time.Unix(meta.CreatedAt, 0).UTC(),
	}, nil
}

var validRepresentativeLabels = map[string]bool{"A": true, "B": true, "C": true}

// RegisterRepresentatives attaches A/B/C priority labels to a fusion run.
// This annotates the run's metadata rather than minting a new run: the
// underlying score-sorted set stays untouched and immutable, only the
// read-time presentation order changes. Callable at most once per fusion
// run; 1-30 entries with unique, non-empty doc ids and labels in {A, B, C}.
func (o *Orchestrator) RegisterRepresentatives(ctx context.Context, runID string, labels []fusion.RepresentativeLabel) error {
	meta, err := o.store.GetRunMeta(ctx, runID)
	if err != nil {
		return err
	}
	if meta == nil {
		return ferrors.NotFound(ferrors.ErrCodeRunNotFound, "run "+runID+" not found")
	}
	if meta.RunType != "fusion" {
		return ferrors.Precondition(ferrors.ErrCodeWrongRunType, "run "+runID+" is not a fusion run")
	}
	if len(meta.Representatives) > 0 {
		return ferrors.Precondition(ferrors.ErrCodeRepresentativesAlreadySet,
			"run "+runID+" already has registered representatives")
	}

	if len(labels) < 1 || len(labels) > 30 {
		return ferrors.Validation("labels must contain between 1 and 30 entries", nil)
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.DocID == "" {
			return ferrors.Validation("labels must have a non-empty doc_id", nil)
		}
		if seen[l.DocID] {
			return ferrors.Validation("labels must have unique doc_ids, duplicate "+l.DocID, nil)
		}
		seen[l.DocID] = true
		if !validRepresentativeLabels[l.Label] {
			return ferrors.Validation("label must be one of A, B, C, got "+l.Label, nil)
		}
	}

	stored := make([]store.RepresentativeLabel, len(labels))
	recipeReps := make([]model.RecipeRepresentative, len(labels))
	for i, l := range labels {
		stored[i] = store.RepresentativeLabel{DocID: l.DocID, Label: l.Label, Reason: l.Reason}
		recipeReps[i] = model.RecipeRepresentative{DocID: l.DocID, Label: l.Label, Reason: l.Reason}
	}
	meta.Representatives = stored
	if meta.Recipe != nil {
		recipe := *meta.Recipe
		recipe.Representatives = recipeReps
		meta.Recipe = &recipe
	}
	return o.store.SetRunMeta(ctx, runID, *meta)
}

// Representatives returns a fusion run's ranked documents, reordered by any
// registered A/B/C priority labels.
func (o *Orchestrator) Representatives(ctx context.Context, runID string) ([]model.Representative, error) {
	meta, err := o.store.GetRunMeta(ctx, runID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ferrors.NotFound(ferrors.ErrCodeRunNotFound, "run "+runID+" not found")
	}
	if meta.RRFKey == "" {
		return nil, ferrors.Precondition(ferrors.ErrCodeMissingZKey, "run "+runID+" has no ranked result set")
	}

	scored, err := o.store.ZRangeAll(ctx, meta.RRFKey, true)
	if err != nil {
		return nil, err
	}

	ranked := make([]fusion.RankedDoc, len(scored))
	for i, s := range scored {
		ranked[i] = fusion.RankedDoc{DocID: s.DocID, Score: s.Score}
	}

	byDoc := make(map[string]store.RepresentativeLabel, len(meta.Representatives))
	for _, l := range meta.Representatives {
		byDoc[l.DocID] = l
	}
	if len(meta.Representatives) > 0 {
		labels := make([]fusion.RepresentativeLabel, len(meta.Representatives))
		for i, l := range meta.Representatives {
			labels[i] = fusion.RepresentativeLabel{DocID: l.DocID, Label: l.Label, Reason: l.Reason}
		}
		ranked = fusion.ApplyRepresentativePriority(ranked, labels)
	}

	out := make([]model.Representative, len(ranked))
	for i, r := range ranked {
		rep := model.Representative{DocID: r.DocID, Rank: i + 1, RRFScore: r.Score}
		if l, ok := byDoc[r.DocID]; ok {
			rep.Label = l.Label
			rep.Reason = l.Reason
		}
		out[i] = rep
	}
	return out, nil
}
