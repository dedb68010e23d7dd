package mcptools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/patentfusion/rrfusion/internal/fusion"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/orchestrator"
)

func (s *Server) handleLaneSearch(ctx context.Context, _ *mcp.CallToolRequest, input LaneSearchInput) (
	*mcp.CallToolResult, LaneSearchOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.Fulltext == "" && input.Semantic == "" {
		err := NewInvalidParamsError("one of fulltext or semantic is required")
		s.logCall("lane_search", requestID, start, err)
		return nil, LaneSearchOutput{}, err
	}

	run, _, err := s.orch.LaneSearch(ctx, s.toSearchParams(input))
	s.logCall("lane_search", requestID, start, err)
	if err != nil {
		return nil, LaneSearchOutput{}, MapError(err)
	}

	return nil, LaneSearchOutput{RunID: run.RunID, Lane: string(run.Lane), Size: run.Size}, nil
}

func (s *Server) handleMultiLaneSearch(ctx context.Context, _ *mcp.CallToolRequest, input MultiLaneSearchInput) (
	*mcp.CallToolResult, MultiLaneSearchOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if len(input.Queries) == 0 {
		err := NewInvalidParamsError("queries must not be empty")
		s.logCall("multi_lane_search", requestID, start, err)
		return nil, MultiLaneSearchOutput{}, err
	}

	traceID := input.TraceID
	if traceID == "" {
		traceID = requestID
	}

	entries := make([]orchestrator.MultiLaneEntry, len(input.Queries))
	for i, q := range input.Queries {
		entries[i] = orchestrator.MultiLaneEntry{
			Alias: q.Alias,
			Tool:  q.Tool,
			Params: s.toSearchParams(LaneSearchInput{
				Lane: q.Lane, Fulltext: q.Fulltext, Semantic: q.Semantic, Filter: q.Filter, TopN: q.TopN,
			}),
		}
	}

	result, err := s.orch.MultiLaneSearch(ctx, entries, traceID)
	s.logCall("multi_lane_search", requestID, start, err)
	if err != nil {
		return nil, MultiLaneSearchOutput{}, MapError(err)
	}

	out := MultiLaneSearchOutput{
		Entries:      make([]MultiLaneEntryOutput, len(result.Entries)),
		SuccessCount: result.SuccessCount,
		ErrorCount:   result.ErrorCount,
		TookMSTotal:  result.TookMSTotal,
		TraceID:      result.TraceID,
	}
	for i, e := range result.Entries {
		entryOut := MultiLaneEntryOutput{
			Alias:  e.Alias,
			Tool:   e.Tool,
			Lane:   e.Lane,
			Status: e.Status,
			TookMS: e.TookMS,
		}
		if e.Run != nil {
			entryOut.RunID = e.Run.RunID
			entryOut.Size = e.Run.Size
		}
		if e.Err != nil {
			entryOut.Error = e.Err.Error()
		}
		out.Entries[i] = entryOut
	}
	return nil, out, nil
}

func (s *Server) handleBlend(ctx context.Context, _ *mcp.CallToolRequest, input BlendInput) (
	*mcp.CallToolResult, BlendOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if len(input.SourceRunIDs) == 0 {
		err := NewInvalidParamsError("source_run_ids must not be empty")
		s.logCall("blend", requestID, start, err)
		return nil, BlendOutput{}, err
	}

	result, err := s.orch.Blend(ctx, orchestrator.BlendRequest{
		SourceRunIDs: input.SourceRunIDs,
		Recipe:       toModelRecipe(input.Recipe),
		Target:       fusion.TargetProfile(input.Target),
		FacetTerms:   fusion.FacetTerms(input.FacetTerms),
		FacetWeights: input.FacetWeights,
		PiWeights:    input.PiWeights,
	})
	s.logCall("blend", requestID, start, err)
	if err != nil {
		return nil, BlendOutput{}, MapError(err)
	}

	return nil, toBlendOutput(result), nil
}

func (s *Server) handleMutate(ctx context.Context, _ *mcp.CallToolRequest, input MutateInput) (
	*mcp.CallToolResult, BlendOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.ParentRunID == "" {
		err := NewInvalidParamsError("parent_run_id is required")
		s.logCall("mutate", requestID, start, err)
		return nil, BlendOutput{}, err
	}

	result, err := s.orch.Mutate(ctx, input.ParentRunID, toModelRecipe(input.Recipe), recipeInputToDelta(input.Recipe), orchestrator.BlendRequest{
		Target:       fusion.TargetProfile(input.Target),
		FacetTerms:   fusion.FacetTerms(input.FacetTerms),
		FacetWeights: input.FacetWeights,
		PiWeights:    input.PiWeights,
	})
	s.logCall("mutate", requestID, start, err)
	if err != nil {
		return nil, BlendOutput{}, MapError(err)
	}

	return nil, toBlendOutput(result), nil
}

func (s *Server) handlePeekSnippets(ctx context.Context, _ *mcp.CallToolRequest, input PeekSnippetsInput) (
	*mcp.CallToolResult, PeekSnippetsOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.RunID == "" {
		err := NewInvalidParamsError("run_id is required")
		s.logCall("peek_snippets", requestID, start, err)
		return nil, PeekSnippetsOutput{}, err
	}

	topN := input.TopN
	if topN <= 0 {
		topN = 10
	}

	result, err := s.orch.PeekSnippets(ctx, input.RunID, input.Offset, topN, input.Fields, input.BudgetBytes)
	s.logCall("peek_snippets", requestID, start, err)
	if err != nil {
		return nil, PeekSnippetsOutput{}, MapError(err)
	}

	return nil, PeekSnippetsOutput{
		Items:      result.Items,
		UsedBytes:  result.UsedBytes,
		Truncated:  result.Truncated,
		PeekCursor: result.PeekCursor,
		TotalDocs:  result.TotalDocs,
	}, nil
}

func (s *Server) handleGetSnippets(ctx context.Context, _ *mcp.CallToolRequest, input GetSnippetsInput) (
	*mcp.CallToolResult, GetSnippetsOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if len(input.DocIDs) == 0 {
		err := NewInvalidParamsError("doc_ids must not be empty")
		s.logCall("get_snippets", requestID, start, err)
		return nil, GetSnippetsOutput{}, err
	}

	snippets, err := s.orch.GetSnippets(ctx, input.DocIDs, input.Fields)
	s.logCall("get_snippets", requestID, start, err)
	if err != nil {
		return nil, GetSnippetsOutput{}, MapError(err)
	}

	out := GetSnippetsOutput{Snippets: make([]SnippetOutput, len(snippets))}
	for i, sn := range snippets {
		out.Snippets[i] = SnippetOutput{DocID: sn.DocID, Fields: sn.Fields}
	}
	return nil, out, nil
}

func (s *Server) handleGetPublication(ctx context.Context, _ *mcp.CallToolRequest, input GetPublicationInput) (
	*mcp.CallToolResult, GetPublicationOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.DocID == "" {
		err := NewInvalidParamsError("doc_id is required")
		s.logCall("get_publication", requestID, start, err)
		return nil, GetPublicationOutput{}, err
	}

	doc, err := s.orch.GetPublication(ctx, input.DocID, input.IDType)
	s.logCall("get_publication", requestID, start, err)
	if err != nil {
		return nil, GetPublicationOutput{}, MapError(err)
	}

	return nil, GetPublicationOutput{
		DocID:             doc.DocID,
		Title:             doc.Title,
		Abstract:          doc.Abstract,
		Claim:             doc.Claim,
		Description:       doc.Description,
		AppDocID:          doc.AppDocID,
		PubID:             doc.PubID,
		ExamID:            doc.ExamID,
		AppDate:           doc.AppDate,
		PubDate:           doc.PubDate,
		Applicants:        doc.Applicants,
		ApplicantsEnglish: doc.ApplicantsEnglish,
		IPCCodes:          doc.IPCCodes,
		CPCCodes:          doc.CPCCodes,
		FICodes:           doc.FICodes,
		FTCodes:           doc.FTCodes,
	}, nil
}

func (s *Server) handleProvenance(ctx context.Context, _ *mcp.CallToolRequest, input ProvenanceInput) (
	*mcp.CallToolResult, ProvenanceOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.RunID == "" {
		err := NewInvalidParamsError("run_id is required")
		s.logCall("provenance", requestID, start, err)
		return nil, ProvenanceOutput{}, err
	}

	prov, err := s.orch.Provenance(ctx, input.RunID)
	s.logCall("provenance", requestID, start, err)
	if err != nil {
		return nil, ProvenanceOutput{}, MapError(err)
	}

	out := ProvenanceOutput{
		RunID:      prov.RunID,
		RunType:    prov.RunType,
		SourceRuns: prov.SourceRuns,
		ParentRun:  prov.ParentRun,
		Lineage:    prov.Lineage,
		CreatedAt:  prov.CreatedAt.Format(time.RFC3339),
	}
	if prov.Recipe != nil {
		r := toRecipeInput(*prov.Recipe)
		out.Recipe = &r
	}
	return nil, out, nil
}

func (s *Server) handleRegisterRepresentatives(ctx context.Context, _ *mcp.CallToolRequest, input RegisterRepresentativesInput) (
	*mcp.CallToolResult, RegisterRepresentativesOutput, error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if input.RunID == "" || len(input.Labels) == 0 {
		err := NewInvalidParamsError("run_id and labels are required")
		s.logCall("register_representatives", requestID, start, err)
		return nil, RegisterRepresentativesOutput{}, err
	}

	labels := make([]fusion.RepresentativeLabel, len(input.Labels))
	for i, l := range input.Labels {
		labels[i] = fusion.RepresentativeLabel{DocID: l.DocID, Label: l.Label, Reason: l.Reason}
	}

	if err := s.orch.RegisterRepresentatives(ctx, input.RunID, labels); err != nil {
		s.logCall("register_representatives", requestID, start, err)
		return nil, RegisterRepresentativesOutput{}, MapError(err)
	}

	ranked, err := s.orch.Representatives(ctx, input.RunID)
	s.logCall("register_representatives", requestID, start, err)
	if err != nil {
		return nil, RegisterRepresentativesOutput{}, MapError(err)
	}

	out := RegisterRepresentativesOutput{Ranked: make([]RepresentativeOutput, len(ranked))}
	for i, r := range ranked {
		out.Ranked[i] = toRepresentativeOutput(r)
	}
	return nil, out, nil
}

// toSearchParams converts a LaneSearchInput into model.SearchParams,
// appending the server's default country condition when the caller supplied
// none of their own.
func (s *Server) toSearchParams(input LaneSearchInput) model.SearchParams {
	filter := toModelFilter(input.Filter)
	hasCountry := false
	for _, c := range filter.Conditions {
		if c.Field == model.FieldCountry {
			hasCountry = true
		}
	}
	if !hasCountry {
		s.mu.RLock()
		defaults := s.DefaultCountries
		s.mu.RUnlock()
		if len(defaults) > 0 {
			vals := make([]any, len(defaults))
			for i, c := range defaults {
				vals[i] = c
			}
			filter.Conditions = append(filter.Conditions, model.FilterCondition{
				LogicalOp: model.LogicalAnd,
				Field:     model.FieldCountry,
				Operator:  model.OpIn,
				Value:     vals,
			})
		}
	}

	return model.SearchParams{
		Lane:     model.Lane(input.Lane),
		Fulltext: input.Fulltext,
		Semantic: input.Semantic,
		Filter:   filter,
		TopN:     input.TopN,
	}
}

// toModelFilter converts a wire-level FilterInput into model.Filter.
func toModelFilter(f FilterInput) model.Filter {
	conditions := make([]model.FilterCondition, len(f.Conditions))
	for i, c := range f.Conditions {
		conditions[i] = model.FilterCondition{
			LogicalOp: model.LogicalOp(c.LogicalOp),
			Field:     model.FilterField(c.Field),
			Operator:  model.FilterOperator(c.Operator),
			Value:     c.Value,
		}
	}
	return model.Filter{Conditions: conditions}
}

func toModelRecipe(r RecipeInput) model.Recipe {
	return model.Recipe{
		RRFK:        r.RRFK,
		Weights:     r.Weights,
		TopMPerLane: r.TopMPerLane,
		KGrid:       r.KGrid,
		BetaFuse:    r.BetaFuse,
	}
}

// recipeInputToDelta captures the raw mutate delta payload exactly as the
// caller submitted it, for persistence under the merged recipe's delta key.
func recipeInputToDelta(r RecipeInput) map[string]any {
	delta := make(map[string]any)
	if r.RRFK != 0 {
		delta["rrf_k"] = r.RRFK
	}
	if len(r.Weights) > 0 {
		delta["weights"] = r.Weights
	}
	if r.TopMPerLane != 0 {
		delta["top_m_per_lane"] = r.TopMPerLane
	}
	if len(r.KGrid) > 0 {
		delta["k_grid"] = r.KGrid
	}
	if r.BetaFuse != 0 {
		delta["beta_fuse"] = r.BetaFuse
	}
	return delta
}

func toRecipeInput(r model.Recipe) RecipeInput {
	return RecipeInput{
		RRFK:        r.RRFK,
		Weights:     r.Weights,
		TopMPerLane: r.TopMPerLane,
		KGrid:       r.KGrid,
		BetaFuse:    r.BetaFuse,
	}
}

func toRepresentativeOutput(r model.Representative) RepresentativeOutput {
	return RepresentativeOutput{
		DocID:      r.DocID,
		Rank:       r.Rank,
		RRFScore:   r.RRFScore,
		LaneRanks:  r.LaneRanks,
		LaneScores: r.LaneScores,
		CodeBoost:  r.CodeBoost,
		PiPrime:    r.PiPrime,
		Label:      r.Label,
		Reason:     r.Reason,
	}
}

func toBlendOutput(result orchestrator.BlendResult) BlendOutput {
	out := BlendOutput{
		RunID:  result.Run.RunID,
		Ranked: make([]RepresentativeOutput, len(result.Ranked)),
		Metrics: QualityMetricsOutput{
			LAS:     result.Metrics.LAS,
			CCW:     result.Metrics.CCW,
			SShape:  result.Metrics.SShape,
			FStruct: result.Metrics.FStruct,
			FProxy:  result.Metrics.FProxy,
		},
		Frontier: make([]FrontierPointOutput, len(result.Frontier)),
	}
	for i, r := range result.Ranked {
		out.Ranked[i] = toRepresentativeOutput(r)
	}
	for i, f := range result.Frontier {
		out.Frontier[i] = FrontierPointOutput{K: f.K, Precision: f.Precision, Recall: f.Recall, FBeta: f.FBeta}
	}
	return out
}
