package mcptools

// FilterConditionInput mirrors model.FilterCondition for the MCP wire schema:
// one clause of a flat conjunction, no nested groups.
type FilterConditionInput struct {
	LogicalOp string `json:"logical_op" jsonschema:"and, or, or not"`
	Field     string `json:"field" jsonschema:"ipc, fi, cpc, pubyear, assignee, country, or ft"`
	Operator  string `json:"operator" jsonschema:"in, range, eq, or neq"`
	Value     any    `json:"value" jsonschema:"scalar value for eq/neq/in, or a two-element [from, to] for range"`
}

// FilterInput mirrors model.Filter for the MCP wire schema: a flat list of
// conditions. If no condition on field=country is present, the server
// appends a default restricting results to Japan.
type FilterInput struct {
	Conditions []FilterConditionInput `json:"conditions,omitempty" jsonschema:"flat conjunction of filter conditions"`
}

// LaneSearchInput defines the input schema for the lane_search tool.
type LaneSearchInput struct {
	Lane     string      `json:"lane" jsonschema:"retrieval lane: fulltext, semantic, or semantic_alt"`
	Fulltext string      `json:"fulltext,omitempty" jsonschema:"boolean/keyword query, required for the fulltext lane"`
	Semantic string      `json:"semantic,omitempty" jsonschema:"natural-language query, required for semantic lanes"`
	Filter   FilterInput `json:"filter,omitempty" jsonschema:"optional result filters"`
	TopN     int         `json:"top_n,omitempty" jsonschema:"number of results to retrieve, default 200"`
}

// LaneSearchOutput defines the output schema for the lane_search tool.
type LaneSearchOutput struct {
	RunID string `json:"run_id" jsonschema:"id of the cached lane run, usable as a blend source"`
	Lane  string `json:"lane" jsonschema:"lane the run was executed against"`
	Size  int    `json:"size" jsonschema:"number of documents cached in this run"`
}

// MultiLaneQueryInput is a single entry of a multi_lane_search batch:
// (alias, tool, lane params). Alias identifies the entry in the response;
// tool records which capability (fulltext/semantic) the caller intended.
type MultiLaneQueryInput struct {
	Alias    string      `json:"alias" jsonschema:"caller-chosen label for this entry, echoed back in the result"`
	Tool     string      `json:"tool" jsonschema:"fulltext or semantic"`
	Lane     string      `json:"lane" jsonschema:"retrieval lane: fulltext, semantic, or semantic_alt"`
	Fulltext string      `json:"fulltext,omitempty" jsonschema:"boolean/keyword query, required for the fulltext lane"`
	Semantic string      `json:"semantic,omitempty" jsonschema:"natural-language query, required for semantic lanes"`
	Filter   FilterInput `json:"filter,omitempty" jsonschema:"optional result filters"`
	TopN     int         `json:"top_n,omitempty" jsonschema:"number of results to retrieve, default 200"`
}

// MultiLaneSearchInput defines the input schema for the multi_lane_search
// tool. Entries execute sequentially, in order, to respect upstream rate
// limits; no internal parallelism across lanes in a batch.
type MultiLaneSearchInput struct {
	Queries []MultiLaneQueryInput `json:"queries" jsonschema:"one entry per lane query, executed sequentially in order"`
	TraceID string                `json:"trace_id,omitempty" jsonschema:"caller-supplied trace id; generated if omitted"`
}

// MultiLaneEntryOutput is one entry's outcome within a multi_lane_search
// batch result.
type MultiLaneEntryOutput struct {
	Alias  string `json:"alias"`
	Tool   string `json:"tool"`
	Lane   string `json:"lane"`
	Status string `json:"status" jsonschema:"success or error"`
	TookMS int64  `json:"took_ms"`
	RunID  string `json:"run_id,omitempty" jsonschema:"id of the cached lane run, present on success"`
	Size   int    `json:"size,omitempty" jsonschema:"number of documents cached in this run, present on success"`
	Error  string `json:"error,omitempty" jsonschema:"failure message, present on error"`
}

// MultiLaneSearchOutput defines the output schema for the multi_lane_search
// tool: an ordered, per-entry result list plus aggregate counters. Errors
// from one entry never abort the batch.
type MultiLaneSearchOutput struct {
	Entries      []MultiLaneEntryOutput `json:"entries" jsonschema:"one outcome per requested entry, in request order"`
	SuccessCount int                    `json:"success_count"`
	ErrorCount   int                    `json:"error_count"`
	TookMSTotal  int64                  `json:"took_ms_total"`
	TraceID      string                 `json:"trace_id"`
}

// RecipeInput defines the fusion parameters a blend or mutate accepts. For
// mutate, any field left zero falls back to the parent's recipe; weights
// merge key-by-key onto the parent's weights, while rrf_k and beta_fuse each
// replace the parent's value outright.
type RecipeInput struct {
	RRFK        int                `json:"rrf_k,omitempty" jsonschema:"RRF rank-discount constant, default 60"`
	Weights     map[string]float64 `json:"weights,omitempty" jsonschema:"per-lane weight overrides, plus optional code/code_secondary boost weights"`
	TopMPerLane int                `json:"top_m_per_lane,omitempty" jsonschema:"max docs pulled from each source run, default 200"`
	KGrid       []int              `json:"k_grid,omitempty" jsonschema:"cutoffs to evaluate the precision/recall frontier at"`
	BetaFuse    float64            `json:"beta_fuse,omitempty" jsonschema:"frontier F-beta weighting, default 1.0"`
}

// TargetProfileInput is a taxonomy (ipc/cpc/fi/ft) to code-to-weight map,
// used to bias fusion toward a target classification profile.
type TargetProfileInput map[string]map[string]float64

// BlendInput defines the input schema for the blend tool.
type BlendInput struct {
	SourceRunIDs []string            `json:"source_run_ids" jsonschema:"lane run ids to fuse"`
	Recipe       RecipeInput         `json:"recipe,omitempty" jsonschema:"fusion parameters, defaulted where omitted"`
	Target       TargetProfileInput  `json:"target,omitempty" jsonschema:"classification profile for code-aware boosts"`
	FacetTerms   map[string][]string `json:"facet_terms,omitempty" jsonschema:"component label to facet terms, for facet-aware scoring"`
	FacetWeights map[string]float64  `json:"facet_weights,omitempty" jsonschema:"per-field weight for facet term matches"`
	PiWeights    map[string]float64  `json:"pi_weights,omitempty" jsonschema:"weights combining code/facet/lane-consistency into pi-prime"`
}

// BlendOutput defines the output schema for the blend tool.
type BlendOutput struct {
	RunID    string                   `json:"run_id" jsonschema:"id of the new fusion run"`
	Ranked   []RepresentativeOutput   `json:"ranked" jsonschema:"fused, ranked documents"`
	Metrics  QualityMetricsOutput     `json:"metrics" jsonschema:"no-ground-truth fusion quality diagnostics"`
	Frontier []FrontierPointOutput    `json:"frontier" jsonschema:"precision/recall/f-beta at each k_grid cutoff"`
}

// RepresentativeOutput is a single ranked entry in a fusion result.
type RepresentativeOutput struct {
	DocID      string             `json:"doc_id"`
	Rank       int                `json:"rank"`
	RRFScore   float64            `json:"rrf_score"`
	LaneRanks  map[string]int     `json:"lane_ranks,omitempty"`
	LaneScores map[string]float64 `json:"lane_scores,omitempty"`
	CodeBoost  float64            `json:"code_boost"`
	PiPrime    float64            `json:"pi_prime"`
	Label      string             `json:"label,omitempty" jsonschema:"registered A/B/C priority label, if any"`
	Reason     string             `json:"reason,omitempty" jsonschema:"reason given for the priority label, if any"`
}

// QualityMetricsOutput reports the fusion-quality diagnostics for a run.
type QualityMetricsOutput struct {
	LAS     float64 `json:"las" jsonschema:"lane agreement score, pairwise Jaccard over top-K doc sets"`
	CCW     float64 `json:"ccw" jsonschema:"code concentration weight, 1 minus normalized entropy of top docs' codes"`
	SShape  float64 `json:"s_shape" jsonschema:"ratio of top-3 to top-50 score mass"`
	FStruct float64 `json:"f_struct" jsonschema:"harmonic combination of LAS and CCW"`
	FProxy  float64 `json:"f_proxy" jsonschema:"f_struct penalized by s_shape"`
}

// FrontierPointOutput is a single precision/recall/f-beta measurement.
type FrontierPointOutput struct {
	K         int     `json:"k"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	FBeta     float64 `json:"f_beta"`
}

// MutateInput defines the input schema for the mutate tool.
type MutateInput struct {
	ParentRunID  string              `json:"parent_run_id" jsonschema:"fusion run to mutate"`
	Recipe       RecipeInput         `json:"recipe" jsonschema:"new fusion parameters; any field left zero falls back to the parent's recipe"`
	Target       TargetProfileInput  `json:"target,omitempty"`
	FacetTerms   map[string][]string `json:"facet_terms,omitempty"`
	FacetWeights map[string]float64  `json:"facet_weights,omitempty"`
	PiWeights    map[string]float64  `json:"pi_weights,omitempty"`
}

// PeekSnippetsInput defines the input schema for the peek_snippets tool.
type PeekSnippetsInput struct {
	RunID       string   `json:"run_id" jsonschema:"lane or fusion run to peek into"`
	Offset      int      `json:"offset,omitempty" jsonschema:"rank offset to start from, default 0"`
	TopN        int      `json:"top_n,omitempty" jsonschema:"number of documents to excerpt starting at offset, default 10"`
	Fields      []string `json:"fields,omitempty" jsonschema:"text fields to excerpt: title, abst, claim, description"`
	BudgetBytes int      `json:"budget_bytes,omitempty" jsonschema:"total byte budget for the excerpt batch"`
}

// PeekSnippetsOutput defines the output schema for the peek_snippets tool.
type PeekSnippetsOutput struct {
	Items      []map[string]string `json:"items" jsonschema:"one budget-shaped excerpt per document"`
	UsedBytes  int                 `json:"used_bytes"`
	Truncated  bool                `json:"truncated" jsonschema:"true if the budget forced dropping fields or documents"`
	PeekCursor *int                `json:"peek_cursor,omitempty" jsonschema:"offset to pass next to continue paging; absent when the ranking is exhausted"`
	TotalDocs  int                 `json:"total_docs" jsonschema:"total documents in the run's ranking"`
}

// GetSnippetsInput defines the input schema for the get_snippets tool.
type GetSnippetsInput struct {
	DocIDs []string `json:"doc_ids" jsonschema:"explicit document ids to excerpt"`
	Fields []string `json:"fields,omitempty" jsonschema:"text fields to excerpt: title, abst, claim, description"`
}

// GetSnippetsOutput defines the output schema for the get_snippets tool.
type GetSnippetsOutput struct {
	Snippets []SnippetOutput `json:"snippets"`
}

// SnippetOutput is a single document's excerpted fields.
type SnippetOutput struct {
	DocID  string            `json:"doc_id"`
	Fields map[string]string `json:"fields"`
}

// GetPublicationInput defines the input schema for the get_publication tool.
type GetPublicationInput struct {
	DocID  string `json:"doc_id" jsonschema:"document id of the full bibliographic record to fetch"`
	IDType string `json:"id_type,omitempty" jsonschema:"identifier namespace doc_id belongs to: app_doc_id (default), pub_id, exam_id, etc; non-default types are resolved via the backend's numbers search"`
}

// GetPublicationOutput defines the output schema for the get_publication tool.
type GetPublicationOutput struct {
	DocID             string   `json:"doc_id"`
	Title             string   `json:"title,omitempty"`
	Abstract          string   `json:"abst,omitempty"`
	Claim             string   `json:"claim,omitempty"`
	Description       string   `json:"desc,omitempty"`
	AppDocID          string   `json:"app_doc_id,omitempty"`
	PubID             string   `json:"pub_id,omitempty"`
	ExamID            string   `json:"exam_id,omitempty"`
	AppDate           string   `json:"app_date,omitempty"`
	PubDate           string   `json:"pub_date,omitempty"`
	Applicants        string   `json:"apm_applicants,omitempty"`
	ApplicantsEnglish string   `json:"cross_en_applicants,omitempty"`
	IPCCodes          []string `json:"ipc_codes,omitempty"`
	CPCCodes          []string `json:"cpc_codes,omitempty"`
	FICodes           []string `json:"fi_codes,omitempty"`
	FTCodes           []string `json:"ft_codes,omitempty"`
}

// ProvenanceInput defines the input schema for the provenance tool.
type ProvenanceInput struct {
	RunID string `json:"run_id" jsonschema:"run to report the recipe and lineage of"`
}

// ProvenanceOutput defines the output schema for the provenance tool.
type ProvenanceOutput struct {
	RunID      string       `json:"run_id"`
	RunType    string       `json:"run_type"`
	SourceRuns []string     `json:"source_runs,omitempty"`
	ParentRun  string       `json:"parent_run,omitempty"`
	Lineage    []string     `json:"lineage,omitempty"`
	Recipe     *RecipeInput `json:"recipe,omitempty"`
	CreatedAt  string       `json:"created_at" jsonschema:"RFC3339 timestamp the run was created at"`
}

// RegisterRepresentativesInput defines the input schema for the
// register_representatives tool.
type RegisterRepresentativesInput struct {
	RunID  string              `json:"run_id" jsonschema:"fusion run to annotate"`
	Labels []RepresentativeLabel `json:"labels" jsonschema:"doc id to A/B/C priority label"`
}

// RepresentativeLabel pairs a document with its priority label.
type RepresentativeLabel struct {
	DocID  string `json:"doc_id"`
	Label  string `json:"label" jsonschema:"priority label: A, B, or C"`
	Reason string `json:"reason,omitempty" jsonschema:"optional rationale for the priority label"`
}

// RegisterRepresentativesOutput defines the output schema for the
// register_representatives tool.
type RegisterRepresentativesOutput struct {
	Ranked []RepresentativeOutput `json:"ranked" jsonschema:"the run's documents, reordered by priority label"`
}
