package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/model"
)

// codeFields lists the record columns holding classification codes, so the
// response parser knows which fields need the string-array treatment rather
// than plain text.
var codeFields = []string{"ipc_codes", "cpc_codes", "fi_codes", "ft_codes"}

// fieldColumnMap maps a snippet field name to the upstream API's column name.
var fieldColumnMap = map[string]string{
	"title": "title",
	"abst":  "abst",
	"claim": "claim",
	"desc":  "description",
}

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	Name              string // used in circuit-breaker naming and error context
	BaseURL           string
	SearchPath        string
	SnippetsPath      string
	NumbersSearchPath string
	Token             string
	Timeout           time.Duration
}

// HTTPBackend is a LaneBackend over a REST API, used for both the upstream
// primary lane and the internal dense/semantic lane (they speak the same
// protocol against different hosts). A single instance may be registered
// under more than one lane name so they share connection pooling and
// circuit-breaker state.
type HTTPBackend struct {
	cfg     HTTPConfig
	client  *resty.Client
	breaker *ferrors.CircuitBreaker
}

var _ LaneBackend = (*HTTPBackend)(nil)

// NewHTTPBackend builds an HTTP-backed lane client.
func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &HTTPBackend{
		cfg:     cfg,
		client:  client,
		breaker: ferrors.NewCircuitBreaker(cfg.Name, ferrors.WithMaxFailures(5), ferrors.WithResetTimeout(30*time.Second)),
	}
}

type searchRequest struct {
	Query      string            `json:"query,omitempty"`
	Semantic   string            `json:"semantic_query,omitempty"`
	Conditions []map[string]any  `json:"conditions,omitempty"`
	Columns    []string          `json:"columns"`
	Limit      int               `json:"limit,omitempty"`
}

type searchResponseRecord struct {
	DocID             string   `json:"doc_id"`
	Title             string   `json:"title"`
	Abst              string   `json:"abst"`
	Claim             string   `json:"claim"`
	Description       string   `json:"description"`
	AppDocID          string   `json:"app_doc_id"`
	PubID             string   `json:"pub_id"`
	ExamID            string   `json:"exam_id"`
	AppDate           string   `json:"app_date"`
	PubDate           string   `json:"pub_date"`
	Applicants        string   `json:"apm_applicants"`
	ApplicantsEnglish string   `json:"cross_en_applicants"`
	IPCCodes          []string `json:"ipc_codes"`
	CPCCodes          []string `json:"cpc_codes"`
	FICodes           []string `json:"fi_codes"`
	FTCodes           []string `json:"ft_codes"`
	Score             float64  `json:"score"`
}

type searchResponse struct {
	Records []searchResponseRecord `json:"records"`
}

// Search issues a lane query against the configured API. A 404 response is
// treated as an empty result set rather than an error, matching the
// upstream's convention for "no matches".
func (b *HTTPBackend) Search(ctx context.Context, params model.SearchParams) ([]model.Document, error) {
	req := b.buildSearchRequest(params)

	var body searchResponse
	err := b.breaker.Execute(func() error {
		resp, httpErr := b.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&body).
			Post(b.cfg.SearchPath)
		return classifyHTTPError(resp, httpErr)
	})

	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	docs := make([]model.Document, 0, len(body.Records))
	for _, rec := range body.Records {
		docs = append(docs, model.Document{
			DocID:             rec.DocID,
			Title:             rec.Title,
			Abstract:          rec.Abst,
			Claim:             rec.Claim,
			Description:       rec.Description,
			AppDocID:          rec.AppDocID,
			PubID:             rec.PubID,
			ExamID:            rec.ExamID,
			AppDate:           rec.AppDate,
			PubDate:           rec.PubDate,
			Applicants:        rec.Applicants,
			ApplicantsEnglish: rec.ApplicantsEnglish,
			IPCCodes:          rec.IPCCodes,
			CPCCodes:          rec.CPCCodes,
			FICodes:           rec.FICodes,
			FTCodes:           rec.FTCodes,
			Score:             rec.Score,
		})
	}
	return docs, nil
}

func (b *HTTPBackend) buildSearchRequest(params model.SearchParams) searchRequest {
	req := searchRequest{
		Columns: append([]string{"doc_id", "score"}, codeFields...),
		Limit:   params.TopN,
	}
	switch params.Lane {
	case model.LaneFulltext:
		req.Query = params.Fulltext
	default:
		req.Semantic = params.Semantic
	}

	if conditions := buildFilterConditions(params.Filter); len(conditions) > 0 {
		req.Conditions = conditions
	}
	return req
}

// filterFieldColumnMap maps a filter condition's field to the upstream
// API's condition key.
var filterFieldColumnMap = map[model.FilterField]string{
	model.FieldIPC:      "ipc",
	model.FieldFI:       "fi",
	model.FieldCPC:      "cpc",
	model.FieldPubYear:  "pubyear",
	model.FieldAssignee: "assignee",
	model.FieldCountry:  "country",
	model.FieldFT:       "ft",
}

// buildFilterConditions translates the flat filter-condition list into the
// upstream's {key, lop, op, q|q1/q2} condition objects.
func buildFilterConditions(f model.Filter) []map[string]any {
	if len(f.Conditions) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		key, ok := filterFieldColumnMap[c.Field]
		if !ok {
			key = string(c.Field)
		}
		entry := map[string]any{"key": key, "lop": string(c.LogicalOp), "op": string(c.Operator)}
		if c.Operator == model.OpRange {
			if from, to, ok := f.Range(c.Field); ok {
				entry["q1"] = from
				entry["q2"] = to
			}
		} else {
			entry["q"] = c.Value
		}
		out = append(out, entry)
	}
	return out
}

type snippetRequest struct {
	DocIDs  []string `json:"doc_ids"`
	Fields  []string `json:"fields"`
}

type snippetResponseRecord struct {
	DocID  string            `json:"doc_id"`
	Fields map[string]string `json:"fields"`
}

type snippetResponse struct {
	Records []snippetResponseRecord `json:"records"`
}

// FetchSnippets retrieves the requested text fields for a doc id batch.
func (b *HTTPBackend) FetchSnippets(ctx context.Context, docIDs []string, fields []string) ([]model.Snippet, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		if col, ok := fieldColumnMap[f]; ok {
			columns = append(columns, col)
		} else {
			columns = append(columns, f)
		}
	}

	var body snippetResponse
	err := b.breaker.Execute(func() error {
		resp, httpErr := b.client.R().
			SetContext(ctx).
			SetBody(snippetRequest{DocIDs: docIDs, Fields: columns}).
			SetResult(&body).
			Post(b.cfg.SnippetsPath)
		return classifyHTTPError(resp, httpErr)
	})

	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snippets := make([]model.Snippet, 0, len(body.Records))
	for _, rec := range body.Records {
		snippets = append(snippets, model.Snippet{DocID: rec.DocID, Fields: rec.Fields})
	}
	return snippets, nil
}

// FetchPublication retrieves the full bibliographic record for one doc. When
// idType names something other than the internal app-doc id, the identifier
// is first resolved to an app-doc id via the numbers-search endpoint; an
// identifier the numbers search can't resolve fails explicitly rather than
// silently falling through to a fulltext doc_id lookup.
func (b *HTTPBackend) FetchPublication(ctx context.Context, docID string, idType string) (*model.Document, error) {
	resolved := docID
	if idType != "" && idType != "app_doc_id" {
		appDocID, err := b.resolveNumber(ctx, docID, idType)
		if err != nil {
			return nil, err
		}
		resolved = appDocID
	}

	docs, err := b.Search(ctx, model.SearchParams{
		Lane:     model.LaneFulltext,
		Fulltext: fmt.Sprintf("doc_id:%s", resolved),
		TopN:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

type numbersSearchRequest struct {
	ID     string `json:"id"`
	IDType string `json:"id_type"`
}

type numbersSearchResponse struct {
	AppDocID string `json:"app_doc_id"`
}

// resolveNumber maps a publication number of a declared id_type to its
// internal app-doc id via the backend's numbers-search endpoint.
func (b *HTTPBackend) resolveNumber(ctx context.Context, id, idType string) (string, error) {
	var body numbersSearchResponse
	err := b.breaker.Execute(func() error {
		resp, httpErr := b.client.R().
			SetContext(ctx).
			SetBody(numbersSearchRequest{ID: id, IDType: idType}).
			SetResult(&body).
			Post(b.cfg.NumbersSearchPath)
		return classifyHTTPError(resp, httpErr)
	})
	if err != nil || body.AppDocID == "" {
		return "", ferrors.Integrity(ferrors.ErrCodeUnresolvedIdentifier,
			fmt.Sprintf("could not resolve identifier %q (id_type=%s) via numbers search", id, idType))
	}
	return body.AppDocID, nil
}

// Close releases the underlying HTTP transport's idle connections.
func (b *HTTPBackend) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}

func classifyHTTPError(resp *resty.Response, httpErr error) error {
	if httpErr != nil {
		return ferrors.BackendTransport("backend request failed", httpErr)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ferrors.BackendHTTP(resp.StatusCode(), "backend returned 404", nil)
	}
	if resp.IsError() {
		return ferrors.BackendHTTP(resp.StatusCode(), fmt.Sprintf("backend returned %s", resp.Status()), nil)
	}
	return nil
}

func isNotFound(err error) bool {
	fe, ok := err.(*ferrors.FusionError)
	if !ok {
		return false
	}
	return fe.Code == ferrors.ErrCodeBackendHTTP4xx && fe.Details["status"] == "404"
}
