package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/model"
	"github.com/patentfusion/rrfusion/internal/snippet"
)

// PeekResult is the budget-capped excerpt set returned by PeekSnippets.
type PeekResult struct {
	Items       []map[string]string
	UsedBytes   int
	Truncated   bool
	PeekCursor  *int
	TotalDocs   int
}

// PeekSnippets returns budget-shaped excerpts for documents
// `[offset, offset+topN)` of a run's ranking (lane or fusion), hydrating any
// cache miss from the run's lane backend(s) before shaping. topN and
// budgetBytes are clamped against the configured peek_max_docs/
// peek_budget_bytes ceilings regardless of what the caller requests.
func (o *Orchestrator) PeekSnippets(ctx context.Context, runID string, offset, topN int, fields []string, budgetBytes int) (PeekResult, error) {
	meta, err := o.store.GetRunMeta(ctx, runID)
	if err != nil {
		return PeekResult{}, err
	}
	if meta == nil {
		return PeekResult{}, ferrors.NotFound(ferrors.ErrCodeRunNotFound, "run "+runID+" not found")
	}

	key := meta.RRFKey
	if key == "" {
		key = meta.LaneKey
	}
	if key == "" {
		return PeekResult{}, ferrors.Precondition(ferrors.ErrCodeMissingZKey, "run "+runID+" has no ranked result set")
	}

	if offset < 0 {
		offset = 0
	}
	if o.cfg.PeekMaxDocs > 0 && topN > o.cfg.PeekMaxDocs {
		topN = o.cfg.PeekMaxDocs
	}
	if budgetBytes <= 0 {
		budgetBytes = o.cfg.SnippetBudgetBytes
	}
	if o.cfg.SnippetBudgetBytes > 0 && budgetBytes > o.cfg.SnippetBudgetBytes {
		budgetBytes = o.cfg.SnippetBudgetBytes
	}

	scored, err := o.store.ZSlice(ctx, key, int64(offset), int64(offset+topN-1), true)
	if err != nil {
		return PeekResult{}, err
	}
	docIDs := make([]string, len(scored))
	for i, s := range scored {
		docIDs[i] = s.DocID
	}

	if len(fields) == 0 {
		fields = o.cfg.SnippetFields
	}

	docs, err := o.hydrateDocs(ctx, docIDs, fields, meta.Lane)
	if err != nil {
		return PeekResult{}, err
	}

	perFieldChars := snippet.CoerceFieldCharLimits(fields, nil, budgetBytes/max1(len(docIDs)))
	items := make([]map[string]string, 0, len(docIDs))
	for _, docID := range docIDs {
		doc, ok := docs[docID]
		if !ok {
			continue
		}
		items = append(items, snippet.BuildItem(docID, doc, fields, perFieldChars))
	}

	accepted, used, truncated := snippet.CapByBudget(items, budgetBytes)

	// If even the very first document didn't fit (CapByBudget accepted
	// nothing from a non-empty input), fall back to progressively shorter
	// field subsets for that one document rather than returning empty.
	if len(accepted) == 0 && len(items) > 0 {
		firstID := docIDs[0]
		if doc, ok := docs[firstID]; ok {
			if item, itemBytes, ok := snippet.FallbackSnippet(firstID, doc, fields, budgetBytes); ok {
				accepted = []map[string]string{item}
				used = itemBytes
				truncated = true
			}
		}
	}

	var cursor *int
	returned := len(accepted)
	if offset+returned < meta.Size {
		next := offset + returned
		cursor = &next
	}

	return PeekResult{
		Items:      accepted,
		UsedBytes:  used,
		Truncated:  truncated,
		PeekCursor: cursor,
		TotalDocs:  meta.Size,
	}, nil
}

// GetSnippets fetches budget-unbounded excerpts for an explicit doc id list,
// hydrating cache misses from whichever configured backend has the doc.
func (o *Orchestrator) GetSnippets(ctx context.Context, docIDs []string, fields []string) ([]model.Snippet, error) {
	if len(fields) == 0 {
		fields = o.cfg.SnippetFields
	}
	docs, err := o.hydrateDocs(ctx, docIDs, fields, "")
	if err != nil {
		return nil, err
	}

	out := make([]model.Snippet, 0, len(docIDs))
	for _, docID := range docIDs {
		doc, ok := docs[docID]
		if !ok {
			continue
		}
		item := snippet.BuildItem(docID, doc, fields, nil)
		delete(item, "id")
		out = append(out, model.Snippet{DocID: docID, Fields: item})
	}
	return out, nil
}

// GetPublication fetches the full bibliographic record for one document,
// hydrating from a lane backend if the document isn't already cached. idType
// names the identifier namespace docID belongs to; a non-default idType that
// no backend can resolve surfaces as an integrity error rather than a plain
// not-found, since the identifier itself could not be resolved to a doc.
func (o *Orchestrator) GetPublication(ctx context.Context, docID string, idType string) (*model.Document, error) {
	if idType == "" || idType == "app_doc_id" {
		cached, err := o.store.GetDocs(ctx, []string{docID})
		if err != nil {
			return nil, err
		}
		if doc, ok := cached[docID]; ok {
			return &doc, nil
		}
	}

	var lastErr error
	for _, lb := range o.backends.All() {
		doc, err := lb.FetchPublication(ctx, docID, idType)
		if err != nil {
			if ferrors.GetCategory(err) == ferrors.CategoryIntegrity {
				lastErr = err
			}
			continue
		}
		if doc != nil {
			if upsertErr := o.store.UpsertDocs(ctx, []model.Document{*doc}); upsertErr != nil {
				return nil, upsertErr
			}
			return doc, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ferrors.NotFound(ferrors.ErrCodePublicationNotFound, "publication "+docID+" not found")
}

// hydrateDocs fetches docIDs from cache, then fills any gaps from the named
// lane's backend (if given) and, for ids still missing, from every configured
// backend concurrently. Documents filled from a backend are returned only;
// they are not written back into the cache.
func (o *Orchestrator) hydrateDocs(ctx context.Context, docIDs []string, fields []string, lane string) (map[string]model.Document, error) {
	docs, err := o.store.GetDocs(ctx, docIDs)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range docIDs {
		if _, ok := docs[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return docs, nil
	}

	backendFields := toBackendFieldNames(fields)

	if lane != "" {
		if lb, ok := o.backends.Get(lane); ok {
			if snippets, err := lb.FetchSnippets(ctx, missing, backendFields); err == nil {
				applySnippets(docs, snippets)
				missing = stillMissing(docs, missing)
			}
		}
	}

	if len(missing) == 0 {
		return docs, nil
	}

	// Each configured backend is queried independently for the same
	// still-missing set; results are merged under a mutex, and a non-empty
	// field from a later backend replaces the same field from an earlier one.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, lb := range o.backends.All() {
		lb := lb
		g.Go(func() error {
			snippets, err := lb.FetchSnippets(gctx, missing, backendFields)
			if err != nil {
				return nil
			}
			mu.Lock()
			applySnippets(docs, snippets)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return docs, nil
}

// toBackendFieldNames translates snippet field names ("description") to the
// backend wire vocabulary ("desc"); every other field name is shared.
func toBackendFieldNames(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if f == "description" {
			out[i] = "desc"
			continue
		}
		out[i] = f
	}
	return out
}

func applySnippets(docs map[string]model.Document, snippets []model.Snippet) {
	for _, s := range snippets {
		doc := docs[s.DocID]
		doc.DocID = s.DocID
		doc.Title = firstNonEmpty(s.Fields["title"], doc.Title)
		doc.Abstract = firstNonEmpty(s.Fields["abst"], doc.Abstract)
		doc.Claim = firstNonEmpty(s.Fields["claim"], doc.Claim)
		doc.Description = firstNonEmpty(s.Fields["desc"], doc.Description)
		docs[s.DocID] = doc
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func stillMissing(docs map[string]model.Document, ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := docs[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
