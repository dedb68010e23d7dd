package backend

import (
	"context"
	"crypto/sha1" //nolint:gosec // deterministic scoring only, not security-sensitive
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/model"
)

// StubDocument seeds the deterministic local backend's fixed corpus.
type StubDocument = model.Document

// LocalStubBackend is a deterministic, in-memory LaneBackend used for tests
// and offline development when no upstream API is reachable. It scores a
// fixed corpus by a hash of the query and each doc id, so results are stable
// across runs without depending on any network service.
type LocalStubBackend struct {
	corpus []model.Document
}

var _ LaneBackend = (*LocalStubBackend)(nil)

// NewLocalStubBackend builds a stub backend over a fixed corpus.
func NewLocalStubBackend(corpus []model.Document) *LocalStubBackend {
	return &LocalStubBackend{corpus: corpus}
}

// Search ranks the fixed corpus by a deterministic hash of query+doc_id,
// letting tests exercise multi-lane fusion without a live backend.
func (b *LocalStubBackend) Search(_ context.Context, params model.SearchParams) ([]model.Document, error) {
	query := params.Fulltext
	if query == "" {
		query = params.Semantic
	}

	type scored struct {
		doc   model.Document
		score float64
	}

	results := make([]scored, 0, len(b.corpus))
	for _, doc := range b.corpus {
		if !matchesFilter(doc, params.Filter) {
			continue
		}
		results = append(results, scored{doc: doc, score: deterministicScore(query, doc.DocID)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].doc.DocID < results[j].doc.DocID
	})

	limit := params.TopN
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	out := make([]model.Document, limit)
	for i := 0; i < limit; i++ {
		d := results[i].doc
		d.Score = results[i].score
		out[i] = d
	}
	return out, nil
}

// FetchSnippets returns the requested fields straight from the in-memory
// corpus, with no truncation (the snippet shaper applies budgets later).
func (b *LocalStubBackend) FetchSnippets(_ context.Context, docIDs []string, fields []string) ([]model.Snippet, error) {
	byID := make(map[string]model.Document, len(b.corpus))
	for _, d := range b.corpus {
		byID[d.DocID] = d
	}

	out := make([]model.Snippet, 0, len(docIDs))
	for _, id := range docIDs {
		doc, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, model.Snippet{DocID: id, Fields: fieldsForDoc(doc, fields)})
	}
	return out, nil
}

// FetchPublication returns the full stub record for a doc id. The stub's
// fixed corpus is keyed by app-doc id only, so any other declared id_type
// that doesn't match a known doc is an unresolvable identifier rather than a
// plain miss.
func (b *LocalStubBackend) FetchPublication(_ context.Context, docID string, idType string) (*model.Document, error) {
	for _, d := range b.corpus {
		if d.DocID == docID {
			doc := d
			return &doc, nil
		}
	}
	if idType != "" && idType != "app_doc_id" {
		return nil, ferrors.Integrity(ferrors.ErrCodeUnresolvedIdentifier,
			fmt.Sprintf("could not resolve identifier %q (id_type=%s) via numbers search", docID, idType))
	}
	return nil, nil
}

// Close is a no-op; the stub holds no external resources.
func (b *LocalStubBackend) Close() error { return nil }

func fieldsForDoc(doc model.Document, fields []string) map[string]string {
	all := map[string]string{
		"title": doc.Title,
		"abst":  doc.Abstract,
		"claim": doc.Claim,
		"desc":  doc.Description,
	}
	if len(fields) == 0 {
		return all
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := all[f]; ok {
			out[f] = v
		}
	}
	return out
}

func matchesFilter(doc model.Document, f model.Filter) bool {
	countries := f.Values(model.FieldCountry, model.OpIn)
	if len(countries) > 0 {
		matched := false
		for _, c := range countries {
			if strings.HasPrefix(doc.PubID, c) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func deterministicScore(query, docID string) float64 {
	sum := sha1.Sum([]byte(query + "|" + docID)) //nolint:gosec
	n := binary.BigEndian.Uint32(sum[:4])
	return float64(n) / float64(^uint32(0))
}
