package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
	"github.com/patentfusion/rrfusion/internal/model"
)

const codeFieldCount = 4

var codeFields = [codeFieldCount]string{"ipc_codes", "cpc_codes", "fi_codes", "ft_codes"}

// Store is a typed Redis-backed persistence layer for lane runs, fusion
// runs, cached documents, and the append-only code vocabulary.
type Store struct {
	rdb             redis.UniversalClient
	snapshot        string
	dataTTL         time.Duration
	snippetTTL      time.Duration

	mu            sync.RWMutex
	codeToID      map[string]int64
	idToCode      map[int64]string
}

// New constructs a Store over an already-connected Redis client.
func New(rdb redis.UniversalClient, snapshot string, dataTTLHours, snippetTTLHours int) *Store {
	return &Store{
		rdb:        rdb,
		snapshot:   snapshot,
		dataTTL:    time.Duration(dataTTLHours) * time.Hour,
		snippetTTL: time.Duration(snippetTTLHours) * time.Hour,
		codeToID:   make(map[string]int64),
		idToCode:   make(map[int64]string),
	}
}

// mapCodesToIDs resolves classification codes to their vocabulary ids,
// minting new ids for codes seen for the first time via an atomic counter.
func (s *Store) mapCodesToIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c != "" {
			unique[c] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return map[string]int64{}, nil
	}

	mapping := make(map[string]int64, len(unique))
	var toLookup []string

	s.mu.RLock()
	for code := range unique {
		if id, ok := s.codeToID[code]; ok {
			mapping[code] = id
		} else {
			toLookup = append(toLookup, code)
		}
	}
	s.mu.RUnlock()

	if len(toLookup) == 0 {
		return mapping, nil
	}

	vocabKey := codeVocabKey(s.snapshot)
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(toLookup))
	for i, code := range toLookup {
		cmds[i] = pipe.HGet(ctx, vocabKey, code)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, ferrors.BackendTransport("failed to look up code vocabulary", err)
	}

	var newCodes []string
	s.mu.Lock()
	for i, code := range toLookup {
		val, err := cmds[i].Result()
		if err == nil {
			var id int64
			if _, scanErr := fmt.Sscanf(val, "%d", &id); scanErr == nil {
				mapping[code] = id
				s.codeToID[code] = id
				s.idToCode[id] = code
				continue
			}
		}
		newCodes = append(newCodes, code)
	}
	s.mu.Unlock()

	if len(newCodes) > 0 {
		count := int64(len(newCodes))
		nextID, err := s.rdb.IncrBy(ctx, codeVocabNextKey(s.snapshot), count).Result()
		if err != nil {
			return nil, ferrors.BackendTransport("failed to mint code vocabulary ids", err)
		}
		startID := nextID - count + 1

		writePipe := s.rdb.Pipeline()
		s.mu.Lock()
		for offset, code := range newCodes {
			codeID := startID + int64(offset)
			mapping[code] = codeID
			s.codeToID[code] = codeID
			s.idToCode[codeID] = code
			writePipe.HSet(ctx, vocabKey, code, codeID)
			writePipe.HSet(ctx, codeVocabRevKey(s.snapshot), fmt.Sprintf("%d", codeID), code)
		}
		s.mu.Unlock()
		if _, err := writePipe.Exec(ctx); err != nil {
			return nil, ferrors.BackendTransport("failed to persist code vocabulary", err)
		}
	}

	return mapping, nil
}

// decodeCodeIDs resolves vocabulary ids back to their classification codes.
func (s *Store) decodeCodeIDs(ctx context.Context, codeIDs []int64) ([]string, error) {
	if len(codeIDs) == 0 {
		return nil, nil
	}

	result := make([]string, len(codeIDs))
	var missingIdx []int
	var missingIDs []int64

	s.mu.RLock()
	for i, id := range codeIDs {
		if code, ok := s.idToCode[id]; ok {
			result[i] = code
		} else {
			missingIdx = append(missingIdx, i)
			missingIDs = append(missingIDs, id)
		}
	}
	s.mu.RUnlock()

	if len(missingIDs) == 0 {
		return result, nil
	}

	revKey := codeVocabRevKey(s.snapshot)
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(missingIDs))
	for i, id := range missingIDs {
		cmds[i] = pipe.HGet(ctx, revKey, fmt.Sprintf("%d", id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, ferrors.BackendTransport("failed to resolve code vocabulary", err)
	}

	s.mu.Lock()
	for i, idx := range missingIdx {
		id := missingIDs[i]
		code, err := cmds[i].Result()
		if err != nil || code == "" {
			code = fmt.Sprintf("%d", id)
		}
		result[idx] = code
		s.idToCode[id] = code
		s.codeToID[code] = id
	}
	s.mu.Unlock()

	return result, nil
}

// encodedDoc is the wire shape written to a doc hash: code taxonomies are
// stored as JSON arrays of vocabulary ids rather than raw strings.
type encodedDoc struct {
	doc    model.Document
	codeIDs map[string][]int64
}

func (s *Store) encodeDocsForStorage(ctx context.Context, docs []model.Document) ([]encodedDoc, error) {
	allCodes := make(map[string]struct{})
	for _, d := range docs {
		for _, code := range d.IPCCodes {
			allCodes[code] = struct{}{}
		}
		for _, code := range d.CPCCodes {
			allCodes[code] = struct{}{}
		}
		for _, code := range d.FICodes {
			allCodes[code] = struct{}{}
		}
		for _, code := range d.FTCodes {
			allCodes[code] = struct{}{}
		}
	}

	codeList := make([]string, 0, len(allCodes))
	for c := range allCodes {
		codeList = append(codeList, c)
	}

	mapping, err := s.mapCodesToIDs(ctx, codeList)
	if err != nil {
		return nil, err
	}

	toIDs := func(codes []string) []int64 {
		ids := make([]int64, 0, len(codes))
		for _, c := range codes {
			if id, ok := mapping[c]; ok {
				ids = append(ids, id)
			}
		}
		return ids
	}

	out := make([]encodedDoc, len(docs))
	for i, d := range docs {
		out[i] = encodedDoc{
			doc: d,
			codeIDs: map[string][]int64{
				"ipc_codes": toIDs(d.IPCCodes),
				"cpc_codes": toIDs(d.CPCCodes),
				"fi_codes":  toIDs(d.FICodes),
				"ft_codes":  toIDs(d.FTCodes),
			},
		}
	}
	return out, nil
}

func docPayload(e encodedDoc) map[string]any {
	marshal := func(ids []int64) string {
		raw, _ := json.Marshal(ids)
		return string(raw)
	}
	d := e.doc
	return map[string]any{
		"title":                d.Title,
		"abst":                 d.Abstract,
		"claim":                d.Claim,
		"desc":                 d.Description,
		"app_doc_id":           d.AppDocID,
		"pub_id":               d.PubID,
		"exam_id":              d.ExamID,
		"app_date":             d.AppDate,
		"pub_date":             d.PubDate,
		"apm_applicants":       d.Applicants,
		"cross_en_applicants":  d.ApplicantsEnglish,
		"ipc_codes":            marshal(e.codeIDs["ipc_codes"]),
		"cpc_codes":            marshal(e.codeIDs["cpc_codes"]),
		"fi_codes":             marshal(e.codeIDs["fi_codes"]),
		"ft_codes":             marshal(e.codeIDs["ft_codes"]),
	}
}

// StoreLaneRun persists a lane run's ranked doc_id/score pairs, caches each
// document's fields for later snippet retrieval, stores the taxonomy
// frequency summary, and indexes the run's metadata.
func (s *Store) StoreLaneRun(ctx context.Context, run model.LaneRun, docs []model.Document, freqSummary map[string]map[string]int) error {
	encoded, err := s.encodeDocsForStorage(ctx, docs)
	if err != nil {
		return err
	}

	lKey := laneKey(s.snapshot, run.QueryHash, string(run.Lane))

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, lKey)

	zMembers := make([]redis.Z, 0, len(docs))
	for _, d := range docs {
		zMembers = append(zMembers, redis.Z{Score: d.Score, Member: d.DocID})
	}
	if len(zMembers) > 0 {
		pipe.ZAdd(ctx, lKey, zMembers...)
	}
	pipe.Expire(ctx, lKey, s.dataTTL)

	for _, e := range encoded {
		dKey := docKey(e.doc.DocID)
		pipe.HSet(ctx, dKey, docPayload(e))
		pipe.Expire(ctx, dKey, s.snippetTTL)
	}

	fKey := freqKey(run.RunID, string(run.Lane))
	pipe.HSet(ctx, fKey, map[string]any{
		"ipc": marshalFreq(freqSummary["ipc"]),
		"cpc": marshalFreq(freqSummary["cpc"]),
		"fi":  marshalFreq(freqSummary["fi"]),
		"ft":  marshalFreq(freqSummary["ft"]),
	})
	pipe.Expire(ctx, fKey, s.dataTTL)

	meta := map[string]any{
		"run_id":     run.RunID,
		"lane":       string(run.Lane),
		"query_hash": run.QueryHash,
		"lane_key":   lKey,
		"freq_key":   fKey,
		"run_type":   "lane",
		"size":       len(docs),
		"created_at": run.CreatedAt.Unix(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return ferrors.Internal("failed to encode lane run metadata", err)
	}
	rKey := runKey(run.RunID)
	pipe.HSet(ctx, rKey, map[string]any{"meta": string(metaJSON)})
	pipe.Expire(ctx, rKey, s.dataTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return ferrors.BackendTransport("failed to persist lane run", err)
	}
	return nil
}

func marshalFreq(m map[string]int) string {
	if m == nil {
		m = map[string]int{}
	}
	raw, _ := json.Marshal(m)
	return string(raw)
}

// UpsertDocs refreshes the cached document fields without touching any run.
// Used by GetPublication to cache a document fetched from a backend.
func (s *Store) UpsertDocs(ctx context.Context, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	encoded, err := s.encodeDocsForStorage(ctx, docs)
	if err != nil {
		return err
	}
	pipe := s.rdb.Pipeline()
	for _, e := range encoded {
		dKey := docKey(e.doc.DocID)
		pipe.HSet(ctx, dKey, docPayload(e))
		pipe.Expire(ctx, dKey, s.snippetTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ferrors.BackendTransport("failed to upsert documents", err)
	}
	return nil
}

// StoreFusionRun persists a blend or mutation's ranked scores and metadata.
func (s *Store) StoreFusionRun(ctx context.Context, run model.FusionRun, scores []model.Representative) error {
	key := rrfKey(run.RunID)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(scores) > 0 {
		members := make([]redis.Z, 0, len(scores))
		for _, r := range scores {
			members = append(members, redis.Z{Score: r.RRFScore, Member: r.DocID})
		}
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, s.dataTTL)

	meta := map[string]any{
		"run_id":      run.RunID,
		"run_type":    "fusion",
		"rrf_key":     key,
		"source_runs": run.SourceRuns,
		"recipe":      run.Recipe,
		"size":        len(scores),
		"created_at":  run.CreatedAt.Unix(),
	}
	if run.ParentRun != "" {
		meta["parent_run"] = run.ParentRun
		meta["lineage"] = run.Lineage
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return ferrors.Internal("failed to encode fusion run metadata", err)
	}
	rKey := runKey(run.RunID)
	pipe.HSet(ctx, rKey, map[string]any{"meta": string(metaJSON)})
	pipe.Expire(ctx, rKey, s.dataTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return ferrors.BackendTransport("failed to persist fusion run", err)
	}
	return nil
}

// RepresentativeLabel is a manually-assigned A/B/C priority label attached
// to a run, applied at read time without minting a new run id.
type RepresentativeLabel struct {
	DocID  string `json:"doc_id"`
	Label  string `json:"label"`
	Reason string `json:"reason,omitempty"`
}

// RunMeta is the decoded contents of a run's metadata hash.
type RunMeta struct {
	RunID           string                 `json:"run_id"`
	Lane            string                 `json:"lane,omitempty"`
	QueryHash       string                 `json:"query_hash,omitempty"`
	LaneKey         string                 `json:"lane_key,omitempty"`
	FreqKey         string                 `json:"freq_key,omitempty"`
	RRFKey          string                 `json:"rrf_key,omitempty"`
	RunType         string                 `json:"run_type"`
	SourceRuns      []string               `json:"source_runs,omitempty"`
	Recipe          *model.Recipe          `json:"recipe,omitempty"`
	ParentRun       string                 `json:"parent_run,omitempty"`
	Lineage         []string               `json:"lineage,omitempty"`
	Representatives []RepresentativeLabel  `json:"representatives,omitempty"`
	Size            int                    `json:"size"`
	CreatedAt       int64                  `json:"created_at"`
}

// GetRunMeta fetches a run's metadata, or nil if the run is unknown/expired.
func (s *Store) GetRunMeta(ctx context.Context, runID string) (*RunMeta, error) {
	raw, err := s.rdb.HGet(ctx, runKey(runID), "meta").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.BackendTransport("failed to fetch run metadata", err)
	}
	var meta RunMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, ferrors.Integrity(ferrors.ErrCodeRunMetaCorrupt, fmt.Sprintf("run %q has corrupt metadata", runID))
	}
	return &meta, nil
}

// SetRunMeta overwrites a run's metadata hash, used by RegisterRepresentatives
// to store representative labels on an existing fusion run.
func (s *Store) SetRunMeta(ctx context.Context, runID string, meta RunMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return ferrors.Internal("failed to encode run metadata", err)
	}
	key := runKey(runID)
	if err := s.rdb.HSet(ctx, key, map[string]any{"meta": string(raw)}).Err(); err != nil {
		return ferrors.BackendTransport("failed to store run metadata", err)
	}
	return s.rdb.Expire(ctx, key, s.dataTTL).Err()
}

// GetDocs fetches cached document fields for a set of doc ids, decoding
// classification codes back from the vocabulary. Doc ids with no cache entry
// are omitted from the result.
func (s *Store) GetDocs(ctx context.Context, docIDs []string) (map[string]model.Document, error) {
	out := make(map[string]model.Document, len(docIDs))
	for _, docID := range docIDs {
		payload, err := s.rdb.HGetAll(ctx, docKey(docID)).Result()
		if err != nil {
			return nil, ferrors.BackendTransport("failed to fetch document", err)
		}
		if len(payload) == 0 {
			continue
		}

		doc := model.Document{
			DocID:             docID,
			Title:             payload["title"],
			Abstract:          payload["abst"],
			Claim:             payload["claim"],
			Description:       payload["desc"],
			AppDocID:          payload["app_doc_id"],
			PubID:             payload["pub_id"],
			ExamID:            payload["exam_id"],
			AppDate:           payload["app_date"],
			PubDate:           payload["pub_date"],
			Applicants:        payload["apm_applicants"],
			ApplicantsEnglish: payload["cross_en_applicants"],
		}

		ipc, err := s.decodeCodeField(ctx, payload["ipc_codes"])
		if err != nil {
			return nil, err
		}
		cpc, err := s.decodeCodeField(ctx, payload["cpc_codes"])
		if err != nil {
			return nil, err
		}
		fi, err := s.decodeCodeField(ctx, payload["fi_codes"])
		if err != nil {
			return nil, err
		}
		ft, err := s.decodeCodeField(ctx, payload["ft_codes"])
		if err != nil {
			return nil, err
		}
		doc.IPCCodes, doc.CPCCodes, doc.FICodes, doc.FTCodes = ipc, cpc, fi, ft

		out[docID] = doc
	}
	return out, nil
}

func (s *Store) decodeCodeField(ctx context.Context, raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, ferrors.Integrity(ferrors.ErrCodeRunMetaCorrupt, "cached document has corrupt classification codes")
	}
	return s.decodeCodeIDs(ctx, ids)
}

// GetFreqSummary fetches a lane run's per-taxonomy code frequency summary.
func (s *Store) GetFreqSummary(ctx context.Context, runID, lane string) (map[string]map[string]int, error) {
	data, err := s.rdb.HGetAll(ctx, freqKey(runID, lane)).Result()
	if err != nil {
		return nil, ferrors.BackendTransport("failed to fetch frequency summary", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	summary := make(map[string]map[string]int, 4)
	for _, taxonomy := range []string{"ipc", "cpc", "fi", "ft"} {
		raw, ok := data[taxonomy]
		if !ok || raw == "" {
			summary[taxonomy] = map[string]int{}
			continue
		}
		var counts map[string]int
		if err := json.Unmarshal([]byte(raw), &counts); err != nil {
			return nil, ferrors.Integrity(ferrors.ErrCodeRunMetaCorrupt, fmt.Sprintf("run %q has corrupt %s frequency summary", runID, taxonomy))
		}
		summary[taxonomy] = counts
	}
	return summary, nil
}

// ScoredDoc is a single doc_id/score pair returned from a sorted-set slice.
type ScoredDoc struct {
	DocID string
	Score float64
}

// ZSlice returns a slice of a sorted set (descending by score when desc is
// true, ascending otherwise) between start and stop (inclusive, Redis range semantics; -1 means "to the end").
func (s *Store) ZSlice(ctx context.Context, key string, start, stop int64, desc bool) ([]ScoredDoc, error) {
	var rows []redis.Z
	var err error
	if desc {
		rows, err = s.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	} else {
		rows, err = s.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	}
	if err != nil {
		return nil, ferrors.BackendTransport("failed to slice sorted set", err)
	}
	out := make([]ScoredDoc, len(rows))
	for i, r := range rows {
		out[i] = ScoredDoc{DocID: r.Member.(string), Score: r.Score}
	}
	return out, nil
}

// ZRangeAll returns the full contents of a sorted set, descending by score
// when desc is true and ascending otherwise.
func (s *Store) ZRangeAll(ctx context.Context, key string, desc bool) ([]ScoredDoc, error) {
	return s.ZSlice(ctx, key, 0, -1, desc)
}

// LaneKey exposes the lane sorted-set key for a given query hash and lane.
func (s *Store) LaneKey(queryHash, lane string) string { return laneKey(s.snapshot, queryHash, lane) }

// RRFKey exposes a fusion run's sorted-set key.
func (s *Store) RRFKey(runID string) string { return rrfKey(runID) }

// Snapshot returns the configured snapshot namespace.
func (s *Store) Snapshot() string { return s.snapshot }

// Ping verifies connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
