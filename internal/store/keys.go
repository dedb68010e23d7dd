// Package store persists lane runs, fusion runs, cached documents, and the
// code vocabulary in Redis, mirroring the key layout of the reference
// implementation's storage helpers.
package store

import "fmt"

// laneKey is the sorted-set key holding a lane run's doc_id -> score pairs,
// keyed by the query hash; a repeat search of the same query on the same lane
// overwrites the same key.
func laneKey(snapshot, queryHash, lane string) string {
	return fmt.Sprintf("z:%s:%s:%s", snapshot, queryHash, lane)
}

// rrfKey is the sorted-set key holding a fusion run's doc_id -> score pairs.
func rrfKey(runID string) string {
	return fmt.Sprintf("z:rrf:%s", runID)
}

// docKey is the hash key holding a cached document's fields.
func docKey(docID string) string {
	return fmt.Sprintf("h:doc:%s", docID)
}

// runKey is the hash key holding a run's metadata JSON blob.
func runKey(runID string) string {
	return fmt.Sprintf("h:run:%s", runID)
}

// freqKey is the hash key holding a lane run's per-taxonomy code frequency
// summaries, written by StoreLaneRun and read back by GetFreqSummary.
func freqKey(runID, lane string) string {
	return fmt.Sprintf("h:freq:%s:%s", runID, lane)
}

func codeVocabKey(snapshot string) string {
	return fmt.Sprintf("h:code_vocab:%s", snapshot)
}

func codeVocabRevKey(snapshot string) string {
	return fmt.Sprintf("h:code_vocab_rev:%s", snapshot)
}

func codeVocabNextKey(snapshot string) string {
	return fmt.Sprintf("n:code_vocab_next:%s", snapshot)
}
