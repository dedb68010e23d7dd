// Package fusion implements reciprocal-rank fusion across retrieval lanes,
// code-aware boosting, the precision/recall/Fβ frontier, and the
// no-ground-truth fusion-quality diagnostics (LAS, CCW, S_shape, Fproxy).
package fusion

import (
	"math"
	"sort"
	"strings"

	"github.com/patentfusion/rrfusion/internal/ids"
)

// DefaultRRFK is the standard RRF smoothing constant.
const DefaultRRFK = 60

// Metric constants mirroring the reference implementation's tuning knobs.
const (
	MetricsTopK        = 50
	SShapeTopK         = 50
	SShapePeak         = 3
	DefaultLambdaShape = 0.5
	DefaultBetaStruct  = 1.0
)

// RankedDoc is a single doc_id/score pair in a lane's ranked output,
// 0-indexed in slice position (rank = index+1).
type RankedDoc struct {
	DocID string
	Score float64
}

// DocCodes holds a document's classification codes per taxonomy, keyed by
// "ipc", "cpc", "fi", "ft", plus the derived "fi_norm" subgroup list.
type DocCodes struct {
	IPC    []string
	CPC    []string
	FI     []string
	FT     []string
	FINorm []string
}

// TargetProfile is the desired-code weighting used for code-aware boosts:
// taxonomy -> code -> weight. The "fi" entry is keyed by raw (un-normalized)
// FI codes; compute derives both a subgroup-normalized primary profile and
// a raw secondary profile from it.
type TargetProfile map[string]map[string]float64

// FacetTerms maps a component label (A/B/C) to the terms that count as
// coverage for it.
type FacetTerms map[string][]string

// deriveFINorm fills in FINorm from FI codes when the caller hasn't
// supplied a precomputed normalized list.
func (c DocCodes) deriveFINorm() []string {
	if len(c.FINorm) > 0 {
		return c.FINorm
	}
	seen := make(map[string]bool, len(c.FI))
	out := make([]string, 0, len(c.FI))
	for _, code := range c.FI {
		if code == "" {
			continue
		}
		subgroup := ids.NormalizeFISubgroup(code)
		if subgroup != "" && !seen[subgroup] {
			seen[subgroup] = true
			out = append(out, subgroup)
		}
	}
	return out
}

func buildFIProfiles(fiProfile map[string]float64) (primary, secondary map[string]float64) {
	primary = map[string]float64{}
	secondary = map[string]float64{}
	for code, weight := range fiProfile {
		if weight <= 0 {
			continue
		}
		subgroup := ids.NormalizeFISubgroup(code)
		if subgroup != "" {
			primary[subgroup] += weight
		}
		secondary[code] += weight
	}
	return primary, secondary
}

// Contribution breaks down how much of a document's total score came from
// each signal, for provenance/debugging.
type Contribution map[string]float64

// ComputeRRFScores combines each lane's ranked doc list into a single
// doc_id -> score map via RRF, and records each lane's contribution.
//
// Lane names other than "fulltext" are treated as semantic-family lanes for
// weight lookup, mirroring the reference's two-bucket ("recall"/"semantic")
// weight scheme; pass an explicit per-lane weight key in weights to
// override it for any lane.
func ComputeRRFScores(lanes map[string][]RankedDoc, rrfK int, weights map[string]float64) (map[string]float64, map[string]Contribution) {
	scores := make(map[string]float64)
	contributions := make(map[string]Contribution)

	for lane, docs := range lanes {
		weight := laneWeight(lane, weights)
		bucket := contributionBucket(lane)
		for i, d := range docs {
			rank := i + 1
			score := weight / float64(rrfK+rank)
			scores[d.DocID] += score
			if contributions[d.DocID] == nil {
				contributions[d.DocID] = Contribution{}
			}
			contributions[d.DocID][bucket] += score
		}
	}
	return scores, contributions
}

func laneWeight(lane string, weights map[string]float64) float64 {
	if w, ok := weights[lane]; ok {
		return w
	}
	if lane == "fulltext" {
		if w, ok := weights["recall"]; ok {
			return w
		}
	} else if w, ok := weights["semantic"]; ok {
		return w
	}
	return 1.0
}

func contributionBucket(lane string) string {
	if lane == "fulltext" {
		return "recall"
	}
	return "semantic"
}

// ApplyCodeBoosts adds code-aware boosts on top of RRF scores: a primary
// boost from subgroup-normalized FI plus exact IPC/CPC/FT matches against
// the target profile, and a secondary boost from exact (un-normalized) FI
// matches. Weight keys "code" and "code_secondary" control each boost's
// strength; the function is a no-op when both are zero or there's no
// target profile.
func ApplyCodeBoosts(scores map[string]float64, contributions map[string]Contribution, docCodes map[string]DocCodes, target TargetProfile, weights map[string]float64) {
	primaryWeight := weights["code"]
	secondaryWeight := weights["code_secondary"]
	if len(target) == 0 || (primaryWeight <= 0 && secondaryWeight <= 0) {
		return
	}

	fiPrimary, fiSecondary := buildFIProfiles(target["fi"])

	for docID, codes := range docCodes {
		var primaryBoost, secondaryBoost float64

		for _, taxonomy := range []string{"ipc", "cpc", "ft"} {
			desired := target[taxonomy]
			for _, code := range codesForTaxonomy(codes, taxonomy) {
				primaryBoost += desired[code]
			}
		}
		for _, normCode := range codes.deriveFINorm() {
			primaryBoost += fiPrimary[normCode]
		}
		for _, code := range codes.FI {
			secondaryBoost += fiSecondary[code]
		}

		addedPrimary := primaryBoost * primaryWeight
		addedSecondary := secondaryBoost * secondaryWeight
		boost := addedPrimary + addedSecondary
		if boost <= 0 {
			continue
		}

		scores[docID] += boost
		if contributions[docID] == nil {
			contributions[docID] = Contribution{}
		}
		contributions[docID]["code"] += boost
		if addedPrimary != 0 {
			contributions[docID]["code_primary"] += addedPrimary
		}
		if addedSecondary != 0 {
			contributions[docID]["code_secondary"] += addedSecondary
		}
	}
}

func codesForTaxonomy(c DocCodes, taxonomy string) []string {
	switch taxonomy {
	case "ipc":
		return c.IPC
	case "cpc":
		return c.CPC
	case "ft":
		return c.FT
	default:
		return nil
	}
}

// SortScores orders a doc_id->score map into a descending slice, breaking
// ties lexicographically by doc id for determinism.
func SortScores(scores map[string]float64) []RankedDoc {
	out := make([]RankedDoc, 0, len(scores))
	for docID, score := range scores {
		out = append(out, RankedDoc{DocID: docID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// ComputeCodeScores returns a normalized (0-1) code-overlap score per
// document against the target profile. With no target profile every
// document scores 1.0 (code is not a discriminating signal).
func ComputeCodeScores(docCodes map[string]DocCodes, target TargetProfile) map[string]float64 {
	if len(target) == 0 {
		return allOnes(docCodes)
	}

	fiPrimary, _ := buildFIProfiles(target["fi"])
	raw := make(map[string]float64, len(docCodes))
	maxScore := 0.0
	for docID, codes := range docCodes {
		score := 0.0
		for _, taxonomy := range []string{"ipc", "cpc", "ft"} {
			desired := target[taxonomy]
			for _, code := range codesForTaxonomy(codes, taxonomy) {
				score += desired[code]
			}
		}
		for _, code := range codes.deriveFINorm() {
			score += fiPrimary[code]
		}
		raw[docID] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore <= 0 {
		return allOnesKeys(raw)
	}
	out := make(map[string]float64, len(raw))
	for docID, score := range raw {
		out[docID] = score / maxScore
	}
	return out
}

func allOnes(docCodes map[string]DocCodes) map[string]float64 {
	out := make(map[string]float64, len(docCodes))
	for docID := range docCodes {
		out[docID] = 1.0
	}
	return out
}

func allOnesKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for docID := range m {
		out[docID] = 1.0
	}
	return out
}

// DocText holds the free-text fields used for facet coverage scoring.
type DocText struct {
	Claim string
	Abst  string
	Desc  string
}

// ComputeFacetScore returns a coverage score (0-1) per document measuring
// how many of the requested facet components (A/B/C) have a term match in
// claim/abst/desc text, field-weighted 0.5/0.3/0.2. With no facet terms
// every document scores 1.0.
func ComputeFacetScore(docText map[string]DocText, facetTerms FacetTerms, facetWeights map[string]float64) map[string]float64 {
	if len(facetTerms) == 0 {
		return allOnesText(docText)
	}

	fieldWeights := map[string]float64{"claim": 0.5, "abst": 0.3, "desc": 0.2}
	normalizedWeights := make(map[string]float64, len(facetTerms))
	totalWeight := 0.0
	for comp := range facetTerms {
		w := 1.0
		if facetWeights != nil {
			if fw, ok := facetWeights[comp]; ok {
				w = fw
			}
		}
		if w < 0 {
			w = 0
		}
		normalizedWeights[comp] = w
		totalWeight += w
	}
	if totalWeight == 0 {
		totalWeight = float64(len(facetTerms))
	}

	out := make(map[string]float64, len(docText))
	for docID, text := range docText {
		score := 0.0
		fields := map[string]string{"claim": text.Claim, "abst": text.Abst, "desc": text.Desc}
		for comp, terms := range facetTerms {
			compScore := 0.0
			for fieldName, weight := range fieldWeights {
				fieldText := strings.ToLower(fields[fieldName])
				if fieldText == "" {
					continue
				}
				if containsAnyTerm(fieldText, terms) {
					compScore += weight
				}
			}
			score += normalizedWeights[comp] * compScore
		}
		result := score / totalWeight
		if result > 1.0 {
			result = 1.0
		}
		out[docID] = result
	}
	return out
}

func allOnesText(docText map[string]DocText) map[string]float64 {
	out := make(map[string]float64, len(docText))
	for docID := range docText {
		out[docID] = 1.0
	}
	return out
}

// ComputeLaneConsistency rewards documents that rank highly across multiple
// lanes, normalized to 0-1 against the highest-scoring document.
func ComputeLaneConsistency(laneRanks map[string]map[string]int, laneWeights map[string]float64) map[string]float64 {
	raw := make(map[string]float64, len(laneRanks))
	maxScore := 0.0
	for docID, ranks := range laneRanks {
		score := 0.0
		for lane, rank := range ranks {
			weight := 1.0
			if w, ok := laneWeights[lane]; ok {
				weight = w
			}
			score += weight / float64(rank+1)
		}
		raw[docID] = score
		if score > maxScore {
			maxScore = score
		}
	}
	out := make(map[string]float64, len(raw))
	if maxScore == 0 {
		for docID := range laneRanks {
			out[docID] = 0.0
		}
		return out
	}
	for docID, score := range raw {
		out[docID] = score / maxScore
	}
	return out
}

// ComputePiScores combines code/facet/lane-consistency signals into a
// normalized π'(d) via a logistic squash of their weighted sum.
func ComputePiScores(
	docCodes map[string]DocCodes,
	docText map[string]DocText,
	target TargetProfile,
	facetTerms FacetTerms,
	facetWeights map[string]float64,
	laneRanks map[string]map[string]int,
	laneWeights map[string]float64,
	piWeights map[string]float64,
) map[string]float64 {
	codeScores := ComputeCodeScores(docCodes, target)
	facetScores := ComputeFacetScore(docText, facetTerms, facetWeights)
	consistencyScores := ComputeLaneConsistency(laneRanks, laneWeights)

	out := make(map[string]float64, len(docCodes))
	for docID := range docCodes {
		raw := piWeights["code"]*codeScores[docID] +
			piWeights["facet"]*facetScores[docID] +
			piWeights["lane"]*consistencyScores[docID]
		out[docID] = 1.0 / (1.0 + math.Exp(-raw))
	}
	return out
}

func containsAnyTerm(haystack string, needles []string) bool {
	for _, n := range needles {
		n = strings.ToLower(n)
		if n == "" {
			continue
		}
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
