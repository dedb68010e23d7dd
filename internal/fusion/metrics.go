package fusion

import (
	"math"
	"sort"
)

// ComputeLAS (Lane Agreement Score) is the average pairwise Jaccard overlap
// of each lane's top-k_eval doc id sets. 0 when fewer than two lanes.
func ComputeLAS(laneDocs map[string][]RankedDoc, kEval int) float64 {
	if kEval <= 0 {
		kEval = MetricsTopK
	}

	var sets []map[string]struct{}
	for _, docs := range laneDocs {
		n := kEval
		if n > len(docs) {
			n = len(docs)
		}
		set := make(map[string]struct{}, n)
		for i := 0; i < n; i++ {
			set[docs[i].DocID] = struct{}{}
		}
		sets = append(sets, set)
	}
	if len(sets) <= 1 {
		return 0.0
	}

	var scores []float64
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			scores = append(scores, jaccard(sets[i], sets[j]))
		}
	}
	if len(scores) == 0 {
		return 0.0
	}
	return mean(scores)
}

func jaccard(a, b map[string]struct{}) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(union))
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ComputeCCW (Code Concentration Weight) is 1 minus the normalized Shannon
// entropy of the top doc's primary FI-subgroup code across the given doc
// ids: concentrated code usage scores near 1, diffuse usage near 0.
func ComputeCCW(docIDs []string, docCodes map[string]DocCodes) float64 {
	var codes []string
	for _, docID := range docIDs {
		c, ok := docCodes[docID]
		if !ok {
			continue
		}
		norm := c.deriveFINorm()
		if len(norm) > 0 {
			codes = append(codes, norm[0])
		}
	}
	if len(codes) == 0 {
		return 0.0
	}

	freq := make(map[string]int, len(codes))
	for _, c := range codes {
		freq[c]++
	}
	total := len(codes)
	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	if len(freq) <= 1 {
		return 1.0
	}
	normEntropy := entropy / math.Log(float64(len(freq)))
	return 1.0 - normEntropy
}

// ComputeSShape measures how front-loaded a fusion run's scores are: the
// share of the top-heavy docs' score mass within the top-total window.
func ComputeSShape(scores []float64) float64 {
	return computeSShapeWith(scores, SShapePeak, SShapeTopK)
}

func computeSShapeWith(scores []float64, topHeavy, topTotal int) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	heavyN := topHeavy
	if heavyN > len(scores) {
		heavyN = len(scores)
	}
	totalN := topTotal
	if totalN > len(scores) {
		totalN = len(scores)
	}
	heavy := sumFloat(scores[:heavyN])
	total := sumFloat(scores[:totalN])
	if total <= 0 {
		return 0.0
	}
	return heavy / total
}

func sumFloat(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// QualityMetrics bundles the fusion-quality diagnostics computed for a run.
type QualityMetrics struct {
	LAS        float64
	CCW        float64
	SShape     float64
	FStruct    float64
	BetaStruct float64
	FProxy     float64
}

// ComputeFusionMetrics computes the full no-ground-truth diagnostic bundle
// for a fusion run's ordered output.
func ComputeFusionMetrics(laneDocs map[string][]RankedDoc, docCodes map[string]DocCodes, ordered []RankedDoc, kEval int, lambdaShape, betaStruct float64) QualityMetrics {
	if kEval <= 0 {
		kEval = MetricsTopK
	}
	if betaStruct == 0 {
		betaStruct = DefaultBetaStruct
	}

	las := ComputeLAS(laneDocs, kEval)

	topN := kEval
	if topN > len(ordered) {
		topN = len(ordered)
	}
	topIDs := make([]string, topN)
	scores := make([]float64, len(ordered))
	for i, r := range ordered {
		if i < topN {
			topIDs[i] = r.DocID
		}
		scores[i] = r.Score
	}
	ccw := ComputeCCW(topIDs, docCodes)
	sShape := ComputeSShape(scores)

	betaSq := betaStruct * betaStruct
	denom := betaSq*las + ccw
	fStruct := 0.0
	if denom > 0 {
		fStruct = (1 + betaSq) * las * ccw / denom
	}
	fProxy := fStruct * math.Max(1.0-lambdaShape*sShape, 0.0)

	return QualityMetrics{
		LAS:        las,
		CCW:        ccw,
		SShape:     sShape,
		FStruct:    fStruct,
		BetaStruct: betaStruct,
		FProxy:     fProxy,
	}
}

// ComputeLaneRanks inverts each lane's ranked doc list into doc_id -> lane
// -> 1-indexed rank, used for lane-consistency scoring.
func ComputeLaneRanks(laneDocs map[string][]RankedDoc) map[string]map[string]int {
	ranks := make(map[string]map[string]int)
	for lane, docs := range laneDocs {
		for i, d := range docs {
			if ranks[d.DocID] == nil {
				ranks[d.DocID] = map[string]int{}
			}
			ranks[d.DocID][lane] = i + 1
		}
	}
	return ranks
}

// FrontierPoint is one precision/recall/Fβ measurement at cutoff K.
type FrontierPoint struct {
	K         int
	Precision float64
	Recall    float64
	FBeta     float64
}

// ComputeFrontier estimates the precision/recall/Fβ frontier over a k-grid,
// using π'(d) proxy-relevance scores in place of unavailable ground truth.
func ComputeFrontier(orderedDocIDs []string, kGrid []int, piScores map[string]float64, betaFuse float64) []FrontierPoint {
	if len(orderedDocIDs) == 0 {
		return nil
	}

	totalScore := 0.0
	for _, docID := range orderedDocIDs {
		totalScore += piScores[docID]
	}
	uniform := piScores
	if totalScore <= 0 {
		totalScore = float64(len(orderedDocIDs))
		uniform = make(map[string]float64, len(orderedDocIDs))
		for _, docID := range orderedDocIDs {
			uniform[docID] = 1.0
		}
	}

	betaSq := betaFuse * betaFuse
	var frontier []FrontierPoint
	for _, k := range kGrid {
		if k <= 0 {
			continue
		}
		n := k
		if n > len(orderedDocIDs) {
			n = len(orderedDocIDs)
		}
		subset := orderedDocIDs[:n]
		if len(subset) == 0 {
			continue
		}
		sumTop := 0.0
		for _, docID := range subset {
			sumTop += uniform[docID]
		}
		precision := sumTop / float64(len(subset))
		recall := 0.0
		if totalScore > 0 {
			recall = sumTop / totalScore
		}
		fBeta := 0.0
		if precision != 0 || recall != 0 {
			fBeta = (1 + betaSq) * precision * recall / (betaSq*precision + recall)
		}
		frontier = append(frontier, FrontierPoint{
			K:         len(subset),
			Precision: round3(precision),
			Recall:    round3(recall),
			FBeta:     round3(fBeta),
		})
	}
	return frontier
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// AggregateCodeFreqs counts per-taxonomy code occurrences across a set of
// documents. The returned maps are unordered; SortedFreqEntries gives a
// descending-by-count order.
func AggregateCodeFreqs(docCodes map[string]DocCodes, docIDs []string) map[string]map[string]int {
	freqs := map[string]map[string]int{
		"ipc": {}, "cpc": {}, "fi": {}, "ft": {},
	}
	for _, docID := range docIDs {
		codes, ok := docCodes[docID]
		if !ok {
			continue
		}
		for _, c := range codes.IPC {
			freqs["ipc"][c]++
		}
		for _, c := range codes.CPC {
			freqs["cpc"][c]++
		}
		for _, c := range codes.FI {
			freqs["fi"][c]++
		}
		for _, c := range codes.FT {
			freqs["ft"][c]++
		}
	}
	return freqs
}

// SortedFreqEntries returns a taxonomy's code frequencies as a
// descending-by-count slice, for stable JSON/text output.
func SortedFreqEntries(freq map[string]int) []RankedDoc {
	out := make([]RankedDoc, 0, len(freq))
	for code, count := range freq {
		out = append(out, RankedDoc{DocID: code, Score: float64(count)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// RepresentativeLabel is a manually-assigned A/B/C priority label applied
// to specific documents before final ordering.
type RepresentativeLabel struct {
	DocID  string
	Label  string // "A", "B", or "C"
	Reason string
}

// ApplyRepresentativePriority reorders a score-sorted doc list so labeled
// representatives come first (A before B before C), preserving score order
// within each priority tier and among unlabeled documents.
func ApplyRepresentativePriority(ordered []RankedDoc, representatives []RepresentativeLabel) []RankedDoc {
	if len(representatives) == 0 {
		return ordered
	}
	priorities := map[string]int{"A": 0, "B": 1, "C": 2}
	labelByDoc := make(map[string]int, len(representatives))
	for _, rep := range representatives {
		if p, ok := priorities[rep.Label]; ok {
			labelByDoc[rep.DocID] = p
		}
	}

	out := make([]RankedDoc, len(ordered))
	copy(out, ordered)
	sort.SliceStable(out, func(i, j int) bool {
		pi, oki := labelByDoc[out[i].DocID]
		pj, okj := labelByDoc[out[j].DocID]
		if !oki {
			pi = 3
		}
		if !okj {
			pj = 3
		}
		if pi != pj {
			return pi < pj
		}
		return out[i].Score > out[j].Score
	})
	return out
}
