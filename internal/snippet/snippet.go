// Package snippet shapes cached document fields into budget-bounded
// excerpts for peek_snippets and get_snippets.
package snippet

import (
	"encoding/json"

	"github.com/patentfusion/rrfusion/internal/model"
)

// FieldOrder is the canonical ordering used to stabilize budget-shrink and
// fallback-ladder decisions.
var FieldOrder = []string{"title", "abst", "claim", "description"}

// DefaultChars are each field's default (ceiling) character allowance.
var DefaultChars = map[string]int{
	"title":       160,
	"abst":        480,
	"claim":       320,
	"description": 400,
}

// MinChars are each field's floor character allowance; a proportional
// shrink never takes a field below this.
var MinChars = map[string]int{
	"title":       80,
	"abst":        240,
	"claim":       160,
	"description": 200,
}

// identifierFields are always included in a snippet item regardless of the
// requested field list.
var identifierFields = []string{"app_doc_id", "app_id", "pub_id"}

const defaultMinChars = 32

// TruncateField shortens value to at most maxChars, appending "..." when
// the value is long enough to show it meaningfully.
func TruncateField(value string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	ellipsis := ""
	if maxChars > 3 {
		ellipsis = "..."
	}
	sliceLen := maxChars - len([]rune(ellipsis))
	return string(runes[:sliceLen]) + ellipsis
}

// CoerceFieldCharLimits computes the per-field character budget for a
// snippet request: each field starts at min(requested, default) clamped to
// its floor, then if the combined total (plus per-item JSON overhead)
// exceeds budgetLimit, every field is shrunk proportionally down to its
// floor.
func CoerceFieldCharLimits(fields []string, requested map[string]int, budgetLimit int) map[string]int {
	ordered := orderFields(fields)
	if len(ordered) == 0 {
		return map[string]int{}
	}

	chars := make(map[string]int, len(ordered))
	total := 0
	for _, field := range ordered {
		base, ok := requested[field]
		if !ok {
			base = defaultFor(field)
		}
		ceiling := defaultFor(field)
		value := base
		if value > ceiling {
			value = ceiling
		}
		floor := floorFor(field)
		if value < floor {
			value = floor
		}
		chars[field] = value
		total += value
	}

	if total == 0 {
		return chars
	}

	overhead := 64 + 24*len(chars)
	allowance := budgetLimit - overhead
	if allowance < 64 {
		allowance = 64
	}
	if total <= allowance {
		return chars
	}

	ratio := float64(allowance) / float64(total)
	for field, value := range chars {
		floor := floorFor(field)
		shrunk := int(float64(value) * ratio)
		if shrunk < floor {
			shrunk = floor
		}
		chars[field] = shrunk
	}
	return chars
}

func orderFields(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	ordered := make([]string, 0, len(fields))
	for _, f := range FieldOrder {
		for _, requested := range fields {
			if requested == f && !seen[f] {
				ordered = append(ordered, f)
				seen[f] = true
			}
		}
	}
	for _, f := range fields {
		if !seen[f] {
			ordered = append(ordered, f)
			seen[f] = true
		}
	}
	return ordered
}

func defaultFor(field string) int {
	if v, ok := DefaultChars[field]; ok {
		return v
	}
	return 200
}

func floorFor(field string) int {
	if v, ok := MinChars[field]; ok {
		return v
	}
	return defaultMinChars
}

// BuildItem renders one document's snippet item: identifier fields are
// always included alongside the requested/truncated text fields.
func BuildItem(docID string, doc model.Document, fields []string, perFieldChars map[string]int) map[string]string {
	values := fieldValues(doc)

	effective := append([]string{}, fields...)
	present := make(map[string]bool, len(effective))
	for _, f := range effective {
		present[f] = true
	}
	for _, idField := range identifierFields {
		if !present[idField] {
			effective = append(effective, idField)
			present[idField] = true
		}
	}

	item := map[string]string{"id": docID}
	for _, field := range effective {
		value := values[field]
		limit, ok := perFieldChars[field]
		if !ok {
			limit = len(value)
		}
		item[field] = TruncateField(value, limit)
	}
	return item
}

func fieldValues(doc model.Document) map[string]string {
	return map[string]string{
		"title":       doc.Title,
		"abst":        doc.Abstract,
		"claim":       doc.Claim,
		"description": doc.Description,
		"app_doc_id":  doc.AppDocID,
		"app_id":      doc.AppDocID,
		"pub_id":      doc.PubID,
	}
}

// CapByBudget appends JSON-encoded items while the running byte total
// stays within budgetBytes, stopping at the first item that would overflow.
func CapByBudget(items []map[string]string, budgetBytes int) (accepted []map[string]string, usedBytes int, truncated bool) {
	for _, item := range items {
		encoded, err := json.Marshal(item)
		if err != nil {
			continue
		}
		if usedBytes+len(encoded) > budgetBytes {
			truncated = true
			break
		}
		accepted = append(accepted, item)
		usedBytes += len(encoded)
	}
	return accepted, usedBytes, truncated
}

// FallbackSnippet is used when even a single document's full-field snippet
// doesn't fit the budget: it tries progressively shorter field subsets at
// their floor widths (dropping trailing fields in FieldOrder priority)
// until one fits, or returns ok=false if even the one-field subset doesn't
// fit. An id-only item is never returned.
func FallbackSnippet(docID string, doc model.Document, requestedFields []string, budgetLimit int) (item map[string]string, usedBytes int, ok bool) {
	ordered := orderFields(requestedFields)

	for count := len(ordered); count > 0; count-- {
		subset := ordered[:count]
		perChars := make(map[string]int, len(subset))
		for _, f := range subset {
			perChars[f] = floorFor(f)
		}
		candidate := BuildItem(docID, doc, subset, perChars)
		encoded, err := json.Marshal(candidate)
		if err != nil {
			continue
		}
		if len(encoded) <= budgetLimit {
			return candidate, len(encoded), true
		}
	}
	return nil, 0, false
}
