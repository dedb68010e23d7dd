package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashQuery_DeterministicAcrossFilterKeyOrder(t *testing.T) {
	a := HashQuery("battery thermal management", map[string]any{"countries": []string{"JP", "US"}, "date_from": "2020-01-01"})
	b := HashQuery("battery thermal management", map[string]any{"date_from": "2020-01-01", "countries": []string{"JP", "US"}})

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHashQuery_DiffersOnQueryChange(t *testing.T) {
	a := HashQuery("battery", nil)
	b := HashQuery("battery pack", nil)

	assert.NotEqual(t, a, b)
}

func TestNewLaneRunID_HasLanePrefixAnd8HexSuffix(t *testing.T) {
	id := NewLaneRunID("fulltext")

	assert.True(t, len(id) == len("fulltext-")+8)
	assert.Equal(t, "fulltext-", id[:9])
}

func TestNewFusionRunID_HasFusionPrefixAnd10HexSuffix(t *testing.T) {
	id := NewFusionRunID()

	assert.True(t, len(id) == len("fusion-")+10)
	assert.Equal(t, "fusion-", id[:7])
}

func TestNewLaneRunID_IsUnique(t *testing.T) {
	a := NewLaneRunID("semantic")
	b := NewLaneRunID("semantic")

	assert.NotEqual(t, a, b)
}

func TestNormalizeFISubgroup_StripsTrailingEditionLetter(t *testing.T) {
	assert.Equal(t, "H04L12/24", NormalizeFISubgroup("H04L12/24A"))
}

func TestNormalizeFISubgroup_LeavesBareCodeUnchanged(t *testing.T) {
	assert.Equal(t, "H04L12/24", NormalizeFISubgroup("H04L12/24"))
}

func TestNormalizeFISubgroup_IsIdempotent(t *testing.T) {
	once := NormalizeFISubgroup("H04L12/24A")
	twice := NormalizeFISubgroup(once)

	assert.Equal(t, once, twice)
}

func TestNormalizeFISubgroup_EmptyInput(t *testing.T) {
	assert.Equal(t, "", NormalizeFISubgroup(""))
}

func TestNormalizeFISubgroup_LeavesLetterCodeWithoutDigitPrefixUnchanged(t *testing.T) {
	// A trailing letter only counts as an edition mark when preceded by a digit.
	assert.Equal(t, "ABC", NormalizeFISubgroup("ABC"))
}
