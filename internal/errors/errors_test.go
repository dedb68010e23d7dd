package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFusionError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := stderrors.New("connection refused")

	fusionErr := New(ErrCodeBackendTimeout, "lane backend unreachable", originalErr)

	assert.Equal(t, originalErr, fusionErr.Unwrap())
	assert.ErrorIs(t, fusionErr, originalErr)
}

func TestFusionError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"run not found", ErrCodeRunNotFound, "run fulltext-aaaaaaaa not found", "[ERR_201_RUN_NOT_FOUND] run fulltext-aaaaaaaa not found"},
		{"backend timeout", ErrCodeBackendTimeout, "upstream timed out", "[ERR_501_BACKEND_TIMEOUT] upstream timed out"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.code, tc.message, nil)
			assert.Equal(t, tc.expected, err.Error())
		})
	}
}

func TestFusionError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeRunNotFound, "run A not found", nil)
	err2 := New(ErrCodeRunNotFound, "run B not found", nil)

	assert.True(t, stderrors.Is(err1, err2))
}

func TestFusionError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeRunNotFound, "run not found", nil)
	err2 := New(ErrCodeDocNotFound, "doc not found", nil)

	assert.False(t, stderrors.Is(err1, err2))
}

func TestFusionError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeRunNotFound, "run not found", nil).WithDetail("run_id", "fusion-abc123")

	assert.Equal(t, "fusion-abc123", err.Details["run_id"])
}

func TestFusionError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeBackendTimeout, "connection timed out", nil).WithSuggestion("retry with backoff")

	assert.Equal(t, "retry with backoff", err.Suggestion)
}

func TestFusionError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeInvalidQuery, CategoryValidation},
		{ErrCodeInvalidWeight, CategoryValidation},
		{ErrCodeRunNotFound, CategoryNotFound},
		{ErrCodeDocNotFound, CategoryNotFound},
		{ErrCodeWrongRunType, CategoryPrecondition},
		{ErrCodeBackendHTTP4xx, CategoryBackendHTTP},
		{ErrCodeBackendTimeout, CategoryBackendTransport},
		{ErrCodeVocabCorrupt, CategoryIntegrity},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, categoryFromCode(tc.code), tc.code)
	}
}

func TestFusionError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Severity
	}{
		{ErrCodeVocabCorrupt, SeverityFatal},
		{ErrCodeRunMetaCorrupt, SeverityFatal},
		{ErrCodeRunNotFound, SeverityError},
		{ErrCodeBackendTimeout, SeverityWarning},
		{ErrCodeBackendUnavailable, SeverityWarning},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, severityFromCode(tc.code), tc.code)
	}
}

func TestFusionError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{ErrCodeBackendTimeout, true},
		{ErrCodeBackendUnavailable, true},
		{ErrCodeBackendHTTP5xx, true},
		{ErrCodeRunNotFound, false},
		{ErrCodeInvalidQuery, false},
		{ErrCodeVocabCorrupt, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, isRetryableCode(tc.code), tc.code)
	}
}

func TestWrap_CreatesFusionErrorFromError(t *testing.T) {
	originalErr := stderrors.New("dial tcp: connection refused")

	fusionErr := Wrap(ErrCodeInternal, originalErr)

	assert.Equal(t, ErrCodeInternal, fusionErr.Code)
	assert.Equal(t, originalErr.Error(), fusionErr.Message)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestValidation_CreatesValidationCategoryError(t *testing.T) {
	err := Validation("query cannot be empty", nil)

	assert.Equal(t, CategoryValidation, err.Category)
}

func TestBackendHTTP_ClassifiesByStatus(t *testing.T) {
	client := BackendHTTP(404, "not found upstream", nil)
	server := BackendHTTP(502, "bad gateway", nil)

	assert.Equal(t, ErrCodeBackendHTTP4xx, client.Code)
	assert.Equal(t, "404", client.Details["status"])
	assert.Equal(t, ErrCodeBackendHTTP5xx, server.Code)
	assert.True(t, IsRetryable(server))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable FusionError", New(ErrCodeBackendTimeout, "timeout", nil), true},
		{"non-retryable FusionError", New(ErrCodeRunNotFound, "not found", nil), false},
		{"wrapped FusionError", Wrap(ErrCodeBackendTimeout, stderrors.New("wrapped")), true},
		{"plain error", stderrors.New("plain"), false},
		{"nil error", nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsRetryable(tc.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"fatal FusionError", New(ErrCodeVocabCorrupt, "vocab corrupt", nil), true},
		{"non-fatal FusionError", New(ErrCodeRunNotFound, "not found", nil), false},
		{"plain error", stderrors.New("plain"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsFatal(tc.err))
		})
	}
}

func TestGetCodeAndCategory(t *testing.T) {
	err := New(ErrCodeRunNotFound, "not found", nil)

	assert.Equal(t, ErrCodeRunNotFound, GetCode(err))
	assert.Equal(t, CategoryNotFound, GetCategory(err))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
