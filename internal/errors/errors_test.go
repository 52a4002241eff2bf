package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeFileNotFound, CategoryIO, SeverityError},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityError},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError},
		{ErrCodeDimensionMismatch, CategoryValidation, SeverityFatal},
		{ErrCodeInternal, CategoryInternal, SeverityError},
		{ErrCodeIndexCorrupt, CategoryIndex, SeverityFatal},
		{ErrCodeResourceLimit, CategoryIndex, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "timeout", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "bad", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestErrorChain(t *testing.T) {
	cause := fmt.Errorf("disk exploded")
	err := Wrap(ErrCodeIndexFailed, cause)
	require.NotNil(t, err)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, New(ErrCodeIndexFailed, "other message", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeInternal, "other", nil)))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodeResourceLimit, "too many chunks", nil)
	outer := fmt.Errorf("indexing a.go: %w", inner)

	assert.True(t, HasCode(outer, ErrCodeResourceLimit))
	assert.False(t, HasCode(outer, ErrCodeCancelled))
	assert.False(t, HasCode(nil, ErrCodeCancelled))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := ResourceLimit("chunk count", 1000)
	assert.Equal(t, "1000", err.Details["limit"])

	err = err.WithSuggestion("split the file")
	assert.Contains(t, UserMessage(err), "split the file")
}

func TestIndexNotFoundGuidance(t *testing.T) {
	err := IndexNotFound()
	assert.Equal(t, ErrCodeIndexNotFound, err.Code)
	assert.Contains(t, UserMessage(err), "create_index")
}

func TestSanitizePathCollapsesHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got := SanitizePath(filepath.Join(home, "projects", "demo", "main.go"))
	assert.True(t, strings.HasPrefix(got, "~/"), "got %q", got)
	assert.NotContains(t, got, home)
}

func TestSanitizePathInProject(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "src", "a.go")
	assert.Equal(t, "src/a.go", SanitizePathIn(inside, root))

	// Outside the root it must not leak the absolute prefix verbatim.
	outside := "/somewhere/else/secret.txt"
	got := SanitizePathIn(outside, root)
	assert.NotContains(t, got, "/somewhere/else")
}
