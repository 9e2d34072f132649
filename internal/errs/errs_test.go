package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WrapsWithKind(t *testing.T) {
	base := errors.New("disk full")
	err := New(IOError, base)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, IOError, kind)
	require.ErrorIs(t, err, base)
}

func TestNew_NilErrReturnsNil(t *testing.T) {
	require.NoError(t, New(IOError, nil))
}

func TestWrap_IncludesSubjectInMessage(t *testing.T) {
	err := Wrap(ParseError, "main.go", errors.New("unexpected token"))
	require.Contains(t, err.Error(), "main.go")
	require.Contains(t, err.Error(), "PARSE_ERROR")
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf(BudgetOverflow, "chunk-7", "requested %d tokens, budget %d", 500, 200)
	require.Contains(t, err.Error(), "chunk-7")
	require.Contains(t, err.Error(), "requested 500 tokens, budget 200")
}

func TestIs_MatchesByKindAlone(t *testing.T) {
	err := Wrap(SchemaMismatch, "store.db", errors.New("version 2, want 1"))
	require.True(t, errors.Is(err, Sentinel(SchemaMismatch)))
	require.False(t, errors.Is(err, Sentinel(IOError)))
}

func TestKindOf_ReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestKindError_UnwrapReturnsUnderlyingError(t *testing.T) {
	base := errors.New("timed out")
	err := New(DeadlineExceeded, base)
	var ke *KindError
	require.True(t, errors.As(err, &ke))
	require.Equal(t, base, ke.Unwrap())
}
