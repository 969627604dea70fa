package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	got := Key("hello world")
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
	require.Equal(t, got, Key("hello world"))
}

func TestKeyJoinsParts(t *testing.T) {
	t.Parallel()

	require.Equal(t, Key("a:b"), Key("a", "b"))
	require.NotEqual(t, Key("a", "b"), Key("b", "a"))
	require.Len(t, Key(), 64)
}
