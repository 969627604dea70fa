package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestFixed(t *testing.T) {
	t.Parallel()

	at := time.Unix(1_700_000_000, 0)
	clk := Fixed{At: at}
	require.Equal(t, at, clk.Now())
	require.Equal(t, clk.Now(), clk.Now())
}
