package severity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsOrdering(t *testing.T) {
	levels := Levels(false)
	require.Len(t, levels, 11)
	assert.Equal(t, Critical, levels[0])
	assert.Equal(t, Notes, levels[len(levels)-1])

	withMeta := Levels(true)
	require.Len(t, withMeta, 13)
	assert.Equal(t, []Level{All, None}, withMeta[11:])
}

func TestExpandHigherIsGrowingPrefix(t *testing.T) {
	all := Levels(false)
	prev := 0
	for i, l := range all {
		got, err := Expand(l, Higher)
		require.NoError(t, err)
		assert.Len(t, got, i+1, "level %s", l)
		assert.Greater(t, len(got), prev)
		assert.Equal(t, all[:i+1], got)
		prev = len(got)
	}

	got, err := Expand(Critical, Higher)
	require.NoError(t, err)
	assert.Equal(t, []Level{Critical}, got)

	got, err = Expand(Notes, Higher)
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestExpandLower(t *testing.T) {
	got, err := Expand(Warning, Lower)
	require.NoError(t, err)
	assert.Equal(t, []Level{Warning, Warnings, Note, Notes}, got)
}

func TestExpandMeta(t *testing.T) {
	for _, g := range []Grouping{Higher, Lower} {
		got, err := Expand(None, g)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = Expand(All, g)
		require.NoError(t, err)
		assert.Equal(t, Levels(false), got)
	}
}

func TestExpandErrorLevel(t *testing.T) {
	got, err := Expand(Error, Higher)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical", "high", "error"}, Strings(got))
}

func TestExpandUnknown(t *testing.T) {
	_, err := Expand(Level("urgent"), Higher)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSeverity))
}

func TestExpandDoesNotAliasOrdering(t *testing.T) {
	got, err := Expand(High, Higher)
	require.NoError(t, err)
	got[0] = Notes
	again, err := Expand(High, Higher)
	require.NoError(t, err)
	assert.Equal(t, Critical, again[0])
}

func TestParse(t *testing.T) {
	l, err := Parse("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, High, l)

	l, err = Parse("All")
	require.NoError(t, err)
	assert.True(t, l.IsMeta())

	_, err = Parse("info")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
	assert.False(t, Known("info"))
	assert.True(t, Known("Moderate"))
}

func TestRank(t *testing.T) {
	assert.Equal(t, 0, Critical.Rank())
	assert.Equal(t, 10, Notes.Rank())
	assert.Equal(t, -1, All.Rank())
	assert.Equal(t, -1, Level("bogus").Rank())
}
