package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEquivalence(t *testing.T) {
	assert.Equal(t, Normalize("super mario bros"), Normalize("Super Mario, Bros!"))
	assert.Equal(t, "xbox 360", Normalize("XBOX-360"))
	assert.Equal(t, "", Normalize("!@#$%"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"mario", "64"}, Tokenize("  Mario: 64!  "))
	assert.Empty(t, Tokenize("   "))
}

func TestMatchesAllANDSemantics(t *testing.T) {
	tokens := Tokenize("mario 64")
	assert.False(t, matchesAll(Normalize("Mario Kart"), tokens))
	assert.True(t, matchesAll(Normalize("Super Mario 64 (USA)"), tokens))
}

func TestStripArchiveExt(t *testing.T) {
	assert.Equal(t, "Tetris (World)", stripArchiveExt("Tetris (World).zip"))
	assert.Equal(t, "Tetris (World)", stripArchiveExt("Tetris (World).7Z"))
	assert.Equal(t, "Tetris (World).chd", stripArchiveExt("Tetris (World).chd"))
}

func TestSortByRelevanceStable(t *testing.T) {
	items := []Result{
		{ID: "1", Name: "Xbox"},
		{ID: "2", Name: "Xbox 360"},
		{ID: "3", Name: "XBOX"},
	}
	SortByRelevance(items, Normalize("xbox"))

	got := []string{items[0].Name, items[1].Name, items[2].Name}
	assert.Equal(t, []string{"Xbox", "XBOX", "Xbox 360"}, got,
		"exact matches first, insertion order preserved among equals")
}
