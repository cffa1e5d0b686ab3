package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeResults(n int, prefix string) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{ID: fmt.Sprintf("%s-%d", prefix, i), Name: fmt.Sprintf("%s %d", prefix, i)}
	}
	return out
}

func TestPresenterWindowGrowth(t *testing.T) {
	p := NewPresenter(40)
	p.Reset("game")
	p.Merge(makeResults(130, "game"))

	assert.Len(t, p.Window(), 40)
	assert.True(t, p.HasMore())

	p.Grow()
	p.Grow()
	assert.Len(t, p.Window(), 120)
	assert.True(t, p.HasMore())

	p.Grow()
	assert.Len(t, p.Window(), 130)
	assert.False(t, p.HasMore())
}

func TestPresenterDedup(t *testing.T) {
	p := NewPresenter(40)
	p.Reset("")

	batch := makeResults(5, "x")
	p.Merge(batch)
	p.Merge(batch)
	p.Merge(makeResults(3, "y"))

	assert.Equal(t, 8, p.Len())
}

func TestPresenterResetClearsWindow(t *testing.T) {
	p := NewPresenter(10)
	p.Reset("a")
	p.Merge(makeResults(30, "a"))
	p.Grow()
	assert.Len(t, p.Window(), 20)

	p.Reset("b")
	assert.Zero(t, p.Len())
	assert.Empty(t, p.Window())
	assert.False(t, p.HasMore())

	p.Merge(makeResults(15, "b"))
	assert.Len(t, p.Window(), 10, "reveal count resets to one page")
}

func TestPresenterSortsAcrossBatches(t *testing.T) {
	p := NewPresenter(40)
	p.Reset("tetris")

	// Later-arriving exact match must rank above an earlier prefix match.
	p.Merge([]Result{{ID: "a", Name: "Tetris Attack"}})
	p.Merge([]Result{{ID: "b", Name: "Tetris"}})

	w := p.Window()
	assert.Equal(t, "Tetris", w[0].Name)
	assert.Equal(t, "Tetris Attack", w[1].Name)
}
