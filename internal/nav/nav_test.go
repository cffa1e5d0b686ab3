package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	s := New()
	assert.True(t, s.AtRoot())

	s.SelectProvider("No-Intro")
	assert.True(t, s.InProvider())
	assert.False(t, s.AtRoot())

	s.SelectPlatform("Nintendo - Game Boy")
	assert.True(t, s.InPlatform())

	// Changing provider clears the platform selection.
	s.SelectProvider("TOSEC")
	assert.True(t, s.InProvider())
	assert.Equal(t, All, s.Platform)

	s.Reset()
	assert.True(t, s.AtRoot())
	assert.Equal(t, All, s.Provider)
	assert.Equal(t, All, s.Platform)
}

func TestSelectProviderAllIsRoot(t *testing.T) {
	s := New()
	s.SelectProvider("No-Intro")
	s.SelectPlatform("Nintendo - Game Boy")
	s.SelectProvider(All)
	assert.True(t, s.AtRoot())
}
