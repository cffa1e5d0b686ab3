package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1572864))
	assert.Equal(t, "4.0 GB", FormatBytes(4<<30))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short", TruncatePath("short", 10))
	assert.Equal(t, "...e/f/g.zip", TruncatePath("/a/b/c/d/e/f/g.zip", 12))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "result", Plural(1, "result", "results"))
	assert.Equal(t, "results", Plural(0, "result", "results"))
}
