package theme

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taipei(hour, minute int) time.Time {
	return time.Date(2025, 3, 1, hour, minute, 0, 0, time.FixedZone("CST", 8*3600))
}

func TestClock_IsDark(t *testing.T) {
	c := &Clock{loc: time.FixedZone("CST", 8*3600)}

	tests := []struct {
		at   time.Time
		dark bool
	}{
		{taipei(16, 59), false},
		{taipei(17, 0), true},
		{taipei(23, 59), true},
		{taipei(0, 0), true},
		{taipei(5, 59), true},
		{taipei(6, 0), false},
		{taipei(12, 0), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.dark, c.IsDark(tt.at), tt.at.Format("15:04"))
	}

	// 09:30 UTC is 17:30 in Taipei.
	assert.True(t, c.IsDark(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, Light, c.Mode(taipei(10, 0)))
	assert.Equal(t, Dark, c.Mode(taipei(20, 0)))
}

func TestClock_Pick(t *testing.T) {
	dir := t.TempDir()
	light := filepath.Join(dir, "light.png")
	dark := filepath.Join(dir, "dark.png")
	c := &Clock{loc: time.FixedZone("CST", 8*3600)}

	assert.Equal(t, light, c.Pick(light, dark, taipei(20, 0)), "missing dark asset falls back")

	require.NoError(t, os.WriteFile(dark, []byte("x"), 0o644))
	assert.Equal(t, dark, c.Pick(light, dark, taipei(20, 0)))
	assert.Equal(t, light, c.Pick(light, dark, taipei(9, 0)))
}

func TestNewClock_FallsBackToSystemZone(t *testing.T) {
	c := NewClock("Nowhere/Invalid", zerolog.Nop())
	assert.Equal(t, time.Local, c.Location())
}
