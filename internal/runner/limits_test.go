package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWindow(t *testing.T) {
	w, err := ParseSession(true, "06:00", "23:00", "Europe/Zurich")
	require.NoError(t, err)

	// зимой Цюрих = UTC+1
	assert.False(t, w.Contains(time.Date(2024, 1, 10, 4, 59, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 1, 10, 5, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 1, 10, 22, 30, 0, 0, time.UTC)))

	overnight, err := ParseSession(true, "22:00", "02:00", "UTC")
	require.NoError(t, err)
	assert.True(t, overnight.Contains(time.Date(2024, 1, 10, 23, 0, 0, 0, time.UTC)))
	assert.True(t, overnight.Contains(time.Date(2024, 1, 10, 1, 0, 0, 0, time.UTC)))
	assert.False(t, overnight.Contains(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)))

	off, err := ParseSession(false, "", "", "")
	require.NoError(t, err)
	assert.True(t, off.Contains(time.Now()))

	_, err = ParseSession(true, "6am", "23:00", "UTC")
	assert.Error(t, err)
	_, err = ParseSession(true, "06:00", "23:00", "Mars/Olympus")
	assert.Error(t, err)
}

func TestHourLimiter(t *testing.T) {
	l := &hourLimiter{max: 2, loc: time.UTC}
	t0 := time.Date(2024, 1, 10, 10, 5, 0, 0, time.UTC)

	require.True(t, l.Allow(t0))
	l.Record(t0)
	l.Record(t0.Add(10 * time.Minute))
	assert.False(t, l.Allow(t0.Add(50*time.Minute)))
	assert.True(t, l.Allow(t0.Add(55*time.Minute)), "new clock hour resets the bucket")

	unlimited := &hourLimiter{loc: time.UTC}
	unlimited.Record(t0)
	assert.True(t, unlimited.Allow(t0))
}

func TestInCooldown(t *testing.T) {
	entry := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	iv := 5 * time.Minute

	assert.True(t, inCooldown(entry, entry, 1, iv))
	assert.True(t, inCooldown(entry, entry.Add(iv), 1, iv))
	assert.False(t, inCooldown(entry, entry.Add(2*iv), 1, iv))
	assert.False(t, inCooldown(entry, entry.Add(iv), 0, iv))
	assert.False(t, inCooldown(time.Time{}, entry, 3, iv))
}
