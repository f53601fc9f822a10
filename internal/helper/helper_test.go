package helper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorCeilToStep(t *testing.T) {
	assert.Equal(t, 107.0, FloorToStep(107.0, 0.01))
	assert.Equal(t, 0.3, FloorToStep(0.3, 0.1))
	assert.Equal(t, 1.23, FloorToStep(1.239, 0.01))
	assert.Equal(t, 1.24, CeilToStep(1.231, 0.01))
	assert.Equal(t, 1.23, CeilToStep(1.23, 0.01))
	assert.Equal(t, 5.5, FloorToStep(5.5, 0))
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "0.120", FormatStep(0.12, 0.001))
	assert.Equal(t, "101", FormatStep(101, 1))
	assert.Equal(t, "25000.5", FormatStep(25000.5, 0.5))
}

func TestIntervalDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, IntervalDuration("5"))
	assert.Equal(t, time.Hour, IntervalDuration("60"))
	assert.Equal(t, 15*time.Minute, IntervalDuration("15m"))
	assert.Equal(t, 24*time.Hour, IntervalDuration("D"))
	assert.Zero(t, IntervalDuration("abc"))
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
