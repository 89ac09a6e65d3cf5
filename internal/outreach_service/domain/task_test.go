package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, 0, 0, time.UTC)
}

func TestParseForbiddenRange(t *testing.T) {
	r, err := ParseForbiddenRange("23:00", "08:00")
	require.NoError(t, err)
	assert.Equal(t, 23*60, r.StartMinute)
	assert.Equal(t, 8*60, r.EndMinute)

	_, err = ParseForbiddenRange("25:00", "08:00")
	assert.Error(t, err)

	_, err = ParseForbiddenRange("23:61", "08:00")
	assert.Error(t, err)

	// Malformed windows must be rejected outright, not truncated into a
	// plausible-looking range.
	_, err = ParseForbiddenRange("23:00x", "08:00")
	assert.Error(t, err)

	_, err = ParseForbiddenRange("1:2:3", "08:00")
	assert.Error(t, err)

	_, err = ParseForbiddenRange("", "08:00")
	assert.Error(t, err)
}

func TestForbiddenRange_Contains(t *testing.T) {
	simple, err := ParseForbiddenRange("12:00", "14:00")
	require.NoError(t, err)
	assert.False(t, simple.Contains(at(11, 59)))
	assert.True(t, simple.Contains(at(12, 0)))
	assert.True(t, simple.Contains(at(13, 30)))
	assert.False(t, simple.Contains(at(14, 0)), "end boundary is exclusive")

	wrapping, err := ParseForbiddenRange("23:00", "08:00")
	require.NoError(t, err)
	assert.True(t, wrapping.Contains(at(23, 0)))
	assert.True(t, wrapping.Contains(at(2, 15)))
	assert.True(t, wrapping.Contains(at(7, 59)))
	assert.False(t, wrapping.Contains(at(8, 0)))
	assert.False(t, wrapping.Contains(at(12, 0)))
}

func TestForbiddenRange_UntilEnd(t *testing.T) {
	wrapping, err := ParseForbiddenRange("23:00", "08:00")
	require.NoError(t, err)

	// 23:30 -> 08:00 next day.
	assert.Equal(t, 8*time.Hour+30*time.Minute, wrapping.UntilEnd(at(23, 30)))
	// 02:00 -> 08:00 same day.
	assert.Equal(t, 6*time.Hour, wrapping.UntilEnd(at(2, 0)))
}

func TestTask_InForbiddenWindow(t *testing.T) {
	night, err := ParseForbiddenRange("23:00", "08:00")
	require.NoError(t, err)
	lunch, err := ParseForbiddenRange("12:00", "13:00")
	require.NoError(t, err)

	task := &OutreachTask{ForbiddenRanges: []ForbiddenTimeRange{night, lunch}}

	got, inside := task.InForbiddenWindow(at(12, 30))
	assert.True(t, inside)
	assert.Equal(t, lunch, got)

	_, inside = task.InForbiddenWindow(at(10, 0))
	assert.False(t, inside)
}
