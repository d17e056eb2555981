package detection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fall-detector-go/pkg/models"
)

func TestSampler_SkipFrameLaw(t *testing.T) {
	s := NewSampler(3, 50)

	var evaluated []int
	calls := 0
	for i := 1; i <= 9; i++ {
		ev, err := s.Process(i, func() (FrameResult, error) {
			calls++
			return FrameResult{Votes: i}, nil
		})
		require.NoError(t, err)
		if ev.Evaluated {
			evaluated = append(evaluated, i)
			continue
		}
		// пропущенный кадр получает последний кешированный результат
		last := evaluated[len(evaluated)-1]
		assert.Equal(t, last, ev.Result.Votes, "frame %d", i)
	}

	assert.Equal(t, []int{1, 4, 7}, evaluated)
	assert.Equal(t, 3, calls)

	stats := s.Stats()
	assert.Equal(t, 3, stats.FramesProcessed)
	assert.Equal(t, 6, stats.FramesSkipped)
}

func TestSampler_SkipCoercedToOne(t *testing.T) {
	s := NewSampler(0, 50)
	for i := 1; i <= 5; i++ {
		assert.True(t, s.ShouldDetect(i))
	}
}

func TestSampler_DetectorFailureRecovered(t *testing.T) {
	s := NewSampler(1, 50)
	_, err := s.Process(1, func() (FrameResult, error) {
		return FrameResult{FallDetected: true, Votes: 1}, nil
	})
	require.NoError(t, err)

	boom := errors.New("detector offline")
	ev, err := s.Process(2, func() (FrameResult, error) { return FrameResult{}, boom })
	require.NoError(t, err)
	assert.True(t, ev.Evaluated)
	assert.ErrorIs(t, ev.Err, boom)
	assert.False(t, ev.Result.FallDetected)
	assert.Equal(t, FrameResult{}, s.Last(), "cache reset to no detection")

	stats := s.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.FramesProcessed)
}

func TestSampler_ErrorCeiling(t *testing.T) {
	s := NewSampler(1, 3)
	fail := func() (FrameResult, error) { return FrameResult{}, errors.New("bad frame") }

	for i := 1; i <= 3; i++ {
		_, err := s.Process(i, fail)
		require.NoError(t, err, "frame %d within limit", i)
	}
	_, err := s.Process(4, fail)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExcessiveErrors)
	assert.Equal(t, 4, s.Stats().ErrorCount)
}

func TestSampler_WriteErrorsSeparate(t *testing.T) {
	s := NewSampler(1, 1)
	s.RecordWriteError()
	s.RecordWriteError()
	stats := s.Stats()
	assert.Equal(t, 2, stats.WriteErrors)
	assert.Zero(t, stats.ErrorCount)
}

func TestEventLog_Ordering(t *testing.T) {
	l := NewEventLog()
	require.NoError(t, l.Append(models.FallEvent{Frame: 10, Type: models.FallSustained}))
	require.NoError(t, l.Append(models.FallEvent{Frame: 10, Type: models.FallSudden}))
	require.NoError(t, l.Append(models.FallEvent{Frame: 13}))
	assert.Error(t, l.Append(models.FallEvent{Frame: 12}))
	assert.Equal(t, 3, l.Len())

	events := l.Events()
	events[0].Frame = 999
	assert.Equal(t, 10, l.Events()[0].Frame, "Events returns a copy")

	l.Freeze()
	assert.True(t, l.Frozen())
	assert.Error(t, l.Append(models.FallEvent{Frame: 20}))
	assert.Equal(t, 3, l.Len())
}
