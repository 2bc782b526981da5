package waveform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{Channel: ChannelA, FrequencyHz: 2, DutyCyclePct: 25}

func TestNewRecorderRejectsBadCapacity(t *testing.T) {
	_, err := NewRecorder(-1, 10*time.Millisecond, 0)
	assert.True(t, errors.Is(err, ErrBufferAlloc))

	_, err = NewRecorder(MaxCapacity+1, 10*time.Millisecond, 0)
	assert.True(t, errors.Is(err, ErrBufferAlloc))

	_, err = NewRecorder(10, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidCadence))
}

func TestMaybeSampleRespectsCadence(t *testing.T) {
	r, err := NewRecorder(100, 10*time.Millisecond, 0)
	require.NoError(t, err)

	assert.True(t, r.MaybeSample(testCfg, ChannelState{On: true}, 0))
	assert.False(t, r.MaybeSample(testCfg, ChannelState{On: true}, 9*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, r.NextDeadline())
	assert.True(t, r.MaybeSample(testCfg, ChannelState{On: false}, 10*time.Millisecond))
	assert.False(t, r.MaybeSample(testCfg, ChannelState{On: false}, 10*time.Millisecond))

	require.Equal(t, 2, r.Len())
	got := r.Samples()
	assert.Equal(t, Sample{Elapsed: 0, FrequencyHz: 2, DutyCyclePct: 25, On: true}, got[0])
	assert.Equal(t, Sample{Elapsed: 10 * time.Millisecond, FrequencyHz: 2, DutyCyclePct: 25, On: false}, got[1])
}

func TestMaybeSampleElapsedFromStart(t *testing.T) {
	r, err := NewRecorder(10, 5*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)

	assert.False(t, r.MaybeSample(testCfg, ChannelState{}, 99*time.Millisecond))
	assert.True(t, r.MaybeSample(testCfg, ChannelState{}, 101*time.Millisecond))
	assert.Equal(t, time.Millisecond, r.Samples()[0].Elapsed)
	// Deadline advances by the cadence, not from the late sample.
	assert.Equal(t, 105*time.Millisecond, r.NextDeadline())
}

func TestMaybeSampleStopsWhenFull(t *testing.T) {
	r, err := NewRecorder(3, time.Millisecond, 0)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		r.MaybeSample(testCfg, ChannelState{}, time.Duration(i)*time.Millisecond)
	}
	assert.True(t, r.Full())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}

func TestZeroCapacityIsImmediatelyFull(t *testing.T) {
	r, err := NewRecorder(0, time.Millisecond, 0)
	require.NoError(t, err)
	assert.True(t, r.Full())
	assert.False(t, r.MaybeSample(testCfg, ChannelState{}, 0))
}

func TestElapsedIsNonDecreasing(t *testing.T) {
	g, err := NewGenerator(Config{Channel: ChannelB, FrequencyHz: 3, DutyCyclePct: 40}, time.Millisecond, TimingSymmetric, 10)
	require.NoError(t, err)
	r, err := NewRecorder(1000, 7*time.Millisecond, 0)
	require.NoError(t, err)

	var s ChannelState
	// Irregular tick spacing, as from a busy loop that sometimes stalls.
	steps := []time.Duration{1, 3, 2, 9, 1, 14, 5}
	now := time.Duration(0)
	for i := 0; !r.Full() && now < 3*time.Second; i++ {
		s, _ = g.Advance(s, now)
		r.MaybeSample(g.Config(), s, now)
		now += steps[i%len(steps)] * time.Millisecond
	}

	samples := r.Samples()
	require.NotEmpty(t, samples)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].Elapsed, samples[i-1].Elapsed, "sample %d", i)
	}
}

func TestReleaseTransfersOwnership(t *testing.T) {
	r, err := NewRecorder(5, time.Millisecond, 0)
	require.NoError(t, err)
	r.MaybeSample(testCfg, ChannelState{On: true}, 0)
	r.MaybeSample(testCfg, ChannelState{On: true}, time.Millisecond)

	buf := r.Release()
	assert.Len(t, buf, 2)
	assert.Equal(t, 0, r.Len())

	// Nothing recorded after release reaches the handed-off slice.
	assert.False(t, r.MaybeSample(testCfg, ChannelState{}, 2*time.Millisecond))
	assert.Len(t, buf, 2)
}
