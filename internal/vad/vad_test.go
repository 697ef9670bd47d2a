package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClock is a manually advanced clock for deterministic hangover timing.
type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDetector(sensitivity float64, hangover time.Duration, mode Mode) (*Detector, *stubClock) {
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	d := NewDetector(sensitivity, hangover, mode)
	d.now = clock.Now
	return d, clock
}

// loudFrame is well above any threshold in the sensitivity range.
func loudFrame(n int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = 0.5
	}
	return frame
}

func TestSetSensitivity_ThresholdMonotone(t *testing.T) {
	d := NewDetector(0, time.Second, ModeAuto)

	prev := d.Threshold()
	for _, s := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0} {
		d.SetSensitivity(s)
		assert.LessOrEqual(t, d.Threshold(), prev,
			"higher sensitivity must not raise the threshold (s=%v)", s)
		prev = d.Threshold()
	}
}

func TestSetSensitivity_Clamps(t *testing.T) {
	d := NewDetector(0.5, time.Second, ModeAuto)

	d.SetSensitivity(-3)
	assert.Equal(t, 0.0, d.Sensitivity())
	assert.InDelta(t, maxThreshold, d.Threshold(), 1e-12)

	d.SetSensitivity(7)
	assert.Equal(t, 1.0, d.Sensitivity())
	assert.InDelta(t, minThreshold, d.Threshold(), 1e-12)
}

func TestProcessFrame_Inactive(t *testing.T) {
	d, _ := newTestDetector(0.5, time.Second, ModeAuto)

	res := d.ProcessFrame(loudFrame(480), 48000)
	assert.False(t, res.VoiceDetected)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, res.SegmentMS)
}

func TestProcessFrame_ConfidenceBounds(t *testing.T) {
	d, _ := newTestDetector(0.5, time.Second, ModeAuto)
	d.Start()

	t.Run("all-zero frame", func(t *testing.T) {
		res := d.ProcessFrame(make([]float32, 480), 48000)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.False(t, res.VoiceDetected)
	})

	t.Run("maximal amplitude frame", func(t *testing.T) {
		frame := make([]float32, 480)
		for i := range frame {
			frame[i] = 1.0
		}
		res := d.ProcessFrame(frame, 48000)
		assert.Equal(t, 1.0, res.Confidence)
		assert.True(t, res.VoiceDetected)
	})

	t.Run("empty frame", func(t *testing.T) {
		res := d.ProcessFrame(nil, 48000)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
	})
}

func TestProcessFrame_Hangover(t *testing.T) {
	d, clock := newTestDetector(0.5, 300*time.Millisecond, ModeAuto)
	d.Start()

	res := d.ProcessFrame(loudFrame(480), 48000)
	require.True(t, res.VoiceDetected)

	// Silent frames inside the hangover window stay voice.
	silent := make([]float32, 480)
	for i := 0; i < 3; i++ {
		clock.Advance(90 * time.Millisecond)
		res = d.ProcessFrame(silent, 48000)
		assert.True(t, res.VoiceDetected, "frame %d within hangover", i)
		assert.Greater(t, res.SegmentMS, int64(0))
	}

	// Past the timeout the segment ends and duration resets.
	clock.Advance(time.Second)
	res = d.ProcessFrame(silent, 48000)
	assert.False(t, res.VoiceDetected)
	assert.Zero(t, res.SegmentMS)
}

func TestProcessFrame_SegmentDuration(t *testing.T) {
	d, clock := newTestDetector(0.5, time.Second, ModeAuto)
	d.Start()

	d.ProcessFrame(loudFrame(480), 48000)
	clock.Advance(250 * time.Millisecond)
	res := d.ProcessFrame(loudFrame(480), 48000)
	assert.Equal(t, int64(250), res.SegmentMS)
}

func TestProcessFrame_GateMasksOutput(t *testing.T) {
	d, clock := newTestDetector(0.5, time.Second, ModePushToTalk)
	d.Start()

	// Gate closed: loud audio is not reported.
	res := d.ProcessFrame(loudFrame(480), 48000)
	assert.False(t, res.VoiceDetected)

	d.SetGate(true)
	res = d.ProcessFrame(loudFrame(480), 48000)
	assert.True(t, res.VoiceDetected)

	// Closing the gate clears the in-progress segment immediately.
	d.SetGate(false)
	d.SetGate(true)
	clock.Advance(10 * time.Millisecond)
	res = d.ProcessFrame(loudFrame(480), 48000)
	assert.True(t, res.VoiceDetected)
	assert.Zero(t, res.SegmentMS, "segment restarts after gate close")
}

func TestProcessFrame_AutoModeIgnoresGate(t *testing.T) {
	d, _ := newTestDetector(0.5, time.Second, ModeAuto)
	d.Start()

	res := d.ProcessFrame(loudFrame(480), 48000)
	assert.True(t, res.VoiceDetected, "auto mode detects voice with the gate closed")
}

func TestStop_PreservesThreshold(t *testing.T) {
	d, _ := newTestDetector(0.2, time.Second, ModeAuto)
	d.Start()

	// Loud frames push the adaptive threshold up.
	for i := 0; i < 50; i++ {
		d.ProcessFrame(loudFrame(480), 48000)
	}
	adapted := d.Threshold()
	require.Greater(t, adapted, minThreshold+(1-0.2)*(maxThreshold-minThreshold))

	d.Stop()
	d.Start()
	assert.Equal(t, adapted, d.Threshold(), "threshold survives stop/start")
}

func TestAdapt_TracksRisingNoiseWithinBounds(t *testing.T) {
	d, _ := newTestDetector(1.0, time.Second, ModeAuto)
	d.Start()

	for i := 0; i < 10000; i++ {
		d.ProcessFrame(loudFrame(16), 48000)
	}
	assert.LessOrEqual(t, d.Threshold(), adaptCeil)

	// Silence does not pull the threshold below the floor.
	for i := 0; i < 10000; i++ {
		d.ProcessFrame(make([]float32, 16), 48000)
	}
	assert.GreaterOrEqual(t, d.Threshold(), adaptFloor)
}

func TestFrameEnergy(t *testing.T) {
	assert.Zero(t, frameEnergy(nil))
	assert.InDelta(t, 0.25, frameEnergy([]float32{0.5, -0.5}), 1e-9)
}
