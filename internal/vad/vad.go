// Package vad implements voice activity detection over fixed-size frames of
// normalized audio samples. Detection uses adaptive energy thresholding with
// a hangover period so trailing speech is not clipped.
//
// A Detector is stateful and sequential: it must only be used from the
// goroutine that delivers capture frames. ProcessFrame is non-blocking and
// allocation-free, making it suitable for the real-time capture path.
package vad

import "time"

// Mode selects how voice detection gates recording.
type Mode string

const (
	// ModeAuto gates recording on detected voice automatically.
	ModeAuto Mode = "auto"
	// ModePushToTalk only reports voice while the gate is held open.
	ModePushToTalk Mode = "push-to-talk"
	// ModeToggle only reports voice while the gate is toggled open.
	ModeToggle Mode = "toggle"
)

// Threshold bounds. The sensitivity mapping stays within [minThreshold,
// maxThreshold]; adaptation may drift further but is clamped to
// [adaptFloor, adaptCeil].
const (
	minThreshold = 5e-4
	maxThreshold = 1e-2
	adaptFloor   = 1e-5
	adaptCeil    = 5e-2

	// adaptAlpha is the one-sided tracking rate: the threshold rises to
	// follow rising ambient noise and never falls on its own, biasing
	// toward not losing real speech.
	adaptAlpha = 0.01
)

// Result is the classification of a single audio frame. Produced fresh per
// frame and never persisted.
type Result struct {
	// VoiceDetected reports whether the frame is classified as voice,
	// including frames held by the hangover period.
	VoiceDetected bool
	// Confidence is the relative energy score in [0, 1].
	Confidence float64
	// Timestamp is when the frame was classified.
	Timestamp time.Time
	// SegmentMS is the elapsed milliseconds of the current contiguous
	// voice segment, or 0 if no segment is open.
	SegmentMS int64
}

// Detector classifies audio frames as voice or silence.
type Detector struct {
	sensitivity float64
	hangover    time.Duration
	mode        Mode

	active   bool
	gateOpen bool

	threshold    float64
	lastVoice    time.Time
	segmentStart time.Time

	// now is the clock used for hangover timing. Overridable in tests.
	now func() time.Time
}

// NewDetector creates a detector with the given sensitivity (clamped to
// [0, 1]), hangover timeout and operating mode. The detector starts
// inactive.
func NewDetector(sensitivity float64, hangover time.Duration, mode Mode) *Detector {
	d := &Detector{
		hangover: hangover,
		mode:     mode,
		now:      time.Now,
	}
	d.SetSensitivity(sensitivity)
	return d
}

// Start enables frame classification and clears any in-progress segment.
// The learned energy threshold is kept so the noise floor does not need to
// be re-learned across stop/start cycles.
func (d *Detector) Start() {
	d.active = true
	d.lastVoice = time.Time{}
	d.segmentStart = time.Time{}
}

// Stop disables frame classification. The adapted threshold persists.
func (d *Detector) Stop() {
	d.active = false
}

// Active reports whether the detector is processing frames.
func (d *Detector) Active() bool {
	return d.active
}

// SetSensitivity clamps s to [0, 1] and recomputes the energy threshold.
// Higher sensitivity lowers the threshold, making voice easier to detect.
func (d *Detector) SetSensitivity(s float64) {
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	d.sensitivity = s
	d.threshold = minThreshold + (1-s)*(maxThreshold-minThreshold)
}

// Sensitivity returns the current sensitivity.
func (d *Detector) Sensitivity() float64 {
	return d.sensitivity
}

// Threshold returns the current energy threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// SetMode changes the operating mode.
func (d *Detector) SetMode(mode Mode) {
	d.mode = mode
}

// Mode returns the current operating mode.
func (d *Detector) Mode() Mode {
	return d.mode
}

// SetGate opens or closes the manual gate used by push-to-talk and toggle
// modes. Closing the gate immediately clears in-progress segment state.
func (d *Detector) SetGate(open bool) {
	d.gateOpen = open
	if !open {
		d.segmentStart = time.Time{}
		d.lastVoice = time.Time{}
	}
}

// GateOpen reports whether the manual gate is open.
func (d *Detector) GateOpen() bool {
	return d.gateOpen
}

// ProcessFrame classifies one frame of normalized mono samples. It never
// fails: degenerate inputs such as an empty frame yield energy 0, which
// naturally resolves to no-voice. The sampleRate parameter is accepted for
// interface symmetry with capture backends; timing uses the wall clock.
func (d *Detector) ProcessFrame(samples []float32, sampleRate int) Result {
	_ = sampleRate

	if !d.active {
		return Result{Timestamp: d.now()}
	}
	if (d.mode == ModePushToTalk || d.mode == ModeToggle) && !d.gateOpen {
		return Result{Timestamp: d.now()}
	}

	now := d.now()
	energy := frameEnergy(samples)
	voice := energy >= d.threshold

	if voice {
		if d.segmentStart.IsZero() {
			d.segmentStart = now
		}
		d.lastVoice = now
	} else if !d.lastVoice.IsZero() {
		if now.Sub(d.lastVoice) <= d.hangover {
			// Within the hangover window: still report voice but do
			// not refresh the last-voice timestamp.
			voice = true
		} else {
			d.segmentStart = time.Time{}
			d.lastVoice = time.Time{}
		}
	}

	var segmentMS int64
	if !d.segmentStart.IsZero() {
		segmentMS = now.Sub(d.segmentStart).Milliseconds()
	}

	confidence := 0.0
	if d.threshold > 0 {
		confidence = energy / (d.threshold * 4)
		if confidence > 1 {
			confidence = 1
		}
	}

	d.adapt(energy)

	return Result{
		VoiceDetected: voice,
		Confidence:    confidence,
		Timestamp:     now,
		SegmentMS:     segmentMS,
	}
}

// adapt moves the threshold toward the observed energy with a one-sided
// tracking filter, then clamps it to sane bounds.
func (d *Detector) adapt(energy float64) {
	target := energy
	if d.threshold > target {
		target = d.threshold
	}
	d.threshold = (1-adaptAlpha)*d.threshold + adaptAlpha*target
	if d.threshold < adaptFloor {
		d.threshold = adaptFloor
	} else if d.threshold > adaptCeil {
		d.threshold = adaptCeil
	}
}

// frameEnergy computes the mean of squared sample values.
func frameEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return sum / float64(len(samples))
}
