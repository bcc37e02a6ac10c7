package focus

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/loopdetect"
	"github.com/teslashibe/go-focus/pkg/pose"
)

// Config holds every tunable of the engine. The zero value is not usable;
// start from DefaultConfig and override fields.
type Config struct {
	Loop     loopdetect.Config `yaml:"loop"`
	Pose     pose.Config       `yaml:"pose"`
	Gaze     gaze.Config       `yaml:"gaze"`
	Device   device.Config     `yaml:"device"`
	Primary  PrimaryTable      `yaml:"primary"`
	Fallback FallbackTable     `yaml:"fallback"`

	// === Session ===
	// PreviousWeight is the share of the previous focus score kept each frame.
	PreviousWeight float64       `yaml:"previous_weight"`
	AwayAlertAfter time.Duration `yaml:"away_alert_after"`
}

// PrimaryTable scores frames analyzed from dense landmarks.
type PrimaryTable struct {
	// === Multiple faces ===
	// MultiFacePenalty is deducted per extra face, up to MultiFaceCap.
	MultiFacePenalty float64 `yaml:"multi_face_penalty"`
	MultiFaceCap     float64 `yaml:"multi_face_cap"`

	// === Head pose ===
	// Degrees past the deadband cost Scale points each, up to Cap.
	// An absolute angle beyond Alert raises a named alert.
	PitchDeadband float64 `yaml:"pitch_deadband"`
	YawDeadband   float64 `yaml:"yaw_deadband"`
	RollDeadband  float64 `yaml:"roll_deadband"`
	PitchScale    float64 `yaml:"pitch_scale"`
	YawScale      float64 `yaml:"yaw_scale"`
	RollScale     float64 `yaml:"roll_scale"`
	PitchCap      float64 `yaml:"pitch_cap"`
	YawCap        float64 `yaml:"yaw_cap"`
	RollCap       float64 `yaml:"roll_cap"`
	PitchAlert    float64 `yaml:"pitch_alert"`
	YawAlert      float64 `yaml:"yaw_alert"`
	RollAlert     float64 `yaml:"roll_alert"`

	// === Gaze ===
	HorizontalOffPenalty   float64 `yaml:"horizontal_off_penalty"`
	HorizontalDriftPenalty float64 `yaml:"horizontal_drift_penalty"`
	VerticalOffPenalty     float64 `yaml:"vertical_off_penalty"`
	VerticalDriftPenalty   float64 `yaml:"vertical_drift_penalty"`

	// === Device ===
	DevicePenalty float64 `yaml:"device_penalty"`
}

// FallbackTable scores frames analyzed with the cascade detectors only.
type FallbackTable struct {
	NoFaceScore   float64 `yaml:"no_face_score"`
	ProfileScore  float64 `yaml:"profile_score"`
	FrontalScore  float64 `yaml:"frontal_score"`
	TwoEyesBonus  float64 `yaml:"two_eyes_bonus"`
	OneEyeBonus   float64 `yaml:"one_eye_bonus"`
	NoEyesPenalty float64 `yaml:"no_eyes_penalty"`

	MultiFacePenalty float64 `yaml:"multi_face_penalty"`
	MultiFaceCap     float64 `yaml:"multi_face_cap"`
	DevicePenalty    float64 `yaml:"device_penalty"`
}

// DefaultConfig returns the tuned production configuration.
func DefaultConfig() Config {
	return Config{
		Loop:   loopdetect.DefaultConfig(),
		Pose:   pose.DefaultConfig(),
		Gaze:   gaze.DefaultConfig(),
		Device: device.DefaultConfig(),
		Primary: PrimaryTable{
			MultiFacePenalty: 30,
			MultiFaceCap:     70,

			PitchDeadband: 8,
			YawDeadband:   10,
			RollDeadband:  12,
			PitchScale:    1.1,
			YawScale:      1.1,
			RollScale:     0.75,
			PitchCap:      30,
			YawCap:        30,
			RollCap:       18,
			PitchAlert:    28,
			YawAlert:      32,
			RollAlert:     28,

			HorizontalOffPenalty:   22,
			HorizontalDriftPenalty: 10,
			VerticalOffPenalty:     18,
			VerticalDriftPenalty:   8,

			DevicePenalty: 40,
		},
		// Tuned separately from the primary table; the device penalty
		// differs on purpose.
		Fallback: FallbackTable{
			NoFaceScore:   10,
			ProfileScore:  15,
			FrontalScore:  65,
			TwoEyesBonus:  15,
			OneEyeBonus:   5,
			NoEyesPenalty: 10,

			MultiFacePenalty: 30,
			MultiFaceCap:     70,
			DevicePenalty:    35,
		},
		PreviousWeight: 0.3,
		AwayAlertAfter: 5 * time.Second,
	}
}

// Validate checks the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errors = append(errors, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}
	positive := func(name string, v float64) {
		if v <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive", name))
		}
	}

	// Loop detector
	if c.Loop.Window <= 0 {
		errors = append(errors, "loop.window must be positive")
	}
	if c.Loop.MinDuration < 0 || c.Loop.MinDuration > c.Loop.Window {
		errors = append(errors, "loop.min_duration must be between 0 and loop.window")
	}
	if c.Loop.MinSamples < 1 {
		errors = append(errors, "loop.min_samples must be at least 1")
	}
	if c.Loop.ToleranceBits < 0 || c.Loop.ToleranceBits > loopdetect.HashBits {
		errors = append(errors, fmt.Sprintf("loop.tolerance_bits must be between 0 and %d", loopdetect.HashBits))
	}
	positive("loop.reuse_span", c.Loop.ReuseSpan)
	unit("loop.idle_decay", c.Loop.IdleDecay)
	unit("loop.score_momentum", c.Loop.ScoreMomentum)
	unit("loop.detect_threshold", c.Loop.DetectThreshold)

	// Smoothing
	unit("pose.alpha", c.Pose.Alpha)
	positive("pose.max_step", c.Pose.MaxStep)
	unit("pose.failure_decay", c.Pose.FailureDecay)
	unit("gaze.alpha", c.Gaze.Alpha)
	positive("gaze.max_step", c.Gaze.MaxStep)
	unit("device.alpha", c.Device.Alpha)
	unit("device.idle_alpha", c.Device.IdleAlpha)
	unit("device.min_confidence", c.Device.MinConfidence)
	unit("device.threshold", c.Device.Threshold)

	// Gaze bounds must nest: hard contains soft.
	for _, b := range []struct {
		name       string
		soft, hard gaze.Bounds
	}{
		{"horizontal", c.Gaze.HorizontalSoft, c.Gaze.HorizontalHard},
		{"vertical", c.Gaze.VerticalSoft, c.Gaze.VerticalHard},
	} {
		if b.soft.Min > b.soft.Max || b.hard.Min > b.soft.Min || b.hard.Max < b.soft.Max {
			errors = append(errors, fmt.Sprintf("gaze.%s bounds must satisfy hard.min <= soft.min <= soft.max <= hard.max", b.name))
		}
	}

	// Session
	unit("previous_weight", c.PreviousWeight)
	if c.AwayAlertAfter <= 0 {
		errors = append(errors, "away_alert_after must be positive")
	}

	return errors
}
