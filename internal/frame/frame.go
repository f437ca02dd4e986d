// Package frame converts between seconds, frame indexes and timeline fractions.
// Every function is pure; frame rates are treated as hints, so results are
// clamped rather than assumed exact.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// DefaultFPS is used when the media frame rate cannot be detected.
const DefaultFPS = 30.0

// epsilon absorbs float error so that FrameToSeconds(f) maps back to f.
const epsilon = 1e-7

// Static errors for frame conversions.
var (
	// ErrDivisionByZero is returned when a fraction is requested for a zero duration.
	ErrDivisionByZero = errors.New("frame: division by zero duration")
	// ErrInvalidDuration is returned when a mapper is built with a non-positive duration.
	ErrInvalidDuration = errors.New("frame: duration must be positive")
	// ErrInvalidFPS is returned when a mapper is built with a non-positive frame rate.
	ErrInvalidFPS = errors.New("frame: frame rate must be positive")
	// ErrInvalidClock is returned by ParseClock for malformed input.
	ErrInvalidClock = errors.New("frame: invalid clock value")
)

// TotalFrames returns floor(duration*fps), never less than one for positive input.
func TotalFrames(duration, fps float64) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	n := int(math.Floor(duration * fps))
	if n < 1 {
		return 1
	}
	return n
}

// SecondsToFrame returns floor(t*fps) clamped to [0, totalFrames-1].
// NaN maps to frame 0.
func SecondsToFrame(t, fps float64, totalFrames int) int {
	if totalFrames <= 0 || fps <= 0 || math.IsNaN(t) {
		return 0
	}
	f := int(math.Floor(t*fps + epsilon))
	return lo.Clamp(f, 0, totalFrames-1)
}

// FrameToSeconds returns f/fps.
func FrameToSeconds(f int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(f) / fps
}

// SecondsToFraction returns t/duration clamped to [0, 1].
// t == duration yields exactly 1.
func SecondsToFraction(t, duration float64) (float64, error) {
	if duration == 0 {
		return 0, ErrDivisionByZero
	}
	if t >= duration {
		return 1, nil
	}
	if t <= 0 || math.IsNaN(t) {
		return 0, nil
	}
	return t / duration, nil
}

// FractionToSeconds returns p*duration with p clamped to [0, 1].
func FractionToSeconds(p, duration float64) float64 {
	if p >= 1 {
		return duration
	}
	if p <= 0 {
		return 0
	}
	return p * duration
}

// Mapper bundles the conversions for one loaded media handle.
type Mapper struct {
	Duration float64
	FPS      float64
	total    int
}

// NewMapper creates a Mapper for the given duration and frame rate.
func NewMapper(duration, fps float64) (Mapper, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Mapper{}, fmt.Errorf("%w: got %v", ErrInvalidDuration, duration)
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Mapper{}, fmt.Errorf("%w: got %v", ErrInvalidFPS, fps)
	}
	return Mapper{Duration: duration, FPS: fps, total: TotalFrames(duration, fps)}, nil
}

// TotalFrames returns the number of addressable frames.
func (m Mapper) TotalFrames() int {
	return m.total
}

// LastFrame returns the index of the last addressable frame.
func (m Mapper) LastFrame() int {
	return m.total - 1
}

// ClampTime clamps t to [0, duration].
func (m Mapper) ClampTime(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return lo.Clamp(t, 0, m.Duration)
}

// ClampFrame clamps f to [0, totalFrames-1].
func (m Mapper) ClampFrame(f int) int {
	return lo.Clamp(f, 0, m.LastFrame())
}

// FrameAt returns the frame displayed at t.
func (m Mapper) FrameAt(t float64) int {
	return SecondsToFrame(t, m.FPS, m.total)
}

// TimeOf returns the start time of frame f, after clamping f.
func (m Mapper) TimeOf(f int) float64 {
	return FrameToSeconds(m.ClampFrame(f), m.FPS)
}

// Fraction returns the timeline fraction of t.
func (m Mapper) Fraction(t float64) float64 {
	p, err := SecondsToFraction(t, m.Duration)
	if err != nil {
		return 0
	}
	return p
}

// TimeAtFraction returns the time at timeline fraction p.
func (m Mapper) TimeAtFraction(p float64) float64 {
	return FractionToSeconds(p, m.Duration)
}

// PixelToFraction converts an x offset on a track of the given rendered width
// to a fraction clamped to [0, 1]. A non-positive width maps everything to 0.
func PixelToFraction(x, width float64) float64 {
	if width <= 0 || math.IsNaN(x) {
		return 0
	}
	return lo.Clamp(x/width, 0, 1)
}

// FormatClock renders seconds as HH:MM:SS, truncating sub-second precision.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// ParseClock reads "SS[.frac]", "MM:SS[.frac]" or "HH:MM:SS[.frac]".
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if s == "" || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		// only the last field may carry a fraction, and minutes/seconds stay below 60
		last := i == len(parts)-1
		if !last && v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		total = total*60 + v
	}
	return total, nil
}
