package flight

import "errors"

// ErrNoActiveSegment is reported when no part of the log satisfies the
// activation threshold and minimum duration criteria. It is a condition,
// not a failure: callers should produce an "insufficient data" result.
var ErrNoActiveSegment = errors.New("no active flight detected")

// SegmentConfig controls flight segment detection.
type SegmentConfig struct {
	ActivationThreshold float64 // Throttle level above which flight is active (raw RC units)
	Hysteresis          float64 // Margin around the threshold to suppress boundary flutter
	MinDuration         float64 // Minimum segment duration in seconds
	MaxGap              float64 // Timestamp gap that forcibly ends a segment, seconds
	Debounce            float64 // Time the throttle must stay low before a segment ends, seconds
}

// DefaultSegmentConfig returns detection defaults suitable for Betaflight
// logs with 1000-2000 RC throttle units.
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		ActivationThreshold: 1300,
		Hysteresis:          25,
		MinDuration:         5.0,
		MaxGap:              0.5,
		Debounce:            0.25,
	}
}

// DetectSegments partitions the series into active flight segments.
//
// A segment opens when throttle rises above threshold+hysteresis and closes
// when throttle has stayed below threshold-hysteresis for longer than the
// debounce window (the segment ends where the throttle first dropped, not
// where the debounce expired). A timestamp gap larger than MaxGap closes the
// segment at the gap unconditionally. Segments shorter than MinDuration are
// discarded.
//
// The returned segments are non-overlapping and ordered by start time. An
// empty result means no qualifying activity; callers decide whether that is
// ErrNoActiveSegment.
func DetectSegments(ts *TimeSeries, cfg SegmentConfig) []Segment {
	if ts.Len() == 0 {
		return nil
	}

	high := cfg.ActivationThreshold + cfg.Hysteresis
	low := cfg.ActivationThreshold - cfg.Hysteresis

	var segments []Segment
	active := false
	start := 0
	dropIdx := -1 // index where throttle first fell below the low threshold

	closeSegment := func(end int) {
		seg := Segment{Series: ts, Start: start, End: end}
		if seg.Len() >= 2 && seg.Duration() >= cfg.MinDuration {
			segments = append(segments, seg)
		}
		active = false
		dropIdx = -1
	}

	for i := 0; i < ts.Len(); i++ {
		if active && i > start {
			if gap := ts.Time[i] - ts.Time[i-1]; gap > cfg.MaxGap {
				// The samples around a recording gap cannot be trusted to
				// belong to one continuous manoeuvre.
				closeSegment(i)
			}
		}

		thr := ts.Throttle[i]
		switch {
		case !active:
			if thr > high {
				active = true
				start = i
				dropIdx = -1
			}

		case thr < low:
			if dropIdx < 0 {
				dropIdx = i
			}
			if ts.Time[i]-ts.Time[dropIdx] > cfg.Debounce {
				closeSegment(dropIdx)
			}

		default:
			// Back above the low threshold before the debounce expired;
			// the drop was flutter.
			dropIdx = -1
		}
	}

	if active {
		end := ts.Len()
		if dropIdx >= 0 {
			end = dropIdx
		}
		closeSegment(end)
	}

	return segments
}
