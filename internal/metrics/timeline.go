package metrics

import (
	"sort"
	"time"

	"kbdash/internal/models"
)

const (
	// DefaultTimelinePoints controls how many buckets the connectivity strip shows.
	DefaultTimelinePoints = 60
	maxDetailsPerPoint    = 4
)

// BuildTimeline reduces probe results into compact timeline buckets.
// A bucket without probes inherits the previous result while it is recent
// enough, otherwise it is reported as missing.
func BuildTimeline(entries []models.ProbeResult, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.ProbeResult, 0, len(entries))
	for _, entry := range entries {
		if entry.CheckedAt.IsZero() {
			continue
		}
		samples = append(samples, entry)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].CheckedAt.Before(samples[j].CheckedAt)
	})

	bucket := end.Sub(start) / time.Duration(points)
	if bucket <= 0 {
		bucket = time.Minute
	}
	gap := probeGap(samples)

	result := make([]models.TimelinePoint, 0, points)
	idx := 0
	var last models.ProbeResult
	haveLast := false
	for idx < len(samples) && samples[idx].CheckedAt.Before(start) {
		last = samples[idx]
		haveLast = true
		idx++
	}

	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucket)
		bucketEnd := bucketStart.Add(bucket)
		if i == points-1 {
			bucketEnd = end
		}
		point := models.TimelinePoint{State: "missing", Label: "No data", Start: bucketStart, End: bucketEnd}

		var inBucket []models.ProbeResult
		for idx < len(samples) && !samples[idx].CheckedAt.After(bucketEnd) {
			inBucket = append(inBucket, samples[idx])
			last = samples[idx]
			haveLast = true
			idx++
		}

		switch {
		case len(inBucket) > 0:
			point.State, point.Label = classify(inBucket)
			for _, s := range inBucket {
				if s.OK || len(point.Details) >= maxDetailsPerPoint {
					continue
				}
				point.Details = append(point.Details, detail(s))
			}
		case haveLast && bucketStart.Sub(last.CheckedAt) <= gap:
			point.State, point.Label = classify([]models.ProbeResult{last})
			if !last.OK {
				d := detail(last)
				d.Timestamp = bucketStart
				point.Details = []models.TimelineDetail{d}
			}
		}
		result = append(result, point)
	}
	return result
}

// classify marks a bucket down if any probe in it failed.
func classify(samples []models.ProbeResult) (state, label string) {
	failed, passed := 0, 0
	for _, s := range samples {
		if s.OK {
			passed++
		} else {
			failed++
		}
	}
	switch {
	case failed > 0 && passed > 0:
		return "degraded", "Intermittent"
	case failed > 0:
		return string(models.StateDisconnected), "Unreachable"
	default:
		return string(models.StateConnected), "Reachable"
	}
}

func detail(s models.ProbeResult) models.TimelineDetail {
	return models.TimelineDetail{
		Timestamp: s.CheckedAt,
		Cause:     string(s.Cause),
		Error:     s.Error,
	}
}

// probeGap derives how long a result stays representative from the median
// spacing between probes.
func probeGap(samples []models.ProbeResult) time.Duration {
	const defaultGap = 5 * time.Minute
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if d := samples[i].CheckedAt.Sub(samples[i-1].CheckedAt); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	gap := diffs[len(diffs)/2] * 2
	if gap < time.Minute {
		return time.Minute
	}
	if gap > 2*time.Hour {
		return 2 * time.Hour
	}
	return gap
}
