// Package frames picks the moments of a video that best illustrate its risk
// assessment and turns them into stored, linkable still images.
package frames

import (
	"math"
	"sort"

	"github.com/fpang/video-risk-analyzer/internal/analysis"
)

// DefaultFrameCount is the number of frames selected when no count is given.
const DefaultFrameCount = 6

// Risk score thresholds.
const (
	HighRiskThreshold = 70
	LowRiskThreshold  = 30
)

var (
	highRiskEmotions = map[string]bool{
		analysis.EmotionFear:      true,
		analysis.EmotionSadness:   true,
		analysis.EmotionAngry:     true,
		analysis.EmotionConfused:  true,
		analysis.EmotionSurprised: true,
	}
	lowRiskEmotions = map[string]bool{
		analysis.EmotionCalm:  true,
		analysis.EmotionHappy: true,
	}
)

// Select chooses up to count observations to illustrate a report with the
// given risk score. No two selected observations fall on the same rounded
// second. The input is never modified and the result depends only on the
// arguments. A count of zero or less selects DefaultFrameCount.
//
// For a high score the high-risk emotions are taken in video order; when
// there are none, every observation is considered from least to most
// confident. For a low score the calm and happy observations are taken from
// most to least confident. Otherwise observations are taken in video order.
func Select(obs []analysis.EmotionObservation, riskScore, count int) []analysis.EmotionObservation {
	if len(obs) == 0 {
		return []analysis.EmotionObservation{}
	}
	if count <= 0 {
		count = DefaultFrameCount
	}

	var pool []analysis.EmotionObservation
	switch {
	case riskScore >= HighRiskThreshold:
		pool = filter(obs, highRiskEmotions)
		if len(pool) == 0 {
			pool = append([]analysis.EmotionObservation(nil), obs...)
			sort.SliceStable(pool, func(i, j int) bool { return pool[i].Confidence < pool[j].Confidence })
		}
	case riskScore <= LowRiskThreshold:
		pool = filter(obs, lowRiskEmotions)
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Confidence > pool[j].Confidence })
	default:
		pool = obs
	}

	selected := make([]analysis.EmotionObservation, 0, min(count, len(pool)))
	seen := make(map[float64]bool, count)
	for _, o := range pool {
		if len(selected) == count {
			break
		}
		sec := Second(o.TimestampMillis)
		if seen[sec] {
			continue
		}
		seen[sec] = true
		selected = append(selected, o)
	}
	return selected
}

// Second rounds a millisecond timestamp to the nearest whole second.
func Second(ms float64) float64 {
	return math.Round(ms / 1000)
}

func filter(obs []analysis.EmotionObservation, set map[string]bool) []analysis.EmotionObservation {
	var out []analysis.EmotionObservation
	for _, o := range obs {
		if set[o.Emotion] {
			out = append(out, o)
		}
	}
	return out
}
