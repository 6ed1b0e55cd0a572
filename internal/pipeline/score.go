package pipeline

import (
	"math"
	"regexp"
	"strconv"

	"github.com/fpang/video-risk-analyzer/internal/jsonutil"
)

// DefaultRiskScore is used when no score can be read from a report.
const DefaultRiskScore = 50

// riskScorePattern matches "RISK SCORE: 75", "**Risk score** - 75",
// "Risk Score (0-100): 75", "risk score of 75" and the Portuguese
// "SCORE DE RISCO: 75". The "(0-100)" range is skipped, never read as the
// score.
var riskScorePattern = regexp.MustCompile(
	`(?i)(?:risk\s+score|score\s+de\s+risco)[\s*:=\-]*(?:\(\s*0\s*-\s*100\s*\)[\s*:=\-]*)?(?:(?:of|is)\b[\s*:=\-]*)?(\d{1,3})`)

type scoreDocument struct {
	RiskScore      *float64 `json:"riskScore"`
	RiskScoreSnake *float64 `json:"risk_score"`
}

// ExtractRiskScore reads the numeric risk score from a narrative report.
// It tries the labelled score first, then a JSON riskScore/risk_score
// field, and otherwise returns DefaultRiskScore. The result is clamped to
// 0..100. It never fails.
func ExtractRiskScore(report string) int {
	if m := riskScorePattern.FindStringSubmatch(report); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return clampScore(float64(n))
		}
	}
	if doc, err := jsonutil.ParseObject[scoreDocument](report); err == nil {
		switch {
		case doc.RiskScore != nil:
			return clampScore(*doc.RiskScore)
		case doc.RiskScoreSnake != nil:
			return clampScore(*doc.RiskScoreSnake)
		}
	}
	return DefaultRiskScore
}

func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
