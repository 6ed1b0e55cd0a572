// Package assets embeds the prompt text sent to the report-generation model.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// RiskReportSystemPrompt is the persona preamble for risk report generation.
//
//go:embed prompts/risk-report-system.txt
var RiskReportSystemPrompt string

//go:embed prompts/risk-report.txt
var riskReportTemplate string

// template.Must catches a malformed template at startup.
var riskReportTmpl = template.Must(template.New("risk-report").Parse(riskReportTemplate))

// RiskReportData holds the dynamic data injected into the risk report prompt.
type RiskReportData struct {
	SystemPrompt      string
	EmotionsJSON      string
	SampleSize        int
	TotalObservations int
	Transcript        string
	SentimentJSON     string
}

// RenderRiskReportPrompt renders the risk report prompt. An empty SystemPrompt
// defaults to RiskReportSystemPrompt.
func RenderRiskReportPrompt(data RiskReportData) string {
	if data.SystemPrompt == "" {
		data.SystemPrompt = RiskReportSystemPrompt
	}
	var buf bytes.Buffer
	// The template only references fields of RiskReportData, so execution
	// cannot fail on missing keys.
	_ = riskReportTmpl.Execute(&buf, data)
	return buf.String()
}
