package service

import (
	"bytes"
	"fmt"
	"text/template"
)

var documentTypeLabels = map[string]string{
	"terms_of_service": "terms of service",
	"privacy_policy":   "privacy policy",
	"contract":         "contract",
	"other":            "legal document",
}

const promptTemplate = `You are a consumer-protection lawyer reviewing a {{.DocumentType}}{{if .Title}} titled "{{.Title}}"{{end}}.
Score how fair the document is to the end user from 0 (hostile) to 100 (very fair) and assign a grade from A to F.

Respond with a single JSON object and nothing else, using this shape:
{"score": <integer 0-100>, "grade": "<A-F>", "summary": "<two or three sentences>",
 "risks": [{"title": "...", "severity": "low|medium|high|critical", "clause": "<quoted text>", "explanation": "..."}],
 "highlights": ["<user-friendly terms worth noting>"]}
{{if .Advanced}}
Go clause by clause. Flag arbitration and class-action waivers, unilateral changes, data sharing with third parties,
automatic renewals, liability caps and termination rights. Quote the exact clause for every risk.
{{end}}
Document:
"""
{{.Text}}
"""
`

var promptTmpl = template.Must(template.New("prompt").Parse(promptTemplate))

type promptData struct {
	DocumentType string
	Title        string
	Advanced     bool
	Text         string
}

// RenderPrompt advanced 为 true 时附加逐条审查要求
func RenderPrompt(documentType, title, text string, advanced bool) (string, error) {
	label, ok := documentTypeLabels[documentType]
	if !ok {
		label = documentTypeLabels["other"]
	}

	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, promptData{
		DocumentType: label,
		Title:        title,
		Advanced:     advanced,
		Text:         text,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
