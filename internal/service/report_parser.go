package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidAIResponse = errors.New("AI response could not be parsed")

const reportSchemaURL = "https://tos-scan.local/schemas/report.schema.json"

const reportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["score", "grade", "summary", "risks"],
  "properties": {
    "score": {"type": "integer", "minimum": 0, "maximum": 100},
    "grade": {"type": "string", "enum": ["A", "B", "C", "D", "E", "F"]},
    "summary": {"type": "string", "minLength": 1},
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "severity"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
          "clause": {"type": "string"},
          "explanation": {"type": "string"}
        }
      }
    },
    "highlights": {"type": "array", "items": {"type": "string"}}
  }
}`

// Risk 文档中的一条风险条款
type Risk struct {
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Clause      string `json:"clause,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// Report AI 输出经校验后的结构化结果
type Report struct {
	Score      int      `json:"score"`
	Grade      string   `json:"grade"`
	Summary    string   `json:"summary"`
	Risks      []Risk   `json:"risks"`
	Highlights []string `json:"highlights,omitempty"`
}

var (
	reportSchemaOnce     sync.Once
	compiledReportSchema *jsonschema.Schema
	reportSchemaErr      error
)

func loadReportSchema() (*jsonschema.Schema, error) {
	reportSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(reportSchemaURL, strings.NewReader(reportSchema)); err != nil {
			reportSchemaErr = fmt.Errorf("load report schema: %w", err)
			return
		}
		compiledReportSchema, reportSchemaErr = c.Compile(reportSchemaURL)
	})
	return compiledReportSchema, reportSchemaErr
}

// ParseReport 去掉 markdown 代码块，取出最外层 JSON 对象并按 schema 校验
func ParseReport(raw string) (*Report, []byte, error) {
	body := extractJSONObject(stripCodeFence(raw))
	if body == "" {
		return nil, nil, fmt.Errorf("%w: no json object found", ErrInvalidAIResponse)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAIResponse, err)
	}

	schema, err := loadReportSchema()
	if err != nil {
		return nil, nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAIResponse, err)
	}

	var report Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAIResponse, err)
	}
	if report.Risks == nil {
		report.Risks = []Risk{}
	}

	normalized, err := json.Marshal(report)
	if err != nil {
		return nil, nil, err
	}
	return &report, normalized, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 语言标记，例如 ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
