// Package complexity 根据词法特征估算法律文本的复杂度，结果位于 [0,1]。
package complexity

import (
	"math"
	"regexp"
	"unicode/utf8"
)

var (
	legalTermPattern   = regexp.MustCompile(`(?i)\b(liability|indemnif\w*|warrant\w*|arbitration|jurisdiction|termination|governing\s+law|confidential\w*|intellectual\s+property|breach|damages|limitation|waiver|severab\w*|force\s+majeure|hereby|herein|thereof|pursuant|notwithstanding)\b`)
	sectionPattern     = regexp.MustCompile(`(?im)(\b(?:section|article)\s+\d+|§|^\s*\d+\.\d+)`)
	definitionPattern  = regexp.MustCompile(`(?i)("[^"\n]+"\s+means\b|\bshall\s+mean\b|\bdefined\s+as\b|\brefers\s+to\b)`)
	conditionalPattern = regexp.MustCompile(`(?i)\b(if|unless|provided\s+that|subject\s+to|in\s+the\s+event|except)\b`)
)

type indicator struct {
	pattern   *regexp.Regexp
	threshold float64
	weight    float64
}

var indicators = []indicator{
	{legalTermPattern, 20, 0.3},
	{sectionPattern, 10, 0.2},
	{definitionPattern, 10, 0.1},
	{conditionalPattern, 15, 0.1},
}

const (
	lengthThreshold = 10000
	lengthWeight    = 0.3
)

// Estimate 为纯函数，空文本返回 0
func Estimate(text string) float64 {
	if text == "" {
		return 0
	}

	score := capped(float64(utf8.RuneCountInString(text)), lengthThreshold) * lengthWeight
	for _, ind := range indicators {
		n := len(ind.pattern.FindAllStringIndex(text, -1))
		score += capped(float64(n), ind.threshold) * ind.weight
	}

	return math.Min(score, 1.0)
}

func capped(n, threshold float64) float64 {
	return math.Min(n/threshold, 1.0)
}

// LegalTermCount 法律术语命中次数，选模型时写入 debug 日志
func LegalTermCount(text string) int {
	return len(legalTermPattern.FindAllStringIndex(text, -1))
}
