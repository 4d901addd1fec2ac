package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Estimate(""))
}

func TestEstimate_PlainShortText(t *testing.T) {
	score := Estimate("Hello world, welcome to our website.")
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 0.01)
}

func TestEstimate_LengthContribution(t *testing.T) {
	text := strings.Repeat("a", 10000)
	assert.InDelta(t, 0.3, Estimate(text), 1e-9)

	// 长度贡献封顶
	assert.InDelta(t, 0.3, Estimate(strings.Repeat("a", 50000)), 1e-9)
}

func TestEstimate_Bounded(t *testing.T) {
	dense := strings.Repeat(`Section 1. "Service" means the platform. Subject to Article 2, liability, indemnification and arbitration apply if breach occurs, unless waiver is granted. 1.1 `, 200)
	score := Estimate(dense)
	assert.LessOrEqual(t, score, 1.0)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestEstimate_MonotoneInLegalTerms(t *testing.T) {
	base := strings.Repeat("word ", 200)
	prev := Estimate(base)
	for i := 1; i <= 25; i++ {
		// 长度不变，只替换内容
		text := strings.Repeat("liability ", i) + base[10*i:]
		score := Estimate(text)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	text := "This Agreement is governed by the laws of the State. Termination is permitted pursuant to Section 4."
	assert.Equal(t, Estimate(text), Estimate(text))
}

func TestLegalTermCount(t *testing.T) {
	text := "Indemnification, WARRANTIES and Governing Law; force majeure applies hereby."
	assert.Equal(t, 5, LegalTermCount(text))
}

func TestEstimate_DefinitionsAndConditionals(t *testing.T) {
	withMarkers := `"Customer" means the buyer. "Order" shall mean a purchase. If paid, unless refunded, except as provided.`
	without := `The Customer is the buyer. The Order is a purchase. When paid, once refunded, as provided here.`
	assert.Greater(t, Estimate(withMarkers), Estimate(without))
}
