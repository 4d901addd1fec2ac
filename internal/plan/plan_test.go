package plan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/tos_scan_server/config"
)

func TestCatalog_Defaults(t *testing.T) {
	c := NewCatalog(nil)

	free := c.Get("free")
	assert.Equal(t, 3, free.MonthlyAnalysisLimit)
	assert.True(t, free.MonthlyAIBudget.IsZero())
	assert.Equal(t, []string{"history"}, free.Features.List())

	standard := c.Get("standard")
	assert.Equal(t, 50, standard.MonthlyAnalysisLimit)
	assert.True(t, standard.MonthlyAIBudget.Equal(decimal.NewFromInt(5)))
	assert.True(t, standard.HasFeature(FeatureAdvancedAnalysis))
	assert.False(t, standard.HasFeature(FeaturePremiumAI))

	premium := c.Get("premium")
	assert.Equal(t, 200, premium.MonthlyAnalysisLimit)
	assert.True(t, premium.MonthlyAIBudget.Equal(decimal.NewFromInt(20)))
	assert.True(t, premium.HasFeature(FeaturePremiumAI))
	assert.False(t, premium.HasFeature(FeatureTeamFeatures))

	enterprise := c.Get("enterprise")
	assert.True(t, enterprise.Unlimited())
	assert.True(t, enterprise.MonthlyAIBudget.Equal(decimal.NewFromInt(100)))
	assert.Len(t, enterprise.Features.List(), 8)
}

func TestCatalog_UnknownFallsBackToFree(t *testing.T) {
	c := NewCatalog(nil)

	assert.Equal(t, TierFree, c.Get("").Tier)
	assert.Equal(t, TierFree, c.Get("platinum").Tier)
	assert.True(t, c.AIBudget("platinum").IsZero())
	assert.True(t, c.AIBudget("free").IsZero())

	_, ok := c.Lookup("platinum")
	assert.False(t, ok)
}

func TestCatalog_HasFeature(t *testing.T) {
	c := NewCatalog(nil)

	assert.True(t, c.HasFeature("free", FeatureHistory))
	assert.False(t, c.HasFeature("free", FeaturePDFExport))
	assert.True(t, c.HasFeature("enterprise", FeatureAPIAccess))
	assert.False(t, c.HasFeature("unknown", FeaturePremiumAI))
}

func TestCatalog_AllOrder(t *testing.T) {
	c := NewCatalog(nil)

	all := c.All()
	require.Len(t, all, 4)
	assert.Equal(t, TierFree, all[0].Tier)
	assert.Equal(t, TierStandard, all[1].Tier)
	assert.Equal(t, TierPremium, all[2].Tier)
	assert.Equal(t, TierEnterprise, all[3].Tier)
}

func TestCatalog_Overrides(t *testing.T) {
	limit := 75
	budget := 7.5
	c := NewCatalog(map[string]config.PlanConfig{
		"standard": {
			MonthlyAnalysisLimit: &limit,
			MonthlyAIBudget:      &budget,
			Features:             []string{"history"},
		},
		"platinum": {DisplayName: "ignored"},
	})

	standard := c.Get("standard")
	assert.Equal(t, 75, standard.MonthlyAnalysisLimit)
	assert.True(t, standard.MonthlyAIBudget.Equal(decimal.RequireFromString("7.5")))
	assert.False(t, standard.HasFeature(FeatureAdvancedAnalysis))
	assert.Equal(t, "Standard", standard.DisplayName)

	// 未覆盖的套餐保持默认
	assert.Equal(t, 200, c.Get("premium").MonthlyAnalysisLimit)
	assert.Len(t, c.All(), 4)
}

func TestIsValidTier(t *testing.T) {
	assert.True(t, IsValidTier("premium"))
	assert.False(t, IsValidTier("Premium"))
	assert.False(t, IsValidTier(""))
}
