package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouterRequiresBothGenerators(t *testing.T) {
	_, err := NewRouter(Route{}, Route{Generator: NewMockGenerator("p", "mock", 1)})
	assert.Error(t, err)

	_, err = NewRouter(Route{Generator: NewMockGenerator("e", "mock", 1)}, Route{})
	assert.Error(t, err)
}

func TestRouterSelectTier(t *testing.T) {
	router, err := NewRouter(
		Route{Generator: NewMockGenerator("cheap", "mock", 1), CostPerThousandTokens: 0.0005},
		Route{Generator: NewMockGenerator("pricey", "mock", 1), CostPerThousandTokens: 0.01},
	)
	require.NoError(t, err)

	economy, err := router.SelectTier(ComplexitySimple)
	require.NoError(t, err)
	assert.Equal(t, TierEconomy, economy.Tier)
	assert.Equal(t, "cheap", economy.Generator.Info().Name)

	premium, err := router.SelectTier(ComplexityOpenEnded)
	require.NoError(t, err)
	assert.Equal(t, TierPremium, premium.Tier)
	assert.Equal(t, "pricey", premium.Generator.Info().Name)
}

func TestRouterCallPricesTokens(t *testing.T) {
	economy := NewMockGenerator("cheap", "mock", 2000)
	router, err := NewRouter(
		Route{Generator: economy, CostPerThousandTokens: 0.0005},
		Route{Generator: NewMockGenerator("pricey", "mock", 1), CostPerThousandTokens: 0.01},
	)
	require.NoError(t, err)

	completion, err := router.Call(context.Background(), ComplexitySimple, "hello", Constraints{})
	require.NoError(t, err)

	assert.Equal(t, 2000, completion.Tokens)
	assert.InDelta(t, 0.001, completion.CostUSD, 1e-9)
	assert.Equal(t, TierEconomy, completion.Tier)
	assert.Equal(t, "mock", completion.Provider)
	assert.Equal(t, "cheap", completion.Model)
}

func TestRouterCallPropagatesProviderError(t *testing.T) {
	economy := NewMockGenerator("cheap", "mock", 1)
	economy.FailWith(errors.New("quota exceeded"))

	router, err := NewRouter(
		Route{Generator: economy, CostPerThousandTokens: 0.0005},
		Route{Generator: NewMockGenerator("pricey", "mock", 1), CostPerThousandTokens: 0.01},
	)
	require.NoError(t, err)

	_, err = router.Call(context.Background(), ComplexitySimple, "hello", Constraints{})
	assert.ErrorContains(t, err, "quota exceeded")
}
