package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSubscriptions(t *testing.T) {
	intervals := []KlineInterval{Interval1m, Interval1h}
	subs := BuildSubscriptions([]string{"btcusdt", "", "ETH-USDT"}, intervals)

	// 每个 symbol: aggTrade + 2 kline + bookTicker + depth
	require.Len(t, subs, 10)

	first := subs[:5]
	assert.Equal(t, "BTCUSDT", first[0].Symbol)
	assert.Equal(t, KindAggTrade, first[0].Kind)
	assert.Nil(t, first[0].Interval)
	require.NotNil(t, first[1].Interval)
	assert.Equal(t, Interval1m, *first[1].Interval)
	require.NotNil(t, first[2].Interval)
	assert.Equal(t, Interval1h, *first[2].Interval)
	assert.Equal(t, KindBookTicker, first[3].Kind)
	assert.Equal(t, KindDepth, first[4].Kind)

	assert.Equal(t, "ETHUSDT", subs[5].Symbol)
}

func TestSubscriptionDefaultInterval(t *testing.T) {
	s := Subscription{Symbol: "BTCUSDT", Kind: KindKline}
	assert.Equal(t, Interval1m, s.KlineIntervalOrDefault())
}
