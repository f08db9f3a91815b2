package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/pkg/exception"
)

func TestPaperBrokerMarketBuyAndSell(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(10_000))
	b.SetPrice("BTC-USD", decimal.NewFromInt(50_000))

	result, err := b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "BTC-USD",
		Side:   enum.OrderSideBuy,
		Kind:   enum.OrderKindMarket,
		Size:   decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusFilled, result.Status)
	assert.NotEmpty(t, result.OrderID)
	assert.True(t, result.FillPrice.Equal(decimal.NewFromInt(50_000)))

	balances, err := b.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["USD"].Equal(decimal.NewFromInt(5_000)))
	assert.True(t, balances["BTC"].Equal(decimal.NewFromFloat(0.1)))

	_, err = b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "BTC-USD",
		Side:   enum.OrderSideSell,
		Kind:   enum.OrderKindMarket,
		Size:   decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)

	balances, err = b.GetBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["USD"].Equal(decimal.NewFromInt(10_000)))
	assert.True(t, balances["BTC"].IsZero())
}

func TestPaperBrokerRejectsInsufficientFunds(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(100))
	b.SetPrice("BTC-USD", decimal.NewFromInt(50_000))

	result, err := b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "BTC-USD",
		Side:   enum.OrderSideBuy,
		Kind:   enum.OrderKindMarket,
		Size:   decimal.NewFromFloat(0.1),
	})
	assert.ErrorIs(t, err, exception.ErrBrokerOrderRejected)
	assert.Equal(t, enum.OrderStatusRejected, result.Status)

	result, err = b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "BTC-USD",
		Side:   enum.OrderSideSell,
		Kind:   enum.OrderKindMarket,
		Size:   decimal.NewFromFloat(0.1),
	})
	assert.ErrorIs(t, err, exception.ErrBrokerOrderRejected)
	assert.Equal(t, enum.OrderStatusRejected, result.Status)
}

func TestPaperBrokerRejectsUnpricedSymbol(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(10_000))

	_, err := b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "XYZ-USD",
		Side:   enum.OrderSideBuy,
		Kind:   enum.OrderKindMarket,
		Size:   decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, exception.ErrBrokerPriceUnavailable)
}

func TestPaperBrokerRestingOrders(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(10_000))
	b.SetPrice("BTC-USD", decimal.NewFromInt(50_000))

	result, err := b.PlaceOrder(context.Background(), adapter.OrderRequest{
		Symbol: "BTC-USD",
		Side:   enum.OrderSideSell,
		Kind:   enum.OrderKindStop,
		Size:   decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPlaced, result.Status)

	open, err := b.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, result.OrderID, open[0].OrderID)

	canceled, err := b.CancelOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.True(t, canceled)

	canceled, err = b.CancelOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.False(t, canceled, "cancel of an unknown order reports false")
}

func TestPaperBrokerPriceLookupBySuffix(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(0))
	b.SetPrice("ETH-USD", decimal.NewFromInt(3_000))

	price, err := b.GetCurrentPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(3_000)))

	_, err = b.GetCurrentPrice(context.Background(), "XYZ")
	assert.ErrorIs(t, err, exception.ErrBrokerPriceUnavailable)
}

func TestPaperBrokerPositionsValuedInUsd(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(1_000))
	b.SetPrice("ETH-USD", decimal.NewFromInt(3_000))
	b.SetBalance("ETH", decimal.NewFromInt(2))

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1, "USD balance is not a position")
	assert.Equal(t, "ETH", positions[0].Symbol)
	assert.True(t, positions[0].UsdValue.Equal(decimal.NewFromInt(6_000)))
}

func TestParseTickerPayload(t *testing.T) {
	symbol, price, err := ParseTickerPayload([]byte(`{"symbol":"BTC-USD","last":"50123.45","bid":"50123.40","ask":"50123.50"}`))
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", symbol)
	assert.True(t, price.Equal(decimal.NewFromFloat(50123.45)))

	_, _, err = ParseTickerPayload([]byte(`{broken`))
	assert.Error(t, err)
}

func TestApplyTickerPayload(t *testing.T) {
	b := NewPaperBroker("paper", decimal.NewFromInt(0))
	require.NoError(t, b.ApplyTickerPayload([]byte(`{"symbol":"BTC-USD","last":"50000"}`)))

	price, err := b.GetCurrentPrice(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50_000)))
}
