package common

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderAt(t *testing.T) {
	order, err := NewOrderAt(200, Sell, 100.31, "2016-2-3 10:11:12")
	require.NoError(t, err)

	assert.Equal(t, uint64(200), order.Quantity)
	assert.Equal(t, Sell, order.Side)
	assert.Equal(t, 100.31, order.Price)
	assert.Equal(t, time.Date(2016, 2, 3, 10, 11, 12, 0, time.UTC), order.Timestamp)
	assert.NotEmpty(t, order.UUID)
}

func TestNewOrder_ZeroPaddedTimestamp(t *testing.T) {
	order, err := NewOrderAt(1, Buy, 1, "2016-02-03 09:01:02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 2, 3, 9, 1, 2, 0, time.UTC), order.Timestamp)
}

func TestNewOrder_DefaultsToNow(t *testing.T) {
	before := time.Now()
	order, err := NewOrder(10, Buy, 5, time.Time{})
	require.NoError(t, err)
	assert.False(t, order.Timestamp.Before(before))
	assert.False(t, order.Timestamp.After(time.Now()))
}

func TestNewOrder_InvalidSide(t *testing.T) {
	for _, side := range []Side{-1, 2, 42} {
		_, err := NewOrder(200, side, 100, time.Now())
		assert.ErrorIs(t, err, ErrInvalidSide)
	}

	_, err := ParseSide("go")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestNewOrder_InvalidTimestamp(t *testing.T) {
	for _, raw := range []string{"aaaa", "2016-2-3", "2016/02/03 10:11:12", "2016-13-03 10:11:12"} {
		_, err := NewOrderAt(200, Sell, 100.31, raw)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, raw)
	}
}

func TestNewOrder_InvalidQuantityAndPrice(t *testing.T) {
	_, err := NewOrder(0, Buy, 1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	for _, price := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err = NewOrder(1, Buy, price, time.Now())
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}

	_, err = NewOrder(1, Buy, 0, time.Now())
	assert.NoError(t, err)
}

func TestParseSideAndKind(t *testing.T) {
	side, err := ParseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, side)
	assert.Equal(t, "buy", Buy.String())

	kind, err := ParseKind("Preferred")
	require.NoError(t, err)
	assert.Equal(t, Preferred, kind)

	kind, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Common, kind)

	_, err = ParseKind("bond")
	assert.ErrorIs(t, err, ErrInvalidKind)
}
