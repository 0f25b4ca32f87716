package instrument

import (
	"math"
	"testing"
	"time"

	. "gbce/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

type trade struct {
	price float64
	at    string
}

var spacedFourMinutes = []trade{
	{10, "2016-2-3 10:11:12"},
	{12, "2016-2-3 15:00:12"},
	{11, "2016-2-3 15:04:12"},
	{15, "2016-2-3 15:08:12"},
	{14, "2016-2-3 15:10:12"},
	{9, "2016-2-3 15:11:12"},
}

var spacedHourly = []trade{
	{10, "2016-2-3 10:11:12"},
	{12, "2016-2-3 11:11:12"},
	{11, "2016-2-3 12:11:12"},
	{15, "2016-2-3 13:11:12"},
	{14, "2016-2-3 14:11:12"},
	{9, "2016-2-3 15:11:12"},
}

func dividend(v float64) *float64 { return &v }

func common(t *testing.T, code string, trades ...trade) *Instrument {
	t.Helper()
	inst, err := NewCommon(code)
	require.NoError(t, err)
	record(t, inst, trades...)
	return inst
}

func preferred(t *testing.T, code string, par, percent float64, trades ...trade) *Instrument {
	t.Helper()
	inst, err := NewPreferred(code, par, percent)
	require.NoError(t, err)
	record(t, inst, trades...)
	return inst
}

func record(t *testing.T, inst *Instrument, trades ...trade) {
	t.Helper()
	for _, tr := range trades {
		_, err := inst.RecordTradeAt(100, Buy, tr.price, tr.at)
		require.NoError(t, err)
	}
}

// --- Tests ------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	_, err := New("GLD", Terms{Kind: Kind(9)})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = New("", Terms{Kind: Common})
	assert.Error(t, err)

	_, err = NewPreferred("GLD", -1, 10)
	assert.Error(t, err)

	inst, err := New("GLD", Terms{Kind: Common, ParValue: 100, DividendPercent: 5})
	require.NoError(t, err)
	assert.Equal(t, Terms{Kind: Common}, inst.Terms())
	assert.Equal(t, DefaultWindow, inst.Window())
}

func TestLastPrice(t *testing.T) {
	inst := common(t, "GLD")
	_, err := inst.LastPrice()
	assert.ErrorIs(t, err, ErrEmptyLedger)

	_, err = inst.RecordTrade(100, Buy, 55, time.Time{})
	require.NoError(t, err)
	price, err := inst.LastPrice()
	require.NoError(t, err)
	assert.Equal(t, 55.0, price)
}

func TestRecordTrade_InvalidInput(t *testing.T) {
	inst := common(t, "GLD")

	_, err := inst.RecordTrade(100, Side(3), 55, time.Time{})
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = inst.RecordTradeAt(100, Buy, 55, "aaaa")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	assert.Equal(t, 0, inst.Ledger().Len())
}

func TestDividendYield_Common(t *testing.T) {
	inst := common(t, "GLD", trade{55, ""})

	yield, err := inst.DividendYield(dividend(5))
	require.NoError(t, err)
	assert.Equal(t, 0.0909, yield)

	_, err = inst.DividendYield(nil)
	assert.ErrorIs(t, err, ErrDividendRequired)
}

func TestDividendYield_Preferred(t *testing.T) {
	inst := preferred(t, "GLD", 100, 10, trade{55, ""})

	yield, err := inst.DividendYield(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.1818, yield)

	// An explicit dividend overrides the fixed one.
	yield, err = inst.DividendYield(dividend(5))
	require.NoError(t, err)
	assert.Equal(t, 0.0909, yield)
}

func TestDividendYield_Errors(t *testing.T) {
	_, err := common(t, "GLD").DividendYield(dividend(5))
	assert.ErrorIs(t, err, ErrEmptyLedger)

	_, err = common(t, "GLD", trade{0, ""}).DividendYield(dividend(5))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestPERatio(t *testing.T) {
	pe, err := common(t, "GLD", trade{60, ""}).PERatio(dividend(30))
	require.NoError(t, err)
	assert.Equal(t, 2.0, pe)

	for price, want := range map[float64]float64{100: 10, 50: 5, 200: 20} {
		pe, err = preferred(t, "GLD", 100, 10, trade{price, ""}).PERatio(nil)
		require.NoError(t, err)
		assert.Equal(t, want, pe, "price %v", price)
	}

	_, err = common(t, "GLD", trade{60, ""}).PERatio(dividend(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestGeometricMean(t *testing.T) {
	inst := common(t, "AAPL", spacedFourMinutes...)

	mean, err := inst.GeometricMean(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 11.6459, mean)

	mean, err = common(t, "AAPL", spacedHourly...).GeometricMean(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 11.6459, mean)
}

func TestGeometricMean_Range(t *testing.T) {
	inst := common(t, "AAPL", spacedHourly...)

	from, err := ParseTimestamp("2016-2-3 11:11:12")
	require.NoError(t, err)
	to, err := ParseTimestamp("2016-2-3 13:11:12")
	require.NoError(t, err)

	// [11:11:12, 13:11:12) selects 12 and 11.
	mean, err := inst.GeometricMean(&from, &to)
	require.NoError(t, err)
	assert.Equal(t, 11.4891, mean)

	_, err = inst.GeometricMean(&to, &from)
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestGeometricMean_Edges(t *testing.T) {
	_, err := common(t, "AAPL").GeometricMean(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRange)

	mean, err := common(t, "AAPL", trade{10, ""}, trade{0, ""}).GeometricMean(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mean)

	mean, err = common(t, "AAPL", trade{42.5, ""}).GeometricMean(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.5, mean)
}

func TestVolumeWeightedPrice(t *testing.T) {
	vwp, err := common(t, "AAPL", spacedFourMinutes...).VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 12.2, vwp)

	// Only the last order is inside the window.
	vwp, err = common(t, "GLD", spacedHourly...).VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 9.0, vwp)
}

func TestVolumeWeightedPrice_WeightsByQuantity(t *testing.T) {
	inst := common(t, "AAPL")
	_, err := inst.RecordTradeAt(300, Sell, 10, "2016-2-3 15:00:00")
	require.NoError(t, err)
	_, err = inst.RecordTradeAt(100, Buy, 20, "2016-2-3 15:05:00")
	require.NoError(t, err)

	vwp, err := inst.VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 12.5, vwp)
}

func TestVolumeWeightedPrice_FullRangeQuantities(t *testing.T) {
	inst := common(t, "AAPL")
	_, err := inst.RecordTradeAt(1, Buy, 10, "2016-2-3 15:00:00")
	require.NoError(t, err)
	_, err = inst.RecordTradeAt(math.MaxUint64, Sell, 10, "2016-2-3 15:05:00")
	require.NoError(t, err)

	vwp, err := inst.VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 10.0, vwp)
}

func TestVolumeWeightedPrice_WindowLowerBoundIsExclusive(t *testing.T) {
	inst := common(t, "AAPL", trade{10, "2016-2-3 15:00:00"}, trade{20, "2016-2-3 15:15:00"})

	vwp, err := inst.VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 20.0, vwp)

	wide, err := NewCommon("AAPL", WithWindow(time.Hour))
	require.NoError(t, err)
	record(t, wide, trade{10, "2016-2-3 15:00:00"}, trade{20, "2016-2-3 15:15:00"})
	vwp, err = wide.VolumeWeightedPrice()
	require.NoError(t, err)
	assert.Equal(t, 15.0, vwp)
}

func TestVolumeWeightedPrice_EmptyLedger(t *testing.T) {
	_, err := common(t, "AAPL").VolumeWeightedPrice()
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.ErrorIs(t, err, ErrEmptyLedger)
}
