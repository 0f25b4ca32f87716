package instrument

import (
	"fmt"
	"math"
	"math/big"
	"time"

	. "gbce/internal/common"
	"gbce/internal/ledger"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the trailing span used by VolumeWeightedPrice.
const DefaultWindow = 15 * time.Minute

// Terms describes how an instrument is defined. ParValue and
// DividendPercent only matter for preferred instruments.
type Terms struct {
	Kind            Kind
	ParValue        float64 // Nominal price of a preferred share
	DividendPercent float64 // Fixed dividend as a percentage of par
}

func (t Terms) validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidKind, t.Kind)
	}
	if t.Kind == Preferred {
		if !finiteNonNegative(t.ParValue) {
			return fmt.Errorf("par value must be a finite non-negative number: %v", t.ParValue)
		}
		if !finiteNonNegative(t.DividendPercent) {
			return fmt.Errorf("dividend percent must be a finite non-negative number: %v", t.DividendPercent)
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Instrument is a tradable share backed by its own order ledger. Common
// and preferred shares only differ in how the dividend yield is derived.
type Instrument struct {
	code   string
	terms  Terms
	window time.Duration
	ledger *ledger.Ledger
}

type Option func(*Instrument)

// WithWindow overrides the trailing span of VolumeWeightedPrice.
func WithWindow(window time.Duration) Option {
	return func(i *Instrument) {
		if window > 0 {
			i.window = window
		}
	}
}

func New(code string, terms Terms, opts ...Option) (*Instrument, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrUnknownInstrument)
	}
	if err := terms.validate(); err != nil {
		return nil, err
	}
	if terms.Kind == Common {
		terms.ParValue, terms.DividendPercent = 0, 0
	}

	i := &Instrument{
		code:   code,
		terms:  terms,
		window: DefaultWindow,
		ledger: ledger.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func NewCommon(code string, opts ...Option) (*Instrument, error) {
	return New(code, Terms{Kind: Common}, opts...)
}

func NewPreferred(code string, parValue, dividendPercent float64, opts ...Option) (*Instrument, error) {
	return New(code, Terms{Kind: Preferred, ParValue: parValue, DividendPercent: dividendPercent}, opts...)
}

func (i *Instrument) Code() string           { return i.code }
func (i *Instrument) Kind() Kind             { return i.terms.Kind }
func (i *Instrument) Terms() Terms           { return i.terms }
func (i *Instrument) Window() time.Duration  { return i.window }
func (i *Instrument) Ledger() *ledger.Ledger { return i.ledger }

func (i *Instrument) String() string {
	return fmt.Sprintf("%s (%v)", i.code, i.terms.Kind)
}

// RecordTrade appends an order to the instrument's ledger.
func (i *Instrument) RecordTrade(quantity uint64, side Side, price float64, timestamp time.Time) (Order, error) {
	order, err := i.ledger.Append(quantity, side, price, timestamp)
	if err != nil {
		return Order{}, fmt.Errorf("%s: %w", i.code, err)
	}
	return order, nil
}

// RecordTradeAt is RecordTrade with a TimestampLayout string; an empty
// string means now.
func (i *Instrument) RecordTradeAt(quantity uint64, side Side, price float64, timestamp string) (Order, error) {
	var ts time.Time
	if timestamp != "" {
		var err error
		if ts, err = ParseTimestamp(timestamp); err != nil {
			return Order{}, fmt.Errorf("%s: %w", i.code, err)
		}
	}
	return i.RecordTrade(quantity, side, price, ts)
}

// LastPrice returns the price of the ledger tail.
func (i *Instrument) LastPrice() (float64, error) {
	last, err := i.ledger.Last()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", i.code, err)
	}
	return last.Price, nil
}

// Dividend returns the dividend used by DividendYield. A nil dividend is
// only accepted for preferred instruments, whose fixed dividend is
// DividendPercent / 100 * ParValue.
func (i *Instrument) Dividend(dividend *float64) (decimal.Decimal, error) {
	if dividend != nil {
		if math.IsNaN(*dividend) || math.IsInf(*dividend, 0) {
			return decimal.Zero, fmt.Errorf("%s: dividend must be finite: %v", i.code, *dividend)
		}
		return decimal.NewFromFloat(*dividend), nil
	}

	switch i.terms.Kind {
	case Preferred:
		percent := decimal.NewFromFloat(i.terms.DividendPercent)
		return percent.Div(decimal.NewFromInt(100)).Mul(decimal.NewFromFloat(i.terms.ParValue)), nil
	default:
		return decimal.Zero, fmt.Errorf("%s: %w", i.code, ErrDividendRequired)
	}
}

// DividendYield is dividend / last price, rounded to MetricPlaces.
func (i *Instrument) DividendYield(dividend *float64) (float64, error) {
	last, err := i.LastPrice()
	if err != nil {
		return 0, err
	}
	div, err := i.Dividend(dividend)
	if err != nil {
		return 0, err
	}
	if last == 0 {
		return 0, fmt.Errorf("%s: dividend yield: %w", i.code, ErrDivisionByZero)
	}
	return RoundDecimal(div.Div(decimal.NewFromFloat(last))), nil
}

// PERatio is the inverse of the (rounded) dividend yield.
func (i *Instrument) PERatio(dividend *float64) (float64, error) {
	yield, err := i.DividendYield(dividend)
	if err != nil {
		return 0, err
	}
	if yield == 0 {
		return 0, fmt.Errorf("%s: p/e ratio: %w", i.code, ErrDivisionByZero)
	}
	return 1 / yield, nil
}

// GeometricMean is the n-th root of the product of the prices of the n
// orders selected by ledger.Range(from, to), rounded to MetricPlaces.
func (i *Instrument) GeometricMean(from, to *time.Time) (float64, error) {
	orders := i.ledger.Range(from, to)
	if len(orders) == 0 {
		return 0, fmt.Errorf("%s: geometric mean: %w", i.code, ErrEmptyRange)
	}

	// Summing logarithms keeps long ledgers from overflowing the product.
	var logSum float64
	for _, o := range orders {
		if o.Price == 0 {
			return 0, nil
		}
		logSum += math.Log(o.Price)
	}
	return Round(math.Exp(logSum / float64(len(orders)))), nil
}

// VolumeWeightedPrice is sum(price*quantity) / sum(quantity) over the
// orders strictly inside the trailing window that ends at the ledger
// tail, rounded to MetricPlaces.
func (i *Instrument) VolumeWeightedPrice() (float64, error) {
	last, err := i.ledger.Last()
	if err != nil {
		return 0, fmt.Errorf("%s: volume weighted price: %w: %w", i.code, ErrDivisionByZero, err)
	}

	var turnover, volume decimal.Decimal
	for _, o := range i.ledger.Since(last.Timestamp.Add(-i.window)) {
		qty := decimal.NewFromBigInt(new(big.Int).SetUint64(o.Quantity), 0)
		turnover = turnover.Add(decimal.NewFromFloat(o.Price).Mul(qty))
		volume = volume.Add(qty)
	}
	if volume.IsZero() {
		return 0, fmt.Errorf("%s: volume weighted price: %w", i.code, ErrDivisionByZero)
	}
	return RoundDecimal(turnover.Div(volume)), nil
}
