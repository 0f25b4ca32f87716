package common

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the accepted string form of an order timestamp.
// Month and day may omit their leading zero ("2016-2-3 10:11:12").
const TimestampLayout = "2006-1-2 15:04:05"

// Order is a single recorded price observation. Orders are immutable once
// built; the ledger assigns Seq when it stores them.
type Order struct {
	UUID      string    // Order tracked uuid
	Seq       uint64    // Ledger insertion sequence, breaks timestamp ties
	Quantity  uint64    // Number of shares traded
	Side      Side      // Order side
	Price     float64   // Traded price per share
	Timestamp time.Time // Time of the trade
}

// NewOrder validates the trade fields and builds an Order. A zero
// timestamp is replaced by the current wall-clock time.
func NewOrder(quantity uint64, side Side, price float64, timestamp time.Time) (Order, error) {
	if !side.Valid() {
		return Order{}, fmt.Errorf("%w: %v", ErrInvalidSide, side)
	}
	if quantity == 0 {
		return Order{}, ErrInvalidQuantity
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return Order{}, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return Order{
		UUID:      uuid.New().String(),
		Quantity:  quantity,
		Side:      side,
		Price:     price,
		Timestamp: timestamp,
	}, nil
}

// NewOrderAt is NewOrder with the timestamp given in TimestampLayout. An
// empty string means now.
func NewOrderAt(quantity uint64, side Side, price float64, timestamp string) (Order, error) {
	var ts time.Time
	if timestamp != "" {
		var err error
		if ts, err = ParseTimestamp(timestamp); err != nil {
			return Order{}, err
		}
	}
	return NewOrder(quantity, side, price, ts)
}

// ParseTimestamp parses a TimestampLayout string as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	ts, err := time.ParseInLocation(TimestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	return ts, nil
}

func (order Order) String() string {
	return fmt.Sprintf(
		`UUID:      %v
Seq:       %d
Side:      %v
Price:     %f
Quantity:  %d
Timestamp: %v`,
		order.UUID,
		order.Seq,
		order.Side,
		order.Price,
		order.Quantity,
		order.Timestamp.Format(time.RFC3339), // Formatted for readability
	)
}
