package common

import "errors"

var (
	ErrInvalidSide      = errors.New("invalid order side")
	ErrInvalidTimestamp = errors.New("invalid timestamp, expected year-month-day hours:minutes:seconds")
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrInvalidPrice     = errors.New("order price must be a finite non-negative number")
	ErrInvalidKind      = errors.New("instrument kind must be common or preferred")

	ErrEmptyLedger       = errors.New("no orders recorded")
	ErrEmptyRange        = errors.New("no orders in range")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrDividendRequired  = errors.New("dividend required for common instruments")
	ErrUnknownInstrument = errors.New("unknown instrument")
)
