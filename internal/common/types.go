package common

import (
	"fmt"
	"strings"
)

type Side int

const (
	Buy Side = iota
	Sell
)

var sideName = map[Side]string{
	Buy:  "buy",
	Sell: "sell",
}

func (s Side) String() string {
	if name, ok := sideName[s]; ok {
		return name
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Valid reports whether s is one of the two order sides.
func (s Side) Valid() bool {
	_, ok := sideName[s]
	return ok
}

// ParseSide maps "buy" or "sell" (any case) to a Side.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSide, raw)
}

// Kind distinguishes the dividend model of an instrument.
type Kind int

const (
	// Common shares pay whatever dividend the caller quotes.
	Common Kind = iota
	// Preferred shares pay a fixed percentage of their par value.
	Preferred
)

var kindName = map[Kind]string{
	Common:    "common",
	Preferred: "preferred",
}

func (k Kind) String() string {
	if name, ok := kindName[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Valid() bool {
	_, ok := kindName[k]
	return ok
}

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "common":
		return Common, nil
	case "preferred":
		return Preferred, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}
