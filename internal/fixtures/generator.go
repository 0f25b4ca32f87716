package fixtures

import (
	"fmt"
	"math/rand/v2"
	"time"

	. "gbce/internal/common"
	"gbce/internal/instrument"
	"gbce/internal/registry"
)

// Codes are the instruments the demo market trades.
var Codes = []string{
	"ASBE", "ABF", "AA", "ABDP", "ABC", "AAS", "GFS", "GMAA", "GATC",
	"WINK", "MPO", "EMG", "MARL", "OCDO", "OSEC", "OML", "WRES", "ZPLA",
}

// Start is the timestamp of the first generated order.
var Start = time.Date(2016, 2, 3, 9, 11, 12, 0, time.UTC)

type Generator struct {
	rnd     *rand.Rand
	orders  int
	spacing time.Duration
}

// NewGenerator returns a deterministic generator for a given seed.
func NewGenerator(seed uint64, ordersPerInstrument int, spacing time.Duration) *Generator {
	return &Generator{
		rnd:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		orders:  ordersPerInstrument,
		spacing: spacing,
	}
}

// Populate defines every code in the registry, each randomly common or
// preferred, and records a chronological random walk of orders for it.
func (g *Generator) Populate(reg *registry.Registry) error {
	for _, code := range Codes {
		base := 5 + g.rnd.IntN(495)

		var (
			inst *instrument.Instrument
			err  error
		)
		if g.rnd.IntN(2) == 0 {
			inst, err = reg.Common(code)
		} else {
			inst, err = reg.Preferred(code, float64(base), float64(2+g.rnd.IntN(18)))
		}
		if err != nil {
			return fmt.Errorf("defining %s: %w", code, err)
		}

		ts := Start
		for i := 0; i < g.orders; i++ {
			side := Buy
			if g.rnd.IntN(2) == 1 {
				side = Sell
			}
			quantity := uint64(10 + g.rnd.IntN(991))
			if _, err := inst.RecordTrade(quantity, side, g.walk(base), ts); err != nil {
				return err
			}
			ts = ts.Add(g.spacing)
		}
	}
	return nil
}

// walk moves price up or down by a random step of at most a tenth of it
// plus two.
func (g *Generator) walk(price int) float64 {
	delta := 1 + g.rnd.IntN(price/10+2)
	if g.rnd.IntN(2) == 0 {
		delta = -delta
	}
	return float64(max(price+delta, 0))
}
