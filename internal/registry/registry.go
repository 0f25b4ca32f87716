package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	. "gbce/internal/common"
	"gbce/internal/instrument"

	"github.com/rs/zerolog/log"
)

// Registry maps instrument codes to their single Instrument instance.
//
// The first definition of a code wins. Later GetOrCreate calls with other
// terms get the original instance back; the conflict is logged and
// counted instead of silently redefining a share whose ledger already
// holds orders.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*instrument.Instrument
	opts        []instrument.Option
	conflicts   uint64
}

// New creates an empty registry. opts are applied to every instrument it
// creates.
func New(opts ...instrument.Option) *Registry {
	return &Registry{
		instruments: make(map[string]*instrument.Instrument),
		opts:        opts,
	}
}

// GetOrCreate returns the instrument registered under code, creating it
// from terms on first reference.
func (r *Registry) GetOrCreate(code string, terms instrument.Terms) (*instrument.Instrument, error) {
	code = normalize(code)

	// Fast path for instruments that already exist.
	r.mu.RLock()
	inst, ok := r.instruments[code]
	r.mu.RUnlock()
	if ok {
		r.checkTerms(inst, terms)
		return inst, nil
	}

	created, err := instrument.New(code, terms, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have won the race since the read lock was dropped.
	if inst, ok := r.instruments[code]; ok {
		r.checkTermsLocked(inst, terms)
		return inst, nil
	}
	r.instruments[code] = created
	log.Debug().
		Str("ticker", code).
		Str("kind", terms.Kind.String()).
		Msg("instrument registered")
	return created, nil
}

// Common is GetOrCreate for a common instrument.
func (r *Registry) Common(code string) (*instrument.Instrument, error) {
	return r.GetOrCreate(code, instrument.Terms{Kind: Common})
}

// Preferred is GetOrCreate for a preferred instrument.
func (r *Registry) Preferred(code string, parValue, dividendPercent float64) (*instrument.Instrument, error) {
	return r.GetOrCreate(code, instrument.Terms{
		Kind:            Preferred,
		ParValue:        parValue,
		DividendPercent: dividendPercent,
	})
}

// Lookup returns an already registered instrument.
func (r *Registry) Lookup(code string) (*instrument.Instrument, error) {
	code = normalize(code)

	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instruments[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, code)
	}
	return inst, nil
}

// Instruments returns every registered instrument sorted by code.
func (r *Registry) Instruments() []*instrument.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*instrument.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b *instrument.Instrument) int {
		return strings.Compare(a.Code(), b.Code())
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}

// Conflicts counts GetOrCreate calls whose terms disagreed with the
// registered instrument.
func (r *Registry) Conflicts() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflicts
}

func (r *Registry) checkTerms(inst *instrument.Instrument, terms instrument.Terms) {
	if sameTerms(inst.Terms(), terms) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkTermsLocked(inst, terms)
}

func (r *Registry) checkTermsLocked(inst *instrument.Instrument, terms instrument.Terms) {
	if sameTerms(inst.Terms(), terms) {
		return
	}
	r.conflicts++
	log.Warn().
		Str("ticker", inst.Code()).
		Str("kind", inst.Kind().String()).
		Str("requested kind", terms.Kind.String()).
		Float64("requested par", terms.ParValue).
		Float64("requested percent", terms.DividendPercent).
		Msg("instrument already defined with different terms, keeping the original")
}

// sameTerms compares terms the way instrument.New stores them.
func sameTerms(stored, requested instrument.Terms) bool {
	if requested.Kind == Common {
		requested.ParValue, requested.DividendPercent = 0, 0
	}
	return stored == requested
}

// normalize maps a code to its registry key. Tickers are case-insensitive,
// so "appl", " APPL" and "Appl" all name the same instrument.
func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
