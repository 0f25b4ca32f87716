package metrics

import (
	"context"
	"fmt"

	. "gbce/internal/common"
	"gbce/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// DividendFunc picks the dividend quoted for a share in a report. A nil
// result asks the share for its own dividend.
type DividendFunc func(share Share) *float64

// FixedCommonDividend quotes dividend for common shares and lets
// preferred shares use their fixed dividend.
func FixedCommonDividend(dividend float64) DividendFunc {
	return func(share Share) *float64 {
		if share.Kind() == Preferred {
			return nil
		}
		d := dividend
		return &d
	}
}

// Metric is a computed value, or the reason it could not be computed.
type Metric struct {
	Value float64
	Err   error
}

func measure(value float64, err error) Metric {
	return Metric{Value: value, Err: err}
}

func (m Metric) String() string {
	if m.Err != nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", m.Value)
}

// Row holds the presentation tuple for one share.
type Row struct {
	Code                string
	Kind                Kind
	DividendYield       Metric
	PERatio             Metric
	GeometricMean       Metric
	VolumeWeightedPrice Metric
}

func (r Row) Errors() []error {
	var errs []error
	for _, m := range []Metric{r.DividendYield, r.PERatio, r.GeometricMean, r.VolumeWeightedPrice} {
		if m.Err != nil {
			errs = append(errs, m.Err)
		}
	}
	return errs
}

type Report struct {
	Rows  []Row
	Index Metric
}

// Compute builds the row of share, quoting dividend for the dividend
// yield and the P/E ratio.
func Compute(share Share, dividend *float64) Row {
	row := Row{
		Code:                share.Code(),
		Kind:                share.Kind(),
		DividendYield:       measure(DividendYield(share, dividend)),
		PERatio:             measure(PERatio(share, dividend)),
		GeometricMean:       measure(GeometricMean(share)),
		VolumeWeightedPrice: measure(VolumeWeightedPrice(share)),
	}
	for _, err := range row.Errors() {
		log.Warn().Err(err).Str("ticker", row.Code).Msg("metric unavailable")
	}
	return row
}

// BuildReport computes every share's row on a pool of workers. A failing
// metric is recorded in its row and never stops the other shares; only a
// cancelled ctx aborts the report.
func BuildReport[S Share](ctx context.Context, shares []S, dividendFor DividendFunc, workers int) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	t, _ := tomb.WithContext(ctx)
	pool := utils.NewWorkerPool(workers)
	rows := make([]Row, len(shares))
	done := make(chan struct{}, len(shares))

	pool.Start(t, func(_ *tomb.Tomb, task any) error {
		i := task.(int)
		var dividend *float64
		if dividendFor != nil {
			dividend = dividendFor(shares[i])
		}
		rows[i] = Compute(shares[i], dividend)
		done <- struct{}{}
		return nil
	})

	for i := range shares {
		if err := pool.AddTask(t, i); err != nil {
			return Report{}, t.Wait()
		}
	}
	for range shares {
		select {
		case <-done:
		case <-t.Dying():
			return Report{}, t.Wait()
		}
	}
	t.Kill(nil)
	if err := t.Wait(); err != nil {
		return Report{}, err
	}

	return Report{Rows: rows, Index: indexOf(rows)}, nil
}

// indexOf derives the composite index from already computed rows.
func indexOf(rows []Row) Metric {
	if len(rows) == 0 {
		return Metric{Err: fmt.Errorf("composite index: %w", ErrEmptyRange)}
	}
	means := make([]float64, len(rows))
	for i, row := range rows {
		if row.GeometricMean.Err != nil {
			return Metric{Err: fmt.Errorf("composite index: %w", row.GeometricMean.Err)}
		}
		means[i] = row.GeometricMean.Value
	}
	return Metric{Value: averageOf(means)}
}
