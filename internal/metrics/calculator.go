package metrics

import (
	"fmt"
	"time"

	. "gbce/internal/common"

	"github.com/shopspring/decimal"
)

// Share is the view of an instrument the calculator needs. It lets batch
// computations run without knowing whether a share is common or
// preferred.
type Share interface {
	Code() string
	Kind() Kind
	DividendYield(dividend *float64) (float64, error)
	PERatio(dividend *float64) (float64, error)
	GeometricMean(from, to *time.Time) (float64, error)
	VolumeWeightedPrice() (float64, error)
}

func DividendYield(share Share, dividend *float64) (float64, error) {
	return share.DividendYield(dividend)
}

func PERatio(share Share, dividend *float64) (float64, error) {
	return share.PERatio(dividend)
}

// GeometricMean is the geometric mean over the whole ledger of share.
func GeometricMean(share Share) (float64, error) {
	return share.GeometricMean(nil, nil)
}

func VolumeWeightedPrice(share Share) (float64, error) {
	return share.VolumeWeightedPrice()
}

// CompositeIndex averages the geometric means of all shares, rounded to
// MetricPlaces. The first failing share aborts the computation.
func CompositeIndex[S Share](shares []S) (float64, error) {
	if len(shares) == 0 {
		return 0, fmt.Errorf("composite index: %w", ErrEmptyRange)
	}

	means := make([]float64, len(shares))
	for i, share := range shares {
		mean, err := GeometricMean(share)
		if err != nil {
			return 0, fmt.Errorf("composite index: %w", err)
		}
		means[i] = mean
	}
	return averageOf(means), nil
}

func averageOf(values []float64) float64 {
	var sum decimal.Decimal
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return RoundDecimal(sum.Div(decimal.NewFromInt(int64(len(values)))))
}
