// Package stats builds and serves rank-weighted draft statistics keyed by
// (map, mode).
//
// An Aggregator is built once from an ordered sequence of matches and is
// read-only afterwards, so any number of goroutines may query it.
package stats

// Weighting converts a player's rank into the weight of their contribution.
type Weighting struct {
	MinRank int
	MaxRank int
	Divisor float64
}

// MinWeight is the floor applied to every rank weight.
const MinWeight = 0.1

// RankWeight clamps rank into [MinRank, MaxRank] and returns
// max(0.1, (rank - MinRank + Divisor) / Divisor). A non-positive divisor is
// treated as 1.
func (w Weighting) RankWeight(rank int) float64 {
	r := rank
	if r < w.MinRank {
		r = w.MinRank
	}
	if r > w.MaxRank {
		r = w.MaxRank
	}
	d := w.Divisor
	if d <= 0 {
		d = 1
	}
	weight := (float64(r-w.MinRank) + d) / d
	if weight < MinWeight {
		return MinWeight
	}
	return weight
}

// Params configures building and querying.
type Params struct {
	Weighting

	SmoothingK           float64
	LowPickRateThreshold float64
	LowConfidenceTarget  float64
}

func DefaultParams() Params {
	return Params{
		Weighting: Weighting{
			MinRank: 10,
			MaxRank: 22,
			Divisor: 3.0,
		},
		SmoothingK:           2.0,
		LowPickRateThreshold: 0.03,
		LowConfidenceTarget:  0.0,
	}
}
