package discovery

import (
	"math"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// Composite weights.
const (
	weightMomentum   = 0.35
	weightLiquidity  = 0.20
	weightRisk       = 0.30
	weightConfidence = 0.15
)

type bucket struct {
	min    float64
	points int
}

// pick returns the points of the first bucket whose min v reaches. Buckets
// are ordered from highest min to lowest.
func pick(v float64, buckets []bucket, fallback int) int {
	for _, b := range buckets {
		if v >= b.min {
			return b.points
		}
	}
	return fallback
}

var (
	priceChangeBuckets = []bucket{{50, 30}, {20, 25}, {10, 20}, {5, 15}, {0, 10}}
	buyRatioBuckets    = []bucket{{0.8, 30}, {0.7, 25}, {0.6, 20}, {0.5, 15}}
	volFDVBuckets      = []bucket{{2, 25}, {1, 20}, {0.5, 15}, {0.2, 10}}
	txnBuckets         = []bucket{{1000, 15}, {500, 10}, {100, 5}}

	liquidityBuckets = []bucket{{100_000, 40}, {50_000, 35}, {25_000, 30}, {10_000, 25}, {5_000, 15}}
	liqFDVBuckets    = []bucket{{20, 30}, {10, 25}, {5, 20}, {2, 10}}

	riskLiquidityBuckets = []bucket{{100_000, 15}, {50_000, 10}, {10_000, 5}}
)

// Score computes the four sub-scores and the composite for c given how many
// gate conditions passed.
func Score(c domain.TokenCandidate, conditionsPassed int) domain.Scores {
	s := domain.Scores{
		Momentum:   momentumScore(c),
		Liquidity:  liquidityScore(c),
		Risk:       riskScore(c),
		Confidence: confidenceScore(c, conditionsPassed),
	}
	s.Composite = Composite(s)
	return s
}

// Composite is the weighted blend of the four sub-scores, rounded.
func Composite(s domain.Scores) int {
	v := float64(s.Momentum)*weightMomentum +
		float64(s.Liquidity)*weightLiquidity +
		float64(s.Risk)*weightRisk +
		float64(s.Confidence)*weightConfidence
	return clamp(int(math.Round(v)))
}

func momentumScore(c domain.TokenCandidate) int {
	pts := 0
	if c.PriceChange1h >= 0 {
		pts += pick(c.PriceChange1h, priceChangeBuckets, 0)
	}
	if c.TotalTxns() > 0 {
		pts += pick(ratio(float64(c.Buys24h), float64(c.TotalTxns())), buyRatioBuckets, 0)
	}
	if c.FDV > 0 {
		pts += pick(c.Volume24h/c.FDV, volFDVBuckets, 0)
	}
	pts += pick(float64(c.TotalTxns()), txnBuckets, 0)
	return clamp(pts)
}

func liquidityScore(c domain.TokenCandidate) int {
	pts := pick(c.Liquidity, liquidityBuckets, 5)
	if c.FDV > 0 {
		pts += pick(c.Liquidity/c.FDV*100, liqFDVBuckets, 0)
	}

	turnover := ratio(c.Volume24h, c.Liquidity)
	switch {
	case turnover >= 1 && turnover <= 10:
		pts += 30
	case turnover >= 0.5 && turnover <= 20:
		pts += 20
	default:
		pts += 10
	}
	return clamp(pts)
}

// riskScore is higher for safer tokens.
func riskScore(c domain.TokenCandidate) int {
	pts := 50
	pts += pick(c.Liquidity, riskLiquidityBuckets, -15)

	if c.FDV > 0 {
		liqFDV := c.Liquidity / c.FDV
		switch {
		case liqFDV >= 0.2:
			pts += 15
		case liqFDV >= 0.1:
			pts += 10
		case liqFDV < 0.02:
			pts -= 15
		}
	}

	if total := c.TotalTxns(); total > 0 {
		sellRatio := float64(c.Sells24h) / float64(total)
		switch {
		case sellRatio >= 0.2 && sellRatio <= 0.5:
			pts += 15
		case sellRatio < 0.1 && total > 50:
			pts -= 20
		}
	}

	for _, f := range c.Flags {
		switch f.Severity {
		case domain.FlagHard:
			pts -= 20
		case domain.FlagWarning:
			pts -= 5
		}
	}
	return clamp(pts)
}

func confidenceScore(c domain.TokenCandidate, conditionsPassed int) int {
	v := float64(conditionsPassed) / 5 * 50
	checks := []bool{
		c.Volume24h > 0,
		c.TotalTxns() > 0,
		c.Liquidity > 0,
		c.FDV > 0,
		c.PriceChange1h != 0,
	}
	for _, ok := range checks {
		if ok {
			v += 10
		}
	}
	return clamp(int(math.Round(v)))
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
