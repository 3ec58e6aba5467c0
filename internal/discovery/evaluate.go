// Package discovery scans market-data providers for tokens showing early
// momentum, scores them and keeps only those clearing an N-of-M gate.
package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// Condition names, in evaluation order.
const (
	CondVolumeSpike       = "volume_spike"
	CondBuyPressure       = "buy_pressure"
	CondPriceAcceleration = "price_acceleration"
	CondBuyerGrowth       = "buyer_growth"
	CondLiquidity         = "liquidity_threshold"
)

// buyerGrowthFactor is how far unique buyers must exceed unique sellers.
const buyerGrowthFactor = 1.2

// Thresholds parameterises the gate.
type Thresholds struct {
	VolumeSpikeThreshold float64
	BuyPressureThreshold float64
	MinLiquidity         float64
	MinConditionsToPass  int
}

// DefaultThresholds returns 2.0x volume, 60% buys, $10k liquidity, 3 of 5.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VolumeSpikeThreshold: 2.0,
		BuyPressureThreshold: 0.6,
		MinLiquidity:         10_000,
		MinConditionsToPass:  3,
	}
}

// Evaluate runs the five conditions against c, derives flags and scores
// and applies the N-of-M gate. baseline is the rolling mean volume; when
// hasBaseline is false (or the mean is zero) the volume ratio is taken as 1.
// Pair age is reported as an info flag only and never gates.
func Evaluate(c domain.TokenCandidate, baseline float64, hasBaseline bool, th Thresholds, now time.Time) domain.Evaluation {
	conds := make([]domain.DiscoveryCondition, 0, 5)

	volRatio := 1.0
	if hasBaseline && baseline > 0 {
		volRatio = c.Volume24h / baseline
	}
	conds = append(conds, domain.DiscoveryCondition{
		Name:      CondVolumeSpike,
		Passed:    volRatio >= th.VolumeSpikeThreshold,
		Value:     volRatio,
		Threshold: th.VolumeSpikeThreshold,
		Evidence:  fmt.Sprintf("24h volume %.0f is %.2fx the rolling baseline", c.Volume24h, volRatio),
	})

	buyRatio := ratio(float64(c.Buys24h), float64(c.TotalTxns()))
	conds = append(conds, domain.DiscoveryCondition{
		Name:      CondBuyPressure,
		Passed:    c.TotalTxns() > 0 && buyRatio >= th.BuyPressureThreshold,
		Value:     buyRatio,
		Threshold: th.BuyPressureThreshold,
		Evidence:  fmt.Sprintf("%d buys / %d txns (%.0f%%)", c.Buys24h, c.TotalTxns(), buyRatio*100),
	})

	hourlyAvg := c.PriceChange24h / 24
	conds = append(conds, domain.DiscoveryCondition{
		Name:      CondPriceAcceleration,
		Passed:    c.PriceChange1h > 0 && c.PriceChange1h > hourlyAvg,
		Value:     c.PriceChange1h,
		Threshold: hourlyAvg,
		Evidence:  fmt.Sprintf("1h change %.2f%% vs 24h hourly average %.2f%%", c.PriceChange1h, hourlyAvg),
	})

	sellerBar := buyerGrowthFactor * float64(c.UniqueSellers24h)
	conds = append(conds, domain.DiscoveryCondition{
		Name:      CondBuyerGrowth,
		Passed:    float64(c.UniqueBuyers24h) > sellerBar,
		Value:     float64(c.UniqueBuyers24h),
		Threshold: sellerBar,
		Evidence:  fmt.Sprintf("%d unique buyers vs %d unique sellers", c.UniqueBuyers24h, c.UniqueSellers24h),
	})

	conds = append(conds, domain.DiscoveryCondition{
		Name:      CondLiquidity,
		Passed:    c.Liquidity >= th.MinLiquidity,
		Value:     c.Liquidity,
		Threshold: th.MinLiquidity,
		Evidence:  fmt.Sprintf("liquidity $%.0f", c.Liquidity),
	})

	passed := 0
	for _, cond := range conds {
		if cond.Passed {
			passed++
		}
	}

	c.Flags = mergeFlags(c.Flags, deriveFlags(c, th, now))
	c.Scores = Score(c, passed)
	if c.LastUpdated.IsZero() {
		c.LastUpdated = now
	}
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = now
	}

	return domain.Evaluation{
		Candidate:        c,
		Conditions:       conds,
		ConditionsPassed: passed,
		Qualifies:        passed >= th.MinConditionsToPass,
		EvaluatedAt:      now,
	}
}

func deriveFlags(c domain.TokenCandidate, th Thresholds, now time.Time) []domain.Flag {
	var flags []domain.Flag
	if c.Liquidity < th.MinLiquidity {
		flags = append(flags, domain.Flag{
			Code:     "low_liquidity",
			Severity: domain.FlagWarning,
			Message:  fmt.Sprintf("liquidity $%.0f below $%.0f", c.Liquidity, th.MinLiquidity),
		})
	}
	if c.Buys24h > 50 && c.Sells24h == 0 {
		flags = append(flags, domain.Flag{
			Code:     "no_sells",
			Severity: domain.FlagHard,
			Message:  fmt.Sprintf("%d buys and no sells in 24h", c.Buys24h),
		})
	}
	if c.FDV > 0 && c.Liquidity/c.FDV < 0.01 {
		flags = append(flags, domain.Flag{
			Code:     "extreme_fdv_ratio",
			Severity: domain.FlagWarning,
			Message:  fmt.Sprintf("liquidity is %.2f%% of FDV", c.Liquidity/c.FDV*100),
		})
	}
	if !c.PairCreatedAt.IsZero() {
		if age := now.Sub(c.PairCreatedAt); age >= 0 && age < 24*time.Hour {
			flags = append(flags, domain.Flag{
				Code:     "new_pair",
				Severity: domain.FlagInfo,
				Message:  fmt.Sprintf("pair created %s ago", age.Truncate(time.Minute)),
			})
		}
	}
	return flags
}

// mergeFlags appends derived flags whose code is not already present.
func mergeFlags(existing, derived []domain.Flag) []domain.Flag {
	if len(derived) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	out := make([]domain.Flag, 0, len(existing)+len(derived))
	for _, f := range existing {
		seen[strings.ToLower(f.Code)] = struct{}{}
		out = append(out, f)
	}
	for _, f := range derived {
		if _, ok := seen[strings.ToLower(f.Code)]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
