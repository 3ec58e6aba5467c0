package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// strong passes every condition except the volume spike when no baseline
// exists.
func strong(chain, address string, volume float64) domain.TokenCandidate {
	return domain.TokenCandidate{
		Chain:            chain,
		Address:          address,
		Symbol:           "TKN",
		Source:           "test",
		PriceUSD:         0.01,
		PriceChange1h:    12,
		PriceChange24h:   24,
		Volume24h:        volume,
		Liquidity:        150_000,
		FDV:              600_000,
		Buys24h:          900,
		Sells24h:         100,
		UniqueBuyers24h:  300,
		UniqueSellers24h: 100,
	}
}

func conditionByName(t *testing.T, ev domain.Evaluation, name string) domain.DiscoveryCondition {
	t.Helper()
	for _, c := range ev.Conditions {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("condition %s missing", name)
	return domain.DiscoveryCondition{}
}

func TestCompositeForReferenceToken(t *testing.T) {
	c := domain.TokenCandidate{
		Chain:            "base",
		Address:          "0xabc",
		Liquidity:        150_000,
		FDV:              600_000,
		Volume24h:        450_000,
		Buys24h:          1020,
		Sells24h:         180,
		PriceChange1h:    60,
		PriceChange24h:   120,
		UniqueBuyers24h:  400,
		UniqueSellers24h: 100,
		Flags: []domain.Flag{
			{Code: "mint_authority", Severity: domain.FlagHard},
			{Code: "freeze_authority", Severity: domain.FlagHard},
			{Code: "honeypot_sim", Severity: domain.FlagHard},
		},
	}

	ev := Evaluate(c, 0, false, DefaultThresholds(), now)

	assert.Equal(t, 4, ev.ConditionsPassed)
	assert.True(t, ev.Qualifies)
	assert.False(t, conditionByName(t, ev, CondVolumeSpike).Passed, "no baseline means ratio 1")

	s := ev.Candidate.Scores
	assert.Equal(t, 90, s.Momentum)
	assert.Equal(t, 100, s.Liquidity)
	assert.Equal(t, 20, s.Risk)
	assert.Equal(t, 90, s.Confidence)
	assert.Equal(t, 71, s.Composite)
	assert.Equal(t, Composite(s), s.Composite)
}

func TestScoresStayInRange(t *testing.T) {
	worst := domain.TokenCandidate{
		PriceChange1h: -80,
		Buys24h:       200,
		Flags: []domain.Flag{
			{Code: "a", Severity: domain.FlagHard},
			{Code: "b", Severity: domain.FlagHard},
			{Code: "c", Severity: domain.FlagHard},
			{Code: "d", Severity: domain.FlagHard},
		},
	}
	best := strong("base", "0x1", 500_000)
	best.PriceChange1h = 300
	best.FDV = 100_000
	best.Liquidity = 1_000_000

	for _, c := range []domain.TokenCandidate{worst, best, {}} {
		s := Evaluate(c, 0, false, DefaultThresholds(), now).Candidate.Scores
		for _, v := range []int{s.Momentum, s.Liquidity, s.Risk, s.Confidence, s.Composite} {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 100)
		}
	}
}

func TestVolumeSpikeUsesBaseline(t *testing.T) {
	c := strong("base", "0x1", 250)

	ev := Evaluate(c, 100, true, DefaultThresholds(), now)
	cond := conditionByName(t, ev, CondVolumeSpike)
	assert.True(t, cond.Passed)
	assert.InDelta(t, 2.5, cond.Value, 1e-9)
	assert.Equal(t, 5, ev.ConditionsPassed)

	ev = Evaluate(c, 0, true, DefaultThresholds(), now)
	assert.InDelta(t, 1.0, conditionByName(t, ev, CondVolumeSpike).Value, 1e-9)
}

func TestGateIsNOfM(t *testing.T) {
	c := strong("base", "0x1", 1000)
	c.Liquidity = 500 // fails liquidity
	c.Buys24h, c.Sells24h = 100, 900

	ev := Evaluate(c, 0, false, DefaultThresholds(), now)
	assert.Equal(t, 2, ev.ConditionsPassed)
	assert.False(t, ev.Qualifies)

	th := DefaultThresholds()
	th.MinConditionsToPass = 2
	assert.True(t, Evaluate(c, 0, false, th, now).Qualifies)
}

func TestPriceAccelerationNeedsPositiveSlope(t *testing.T) {
	c := strong("base", "0x1", 1000)
	c.PriceChange1h = 2
	c.PriceChange24h = 72 // hourly average 3

	assert.False(t, conditionByName(t, Evaluate(c, 0, false, DefaultThresholds(), now), CondPriceAcceleration).Passed)

	c.PriceChange1h = -1
	c.PriceChange24h = -48
	assert.False(t, conditionByName(t, Evaluate(c, 0, false, DefaultThresholds(), now), CondPriceAcceleration).Passed)
}

func TestPairAgeNeverGates(t *testing.T) {
	young := strong("base", "0x1", 1000)
	young.PairCreatedAt = now.Add(-time.Minute)
	old := strong("base", "0x1", 1000)
	old.PairCreatedAt = now.Add(-2 * 365 * 24 * time.Hour)

	a := Evaluate(young, 0, false, DefaultThresholds(), now)
	b := Evaluate(old, 0, false, DefaultThresholds(), now)

	assert.Equal(t, a.ConditionsPassed, b.ConditionsPassed)
	assert.Equal(t, a.Qualifies, b.Qualifies)
	assert.Equal(t, a.Candidate.Scores, b.Candidate.Scores)
	require.Len(t, a.Candidate.Flags, 1)
	assert.Equal(t, "new_pair", a.Candidate.Flags[0].Code)
	assert.Empty(t, b.Candidate.Flags)
}

func TestDerivedFlags(t *testing.T) {
	c := strong("base", "0x1", 1000)
	c.Liquidity = 2_000
	c.FDV = 1_000_000
	c.Buys24h, c.Sells24h = 80, 0
	c.Flags = []domain.Flag{{Code: "no_sells", Severity: domain.FlagHard}}

	flags := Evaluate(c, 0, false, DefaultThresholds(), now).Candidate.Flags
	codes := map[string]domain.FlagSeverity{}
	for _, f := range flags {
		codes[f.Code] = f.Severity
	}
	assert.Len(t, flags, 3, "existing no_sells flag is not duplicated")
	assert.Equal(t, domain.FlagWarning, codes["low_liquidity"])
	assert.Equal(t, domain.FlagHard, codes["no_sells"])
	assert.Equal(t, domain.FlagWarning, codes["extreme_fdv_ratio"])
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, domain.SeverityHigh, SeverityFor(80))
	assert.Equal(t, domain.SeverityMedium, SeverityFor(79))
	assert.Equal(t, domain.SeverityMedium, SeverityFor(60))
	assert.Equal(t, domain.SeverityLow, SeverityFor(59))
}
