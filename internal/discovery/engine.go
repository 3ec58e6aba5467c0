package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// StrategyID tags discovery signals.
const StrategyID = "discovery"

// DefaultScanLimit caps scan results when no limit is given.
const DefaultScanLimit = 20

// BoostProvider lists promoted/trending tokens across chains and resolves
// single tokens. DexScreener implements it.
type BoostProvider interface {
	Name() string
	BoostedTokens(ctx context.Context) ([]domain.TokenCandidate, error)
	TokenPairs(ctx context.Context, chain, address string) ([]domain.TokenCandidate, error)
}

// PoolProvider lists per-chain trending and freshly created pools.
// GeckoTerminal implements it.
type PoolProvider interface {
	Name() string
	TrendingPools(ctx context.Context, chain string) ([]domain.TokenCandidate, error)
	NewPools(ctx context.Context, chain string) ([]domain.TokenCandidate, error)
}

// SignalSink receives discovery signals.
type SignalSink interface {
	Create(ctx context.Context, in domain.CreateSignal) (domain.Signal, error)
}

// Config controls the engine.
type Config struct {
	Thresholds
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	DefaultChains   []string
	ScanLimit       int
	PublishCooldown time.Duration
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		CacheTTL:        20 * time.Second,
		FetchTimeout:    8 * time.Second,
		DefaultChains:   []string{"ethereum", "base", "arbitrum", "solana"},
		ScanLimit:       DefaultScanLimit,
		PublishCooldown: time.Hour,
	}
}

// ScanOptions narrows a scan. Zero values fall back to config defaults.
type ScanOptions struct {
	Chains []string
	Limit  int
}

// Engine runs discovery scans. It owns its caches; nothing is process-wide.
type Engine struct {
	cfg       Config
	boosts    BoostProvider
	pools     PoolProvider
	baseline  *VolumeBaseline
	fetches   *TTLCache[[]domain.TokenCandidate]
	recorder  domain.EvaluationRecorder
	cache     domain.CandidateCache
	cooldowns domain.CooldownStore
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.RWMutex
	latest []domain.Evaluation
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithRecorder sends every evaluation to r.
func WithRecorder(r domain.EvaluationRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithCandidateCache shares evaluations with other processes.
func WithCandidateCache(c domain.CandidateCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCooldowns suppresses republishing the same token within
// Config.PublishCooldown.
func WithCooldowns(c domain.CooldownStore) Option {
	return func(e *Engine) { e.cooldowns = c }
}

// WithClock overrides the engine clock, including its fetch cache.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. Either provider may be nil.
func NewEngine(cfg Config, boosts BoostProvider, pools PoolProvider, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = DefaultScanLimit
	}
	e := &Engine{
		cfg:      cfg,
		boosts:   boosts,
		pools:    pools,
		baseline: NewVolumeBaseline(0),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "discovery")),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fetches = NewTTLCache[[]domain.TokenCandidate](cfg.CacheTTL, e.now)
	return e
}

// Baseline exposes the rolling volume baseline.
func (e *Engine) Baseline() *VolumeBaseline { return e.baseline }

type feed struct {
	key   string
	fetch func(context.Context) ([]domain.TokenCandidate, error)
}

func (e *Engine) feeds(chains []string) []feed {
	var out []feed
	if e.boosts != nil {
		b := e.boosts
		out = append(out, feed{
			key:   b.Name() + ":boosted",
			fetch: b.BoostedTokens,
		})
	}
	if e.pools != nil {
		p := e.pools
		for _, chain := range chains {
			out = append(out,
				feed{
					key:   p.Name() + ":trending:" + chain,
					fetch: func(ctx context.Context) ([]domain.TokenCandidate, error) { return p.TrendingPools(ctx, chain) },
				},
				feed{
					key:   p.Name() + ":new:" + chain,
					fetch: func(ctx context.Context) ([]domain.TokenCandidate, error) { return p.NewPools(ctx, chain) },
				},
			)
		}
	}
	return out
}

// fetch runs one feed behind the TTL cache with its own timeout. Failures
// yield no candidates.
func (e *Engine) fetch(ctx context.Context, f feed) []domain.TokenCandidate {
	got, err := e.fetches.GetOrLoad(ctx, f.key, func(ctx context.Context) ([]domain.TokenCandidate, error) {
		if e.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()
		}
		return f.fetch(ctx)
	})
	if err != nil {
		e.logger.Warn("market data fetch failed", slog.String("feed", f.key), slog.String("error", err.Error()))
		return nil
	}
	return got
}

func normalizeChains(chains []string) []string {
	out := make([]string, 0, len(chains))
	seen := make(map[string]struct{}, len(chains))
	for _, c := range chains {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Dedup groups candidates by (chain, lower(address)) and keeps the one with
// the higher 24h volume. First-seen order is preserved.
func Dedup(in []domain.TokenCandidate) []domain.TokenCandidate {
	idx := make(map[string]int, len(in))
	out := make([]domain.TokenCandidate, 0, len(in))
	for _, c := range in {
		if c.Address == "" {
			continue
		}
		key := strings.ToLower(c.Chain) + ":" + strings.ToLower(c.Address)
		if i, ok := idx[key]; ok {
			if c.Volume24h > out[i].Volume24h {
				out[i] = c
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, c)
	}
	return out
}

// Scan fetches every feed concurrently, merges and evaluates the results
// and returns qualifying evaluations by composite score, highest first.
// Once fetching is done every candidate is evaluated; ctx is not consulted
// mid-evaluation.
func (e *Engine) Scan(ctx context.Context, opts ScanOptions) ([]domain.Evaluation, error) {
	chains := normalizeChains(opts.Chains)
	if len(chains) == 0 {
		chains = normalizeChains(e.cfg.DefaultChains)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.ScanLimit
	}

	feeds := e.feeds(chains)
	results := make([][]domain.TokenCandidate, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(func() error {
			results[i] = e.fetch(gctx, f)
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.TokenCandidate
	for _, r := range results {
		all = append(all, r...)
	}
	merged := Dedup(all)

	allowed := make(map[string]struct{}, len(chains))
	for _, c := range chains {
		allowed[c] = struct{}{}
	}

	evals := make([]domain.Evaluation, 0, len(merged))
	var qualifying []domain.Evaluation
	for _, c := range merged {
		if _, ok := allowed[strings.ToLower(c.Chain)]; !ok {
			continue
		}
		ev := e.evaluate(c)
		evals = append(evals, ev)
		if ev.Qualifies {
			qualifying = append(qualifying, ev)
		}
	}

	SortByComposite(qualifying)
	if len(qualifying) > limit {
		qualifying = qualifying[:limit]
	}

	e.logger.Info("scan complete",
		slog.Int("feeds", len(feeds)),
		slog.Int("fetched", len(all)),
		slog.Int("unique", len(merged)),
		slog.Int("evaluated", len(evals)),
		slog.Int("qualifying", len(qualifying)),
	)

	e.record(ctx, evals)
	e.storeLatest(ctx, qualifying)
	return qualifying, nil
}

// SortByComposite orders evaluations by composite desc, then volume desc.
func SortByComposite(evals []domain.Evaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		a, b := evals[i].Candidate, evals[j].Candidate
		if a.Scores.Composite != b.Scores.Composite {
			return a.Scores.Composite > b.Scores.Composite
		}
		return a.Volume24h > b.Volume24h
	})
}

// evaluate scores c against the baseline seen so far, then folds c's volume
// into the baseline whether or not it qualifies.
func (e *Engine) evaluate(c domain.TokenCandidate) domain.Evaluation {
	mean, ok := e.baseline.Mean(c.Address)
	ev := Evaluate(c, mean, ok, e.cfg.Thresholds, e.now().UTC())
	e.baseline.Observe(c.Address, c.Volume24h)
	return ev
}

// AnalyzeToken evaluates one token. chain may be empty, in which case the
// most liquid pair on any chain is used. It returns domain.ErrNotFound when
// no market data exists.
func (e *Engine) AnalyzeToken(ctx context.Context, address, chain string) (domain.Evaluation, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Evaluation{}, fmt.Errorf("discovery: analyze: empty address: %w", domain.ErrValidation)
	}
	if e.boosts == nil {
		return domain.Evaluation{}, fmt.Errorf("discovery: analyze %s: %w", address, domain.ErrNotFound)
	}
	chain = strings.ToLower(strings.TrimSpace(chain))

	key := e.boosts.Name() + ":token:" + chain + ":" + strings.ToLower(address)
	pairs := e.fetch(ctx, feed{
		key: key,
		fetch: func(ctx context.Context) ([]domain.TokenCandidate, error) {
			return e.boosts.TokenPairs(ctx, chain, address)
		},
	})

	var best *domain.TokenCandidate
	for i := range pairs {
		p := &pairs[i]
		if chain != "" && !strings.EqualFold(p.Chain, chain) {
			continue
		}
		if best == nil || p.Liquidity > best.Liquidity {
			best = p
		}
	}
	if best == nil {
		return domain.Evaluation{}, fmt.Errorf("discovery: analyze %s: %w", address, domain.ErrNotFound)
	}

	ev := e.evaluate(*best)
	e.record(ctx, []domain.Evaluation{ev})
	if e.cache != nil {
		if err := e.cache.SetEvaluation(ctx, ev, e.cacheTTL()); err != nil {
			e.logger.Warn("cache evaluation failed", slog.String("error", err.Error()))
		}
	}
	return ev, nil
}

// CachedEvaluation returns an evaluation stored by any process, falling back
// to a fresh analysis.
func (e *Engine) CachedEvaluation(ctx context.Context, address, chain string) (domain.Evaluation, error) {
	if e.cache != nil && chain != "" {
		ev, err := e.cache.GetEvaluation(ctx, strings.ToLower(chain), address)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("read cached evaluation failed", slog.String("error", err.Error()))
		}
	}
	return e.AnalyzeToken(ctx, address, chain)
}

// Latest returns the most recent scan results, preferring the shared cache.
func (e *Engine) Latest(ctx context.Context) ([]domain.Evaluation, error) {
	if e.cache != nil {
		evals, err := e.cache.Latest(ctx)
		if err == nil {
			return evals, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("discovery: latest: %w", err)
		}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Evaluation(nil), e.latest...), nil
}

func (e *Engine) cacheTTL() time.Duration {
	// Shared results outlive the fetch cache so readers see the last scan.
	if ttl := 10 * e.cfg.CacheTTL; ttl > 0 {
		return ttl
	}
	return 5 * time.Minute
}

func (e *Engine) storeLatest(ctx context.Context, evals []domain.Evaluation) {
	e.mu.Lock()
	e.latest = append([]domain.Evaluation(nil), evals...)
	e.mu.Unlock()

	if e.cache == nil {
		return
	}
	if err := e.cache.SetLatest(ctx, evals, e.cacheTTL()); err != nil {
		e.logger.Warn("cache scan results failed", slog.String("error", err.Error()))
	}
	for _, ev := range evals {
		if err := e.cache.SetEvaluation(ctx, ev, e.cacheTTL()); err != nil {
			e.logger.Warn("cache evaluation failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (e *Engine) record(ctx context.Context, evals []domain.Evaluation) {
	if e.recorder == nil || len(evals) == 0 {
		return
	}
	if err := e.recorder.Record(ctx, evals); err != nil {
		e.logger.Warn("record evaluations failed", slog.Int("count", len(evals)), slog.String("error", err.Error()))
	}
}

// SeverityFor maps a composite score to a signal severity.
func SeverityFor(composite int) domain.SignalSeverity {
	switch {
	case composite >= 80:
		return domain.SeverityHigh
	case composite >= 60:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Publish turns qualifying evaluations into DiscoveryCandidate signals and
// returns how many were created. Tokens published within the cooldown are
// skipped.
func (e *Engine) Publish(ctx context.Context, sink SignalSink, evals []domain.Evaluation) (int, error) {
	created := 0
	for _, ev := range evals {
		if !ev.Qualifies {
			continue
		}
		c := ev.Candidate
		key := "discovery:" + strings.ToLower(c.Chain) + ":" + strings.ToLower(c.Address)
		if e.cooldowns != nil && e.cfg.PublishCooldown > 0 {
			ok, err := e.cooldowns.Acquire(ctx, key, e.now(), e.cfg.PublishCooldown)
			if err != nil {
				return created, fmt.Errorf("discovery: publish cooldown: %w", err)
			}
			if !ok {
				continue
			}
		}

		evidence, err := json.Marshal(domain.DiscoveryEvidence{
			Scores:           c.Scores,
			Conditions:       ev.Conditions,
			ConditionsPassed: ev.ConditionsPassed,
			Flags:            c.Flags,
			Volume24h:        c.Volume24h,
			Liquidity:        c.Liquidity,
			PriceChange1h:    c.PriceChange1h,
		})
		if err != nil {
			return created, fmt.Errorf("discovery: marshal evidence: %w", err)
		}

		symbol := c.Symbol
		if symbol == "" {
			symbol = c.Address
		}
		_, err = sink.Create(ctx, domain.CreateSignal{
			Severity:          SeverityFor(c.Scores.Composite),
			Type:              domain.SignalTypeDiscoveryCandidate,
			Title:             fmt.Sprintf("Discovery: %s on %s", symbol, c.Chain),
			Summary:           fmt.Sprintf("%s passed %d/5 conditions with composite score %d.", symbol, ev.ConditionsPassed, c.Scores.Composite),
			Token:             c.Address,
			TokenSymbol:       c.Symbol,
			Chain:             c.Chain,
			StrategyID:        StrategyID,
			Evidence:          evidence,
			RecommendedAction: "Research the token and its liquidity before entering; scores are momentum heuristics.",
			Metadata: map[string]any{
				"source":      c.Source,
				"pairAddress": c.PairAddress,
			},
		})
		if err != nil {
			if e.cooldowns != nil && e.cfg.PublishCooldown > 0 {
				_ = e.cooldowns.Release(ctx, key)
			}
			return created, fmt.Errorf("discovery: publish %s: %w", c.Address, err)
		}
		created++
	}
	return created, nil
}

// Run scans every interval, publishing results when sink is non-nil.
func (e *Engine) Run(ctx context.Context, every time.Duration, sink SignalSink) error {
	if every <= 0 {
		every = time.Minute
	}
	tick := func() {
		evals, err := e.Scan(ctx, ScanOptions{})
		if err != nil {
			e.logger.Error("scan failed", slog.String("error", err.Error()))
			return
		}
		if sink == nil {
			return
		}
		n, err := e.Publish(ctx, sink, evals)
		if err != nil {
			e.logger.Error("publish candidates failed", slog.String("error", err.Error()))
		}
		if n > 0 {
			e.logger.Info("discovery signals published", slog.Int("count", n))
		}
	}

	tick()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
