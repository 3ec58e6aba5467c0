package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gniumg-source/clawfi-g-sub001/internal/config"
	"github.com/gniumg-source/clawfi-g-sub001/internal/discovery"
	"github.com/gniumg-source/clawfi-g-sub001/internal/ingest"
	"github.com/gniumg-source/clawfi-g-sub001/internal/molt"
	"github.com/gniumg-source/clawfi-g-sub001/internal/notify"
	"github.com/gniumg-source/clawfi-g-sub001/internal/pipeline"
	"github.com/gniumg-source/clawfi-g-sub001/internal/platform/dexscreener"
	"github.com/gniumg-source/clawfi-g-sub001/internal/platform/geckoterminal"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/handler"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/ws"
	"github.com/gniumg-source/clawfi-g-sub001/internal/service"
)

// plan lists the components a mode starts.
type plan struct {
	detect   bool // molt detector and event ingestion
	discover bool // periodic discovery scans
	serve    bool // HTTP API and WebSocket hub
}

func planFor(mode string, serverEnabled bool) (plan, error) {
	switch mode {
	case "detect":
		return plan{detect: true, serve: serverEnabled}, nil
	case "discover":
		return plan{discover: true, serve: serverEnabled}, nil
	case "server":
		return plan{serve: true}, nil
	case "full":
		return plan{detect: true, discover: true, serve: serverEnabled}, nil
	default:
		return plan{}, fmt.Errorf("app: unsupported mode %q", mode)
	}
}

// strategies returns the strategy ids whose signals originate in this
// process. Notifications are limited to them so that a signal relayed over
// the bus is not announced twice.
func (p plan) strategies(publishDiscovery bool) []string {
	var out []string
	if p.detect {
		out = append(out, molt.StrategyID)
	}
	if p.discover && publishDiscovery {
		out = append(out, discovery.StrategyID)
	}
	return out
}

func (a *App) run(ctx context.Context, mode string, p plan, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	signalSvc := service.NewSignalService(deps.SignalStore, deps.SignalBus, deps.AuditStore, a.cfg.Signals.Channel, a.logger)
	a.goRun(ctx, g, "signal service", signalSvc.Run)

	strategies := p.strategies(a.cfg.Discovery.PublishSignals)
	if len(deps.Senders) > 0 && len(strategies) > 0 {
		notifier := notify.NewNotifier(deps.Senders, minSeverity(a.cfg.Notify.MinSeverity), strategies, a.logger)
		unsubscribe := signalSvc.Subscribe(notifier.HandleSignal)
		defer unsubscribe()
	}

	var jobs []pipeline.Job

	if p.detect {
		detector := a.buildDetector(deps, signalSvc)
		a.startIngest(ctx, g, deps, detector)
		a.goRun(ctx, g, "pending sell cleanup", func(ctx context.Context) error {
			return detector.RunCleanup(ctx, a.cfg.Molt.CleanupInterval.Duration)
		})
		if a.cfg.Molt.ResnapshotCron != "" {
			jobs = append(jobs, pipeline.Job{
				Name: "resnapshot-baselines",
				Cron: a.cfg.Molt.ResnapshotCron,
				Run: func(ctx context.Context) error {
					_, err := detector.ResnapshotBaselines(ctx, "")
					return err
				},
			})
		}
	}

	var engine *discovery.Engine
	if p.discover || p.serve {
		engine = a.buildEngine(deps)
	}
	if p.discover {
		var sink discovery.SignalSink
		if a.cfg.Discovery.PublishSignals {
			sink = signalSvc
		}
		a.goRun(ctx, g, "discovery", func(ctx context.Context) error {
			return engine.Run(ctx, a.cfg.Discovery.ScanInterval.Duration, sink)
		})
	}

	if deps.Archiver != nil {
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		jobs = append(jobs, archiver.Job(a.cfg.Archive.Cron))
	}
	orchestrator := pipeline.NewOrchestrator(deps.LockManager, 30*time.Minute, a.logger, jobs...)
	if len(jobs) > 0 {
		a.goRun(ctx, g, "orchestrator", orchestrator.Run)
	}

	if p.serve {
		a.startHTTPServer(ctx, g, mode, deps, signalSvc, engine, orchestrator, strategies)
	}

	return g.Wait()
}

// goRun starts fn in g. Errors returned after ctx is cancelled count as a
// clean shutdown.
func (a *App) goRun(ctx context.Context, g *errgroup.Group, name string, fn func(context.Context) error) {
	g.Go(func() error {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

func (a *App) buildDetector(deps *Dependencies, sink molt.SignalSink) *molt.Detector {
	return NewDetector(a.cfg, deps, sink, a.logger)
}

// NewDetector builds the molt detector from cfg over the wired stores.
func NewDetector(c *config.Config, deps *Dependencies, sink molt.SignalSink, logger *slog.Logger) *molt.Detector {
	m := c.Molt
	cfg := molt.Config{
		ThresholdPercent: m.ThresholdPercent,
		MinPositionUSD:   decimal.NewFromFloat(m.MinPositionUSD),
		RotationWindow:   time.Duration(m.RotationWindowMinutes) * time.Minute,
		Cooldown:         time.Duration(m.CooldownMinutes) * time.Minute,
	}
	return molt.New(cfg, deps.PositionStore, deps.PendingSells, deps.Cooldowns, sink, logger)
}

// startIngest feeds the detector from the Redis stream and, when enabled,
// from Kafka.
func (a *App) startIngest(ctx context.Context, g *errgroup.Group, deps *Dependencies, detector *molt.Detector) {
	in := a.cfg.Ingest
	router := ingest.NewRouter(detector, in.Workers, a.logger)

	stream := ingest.NewStreamSource(deps.SignalBus, router, in.Stream, in.BatchSize, in.PollEvery.Duration, a.logger)
	if deps.StreamCursor != nil {
		stream.WithCursor(deps.StreamCursor)
	}
	a.goRun(ctx, g, "stream ingest", stream.Run)

	if a.cfg.Kafka.Enabled {
		kc := a.cfg.Kafka
		src, err := ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers:          kc.Brokers,
			Topic:            kc.Topic,
			GroupID:          kc.GroupID,
			SessionTimeoutMs: kc.SessionTimeoutMs,
			ReadTimeout:      kc.ReadTimeout.Duration,
			BatchSize:        in.BatchSize,
		}, router, a.logger)
		if err != nil {
			g.Go(func() error { return err })
			return
		}
		a.goRun(ctx, g, "kafka ingest", src.Run)
	}
}

func (a *App) buildEngine(deps *Dependencies) *discovery.Engine {
	return NewEngine(a.cfg, deps, a.logger)
}

// NewEngine builds the discovery engine with the DexScreener and
// GeckoTerminal providers.
func NewEngine(c *config.Config, deps *Dependencies, logger *slog.Logger) *discovery.Engine {
	d := c.Discovery
	httpClient := &http.Client{Timeout: d.FetchTimeout.Duration}

	dexOpts := []dexscreener.Option{dexscreener.WithHTTPClient(httpClient)}
	geckoOpts := []geckoterminal.Option{geckoterminal.WithHTTPClient(httpClient)}
	if deps.ProviderLimiter != nil {
		dexOpts = append(dexOpts, dexscreener.WithRateLimiter(deps.ProviderLimiter))
		geckoOpts = append(geckoOpts, geckoterminal.WithRateLimiter(deps.ProviderLimiter))
	}

	cfg := discovery.Config{
		Thresholds: discovery.Thresholds{
			VolumeSpikeThreshold: d.VolumeSpikeThreshold,
			BuyPressureThreshold: d.BuyPressureThreshold,
			MinLiquidity:         d.MinLiquidity,
			MinConditionsToPass:  d.MinConditionsToPass,
		},
		CacheTTL:        d.CacheTTL.Duration,
		FetchTimeout:    d.FetchTimeout.Duration,
		DefaultChains:   d.DefaultChains,
		ScanLimit:       d.ScanLimit,
		PublishCooldown: d.PublishCooldown.Duration,
	}

	opts := []discovery.Option{
		discovery.WithCandidateCache(deps.CandidateCache),
		discovery.WithCooldowns(deps.Cooldowns),
	}
	if deps.Recorder != nil {
		opts = append(opts, discovery.WithRecorder(deps.Recorder))
	}

	return discovery.NewEngine(cfg,
		dexscreener.NewClient(d.DexScreenerURL, dexOpts...),
		geckoterminal.NewClient(d.GeckoTerminalURL, geckoOpts...),
		logger, opts...)
}

func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	mode string,
	deps *Dependencies,
	signalSvc *service.SignalService,
	engine *discovery.Engine,
	jobs *pipeline.Orchestrator,
	strategies []string,
) {
	hub := ws.NewHub(mode, a.logger)
	unsubscribe := signalSvc.Subscribe(hub.HandleSignal)
	a.goRun(ctx, g, "ws hub", func(ctx context.Context) error {
		defer unsubscribe()
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:  handler.NewStatusHandler(mode, strategies, a.startedAt),
		Signals: handler.NewSignalHandler(signalSvc, a.logger),
		Jobs:    handler.NewJobHandler(jobs, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if engine != nil {
		handlers.Discovery = handler.NewDiscoveryHandler(engine, a.logger)
	}

	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Port:         sc.Port,
		CORSOrigins:  sc.CORSOrigins,
		RateLimitRPM: sc.RateLimitRPM,
		ReadTimeout:  sc.ReadTimeout.Duration,
		WriteTimeout: sc.WriteTimeout.Duration,
	}, handlers, hub, deps.APILimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		window := sc.ShutdownWindow.Duration
		if window <= 0 {
			window = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), window)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
