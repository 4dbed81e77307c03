// Command sentineld runs the realtime anomaly-detection and
// paper-trading pipeline end to end: it ingests Binance USD-M futures
// ticker/depth streams, tracks per-symbol state, evaluates detectors and
// the order-book monitor, computes features, backfills delay-gated
// labels, filters alerts for risk, drives the paper-trading engine, and
// serves a dashboard HTTP/websocket API — wiring every package in
// internal/ together the way the donor's main.go wires its services.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/config"
	"github.com/sentineld/sentineld/internal/detector"
	"github.com/sentineld/sentineld/internal/exchange"
	"github.com/sentineld/sentineld/internal/feature"
	"github.com/sentineld/sentineld/internal/httpapi"
	"github.com/sentineld/sentineld/internal/label"
	"github.com/sentineld/sentineld/internal/logger"
	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/notify"
	"github.com/sentineld/sentineld/internal/orderbook"
	"github.com/sentineld/sentineld/internal/risk"
	"github.com/sentineld/sentineld/internal/schedule"
	"github.com/sentineld/sentineld/internal/store"
	"github.com/sentineld/sentineld/internal/tracker"
	"github.com/sentineld/sentineld/internal/trading"
)

func main() {
	settings, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(settings.Logging.Level)
	log.Info().Msg("sentineld starting")

	application, err := build(settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build failed")
	}
	defer application.close()

	ctx, cancel := context.WithCancel(context.Background())
	application.start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown requested")

	cancel()
	application.shutdown()
	log.Info().Msg("sentineld stopped")
}

// app bundles every wired collaborator so main can start/stop them as a
// unit.
type app struct {
	log zerolog.Logger

	tracker    *tracker.Tracker
	dispatcher *detector.Dispatcher
	obMonitor  *orderbook.Monitor
	features   *feature.Engine
	labels     *label.Generator
	reconciler *label.Reconciler
	riskFilter *risk.Filter
	db         *store.Store
	engine     *trading.RealtimeEngine
	manager    *trading.PositionManager
	strategy   *trading.Strategy
	feed       exchange.Feed
	fanout     *notify.Fanout
	scheduler  *schedule.Scheduler
	httpSrv    *http.Server

	settings *config.Settings
}

// build wires every collaborator from settings but starts nothing.
func build(settings *config.Settings, log zerolog.Logger) (*app, error) {
	trk := tracker.New()

	tiers := make([]model.TierConfig, 0, len(settings.VolumeTiers))
	for _, t := range settings.VolumeTiers {
		tiers = append(tiers, model.TierConfig{
			MinOIValue: t.MinOIValue, PriceThreshold: t.PriceThreshold,
			VolumeThreshold: t.VolumeThreshold, OIThreshold: t.OIThreshold,
			SpreadThreshold: t.SpreadThreshold, Label: t.Label,
		})
	}
	if len(tiers) == 0 {
		tiers = []model.TierConfig{{Label: "default", PriceThreshold: 3, VolumeThreshold: 3, OIThreshold: 3, SpreadThreshold: 0.5}}
	}

	dispatcher := detector.NewDispatcher(detector.Config{
		Tiers:          tiers,
		Filter:         detectorFilter(settings.Filter),
		Windows:        detector.DefaultWindows(),
		Cooldown:       time.Duration(settings.Alerts.CooldownSec) * time.Second,
		VolumeLookback: settings.Alerts.VolumeSpike.LookbackPeriods,
		Enabled: map[model.AnomalyKind]bool{
			model.KindPriceChange:       settings.Alerts.PriceChange.Enabled,
			model.KindVolumeSpike:       settings.Alerts.VolumeSpike.Enabled,
			model.KindOIChange:          settings.Alerts.OpenInterest.Enabled,
			model.KindSpotFuturesSpread: settings.Alerts.SpotFuturesSpread.Enabled,
			model.KindPriceReversal:     settings.Alerts.PriceReversal.Enabled,
		},
	})

	obMonitor := orderbook.NewMonitor(orderbook.Config{
		DepthLevels:          settings.Alerts.OrderBook.DepthLevels,
		WallValueThreshold:   settings.Alerts.OrderBook.WallValueThreshold,
		WallRatioThreshold:   settings.Alerts.OrderBook.WallRatioThreshold,
		WallDistanceMaxPct:   settings.Alerts.OrderBook.WallDistanceMax,
		ImbalanceThreshold:   settings.Alerts.OrderBook.ImbalanceThreshold,
		ImbalanceDepthLevels: settings.Alerts.OrderBook.ImbalanceDepthLevels,
		SweepValueThreshold:  settings.Alerts.OrderBook.SweepValueThreshold,
		Cooldown:             time.Duration(settings.Alerts.CooldownSec) * time.Second,
	})

	featureEngine := feature.New()

	db, err := store.Open("sentineld.db")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	labelCfg := label.DefaultConfig()
	labelCfg.DirectionThreshold = settings.ML.Label.DirectionThresholdPct
	labelGen := label.New(db, labelCfg)
	reconciler := label.NewReconciler(db, labelCfg)

	riskFilter := risk.New(risk.Config{
		MaxWSLatencyMs:         settings.ML.Risk.MaxWSLatencyMs,
		MaxSpreadBps:           settings.ML.Risk.MaxSpreadBps,
		MinDepthValue:          settings.ML.Risk.MinDepthValue,
		FakeSignalWindow:       time.Duration(settings.Alerts.PriceChange.TimeWindowSec) * time.Second,
		FakeSignalRevertRatio:  settings.ML.Risk.FakeSignalRevertRatio,
		FakeSignalMinChangePct: settings.ML.Risk.FakeSignalMinChangePct,
		WallFlashWindow:        time.Minute,
		WallFlashCount:         3,
		VolumeSpikeRatio:       5.0,
	})

	account := trading.NewAccount(trading.AccountConfig{
		InitialBalance:  settings.Trading.Account.InitialBalance,
		Leverage:        settings.Trading.Account.Leverage,
		MakerFee:        settings.Trading.Account.MakerFee,
		TakerFee:        settings.Trading.Account.TakerFee,
		MaxPositions:    settings.Trading.Account.MaxPositions,
		PositionRiskPct: settings.Trading.Account.PositionRiskPct,
	})
	stopLoss := trading.NewStopLossManager(trading.StopLossConfig{
		Mode:               trading.StopLossMode(settings.Trading.StopLoss.Method),
		FixedStopPct:       settings.Trading.StopLoss.FixedStopPct,
		TakeProfitPct:      settings.Trading.StopLoss.TakeProfitPct,
		ATRMultiplier:      settings.Trading.StopLoss.ATRMultiplier,
		ATRPeriod:          settings.Trading.StopLoss.ATRPeriod,
		TrailingDistance:   settings.Trading.StopLoss.TrailingDistance,
		TrailingActivation: settings.Trading.StopLoss.TrailingActivation,
		MaxHoldSec:         settings.Trading.StopLoss.MaxHoldSec,
	})
	manager := trading.NewPositionManager(account, stopLoss, settings.Trading.Realtime.MaxPositionsPerSymbol)
	strategy := trading.NewStrategy(trading.StrategyConfig{
		MinConfidence:           settings.Trading.Strategy.MinConfidence,
		SignalThreshold:         settings.Trading.Strategy.SignalThreshold,
		RSIOversold:             settings.Trading.Strategy.RSIOversold,
		RSIOverbought:           settings.Trading.Strategy.RSIOverbought,
		MinVolatility:           settings.Trading.Strategy.MinVolatility,
		MinVolumeRatio:          settings.Trading.Strategy.MinVolumeRatio,
		ImbalanceLongThreshold:  settings.Trading.Strategy.ImbalanceLongThreshold,
		ImbalanceShortThreshold: settings.Trading.Strategy.ImbalanceShortThreshold,
		TrendFilterPct:          settings.Trading.Strategy.TrendFilterPct,
	})
	engine := trading.NewEngine(manager, strategy, db, trading.EngineConfig{
		SaveInterval:          time.Duration(settings.Trading.Realtime.SaveIntervalSec) * time.Second,
		MaxPositionsPerSymbol: settings.Trading.Realtime.MaxPositionsPerSymbol,
		AllowedSymbols:        symbolSet(settings.Trading.Realtime.AllowedSymbols),
	})

	var sinks []notify.Sink
	if settings.Telegram.Enabled && settings.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSink(settings.Telegram.BotToken, settings.Telegram.ChatID, "chat_id.txt", log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram sink disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}
	if settings.Push.Enabled && settings.Push.ServiceAccountKeyPath != "" {
		push, err := notify.NewPushSink(context.Background(), settings.Push.ServiceAccountKeyPath, log)
		if err != nil {
			log.Warn().Err(err).Msg("push sink disabled")
		} else {
			sinks = append(sinks, push)
		}
	}
	fanout := notify.NewFanout(log, sinks...)

	feed := exchange.NewBinanceFeed(settings.Exchange.APIKey, settings.Exchange.APISecret,
		settings.Exchange.UseTestnet, settings.Alerts.OrderBook.Symbols, settings.Alerts.OrderBook.DepthLevels, log)

	dashboard := httpapi.New(account, trk, db, log)
	httpSrv := &http.Server{Addr: settings.HTTP.ListenAddr, Handler: dashboard.Handler()}

	return &app{
		log:        log,
		tracker:    trk,
		dispatcher: dispatcher,
		obMonitor:  obMonitor,
		features:   featureEngine,
		labels:     labelGen,
		reconciler: reconciler,
		riskFilter: riskFilter,
		db:         db,
		engine:     engine,
		manager:    manager,
		strategy:   strategy,
		feed:       feed,
		fanout:     fanout,
		httpSrv:    httpSrv,
		settings:   settings,
	}, nil
}

func detectorFilter(cfg config.FilterConfig) detector.Filter {
	set := symbolSet(cfg.Whitelist)
	mode := detector.FilterModeNone
	switch cfg.Mode {
	case "whitelist":
		mode = detector.FilterModeWhitelist
	case "blacklist":
		mode = detector.FilterModeBlacklist
		set = symbolSet(cfg.Blacklist)
	}
	return detector.Filter{Mode: mode, Symbols: set}
}

func symbolSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		out[s] = struct{}{}
	}
	return out
}

// start launches every background collaborator: the exchange feed, the
// scheduler's periodic tasks and the dashboard HTTP server. The Telegram
// command listener (TelegramSink.ListenCommands) is not started.
func (a *app) start(ctx context.Context) {
	a.engine.Start()

	go func() {
		if err := a.feed.Run(ctx, a.onTicker, a.onDepth); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("exchange feed exited")
		}
	}()

	a.scheduler = schedule.New(a.tasks(), func(name string, err error) {
		a.log.Warn().Str("task", name).Err(err).Msg("scheduled task failed")
	})
	a.scheduler.Start(ctx)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error().Err(err).Msg("http server exited")
		}
	}()
}

// tasks builds the periodic Scheduler task list: OI/spot polling, label
// generation attempts, tracker cleanup and offline label reconciliation.
func (a *app) tasks() []schedule.Task {
	return []schedule.Task{
		{
			Name:     "oi_poll",
			Interval: time.Duration(a.settings.Alerts.OpenInterest.PollIntervalSec) * time.Second,
			Run:      a.pollOpenInterest,
		},
		{
			Name:     "spot_poll",
			Interval: time.Duration(a.settings.Alerts.SpotFuturesSpread.PollIntervalSec) * time.Second,
			Run:      a.pollSpotPrices,
		},
		{
			Name:     "label_attempt",
			Interval: 10 * time.Second,
			Run:      a.attemptLabels,
		},
		{
			Name:     "tracker_cleanup",
			Interval: 5 * time.Minute,
			Run:      a.cleanupTracker,
		},
		{
			Name:     "label_reconcile",
			Interval: time.Duration(a.settings.ML.Feature.SaveIntervalSec) * time.Second,
			Run:      a.reconcileLabels,
		},
	}
}

func (a *app) pollOpenInterest(ctx context.Context) error {
	return schedule.BoundedPollSymbols(ctx, a.tracker.AllSymbols(), 8, func(ctx context.Context, symbol string) error {
		oi, err := a.feed.GetOpenInterest(ctx, symbol)
		if err != nil {
			return err
		}
		a.tracker.UpdateOI(symbol, oi, time.Now())
		return nil
	})
}

func (a *app) pollSpotPrices(ctx context.Context) error {
	prices, err := a.feed.GetSpotTickers(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for symbol, price := range prices {
		a.tracker.UpdateSpot(symbol, price, now)
	}
	return nil
}

func (a *app) attemptLabels(ctx context.Context) error {
	now := time.Now()
	for _, symbol := range a.tracker.AllSymbols() {
		labels, err := a.labels.TryGenerate(symbol, now)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("label generation invariant violation")
			continue
		}
		for _, lbl := range labels {
			if err := a.db.SaveLabel(lbl); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) cleanupTracker(ctx context.Context) error {
	a.tracker.CleanupOlderThan(time.Hour)
	return nil
}

func (a *app) reconcileLabels(ctx context.Context) error {
	for _, symbol := range a.tracker.AllSymbols() {
		if _, err := a.reconciler.Run(symbol, time.Now(), 30*time.Minute, 100); err != nil {
			return err
		}
	}
	return nil
}

// onTicker is the ExchangeFeed callback invoked per ticker tick: it
// updates the tracker, evaluates detectors, computes features, registers
// them for delay-gated labeling, filters alerts for risk, notifies
// surviving alerts, persists state and drives the trading engine.
func (a *app) onTicker(t model.Ticker) {
	now := time.Now()
	a.tracker.Update(t)

	st, ok := a.tracker.Symbol(t.Symbol)
	if !ok {
		return
	}

	events := a.dispatcher.Evaluate(t.Symbol, st, now)
	for _, e := range events {
		a.handleAlert(e, st)
	}

	fv, ok := a.features.Compute(t.Symbol, st, a.obMonitor, now)
	if !ok {
		return
	}
	fv.AlertTriggered = len(events) > 0
	for _, e := range events {
		fv.AlertKinds = append(fv.AlertKinds, e.Kind)
	}

	if err := a.db.SaveFeature(*fv); err != nil {
		a.log.Warn().Err(err).Msg("save feature failed")
	}
	a.labels.Register(*fv)

	if err := a.db.SavePriceSnapshot(t.Symbol, now, t.Price, t.BaseVolume, t.QuoteVolume); err != nil {
		a.log.Warn().Err(err).Msg("save price snapshot failed")
	}

	spreadBps := fv.SpreadPct * 100
	if err := a.engine.OnFeatureUpdate(t.Symbol, *fv, t.Price, 0, spreadBps, now); err != nil {
		a.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("trading engine update failed")
	}
}

// onDepth is the ExchangeFeed callback invoked per depth-stream frame.
func (a *app) onDepth(snap model.DepthSnapshot) {
	events := a.obMonitor.Process(snap)
	if st, ok := a.tracker.Symbol(snap.Symbol); ok {
		for _, e := range events {
			a.handleAlert(e, st)
		}
	}
}

func (a *app) handleAlert(e model.AnomalyEvent, st *tracker.SymbolTracker) {
	_, filtered, reason, err := a.riskFilter.Evaluate(risk.Input{
		Symbol: e.Symbol, Now: e.TS,
		HasTicker: true, TickerTS: st.LastUpdate(), WSRecvTS: e.TS,
		RecentPrices:  st.Prices(),
		RecentVolumes: st.Volumes(),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", e.Symbol).Msg("risk filter error")
	}
	if err := a.db.SaveAlert(e, filtered, reason); err != nil {
		a.log.Warn().Err(err).Msg("save alert failed")
	}
	if filtered {
		return
	}

	level := model.NotifyWarning
	if e.Kind == model.KindOrderBookSweep || e.Kind == model.KindPriceReversal {
		level = model.NotifyCritical
	}
	a.fanout.Notify(model.NotificationMessage{
		Level: level, Symbol: e.Symbol, Alert: &e,
		Text: fmt.Sprintf("%s %.2f%% (tier %s)", e.Kind, e.ChangePct, e.Tier),
		TS:   e.TS,
	})
}

// shutdown closes open positions, persists final account state, stops
// the scheduler and shuts down the HTTP server, in that order.
func (a *app) shutdown() {
	now := time.Now()
	if _, err := a.manager.CloseAll(nil, model.ExitManual, now); err != nil {
		a.log.Warn().Err(err).Msg("close all positions failed")
	}
	if err := a.engine.Stop(now); err != nil {
		a.log.Warn().Err(err).Msg("persist final account state failed")
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http server shutdown failed")
	}
	a.fanout.Close()
}

// close releases resources that don't belong to the start/shutdown
// lifecycle (i.e. the database connection, which stays open across
// restarts within a process but must close when main returns).
func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store failed")
	}
}
