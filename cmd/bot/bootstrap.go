package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tv-bracket-bot/internal/broker/brokerobs"
	"tv-bracket-bot/internal/broker/paper"
	"tv-bracket-bot/internal/broker/zerodha"
	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/engine/engineobs"
	"tv-bracket-bot/internal/eod"
	"tv-bracket-bot/internal/eod/eodobs"
	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/relay"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/trace"
	"tv-bracket-bot/internal/tradelog"
)

const eodCheckInterval = 60 * time.Second

// initializeSystem loads .env and initializes the logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded",
		"path", path,
		"mode", cfg.Mode,
		"broker", cfg.Broker.Provider,
		"transport", cfg.Relay.Transport,
		"channel", cfg.Relay.Channel,
	)
	return cfg, nil
}

// initializeBroker builds the broker session with observability. DRY_RUN
// always trades on paper.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	var brk interfaces.Broker

	if cfg.Mode == "DRY_RUN" || cfg.Broker.Provider == "PAPER" {
		if cfg.Broker.Provider == "ZERODHA" {
			logger.Warn(ctx, "Running in DRY_RUN mode - Zerodha provider replaced by paper broker")
		} else {
			logger.Warn(ctx, "Running on paper broker - orders will be simulated")
		}
		brk = paper.New(paper.Params{
			Location:       cfg.Location(),
			Tick:           cfg.Broker.DefaultTick,
			StrikeStep:     cfg.Paper.StrikeStep,
			StrikesPerSide: cfg.Paper.StrikesPerSide,
			WeeklyExpiries: cfg.Paper.WeeklyExpiries,
			ExpiryWeekday:  cfg.Paper.Weekday(),
			PremiumPct:     cfg.Paper.PremiumPct,
			SpreadTicks:    cfg.Paper.SpreadTicks,
			FillDelay:      cfg.Paper.FillDelay(),
			NeverFill:      cfg.Paper.NeverFill,
		})
	} else {
		z, err := zerodha.NewZerodha(zerodha.Params{
			APIKey:             cfg.Broker.APIKey,
			AccessToken:        cfg.Broker.AccessToken,
			Exchange:           cfg.Broker.Exchange,
			Product:            cfg.Broker.Product,
			Variety:            cfg.Broker.Variety,
			DefaultTick:        cfg.Broker.DefaultTick,
			InstrumentsTTL:     time.Duration(cfg.Broker.InstrumentsTTLMinute) * time.Minute,
			StreamOrderUpdates: cfg.Broker.StreamOrderUpdates,
			Location:           cfg.Location(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create zerodha session: %w", err)
		}
		logger.Warn(ctx, "Running in LIVE mode - orders go to Zerodha", "exchange", cfg.Broker.Exchange)
		brk = z
	}

	return brokerobs.Wrap(brk), nil
}

// initializeBus connects the alert transport named by relay.transport
func initializeBus(ctx context.Context, cfg *store.Config) (interfaces.Bus, error) {
	if cfg.Relay.Transport == "MEMORY" {
		logger.Info(ctx, "Using in-process alert bus")
		return relay.NewMemoryBus(), nil
	}
	return relay.NewRedisBus(ctx, cfg.Relay)
}

func initializeJournal(cfg *store.Config) *tradelog.Journal {
	return tradelog.New(cfg.EOD.LogDir, cfg.Location())
}

// initializeEngine builds the bracket placer with observability. The bare
// engine is returned too for its in-flight view.
func initializeEngine(cfg *store.Config, brk interfaces.Broker, journal *tradelog.Journal) (*engine.Engine, interfaces.Placer) {
	eng := engine.New(cfg, brk, journal)
	return eng, engineobs.Wrap(eng)
}

// initializeEOD builds the EOD summarizer with observability
func initializeEOD(cfg *store.Config, journal *tradelog.Journal) (interfaces.EodSummarizer, error) {
	s, err := eod.NewSummarizer(journal, cfg.EOD)
	if err != nil {
		return nil, err
	}
	return eodobs.Wrap(s), nil
}

// runEODLoop writes the day's report once the cutoff passes, and once more
// on shutdown.
func runEODLoop(ctx context.Context, s interfaces.EodSummarizer) {
	tick := time.NewTicker(eodCheckInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if ok, _ := s.ShouldRunNow(); ok {
				_, _ = s.SummarizeToday(ctx)
			}
		case <-ctx.Done():
			_, _ = s.SummarizeToday(context.WithoutCancel(ctx))
			return
		}
	}
}

// startBroker starts the session and returns the matching stop function.
func startBroker(ctx context.Context, brk interfaces.Broker) (func(), error) {
	if err := brk.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		brk.Stop(stopCtx)
	}, nil
}
