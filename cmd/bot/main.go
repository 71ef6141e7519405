package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/relay"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/trace"
	"tv-bracket-bot/internal/types"
)

var (
	version    = "dev"
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "bot",
	Short:         "Relay TradingView alerts into bracket option orders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeSystem()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and publish alerts on the relay channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}
		if cfg.Relay.Transport == "MEMORY" {
			return errors.New("serve needs a shared transport; use 'run' with relay.transport MEMORY")
		}
		bus, err := initializeBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close()

		return relay.NewServer(cfg.Server, cfg.Relay.Channel, bus).ListenAndServe(ctx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Subscribe to the relay channel and place a bracket per alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}
		if cfg.Relay.Transport == "MEMORY" {
			return errors.New("worker needs a shared transport; use 'run' with relay.transport MEMORY")
		}
		bus, err := initializeBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close()

		return runWorker(ctx, cfg, bus)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the webhook server and the worker in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}
		bus, err := initializeBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer bus.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		errCh := make(chan error, 2)
		go func() {
			errCh <- runWorker(ctx, cfg, bus)
		}()
		go func() {
			errCh <- relay.NewServer(cfg.Server, cfg.Relay.Channel, bus).ListenAndServe(ctx)
		}()

		first := <-errCh
		cancel()
		second := <-errCh
		return errors.Join(first, second)
	},
}

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Place one bracket from flags, bypassing the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		alert := map[string]any{}
		for _, name := range []string{"symbol", "right"} {
			v, _ := cmd.Flags().GetString(name)
			alert[name] = v
		}
		for flag, key := range map[string]string{
			"price":       "referencePrice",
			"qty":         "quantity",
			"limit-pct":   "parentLimitPercent",
			"stop-pct":    "stopLossPercent",
			"take-profit": "takeProfitPercent",
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetFloat64(flag)
				alert[key] = v
			}
		}
		payload, err := json.Marshal(alert)
		if err != nil {
			return err
		}
		parsed, err := types.ParseAlert(payload)
		if err != nil {
			return err
		}
		req, err := parsed.Request(cfg.Bracket.Defaults())
		if err != nil {
			return err
		}

		brk, err := initializeBroker(ctx, cfg)
		if err != nil {
			return err
		}
		stop, err := startBroker(ctx, brk)
		if err != nil {
			return err
		}
		defer stop()

		journal := initializeJournal(cfg)
		_, placer := initializeEngine(cfg, brk, journal)
		res, err := placer.Place(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the option chain for a symbol and the contract nearest a price",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}
		symbol, _ := cmd.Flags().GetString("symbol")
		rightFlag, _ := cmd.Flags().GetString("right")
		month, _ := cmd.Flags().GetString("month")
		price, _ := cmd.Flags().GetFloat64("price")

		right, err := types.ParseRight(rightFlag)
		if err != nil {
			return err
		}
		if month == "" {
			month = time.Now().In(cfg.Location()).Format("200601")
		}

		brk, err := initializeBroker(ctx, cfg)
		if err != nil {
			return err
		}
		stop, err := startBroker(ctx, brk)
		if err != nil {
			return err
		}
		defer stop()

		contracts, err := brk.LookupContracts(ctx, types.ContractQuery{Symbol: symbol, Right: right, Month: month, Near: price})
		if err != nil {
			return err
		}
		return printChain(contracts, price)
	},
}

var eodCmd = &cobra.Command{
	Use:   "eod",
	Short: "Write the end-of-day CSV for a day's placements",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx, configPath)
		if err != nil {
			return err
		}
		summarizer, err := initializeEOD(cfg, initializeJournal(cfg))
		if err != nil {
			return err
		}

		date, _ := cmd.Flags().GetString("date")
		var csvPath string
		if date == "" {
			csvPath, err = summarizer.SummarizeToday(ctx)
		} else {
			day, perr := time.ParseInLocation("2006-01-02", date, cfg.Location())
			if perr != nil {
				return fmt.Errorf("invalid --date '%s': %w", date, perr)
			}
			csvPath, err = summarizer.SummarizeDay(ctx, day)
		}
		if err != nil {
			return err
		}
		if csvPath == "" {
			fmt.Println("no placements")
			return nil
		}
		fmt.Println(csvPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func runWorker(ctx context.Context, cfg *store.Config, bus interfaces.Bus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	stop, err := startBroker(ctx, brk)
	if err != nil {
		return err
	}
	defer stop()

	journal := initializeJournal(cfg)
	summarizer, err := initializeEOD(cfg, journal)
	if err != nil {
		return err
	}
	eodDone := make(chan struct{})
	go func() {
		defer close(eodDone)
		runEODLoop(ctx, summarizer)
	}()
	defer func() {
		cancel()
		<-eodDone
	}()

	eng, placer := initializeEngine(cfg, brk, journal)
	w := relay.NewWorker(bus, cfg.Relay.Channel, placer, cfg.Bracket.Defaults(), cfg.Relay.MaxConcurrent)
	w.ReportInFlight(eng.Active)
	return w.Run(ctx)
}

func printChain(contracts []types.ContractDescriptor, price float64) error {
	fmt.Println(len(contracts))
	if len(contracts) == 0 {
		return nil
	}

	strikes := make([]float64, 0, len(contracts))
	for _, c := range contracts {
		strikes = append(strikes, c.Strike)
	}
	sort.Float64s(strikes)
	for _, s := range strikes {
		fmt.Println(s)
	}

	if price <= 0 {
		return nil
	}
	nearest := contracts[0]
	for _, c := range contracts[1:] {
		if c.Expiry.Before(nearest.Expiry) ||
			(c.Expiry.Equal(nearest.Expiry) && closer(c.Strike, nearest.Strike, price)) {
			nearest = c
		}
	}
	return printJSON(nearest)
}

// closer reports whether a is nearer to price than b, lower strike on ties.
func closer(a, b, price float64) bool {
	da, db := abs(a-price), abs(b-price)
	if da != db {
		return da < db
	}
	return a < b
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the config file.")

	placeCmd.Flags().String("symbol", "", "Underlying symbol, e.g. NIFTY.")
	placeCmd.Flags().String("right", "C", "Option right: C or P.")
	placeCmd.Flags().Float64("price", 0, "Reference price of the underlying.")
	placeCmd.Flags().Float64("qty", 0, "Contracts to buy. Defaults to bracket.quantity.")
	placeCmd.Flags().Float64("limit-pct", 0, "Parent limit percent over the ask.")
	placeCmd.Flags().Float64("stop-pct", 0, "Stop-loss percent below the fill.")
	placeCmd.Flags().Float64("take-profit", 0, "Take-profit percent above the fill.")
	_ = placeCmd.MarkFlagRequired("symbol")
	_ = placeCmd.MarkFlagRequired("price")

	contractsCmd.Flags().String("symbol", "", "Underlying symbol, e.g. NIFTY.")
	contractsCmd.Flags().String("right", "C", "Option right: C or P.")
	contractsCmd.Flags().String("month", "", "Contract month as YYYYMM. Defaults to the current month.")
	contractsCmd.Flags().Float64("price", 0, "Underlying price; picks the nearest contract. Required on the paper broker.")
	_ = contractsCmd.MarkFlagRequired("symbol")

	eodCmd.Flags().String("date", "", "Market day as YYYY-MM-DD. Defaults to today.")

	rootCmd.AddCommand(serveCmd, workerCmd, runCmd, placeCmd, contractsCmd, eodCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Command failed", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
