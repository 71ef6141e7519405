package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tv-bracket-bot/internal/api"
	"tv-bracket-bot/internal/logger"
)

type RunArgs struct {
	URL      string
	Path     string
	File     string
	Symbol   string
	Right    string
	Price    float64
	Quantity int
	Count    int
	Interval time.Duration
}

var runCmd = &cobra.Command{
	Use:   "alert --symbol NIFTY --right C --price 22150",
	Short: "Post sample TradingView alerts to a running webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		var a RunArgs
		a.URL, _ = cmd.Flags().GetString("url")
		a.Path, _ = cmd.Flags().GetString("path")
		a.File, _ = cmd.Flags().GetString("file")
		a.Symbol, _ = cmd.Flags().GetString("symbol")
		a.Right, _ = cmd.Flags().GetString("right")
		a.Price, _ = cmd.Flags().GetFloat64("price")
		a.Quantity, _ = cmd.Flags().GetInt("qty")
		a.Count, _ = cmd.Flags().GetInt("count")
		a.Interval, _ = cmd.Flags().GetDuration("interval")

		return Run(cmd.Context(), a)
	},
}

// Run sends args.Count alerts, either the file's body verbatim or one built
// from the flags with a fresh id each time.
func Run(ctx context.Context, args RunArgs) error {
	var raw []byte
	if args.File != "" {
		b, err := os.ReadFile(args.File)
		if err != nil {
			return fmt.Errorf("failed to read alert file: %w", err)
		}
		raw = b
	} else if args.Symbol == "" || args.Price <= 0 {
		return fmt.Errorf("--symbol and a positive --price are required without --file")
	}

	sender := api.NewAlertSender(args.URL, args.Path, 10*time.Second, api.DefaultRetryConfig())

	for i := 0; i < args.Count; i++ {
		var payload interface{} = raw
		if raw == nil {
			alert := map[string]interface{}{
				"id":             uuid.NewString(),
				"referencePrice": args.Price,
				"symbol":         args.Symbol,
				"right":          args.Right,
			}
			if args.Quantity > 0 {
				alert["quantity"] = args.Quantity
			}
			payload = alert
		}

		status, err := sender.Send(ctx, payload)
		if err != nil {
			return fmt.Errorf("alert %d/%d: %w", i+1, args.Count, err)
		}
		fmt.Printf("alert %d/%d: %s\n", i+1, args.Count, status.Status)

		if i+1 < args.Count {
			select {
			case <-time.After(args.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	runCmd.Flags().String("url", "http://localhost:5000", "Webhook base URL.")
	runCmd.Flags().String("path", "/webhook", "Webhook path.")
	runCmd.Flags().String("file", "", "Send this file's contents as the alert body.")
	runCmd.Flags().String("symbol", "", "Underlying symbol.")
	runCmd.Flags().String("right", "C", "Option right: C or P.")
	runCmd.Flags().Float64("price", 0, "Reference price of the underlying.")
	runCmd.Flags().Int("qty", 0, "Contracts per alert. Omitted when zero.")
	runCmd.Flags().Int("count", 1, "Number of alerts to send.")
	runCmd.Flags().Duration("interval", time.Second, "Pause between alerts.")

	if err := runCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
