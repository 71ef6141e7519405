package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"tv-bracket-bot/internal/types"
)

type Config struct {
	Mode           string          `yaml:"mode"`
	MarketTimezone string          `yaml:"market_timezone"`
	Server         ServerConfig    `yaml:"server"`
	Relay          RelayConfig     `yaml:"relay"`
	Broker         BrokerConfig    `yaml:"broker"`
	Paper          PaperConfig     `yaml:"paper"`
	Bracket        BracketConfig   `yaml:"bracket"`
	Execution      ExecutionConfig `yaml:"execution"`
	EOD            EODConfig       `yaml:"eod"`

	location *time.Location
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	WebhookPath        string `yaml:"webhook_path"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type RelayConfig struct {
	Transport     string `yaml:"transport"` // REDIS or MEMORY
	Channel       string `yaml:"channel"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPassword string `yaml:"-"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type BrokerConfig struct {
	Provider             string  `yaml:"provider"` // PAPER or ZERODHA
	Exchange             string  `yaml:"exchange"`
	Product              string  `yaml:"product"`
	Variety              string  `yaml:"variety"`
	DefaultTick          float64 `yaml:"default_tick"`
	InstrumentsTTLMinute int     `yaml:"instruments_ttl_minutes"`
	StreamOrderUpdates   bool    `yaml:"stream_order_updates"`
	APIKey               string  `yaml:"-"`
	AccessToken          string  `yaml:"-"`
}

type PaperConfig struct {
	FillDelayMs    int     `yaml:"fill_delay_ms"`
	StrikeStep     float64 `yaml:"strike_step"`
	StrikesPerSide int     `yaml:"strikes_per_side"`
	WeeklyExpiries int     `yaml:"weekly_expiries"`
	ExpiryWeekday  string  `yaml:"expiry_weekday"`
	PremiumPct     float64 `yaml:"premium_pct"`
	SpreadTicks    int     `yaml:"spread_ticks"`
	NeverFill      bool    `yaml:"never_fill"`
}

func (p PaperConfig) FillDelay() time.Duration {
	return time.Duration(p.FillDelayMs) * time.Millisecond
}

type BracketConfig struct {
	Quantity              int     `yaml:"quantity"`
	ParentLimitPct        float64 `yaml:"parent_limit_pct"`
	StopLossPct           float64 `yaml:"stop_loss_pct"`
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	MaxQuantity           int     `yaml:"max_quantity"`
	HoldStopLossUntilFill bool    `yaml:"hold_stop_loss_until_fill"`
	CancelOnFailure       bool    `yaml:"cancel_on_failure"`
}

// Defaults returns the values applied to alerts that omit them.
func (b BracketConfig) Defaults() types.BracketDefaults {
	return types.BracketDefaults{
		Quantity:           b.Quantity,
		ParentLimitPercent: b.ParentLimitPct,
		StopLossPercent:    b.StopLossPct,
		TakeProfitPercent:  b.TakeProfitPct,
	}
}

type ExecutionConfig struct {
	QuoteTimeoutMs        int  `yaml:"quote_timeout_ms"`
	QuoteInitialBackoffMs int  `yaml:"quote_initial_backoff_ms"`
	FillPollIntervalMs    int  `yaml:"fill_poll_interval_ms"`
	FillPollAttempts      int  `yaml:"fill_poll_attempts"`
	RollToNextMonth       bool `yaml:"roll_to_next_month"`
}

func (e ExecutionConfig) QuoteTimeout() time.Duration {
	return time.Duration(e.QuoteTimeoutMs) * time.Millisecond
}

func (e ExecutionConfig) QuoteInitialBackoff() time.Duration {
	return time.Duration(e.QuoteInitialBackoffMs) * time.Millisecond
}

func (e ExecutionConfig) FillPollInterval() time.Duration {
	return time.Duration(e.FillPollIntervalMs) * time.Millisecond
}

type EODConfig struct {
	Cutoff        string `yaml:"cutoff"` // HH:MM in market time
	LogDir        string `yaml:"log_dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Location returns the market timezone. Falls back to UTC before
// ApplyDefaults has resolved it.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Default returns a config with every default applied, suitable for tests and
// one-off commands run without a config file.
func Default() *Config {
	c := &Config{}
	if err := c.ApplyDefaults(); err != nil {
		panic(err)
	}
	return c
}

// ApplyDefaults fills zero values and resolves the market timezone.
func (c *Config) ApplyDefaults() error {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	c.Mode = strings.ToUpper(c.Mode)
	if c.MarketTimezone == "" {
		c.MarketTimezone = "Asia/Kolkata"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/webhook"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 10
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 64 << 10
	}

	if c.Relay.Transport == "" {
		c.Relay.Transport = "REDIS"
	}
	c.Relay.Transport = strings.ToUpper(c.Relay.Transport)
	if c.Relay.Channel == "" {
		c.Relay.Channel = "TradingView"
	}
	if c.Relay.RedisAddr == "" {
		c.Relay.RedisAddr = "localhost:6379"
	}
	if c.Relay.MaxConcurrent == 0 {
		c.Relay.MaxConcurrent = 4
	}

	if c.Broker.Provider == "" {
		c.Broker.Provider = "PAPER"
	}
	c.Broker.Provider = strings.ToUpper(c.Broker.Provider)
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "NFO"
	}
	if c.Broker.Product == "" {
		c.Broker.Product = "NRML"
	}
	if c.Broker.Variety == "" {
		c.Broker.Variety = "regular"
	}
	if c.Broker.DefaultTick == 0 {
		c.Broker.DefaultTick = 0.05
	}
	if c.Broker.InstrumentsTTLMinute == 0 {
		c.Broker.InstrumentsTTLMinute = 360
	}

	if c.Paper.StrikeStep == 0 {
		c.Paper.StrikeStep = 5
	}
	if c.Paper.StrikesPerSide == 0 {
		c.Paper.StrikesPerSide = 10
	}
	if c.Paper.WeeklyExpiries == 0 {
		c.Paper.WeeklyExpiries = 4
	}
	if c.Paper.ExpiryWeekday == "" {
		c.Paper.ExpiryWeekday = "Thursday"
	}
	if c.Paper.PremiumPct == 0 {
		c.Paper.PremiumPct = 2
	}
	if c.Paper.SpreadTicks == 0 {
		c.Paper.SpreadTicks = 2
	}

	if c.Bracket.Quantity == 0 {
		c.Bracket.Quantity = 1
	}
	if c.Bracket.ParentLimitPct == 0 {
		c.Bracket.ParentLimitPct = 5
	}
	if c.Bracket.StopLossPct == 0 {
		c.Bracket.StopLossPct = 60
	}
	if c.Bracket.TakeProfitPct == 0 {
		c.Bracket.TakeProfitPct = 40
	}

	if c.Execution.QuoteTimeoutMs == 0 {
		c.Execution.QuoteTimeoutMs = 5000
	}
	if c.Execution.QuoteInitialBackoffMs == 0 {
		c.Execution.QuoteInitialBackoffMs = 100
	}
	if c.Execution.FillPollIntervalMs == 0 {
		c.Execution.FillPollIntervalMs = 10
	}
	if c.Execution.FillPollAttempts == 0 {
		c.Execution.FillPollAttempts = 300
	}

	if c.EOD.Cutoff == "" {
		c.EOD.Cutoff = "15:35"
	}
	if c.EOD.LogDir == "" {
		c.EOD.LogDir = "logs"
	}
	if c.EOD.RetentionDays == 0 {
		c.EOD.RetentionDays = 30
	}

	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return fmt.Errorf("invalid market_timezone '%s': %w", c.MarketTimezone, err)
	}
	c.location = loc
	return nil
}

// ApplyEnv copies secrets from the environment. Secrets are never read from YAML.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		c.Broker.AccessToken = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Relay.RedisPassword = v
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		c.EOD.LogDir = v
	}
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Relay.Transport != "REDIS" && c.Relay.Transport != "MEMORY" {
		return fmt.Errorf("invalid relay.transport '%s': must be 'REDIS' or 'MEMORY'", c.Relay.Transport)
	}
	if c.Relay.Channel == "" {
		return errors.New("relay.channel cannot be empty")
	}
	if c.Relay.MaxConcurrent < 1 {
		return fmt.Errorf("relay.max_concurrent must be at least 1, got %d", c.Relay.MaxConcurrent)
	}
	if c.Broker.Provider != "PAPER" && c.Broker.Provider != "ZERODHA" {
		return fmt.Errorf("invalid broker.provider '%s': must be 'PAPER' or 'ZERODHA'", c.Broker.Provider)
	}
	if c.Mode == "LIVE" && c.Broker.Provider == "PAPER" {
		return errors.New("mode LIVE requires broker.provider ZERODHA")
	}
	if c.Broker.DefaultTick <= 0 {
		return fmt.Errorf("broker.default_tick must be positive, got %.4f", c.Broker.DefaultTick)
	}
	if c.Paper.StrikeStep <= 0 {
		return fmt.Errorf("paper.strike_step must be positive, got %.2f", c.Paper.StrikeStep)
	}
	if _, err := parseWeekday(c.Paper.ExpiryWeekday); err != nil {
		return err
	}
	if c.Bracket.Quantity < 1 {
		return fmt.Errorf("bracket.quantity must be at least 1, got %d", c.Bracket.Quantity)
	}
	if c.Bracket.MaxQuantity < 0 {
		return fmt.Errorf("bracket.max_quantity cannot be negative, got %d", c.Bracket.MaxQuantity)
	}
	if c.Bracket.MaxQuantity > 0 && c.Bracket.Quantity > c.Bracket.MaxQuantity {
		return fmt.Errorf("bracket.quantity %d exceeds bracket.max_quantity %d", c.Bracket.Quantity, c.Bracket.MaxQuantity)
	}
	if c.Bracket.StopLossPct <= 0 {
		return fmt.Errorf("bracket.stop_loss_pct must be positive, got %.2f", c.Bracket.StopLossPct)
	}
	if c.Bracket.TakeProfitPct <= 0 {
		return fmt.Errorf("bracket.take_profit_pct must be positive, got %.2f", c.Bracket.TakeProfitPct)
	}
	if c.Bracket.ParentLimitPct <= -100 {
		return fmt.Errorf("bracket.parent_limit_pct must be above -100, got %.2f", c.Bracket.ParentLimitPct)
	}
	if c.Execution.FillPollIntervalMs <= 0 || c.Execution.FillPollAttempts <= 0 {
		return errors.New("execution.fill_poll_interval_ms and execution.fill_poll_attempts must be positive")
	}
	if c.Execution.QuoteTimeoutMs <= 0 || c.Execution.QuoteInitialBackoffMs <= 0 {
		return errors.New("execution.quote_timeout_ms and execution.quote_initial_backoff_ms must be positive")
	}
	if _, err := time.Parse("15:04", c.EOD.Cutoff); err != nil {
		return fmt.Errorf("invalid eod.cutoff '%s': %w", c.EOD.Cutoff, err)
	}
	return nil
}

// Weekday returns the parsed paper.expiry_weekday.
func (p PaperConfig) Weekday() time.Weekday {
	wd, err := parseWeekday(p.ExpiryWeekday)
	if err != nil {
		return time.Thursday
	}
	return wd
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid paper.expiry_weekday '%s'", s)
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if err := c.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	c.ApplyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
