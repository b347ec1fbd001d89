package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"

	ContractRiseFall   = "rise_fall"
	ContractMultiplier = "multiplier"
)

// Config ...
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Deriv       DerivConfig       `yaml:"deriv"`
	Trading     TradingConfig     `yaml:"trading"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Database    DatabaseConfig    `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	KillSwitch  KillSwitchConfig  `yaml:"kill_switch"`
	Development DevelopmentConfig `yaml:"development"`
}

type DerivConfig struct {
	AppID        string `yaml:"app_id"`
	APIToken     string `yaml:"api_token"`
	WebsocketURL string `yaml:"websocket_url"`

	RequestTimeoutSec    float64 `yaml:"request_timeout_sec"`
	ConnectTimeoutSec    float64 `yaml:"connect_timeout_sec"` // сколько Request ждёт Connected
	HeartbeatIntervalSec float64 `yaml:"heartbeat_interval_sec"`
	PongTimeoutSec       float64 `yaml:"pong_timeout_sec"`
	BackoffInitialSec    float64 `yaml:"backoff_initial_sec"`
	BackoffMaxSec        float64 `yaml:"backoff_max_sec"`
	BackoffJitter        float64 `yaml:"backoff_jitter"` // 0.3 => до +30%
	SubscriptionBuffer   int     `yaml:"subscription_buffer"`
}

type TradingConfig struct {
	Symbol       string   `yaml:"symbol"`
	Symbols      []string `yaml:"symbols"` // 2+ => мультиинструментальный режим
	Currency     string   `yaml:"currency"`
	ContractType string   `yaml:"contract_type"` // rise_fall | multiplier
	TimeframeSec int64    `yaml:"timeframe_sec"`
	QueueSize    int      `yaml:"queue_size"`

	Risk       RiskConfig       `yaml:"risk"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Multiplier MultiplierConfig `yaml:"multiplier"`
}

type RiskConfig struct {
	MaxDrawdownTotal        float64 `yaml:"max_drawdown_total"`
	MaxLossDaily            float64 `yaml:"max_loss_daily"`
	MaxTradesDaily          int     `yaml:"max_trades_daily"`
	MaxConsecutiveLosses    int     `yaml:"max_consecutive_losses"`
	CooldownMinutes         int     `yaml:"consecutive_loss_cooldown_minutes"`
	RiskPerTradePct         float64 `yaml:"risk_per_trade_percent"`
	RiskPerTradePctHigh     float64 `yaml:"risk_per_trade_percent_high_score"`
	MaxRiskPerTradePct      float64 `yaml:"max_risk_per_trade_percent"`
	MinStake                float64 `yaml:"min_stake"`
	MaxStake                float64 `yaml:"max_stake"`
	ScoreMinThreshold       float64 `yaml:"score_min_threshold"`
	ScoreHighScoreThreshold float64 `yaml:"score_high_threshold"`
}

type StrategyConfig struct {
	TrendPullback     TrendPullbackConfig     `yaml:"trend_pullback"`
	HigherTFTrend     HigherTFTrendConfig     `yaml:"higher_tf_trend"`
	QualityFilter     QualityFilterConfig     `yaml:"quality_filter"`
	SupportResistance SupportResistanceConfig `yaml:"support_resistance"`
}

type TrendPullbackConfig struct {
	EMAFastPeriod   int        `yaml:"ema_fast_period"`
	EMASlowPeriod   int        `yaml:"ema_slow_period"`
	ATRPeriod       int        `yaml:"atr_period"`
	RSIPeriod       int        `yaml:"rsi_period"`
	MinATRPct       float64    `yaml:"min_atr_pct"`
	MinEMASpreadPct float64    `yaml:"min_ema_spread_pct"`
	RSILongZone     [2]float64 `yaml:"rsi_long_zone"`
	RSIShortZone    [2]float64 `yaml:"rsi_short_zone"`
	RSIOverbought   float64    `yaml:"rsi_overbought"`
	RSIOversold     float64    `yaml:"rsi_oversold"`
}

type HigherTFTrendConfig struct {
	Enabled          bool `yaml:"enabled"`
	TimeframeMinutes int  `yaml:"timeframe_minutes"` // сколько базовых свечей в одной старшей
	AllowNeutral     bool `yaml:"allow_neutral"`
}

type QualityFilterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MinScore   float64 `yaml:"min_score"`
	RSICallMax float64 `yaml:"rsi_call_max"`
	RSIPutMin  float64 `yaml:"rsi_put_min"`
	MaxATRPct  float64 `yaml:"max_atr_pct"` // 0 => без ограничения
}

type SupportResistanceConfig struct {
	Enabled         bool    `yaml:"enabled"`
	LookbackCandles int     `yaml:"lookback_candles"`
	NearPct         float64 `yaml:"near_pct"`
	MinCandles      int     `yaml:"min_candles"`
}

type MultiplierConfig struct {
	Duration          int     `yaml:"duration"`
	DurationUnit      string  `yaml:"duration_unit"` // s | m | h
	Multiplier        int     `yaml:"multiplier"`
	TakeProfitPercent float64 `yaml:"take_profit_percent_of_stake"`
	StopLossPercent   float64 `yaml:"stop_loss_percent_of_stake"`
}

type ExecutionConfig struct {
	PollIntervalSec      float64 `yaml:"poll_interval_sec"`
	RiseFallTimeoutSec   float64 `yaml:"rise_fall_timeout_sec"`
	MultiplierTimeoutSec float64 `yaml:"multiplier_timeout_sec"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type MonitoringConfig struct {
	MetricsPath           string  `yaml:"metrics_path"`
	MetricsIntervalSec    float64 `yaml:"metrics_interval_sec"`
	BalanceRefreshSec     float64 `yaml:"balance_refresh_sec"`
	PerformanceWindowSize int     `yaml:"performance_window"`
}

type KillSwitchConfig struct {
	Path string `yaml:"path"`
}

type DevelopmentConfig struct {
	DryRun        bool `yaml:"dry_run"`
	WarmupHistory bool `yaml:"warmup_history"`
}

// Default значения по умолчанию, всё что не задано в yaml остаётся отсюда.
func Default() Config {
	return Config{
		Environment: "DEMO",
		LogLevel:    "info",
		Deriv: DerivConfig{
			WebsocketURL:         "wss://ws.derivws.com/websockets/v3",
			RequestTimeoutSec:    10,
			ConnectTimeoutSec:    30,
			HeartbeatIntervalSec: 15,
			PongTimeoutSec:       5,
			BackoffInitialSec:    1,
			BackoffMaxSec:        60,
			BackoffJitter:        0.3,
			SubscriptionBuffer:   256,
		},
		Trading: TradingConfig{
			Symbol:       "R_75",
			Currency:     "USD",
			ContractType: ContractRiseFall,
			TimeframeSec: 60,
			QueueSize:    3,
			Risk: RiskConfig{
				MaxDrawdownTotal:        0.10,
				MaxLossDaily:            0.05,
				MaxTradesDaily:          50,
				MaxConsecutiveLosses:    3,
				CooldownMinutes:         30,
				RiskPerTradePct:         0.005,
				RiskPerTradePctHigh:     0.007,
				MaxRiskPerTradePct:      0.01,
				MinStake:                1,
				MaxStake:                1000,
				ScoreMinThreshold:       0.55,
				ScoreHighScoreThreshold: 0.75,
			},
			Strategy: StrategyConfig{
				TrendPullback: TrendPullbackConfig{
					EMAFastPeriod:   20,
					EMASlowPeriod:   50,
					ATRPeriod:       14,
					RSIPeriod:       14,
					MinATRPct:       0.001,
					MinEMASpreadPct: 0.0005,
					RSILongZone:     [2]float64{45, 60},
					RSIShortZone:    [2]float64{40, 55},
					RSIOverbought:   70,
					RSIOversold:     30,
				},
				HigherTFTrend: HigherTFTrendConfig{
					Enabled:          true,
					TimeframeMinutes: 5,
					AllowNeutral:     true,
				},
				QualityFilter: QualityFilterConfig{
					Enabled:    true,
					RSICallMax: 65,
					RSIPutMin:  35,
				},
				SupportResistance: SupportResistanceConfig{
					Enabled:         true,
					LookbackCandles: 30,
					NearPct:         0.003,
					MinCandles:      5,
				},
			},
			Multiplier: MultiplierConfig{
				Duration:          15,
				DurationUnit:      "m",
				Multiplier:        10,
				TakeProfitPercent: 0.5,
				StopLossPercent:   0.5,
			},
		},
		Execution: ExecutionConfig{
			PollIntervalSec:      1,
			RiseFallTimeoutSec:   180,
			MultiplierTimeoutSec: 86400,
		},
		Database: DatabaseConfig{MaxConns: 4},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Tracing:  TracingConfig{Host: "localhost", Port: 6831},
		Monitoring: MonitoringConfig{
			MetricsPath:           "data/metrics.json",
			MetricsIntervalSec:    5,
			BalanceRefreshSec:     60,
			PerformanceWindowSize: 200,
		},
		KillSwitch: KillSwitchConfig{Path: "data/killswitch.json"},
		Development: DevelopmentConfig{
			DryRun:        true,
			WarmupHistory: true,
		},
	}
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}

	config := Default()

	file, err := os.Open(filepath.Join(dir, configFileName))
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := Decode(file, &config); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// без файла работаем на дефолтах + env
	default:
		return nil, errors.Wrap(err, "open config file")
	}

	applyEnv(&config, envSource())

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Decode накладывает yaml поверх уже заполненной структуры.
func Decode(r io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil && err != io.EOF {
		return errors.Wrap(err, "decode config file")
	}
	return nil
}

func envSource() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	return v
}

// applyEnv env-переопределения секретов и переключателей:
// DERIV__APP_ID, DERIV__API_TOKEN, DEVELOPMENT__DRY_RUN и т.д.
func applyEnv(c *Config, v *viper.Viper) {
	if s := v.GetString("deriv.app_id"); s != "" {
		c.Deriv.AppID = s
	}
	if s := v.GetString("deriv.api_token"); s != "" {
		c.Deriv.APIToken = s
	}
	if s := v.GetString("deriv.websocket_url"); s != "" {
		c.Deriv.WebsocketURL = s
	}
	if v.IsSet("development.dry_run") {
		c.Development.DryRun = v.GetBool("development.dry_run")
	}
	if s := v.GetString("trading.contract_type"); s != "" {
		c.Trading.ContractType = strings.ToLower(s)
	}
	if s := v.GetString("log_level"); s != "" {
		c.LogLevel = s
	}

	dsn := v.GetString("database.dsn")
	if dsn == "" {
		dsn = os.Getenv(databaseDSN)
	}
	if dsn != "" {
		c.Database.DSN = dsn
	}

	token := v.GetString("telegram.token")
	if token == "" {
		token = os.Getenv(tokenTelegramENV)
	}
	if token != "" {
		c.Telegram.Token = token
	}
	if v.IsSet("telegram.chat_id") {
		c.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}
}

// ActiveSymbols список инструментов: symbols если их 2+, иначе symbol.
func (c *Config) ActiveSymbols() []string {
	out := make([]string, 0, len(c.Trading.Symbols))
	for _, s := range c.Trading.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) >= 2 {
		return out
	}
	return []string{c.Trading.Symbol}
}

func (c *Config) MultiMarket() bool { return len(c.ActiveSymbols()) >= 2 }

func (c *Config) IsMultiplier() bool { return c.Trading.ContractType == ContractMultiplier }

func (c *Config) Timeframe() time.Duration {
	return time.Duration(c.Trading.TimeframeSec) * time.Second
}

func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
