package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Tonapi   TonapiConfig   `mapstructure:"tonapi"`
	Dex      DexConfig      `mapstructure:"dex"`
	Custody  CustodyConfig  `mapstructure:"custody"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Executor ExecutorConfig `mapstructure:"executor"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type TonapiConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	StreamURL string        `mapstructure:"stream_url"`
	APIToken  string        `mapstructure:"api_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type DexConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CustodyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WatcherConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SourceRefresh is a cron spec for reloading the tracked-leader set.
	SourceRefresh string        `mapstructure:"source_refresh"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PageSize      int           `mapstructure:"page_size"`
	Stream        bool          `mapstructure:"stream"`
}

type ExecutorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	IdleDelay    time.Duration `mapstructure:"idle_delay"`
	ErrorDelay   time.Duration `mapstructure:"error_delay"`
	GasReserve   string        `mapstructure:"gas_reserve"`
	FeeReserve   string        `mapstructure:"fee_reserve"`
	SwapDeadline time.Duration `mapstructure:"swap_deadline"`
	SlippageBps  int           `mapstructure:"slippage_bps"`
	MaxErrorLen  int           `mapstructure:"max_error_len"`
	// RetryAttempts bounds in-place retries of a held order after a
	// transient pre-submission error.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// OrderTimeout bounds end-to-end processing of one claimed order,
	// including the retries. A claimed order finishes within this bound
	// even when shutdown starts mid-flight.
	OrderTimeout time.Duration `mapstructure:"order_timeout"`
	// LeaseSeconds > 0 requeues orders stuck in processing longer than the
	// lease. 0 keeps strict at-most-one-claim behavior (no requeue on crash).
	LeaseSeconds int `mapstructure:"lease_seconds"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("tonapi.base_url", "https://tonapi.io")
	v.SetDefault("tonapi.stream_url", "wss://tonapi.io/v2/websocket")
	v.SetDefault("tonapi.timeout", "15s")
	v.SetDefault("dex.base_url", "https://api.dedust.io")
	v.SetDefault("dex.timeout", "15s")
	v.SetDefault("custody.base_url", "http://localhost:8090")
	v.SetDefault("custody.timeout", "30s")
	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.source_refresh", "@every 1m")
	v.SetDefault("watcher.poll_interval", "10s")
	v.SetDefault("watcher.page_size", 20)
	v.SetDefault("watcher.stream", false)
	v.SetDefault("executor.enabled", true)
	v.SetDefault("executor.idle_delay", "2s")
	v.SetDefault("executor.error_delay", "5s")
	v.SetDefault("executor.gas_reserve", "0.3")
	v.SetDefault("executor.fee_reserve", "0.15")
	v.SetDefault("executor.swap_deadline", "5m")
	v.SetDefault("executor.slippage_bps", 100)
	v.SetDefault("executor.max_error_len", 500)
	v.SetDefault("executor.retry_attempts", 3)
	v.SetDefault("executor.order_timeout", "10m")
	v.SetDefault("executor.lease_seconds", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
