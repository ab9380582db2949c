package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials indica que falta PRIVATE_KEY o RPC_URL.
var ErrMissingCredentials = errors.New("PRIVATE_KEY and RPC_URL must be set")

// Config es la configuración completa del bot.
type Config struct {
	Wallet    WalletConfig    `yaml:"wallet"`
	API       APIConfig       `yaml:"api"`
	Trading   TradingConfig   `yaml:"trading"`
	Settings  SettingsConfig  `yaml:"settings"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// WalletConfig identifica el wallet de sesión. La clave solo llega por entorno.
type WalletConfig struct {
	PrivateKey string `yaml:"-"`       // base58, 64 bytes (PRIVATE_KEY)
	RPCURL     string `yaml:"rpc_url"` // nodo Solana (RPC_URL)
}

// APIConfig contiene los endpoints externos.
type APIConfig struct {
	QuoteBase       string `yaml:"quote_base"`
	PriceBase       string `yaml:"price_base"`
	SentimentURL    string `yaml:"sentiment_url"`
	BlockEngine     string `yaml:"block_engine"`
	TipStream       string `yaml:"tip_stream"`
	ReferralAccount string `yaml:"referral_account"` // vacío: sin fee de plataforma
}

// TradingConfig controla el ciclo y los intentos de ejecución.
type TradingConfig struct {
	Schedule             string `yaml:"schedule"` // cron, campo de segundos opcional
	MaxAttempts          int    `yaml:"max_attempts"`
	TotalBudgetSeconds   int    `yaml:"total_budget_seconds"`
	RetryDelaySeconds    int    `yaml:"retry_delay_seconds"`
	BundleTimeoutSeconds int    `yaml:"bundle_timeout_seconds"`
	PollIntervalSeconds  int    `yaml:"poll_interval_seconds"`
	TipTimeoutSeconds    int    `yaml:"tip_timeout_seconds"`
	DefaultTipLamports   uint64 `yaml:"default_tip_lamports"`
	SlippageBps          int    `yaml:"slippage_bps"`
	MaxAutoSlippageBps   int    `yaml:"max_auto_slippage_bps"`
	BaseFeeBps           int    `yaml:"base_fee_bps"`
	ResetOnStart         bool   `yaml:"reset_on_start"`
}

// SettingsConfig apunta al fichero de settings en caliente y da sus valores de fábrica.
// Los valores de fábrica solo se usan si el fichero no existe todavía.
type SettingsConfig struct {
	Path            string             `yaml:"path"`
	Boundaries      *domain.Boundaries `yaml:"boundaries"`
	Multipliers     map[string]float64 `yaml:"multipliers"`
	TipCap          float64            `yaml:"tip_cap"`
	MonitorMode     bool               `yaml:"monitor_mode"`
	DeveloperFeeBps int                `yaml:"developer_fee_bps"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	StatePath  string `yaml:"state_path"`  // documento JSON de estado
	JournalDSN string `yaml:"journal_dsn"` // ruta al archivo SQLite, o ":memory:"
}

// DashboardConfig controla el panel HTTP.
type DashboardConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	AdminPassword string `yaml:"-"` // ADMIN_PASSWORD
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate devuelve los errores que impiden arrancar el modo de trading.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" || c.Wallet.RPCURL == "" {
		return ErrMissingCredentials
	}
	if err := c.DefaultSettings().Validate(); err != nil {
		return fmt.Errorf("config.Validate: settings: %w", err)
	}
	return nil
}

// DefaultSettings construye los settings de fábrica a partir del YAML.
func (c *Config) DefaultSettings() domain.Settings {
	s := domain.DefaultSettings()
	if c.Settings.Boundaries != nil {
		s.Boundaries = *c.Settings.Boundaries
	}
	for k, v := range c.Settings.Multipliers {
		s.Multipliers[domain.Sentiment(k)] = v
	}
	if c.Settings.TipCap > 0 {
		s.TipCap = c.Settings.TipCap
	}
	s.MonitorMode = c.Settings.MonitorMode
	s.DeveloperFeeBps = c.Settings.DeveloperFeeBps
	return s
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// TotalBudget es el tiempo máximo para iniciar intentos de un trade.
func (c *Config) TotalBudget() time.Duration { return seconds(c.Trading.TotalBudgetSeconds) }

// RetryDelay es la espera entre intentos.
func (c *Config) RetryDelay() time.Duration { return seconds(c.Trading.RetryDelaySeconds) }

// BundleTimeout es la espera máxima por un estado final del bundle.
func (c *Config) BundleTimeout() time.Duration { return seconds(c.Trading.BundleTimeoutSeconds) }

// PollInterval es la cadencia del polling de estado.
func (c *Config) PollInterval() time.Duration { return seconds(c.Trading.PollIntervalSeconds) }

// TipTimeout es la espera máxima por una muestra del tip stream.
func (c *Config) TipTimeout() time.Duration { return seconds(c.Trading.TipTimeoutSeconds) }

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Wallet.RPCURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DASHBOARD_ADDR"); v != "" {
		cfg.Dashboard.Addr = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Dashboard.AdminPassword = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.API.QuoteBase == "" {
		cfg.API.QuoteBase = "https://quote-api.jup.ag/v6"
	}
	if cfg.API.PriceBase == "" {
		cfg.API.PriceBase = "https://price.jup.ag/v6/price"
	}
	if cfg.API.SentimentURL == "" {
		cfg.API.SentimentURL = "https://cfgi.io/solana-fear-greed-index/15m"
	}
	if cfg.API.BlockEngine == "" {
		cfg.API.BlockEngine = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"
	}
	if cfg.API.TipStream == "" {
		cfg.API.TipStream = "ws://bundles-api-rest.jito.wtf/api/v1/bundles/tip_stream"
	}
	if cfg.Trading.Schedule == "" {
		cfg.Trading.Schedule = "45 */15 * * * *" // cada 15 min + 45 s de asentamiento
	}
	if cfg.Trading.MaxAttempts <= 0 {
		cfg.Trading.MaxAttempts = 3
	}
	if cfg.Trading.TotalBudgetSeconds <= 0 {
		cfg.Trading.TotalBudgetSeconds = 300
	}
	if cfg.Trading.RetryDelaySeconds <= 0 {
		cfg.Trading.RetryDelaySeconds = 5
	}
	if cfg.Trading.BundleTimeoutSeconds <= 0 {
		cfg.Trading.BundleTimeoutSeconds = 90
	}
	if cfg.Trading.PollIntervalSeconds <= 0 {
		cfg.Trading.PollIntervalSeconds = 2
	}
	if cfg.Trading.TipTimeoutSeconds <= 0 {
		cfg.Trading.TipTimeoutSeconds = 21
	}
	if cfg.Trading.DefaultTipLamports == 0 {
		cfg.Trading.DefaultTipLamports = 100_000
	}
	if cfg.Trading.SlippageBps <= 0 {
		cfg.Trading.SlippageBps = 200
	}
	if cfg.Trading.MaxAutoSlippageBps <= 0 {
		cfg.Trading.MaxAutoSlippageBps = 500
	}
	if cfg.Trading.BaseFeeBps <= 0 {
		cfg.Trading.BaseFeeBps = 5
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = "data/settings.json"
	}
	if cfg.Storage.StatePath == "" {
		cfg.Storage.StatePath = "data/state.json"
	}
	if cfg.Storage.JournalDSN == "" {
		cfg.Storage.JournalDSN = "data/pulsesurfer.db"
	}
	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
