package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"` // "debug", "info", "warn", "error"
	GinMode  string `mapstructure:"GIN_MODE"`

	// Storage
	Backend       string        `mapstructure:"INVENTORY_BACKEND"` // "workbook" or "relational"
	WorkbookPath  string        `mapstructure:"INVENTORY_XLSX_PATH"`
	LockTimeout   time.Duration `mapstructure:"WORKBOOK_LOCK_TIMEOUT"`
	DBDriver      string        `mapstructure:"DB_DRIVER"` // "postgres" or "sqlite"
	DBHost        string        `mapstructure:"DB_HOST"`
	DBPort        int           `mapstructure:"DB_PORT"`
	DBUser        string        `mapstructure:"DB_USER"`
	DBPassword    string        `mapstructure:"DB_PASSWORD"`
	DBName        string        `mapstructure:"DB_NAME"`
	DBSSLMode     string        `mapstructure:"DB_SSLMODE"`
	DBPath        string        `mapstructure:"DB_PATH"`
	DBLogLevel    string        `mapstructure:"DB_LOG_LEVEL"`
	ImportEnabled bool          `mapstructure:"IMPORT_ENABLED"`

	// Mail
	SMTPHost  string `mapstructure:"SMTP_HOST"`
	SMTPPort  int    `mapstructure:"SMTP_PORT"`
	SMTPUser  string `mapstructure:"SMTP_USER"`
	SMTPPass  string `mapstructure:"SMTP_PASS"`
	FromEmail string `mapstructure:"FROM_EMAIL"`
	SMTPTLS   bool   `mapstructure:"SMTP_TLS"` // implicit TLS, usually port 465

	// Purchase order branding
	CompanyName        string `mapstructure:"COMPANY_NAME"`
	CompanyAddress     string `mapstructure:"COMPANY_ADDRESS"`
	CompanyPhone       string `mapstructure:"COMPANY_PHONE"`
	CompanyLogoPath    string `mapstructure:"COMPANY_LOGO_PATH"`
	EmailSubjectPrefix string `mapstructure:"EMAIL_SUBJECT_PREFIX"`
	DefaultEmailCC     string `mapstructure:"DEFAULT_EMAIL_CC"`
	StockUseEmails     string `mapstructure:"STOCK_USE_NOTIFY_EMAILS"`
	EmailFooter        string `mapstructure:"EMAIL_FOOTER"`
	POFooterPickup     string `mapstructure:"PO_FOOTER_PICKUP"`
	POFooterShip       string `mapstructure:"PO_FOOTER_SHIP"`

	// HTTP
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"` // comma separated
}

// Load reads <dir>/.env into the environment when present, then resolves
// every key from the environment, an optional <dir>/app.env and defaults.
func Load(dir string) (Config, error) {
	envFile := filepath.Join(dir, ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Debug().Str("file", envFile).Msg("no .env file loaded")
	}

	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "reorderdesk")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GIN_MODE", "debug")

	v.SetDefault("INVENTORY_BACKEND", "workbook")
	v.SetDefault("INVENTORY_XLSX_PATH", "data/inventory.xlsx")
	v.SetDefault("WORKBOOK_LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "reorderdesk")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "data/reorderdesk.db")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("IMPORT_ENABLED", true)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("FROM_EMAIL", "")
	v.SetDefault("SMTP_TLS", false)

	v.SetDefault("COMPANY_NAME", "")
	v.SetDefault("COMPANY_ADDRESS", "")
	v.SetDefault("COMPANY_PHONE", "")
	v.SetDefault("COMPANY_LOGO_PATH", "")
	v.SetDefault("EMAIL_SUBJECT_PREFIX", "Reorder Request - ")
	v.SetDefault("DEFAULT_EMAIL_CC", "")
	v.SetDefault("STOCK_USE_NOTIFY_EMAILS", "")
	v.SetDefault("EMAIL_FOOTER", "")
	v.SetDefault("PO_FOOTER_PICKUP", "")
	v.SetDefault("PO_FOOTER_SHIP", "")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")

	if err := v.ReadInConfig(); err == nil {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the application cannot start with.
func (c Config) Validate() error {
	switch c.Backend {
	case "workbook":
		if c.WorkbookPath == "" {
			return fmt.Errorf("INVENTORY_XLSX_PATH is required for the workbook backend")
		}
	case "relational":
	default:
		return fmt.Errorf("unknown INVENTORY_BACKEND %q", c.Backend)
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" && c.GinMode == "release" {
		return fmt.Errorf("JWT_SECRET is required in release mode")
	}
	return nil
}

// PostgresDSN builds the connection string from the DB_* keys.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// NeedsDatabase reports whether a relational connection must be opened:
// either it is the active backend or it is the import target.
func (c Config) NeedsDatabase() bool {
	return c.Backend == "relational" || c.ImportEnabled
}

// Origins splits CORS_ORIGINS.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Secret returns the JWT verification key, falling back to a development
// key outside release mode.
func (c Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte("default_super_secret_key")
	}
	return []byte(c.JWTSecret)
}
