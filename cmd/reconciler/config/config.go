// Package config loads the service settings from viper and turns them into
// the engine, store and server configurations.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"card-reconciliation-service/internal/api"
	"card-reconciliation-service/internal/fees"
	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/reconciler"
	"card-reconciliation-service/internal/store/postgres"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RECONCILER"

// EnvKeyReplacer maps a dotted key to its environment form.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Settings is the full service configuration.
type Settings struct {
	Database DatabaseSettings `mapstructure:"database"`
	Server   ServerSettings   `mapstructure:"server"`
	Matching MatchingSettings `mapstructure:"matching"`
	Fees     FeeSettings      `mapstructure:"fees"`
	Log      LogSettings      `mapstructure:"log"`
}

// DatabaseSettings selects and tunes the store.
type DatabaseSettings struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Debug           bool          `mapstructure:"debug"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// MatchingSettings mirrors matcher.MatchingConfig.
type MatchingSettings struct {
	SettlementLagDays   int           `mapstructure:"settlement_lag_days" validate:"gte=0"`
	WindowDays          int           `mapstructure:"window_days" validate:"gte=0"`
	MaxValueDiffPercent float64       `mapstructure:"max_value_diff_percent" validate:"gte=0,lte=100"`
	MinScore            int           `mapstructure:"min_score" validate:"gte=1,lte=100"`
	ExactTolerance      float64       `mapstructure:"exact_tolerance" validate:"gte=0"`
	PrefetchStatements  bool          `mapstructure:"prefetch_statements"`
	ProgressInterval    time.Duration `mapstructure:"progress_interval" validate:"gte=0"`
}

// FeeSettings mirrors fees.Config plus the rate table.
type FeeSettings struct {
	DivergenceThreshold   float64        `mapstructure:"divergence_threshold" validate:"gte=0"`
	HighPriorityThreshold float64        `mapstructure:"high_priority_threshold" validate:"gtefield=DivergenceThreshold"`
	DefaultBrand          string         `mapstructure:"default_brand"`
	Rates                 []OperatorRate `mapstructure:"rates" validate:"dive"`
}

// OperatorRate is one entry of the configured rate table.
type OperatorRate struct {
	Operator string      `mapstructure:"operator" validate:"required"`
	Brands   []BrandRate `mapstructure:"brands" validate:"required,min=1,dive"`
}

// BrandRate is the expected fee percent of one brand.
type BrandRate struct {
	Brand string  `mapstructure:"brand" validate:"required"`
	Rate  float64 `mapstructure:"rate" validate:"gte=0"`
}

// LogSettings configures the global logger.
type LogSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error fatal"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	m := matcher.DefaultMatchingConfig()
	f := fees.DefaultConfig()

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.debug", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("matching.settlement_lag_days", m.SettlementLagDays)
	v.SetDefault("matching.window_days", m.WindowDays)
	v.SetDefault("matching.max_value_diff_percent", m.MaxValueDiffPercent)
	v.SetDefault("matching.min_score", m.MinScore)
	v.SetDefault("matching.exact_tolerance", m.ExactTolerance.InexactFloat64())
	v.SetDefault("matching.prefetch_statements", false)
	v.SetDefault("matching.progress_interval", 5*time.Second)

	v.SetDefault("fees.divergence_threshold", f.DivergenceThreshold.InexactFloat64())
	v.SetDefault("fees.high_priority_threshold", f.HighPriorityThreshold.InexactFloat64())
	v.SetDefault("fees.default_brand", f.DefaultBrand)

	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err).
			WithSuggestion("Check the syntax of the configuration file")
	}
	s.Database.Driver = strings.ToLower(strings.TrimSpace(s.Database.Driver))
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Log.Format = strings.ToLower(s.Log.Format)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate reports the first invalid setting as a configuration error keyed
// by its dotted name.
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err)
	}

	fe := verrs[0]
	key := settingKey(fe.Namespace())
	if fe.Tag() == "required" {
		return errors.ConfigurationError(errors.CodeMissingConfig, key, nil,
			fmt.Errorf("%s is required", key)).
			WithSuggestion(fmt.Sprintf("Set %s in the config file or %s in the environment", key, EnvName(key)))
	}
	return errors.ConfigurationError(errors.CodeInvalidConfig, key, fe.Value(),
		fmt.Errorf("%s fails the '%s' rule", key, ruleOf(fe)))
}

// settingKey turns "Settings.database.dsn" into "database.dsn".
func settingKey(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func ruleOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(EnvKeyReplacer.Replace(key))
}

// ToReconcilerConfig builds the engine configuration. An empty rate list
// selects the built-in table.
func (s *Settings) ToReconcilerConfig() (*reconciler.Config, error) {
	c := reconciler.DefaultConfig()

	c.Matching = &matcher.MatchingConfig{
		SettlementLagDays:   s.Matching.SettlementLagDays,
		WindowDays:          s.Matching.WindowDays,
		MaxValueDiffPercent: s.Matching.MaxValueDiffPercent,
		MinScore:            s.Matching.MinScore,
		ExactTolerance:      decimal.NewFromFloat(s.Matching.ExactTolerance),
	}
	c.Fees = &fees.Config{
		DivergenceThreshold:   decimal.NewFromFloat(s.Fees.DivergenceThreshold),
		HighPriorityThreshold: decimal.NewFromFloat(s.Fees.HighPriorityThreshold),
		DefaultBrand:          s.Fees.DefaultBrand,
	}
	c.PrefetchStatements = s.Matching.PrefetchStatements
	c.ProgressInterval = s.Matching.ProgressInterval

	if len(s.Fees.Rates) > 0 {
		entries := make([]fees.OperatorRates, 0, len(s.Fees.Rates))
		for _, op := range s.Fees.Rates {
			brands := make([]fees.BrandRate, 0, len(op.Brands))
			for _, b := range op.Brands {
				brands = append(brands, fees.BrandRate{Brand: b.Brand, Rate: decimal.NewFromFloat(b.Rate)})
			}
			entries = append(entries, fees.OperatorRates{Operator: op.Operator, Brands: brands})
		}
		table, err := fees.NewRateTable(entries)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "fees.rates", nil, err)
		}
		c.Rates = table
	}

	if err := c.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", nil, err)
	}
	return c, nil
}

// PostgresOptions returns the gorm store options.
func (s *Settings) PostgresOptions() postgres.Options {
	return postgres.Options{
		MaxOpenConns:    s.Database.MaxOpenConns,
		MaxIdleConns:    s.Database.MaxIdleConns,
		ConnMaxLifetime: s.Database.ConnMaxLifetime,
		AutoMigrate:     s.Database.AutoMigrate,
		Debug:           s.Database.Debug,
	}
}

// ServerConfig returns the HTTP listener configuration.
func (s *Settings) ServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Addr:            s.Server.Addr,
		ReadTimeout:     s.Server.ReadTimeout,
		WriteTimeout:    s.Server.WriteTimeout,
		ShutdownTimeout: s.Server.ShutdownTimeout,
	}
}

// RouterConfig returns the HTTP surface configuration.
func (s *Settings) RouterConfig() api.RouterConfig {
	return api.RouterConfig{AllowedOrigins: s.Server.AllowedOrigins}
}

// LoggerConfig returns the global logger configuration.
func (s *Settings) LoggerConfig() *logger.Config {
	c := logger.DefaultConfig()
	if s.Log.Level != "" {
		c.Level = logger.Level(s.Log.Level)
	}
	if s.Log.Format != "" {
		c.Format = logger.Format(s.Log.Format)
	}
	return c
}
