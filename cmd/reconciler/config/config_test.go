package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"card-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, overrides map[string]interface{}) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("database.dsn", "file::memory:")
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Database.Driver != DriverPostgres {
		t.Errorf("expected driver postgres, got %s", s.Database.Driver)
	}
	if s.Server.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %s", s.Server.Addr)
	}
	if len(s.Server.AllowedOrigins) != 1 || s.Server.AllowedOrigins[0] != "*" {
		t.Errorf("expected allowed origins [*], got %v", s.Server.AllowedOrigins)
	}
	if s.Matching.SettlementLagDays != 2 || s.Matching.WindowDays != 3 {
		t.Errorf("unexpected window settings: %+v", s.Matching)
	}
	if s.Matching.MaxValueDiffPercent != 2.0 || s.Matching.MinScore != 70 || s.Matching.ExactTolerance != 0.01 {
		t.Errorf("unexpected scoring settings: %+v", s.Matching)
	}
	if s.Fees.DivergenceThreshold != 0.1 || s.Fees.HighPriorityThreshold != 1.0 || s.Fees.DefaultBrand != "visa" {
		t.Errorf("unexpected fee settings: %+v", s.Fees)
	}
	if s.Log.Level != "info" || s.Log.Format != "text" {
		t.Errorf("unexpected log settings: %+v", s.Log)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		key       string
		code      errors.ErrorCode
	}{
		{
			name:      "missing dsn",
			overrides: map[string]interface{}{"database.dsn": ""},
			key:       "database.dsn",
			code:      errors.CodeMissingConfig,
		},
		{
			name:      "unknown driver",
			overrides: map[string]interface{}{"database.driver": "mysql"},
			key:       "database.driver",
			code:      errors.CodeInvalidConfig,
		},
		{
			name:      "min score above the maximum",
			overrides: map[string]interface{}{"matching.min_score": 120},
			key:       "matching.min_score",
			code:      errors.CodeInvalidConfig,
		},
		{
			name:      "negative window",
			overrides: map[string]interface{}{"matching.window_days": -1},
			key:       "matching.window_days",
			code:      errors.CodeInvalidConfig,
		},
		{
			name:      "high priority below divergence",
			overrides: map[string]interface{}{"fees.high_priority_threshold": 0.05},
			key:       "fees.high_priority_threshold",
			code:      errors.CodeInvalidConfig,
		},
		{
			name:      "unknown log level",
			overrides: map[string]interface{}{"log.level": "verbose"},
			key:       "log.level",
			code:      errors.CodeInvalidConfig,
		},
		{
			name: "rate entry without operator",
			overrides: map[string]interface{}{"fees.rates": []map[string]interface{}{
				{"brands": []map[string]interface{}{{"brand": "visa", "rate": 2.5}}},
			}},
			key:  "fees.rates[0].operator",
			code: errors.CodeMissingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.overrides))
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected a ReconcilerError, got %v", err)
			}
			if rerr.Category != errors.CategoryConfiguration || rerr.Code != tt.code {
				t.Errorf("expected configuration/%s, got %s/%s", tt.code, rerr.Category, rerr.Code)
			}
			if rerr.Context["setting"] != tt.key {
				t.Errorf("expected setting %s, got %v", tt.key, rerr.Context["setting"])
			}
			if rerr.GetExitCode() != 4 {
				t.Errorf("expected exit code 4, got %d", rerr.GetExitCode())
			}
		})
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECONCILER_DATABASE_DRIVER", "SQLite")
	t.Setenv("RECONCILER_DATABASE_DSN", "/tmp/recon.db")
	t.Setenv("RECONCILER_MATCHING_WINDOW_DAYS", "5")
	t.Setenv("RECONCILER_SERVER_SHUTDOWN_TIMEOUT", "3s")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	s, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Database.Driver != DriverSQLite || s.Database.DSN != "/tmp/recon.db" {
		t.Errorf("unexpected database settings: %+v", s.Database)
	}
	if s.Matching.WindowDays != 5 {
		t.Errorf("expected window 5, got %d", s.Matching.WindowDays)
	}
	if s.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected 3s shutdown timeout, got %s", s.Server.ShutdownTimeout)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconciler.yaml")
	content := `
database:
  driver: sqlite
  dsn: recon.db
  auto_migrate: true
fees:
  rates:
    - operator: stone
      brands:
        - brand: visa
          rate: 1.99
        - brand: master
          rate: 2.49
    - operator: cielo
      brands:
        - brand: visa
          rate: 2.99
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	s, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Database.AutoMigrate || s.Database.Driver != DriverSQLite {
		t.Errorf("unexpected database settings: %+v", s.Database)
	}
	if len(s.Fees.Rates) != 2 || len(s.Fees.Rates[0].Brands) != 2 {
		t.Fatalf("unexpected rates: %+v", s.Fees.Rates)
	}

	rc, err := s.ToReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rate, ok := rc.Rates.ExpectedRate("Stone Pagamentos", "MASTER")
	if !ok || !rate.Equal(decimal.RequireFromString("2.49")) {
		t.Errorf("expected configured rate 2.49, got %s (found=%v)", rate, ok)
	}
	if ops := rc.Rates.Operators(); len(ops) != 2 {
		t.Errorf("expected only the configured operators, got %v", ops)
	}
}

func TestToReconcilerConfig(t *testing.T) {
	s, err := Load(newViper(t, map[string]interface{}{
		"matching.prefetch_statements": true,
		"matching.exact_tolerance":     0.05,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, err := s.ToReconcilerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rc.PrefetchStatements {
		t.Error("expected prefetch to be enabled")
	}
	if !rc.Matching.ExactTolerance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("expected exact tolerance 0.05, got %s", rc.Matching.ExactTolerance)
	}
	if !rc.Fees.DivergenceThreshold.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("expected divergence threshold 0.1, got %s", rc.Fees.DivergenceThreshold)
	}
	if _, ok := rc.Rates.ExpectedRate("getnet", "elo"); !ok {
		t.Error("expected the built-in table when no rates are configured")
	}
}

func TestToReconcilerConfig_DuplicateOperator(t *testing.T) {
	s := &Settings{
		Matching: MatchingSettings{MinScore: 70, MaxValueDiffPercent: 2},
		Fees: FeeSettings{
			HighPriorityThreshold: 1,
			Rates: []OperatorRate{
				{Operator: "stone", Brands: []BrandRate{{Brand: "visa", Rate: 2.5}}},
				{Operator: "Stone", Brands: []BrandRate{{Brand: "visa", Rate: 2.6}}},
			},
		},
	}
	_, err := s.ToReconcilerConfig()
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Context["setting"] != "fees.rates" {
		t.Errorf("expected a fees.rates configuration error, got %v", err)
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("database.dsn"); got != "RECONCILER_DATABASE_DSN" {
		t.Errorf("expected RECONCILER_DATABASE_DSN, got %s", got)
	}
}

func TestDerivedConfigs(t *testing.T) {
	s, err := Load(newViper(t, map[string]interface{}{
		"server.allowed_origins": []string{"https://app.example.com"},
		"log.format":             "JSON",
		"database.auto_migrate":  true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rc := s.RouterConfig(); len(rc.AllowedOrigins) != 1 || !strings.HasPrefix(rc.AllowedOrigins[0], "https://") {
		t.Errorf("unexpected router config: %+v", rc)
	}
	if sc := s.ServerConfig(); sc.Addr != ":8080" || sc.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected server config: %+v", sc)
	}
	if lc := s.LoggerConfig(); lc.Format != "json" || lc.Validate() != nil {
		t.Errorf("unexpected logger config: %+v", lc)
	}
	if po := s.PostgresOptions(); !po.AutoMigrate || po.MaxOpenConns != 10 {
		t.Errorf("unexpected postgres options: %+v", po)
	}
}
