package cmd

import (
	"context"
	"fmt"
	"os"

	"card-reconciliation-service/cmd/reconciler/config"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// configErr is set by initConfig and reported by the first command that
	// needs the settings.
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Card settlement reconciliation service",
	Long: `Reconciler matches card settlements reported by the acquirers against
the credits of the bank statement, flags fees that differ from the
negotiated rates and records reconciliations and alerts in the store.

Settings come from an optional config file, a .env file and RECONCILER_*
environment variables (database.dsn becomes RECONCILER_DATABASE_DSN).

Examples:
  reconciler serve
  reconciler reconcile --company-cnpj 12345678000190 --output-format json
  reconciler import --settlements vendas.csv --statements extrato.csv
  reconciler version`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads the .env file, the config file and ENV variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		configErr = errors.ConfigurationError(errors.CodeInvalidConfig, ".env", nil, err)
		return
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configErr = errors.ConfigurationError(errors.CodeInvalidConfig, "config file", cfgFile, err).
				WithSuggestion("Check that the file exists and is valid YAML, JSON or TOML")
			return
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer)
	viper.AutomaticEnv()
}

// loadSettings validates the settings and installs the global logger.
func loadSettings() (*config.Settings, error) {
	if configErr != nil {
		return nil, configErr
	}

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logConfig := settings.LoggerConfig()
	if viper.GetBool("verbose") {
		logConfig.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig, err)
	}
	logger.SetGlobalLogger(log)

	return settings, nil
}

// commandContext returns the context of a running command, or a background
// context when the command is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
