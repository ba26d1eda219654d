package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"card-reconciliation-service/internal/api"
	"card-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation endpoint over HTTP",
	Long: `Serve starts the HTTP server exposing POST /reconcile-card and
GET /healthz. It runs until interrupted and then shuts down gracefully.

Examples:
  reconciler serve
  reconciler serve --addr :9090
  RECONCILER_DATABASE_DSN=postgres://... reconciler serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.allowed_origins", serveCmd.Flags().Lookup("allowed-origins"))
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	orch, st, err := newOrchestrator(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()
	router := api.NewRouter(orch, settings.RouterConfig(), log)
	return api.NewServer(settings.ServerConfig(), router, log).Run(ctx)
}
