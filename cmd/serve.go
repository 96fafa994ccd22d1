package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/wordmaster/internal/httpapi"
	"github.com/abhisek/wordmaster/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for the drill app",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Address = addr
		}

		log := logger.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

		eco, err := buildEconomy(cfg, log, true)
		if err != nil {
			log.Error().Err(err).Msg("Failed to start")
			return err
		}
		defer eco.Close()

		handler := httpapi.NewHandler(httpapi.Services{
			Students:    eco.students,
			Ledger:      eco.ledger,
			Requests:    eco.requests,
			Settlements: eco.settlements,
			Attempts:    eco.attempts,
		}, log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().
			Str("address", cfg.Server.Address).
			Str("driver", cfg.Database.Driver).
			Bool("rabbitmq", cfg.RabbitMQ.Enabled).
			Msg("Starting wordmaster API")

		return httpapi.NewServer(cfg.Server, handler.Router(cfg), log).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.address)")
}
