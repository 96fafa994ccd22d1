package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhisek/wordmaster/internal/attempt"
	"github.com/abhisek/wordmaster/internal/config"
	"github.com/abhisek/wordmaster/internal/cooldown"
	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/logger"
	"github.com/abhisek/wordmaster/internal/notify"
	"github.com/abhisek/wordmaster/internal/reward"
	"github.com/abhisek/wordmaster/internal/settlement"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/abhisek/wordmaster/internal/testrequest"
)

var rootCmd = &cobra.Command{
	Use:   "wordmaster",
	Short: "Token economy for the vocabulary drill app",
	Long:  "Wordmaster runs the token economy behind the vocabulary drill app: test approvals, daily earning caps and cash settlements.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides database.dsn and WORDMASTER_DB)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(versionCmd)
}

// economy holds the opened store and every service built on it.
type economy struct {
	cfg         *config.Config
	log         zerolog.Logger
	store       *store.Store
	notifier    notify.Notifier
	students    *students.Service
	ledger      *ledger.Ledger
	requests    *testrequest.Service
	settlements *settlement.Engine
	attempts    *attempt.Service
}

func (e *economy) Close() {
	if err := e.notifier.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close notifier")
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close store")
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Database.Driver = store.DriverSQLite
		cfg.Database.DSN = p
	}
	return cfg, nil
}

// resolveDSN fills in the default SQLite path when no DSN is configured.
func resolveDSN(db config.DatabaseConfig) (string, error) {
	if db.DSN != "" || db.Driver == store.DriverPostgres {
		return db.DSN, nil
	}
	return store.DefaultDBPath()
}

// openEconomy loads config, opens the store and wires the services. The
// notifier is RabbitMQ when enabled, otherwise a no-op.
func openEconomy(cmd *cobra.Command, log zerolog.Logger, withNotifier bool) (*economy, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildEconomy(cfg, log, withNotifier)
}

func buildEconomy(cfg *config.Config, log zerolog.Logger, withNotifier bool) (*economy, error) {
	dsn, err := resolveDSN(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	loc, err := cfg.Economy.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if withNotifier && cfg.RabbitMQ.Enabled {
		mq, err := notify.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.RoutingKey, cfg.RabbitMQ.QueueName, log)
		if err != nil {
			st.Close()
			return nil, err
		}
		notifier = mq
	}

	e := cfg.Economy
	l := ledger.New(st, dailycap.New(e.DailyCap, loc), log)
	requests := testrequest.NewService(st, cooldown.New(e.Cooldown), notifier, log)

	return &economy{
		cfg:         cfg,
		log:         log,
		store:       st,
		notifier:    notifier,
		students:    students.NewService(st, log),
		ledger:      l,
		requests:    requests,
		settlements: settlement.NewEngine(st, l, settlement.NewTerms(e.SettlementQuantum, e.ExchangeRate), notifier, log),
		attempts:    attempt.NewService(st, l, requests, reward.New(e.FirstPassRate, e.ReviewDivisor), log),
	}, nil
}

// cliLogger logs warnings to stderr for short-lived commands.
func cliLogger() zerolog.Logger {
	return logger.New(os.Stderr, "warn", true, false)
}
