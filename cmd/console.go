package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/wordmaster/internal/app"
	"github.com/abhisek/wordmaster/internal/config"
	"github.com/abhisek/wordmaster/internal/logger"
	"github.com/abhisek/wordmaster/internal/screens/home"
	"github.com/abhisek/wordmaster/internal/store"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the admin console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd)
	},
}

// runConsole launches the terminal console. Logs go to a file since the
// terminal belongs to the UI.
func runConsole(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logPath, err := consoleLogPath(cfg)
	if err != nil {
		return fmt.Errorf("resolve log path: %w", err)
	}
	f, err := logger.OpenFile(logPath)
	if err != nil {
		return err
	}
	defer f.Close()
	log := logger.New(f, cfg.Logging.Level, false, true)

	eco, err := buildEconomy(cfg, log, true)
	if err != nil {
		return err
	}
	defer eco.Close()

	return app.Run(cmd.Context(), app.Deps{
		Home: home.Services{
			Requests:    eco.requests,
			Settlements: eco.settlements,
			Roster:      eco.students,
			Balances:    eco.ledger,
			Today:       eco.ledger.Today,
			DailyCap:    cfg.Economy.DailyCap,
		},
		Requests:    eco.requests,
		Settlements: eco.settlements,
	})
}

// consoleLogPath returns logging.file when set. Otherwise the log sits next
// to the SQLite database, or in the user cache dir when there is no local
// database file.
func consoleLogPath(cfg *config.Config) (string, error) {
	if cfg.Logging.File != "" {
		return cfg.Logging.File, nil
	}
	if cfg.Database.Driver != store.DriverPostgres {
		dsn, err := resolveDSN(cfg.Database)
		if err != nil {
			return "", err
		}
		if p := sqliteFilePath(dsn); p != "" {
			return filepath.Join(filepath.Dir(p), "console.log"), nil
		}
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wordmaster", "console.log"), nil
}

// sqliteFilePath strips the file: scheme and query string from a SQLite
// DSN. In-memory databases have no path.
func sqliteFilePath(dsn string) string {
	p, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if p == "" || p == ":memory:" {
		return ""
	}
	return p
}
