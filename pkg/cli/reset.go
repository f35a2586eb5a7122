package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/leaseth/leaseth/pkg/data"
)

var resetCmd = &cli.Command{
	Name:            "reset",
	Usage:           "Delete all stored applications, decisions, and feedback",
	HideHelpCommand: true,
	Action:          cmdReset,
}

func cmdReset(c *cli.Context) error {
	cfg := getConfig(c)

	fmt.Printf("This will permanently delete all data in %s\n", cfg.Store.DSN())
	fmt.Print("Are you sure? [y/N]: ")

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("Aborted.")
		return nil
	}

	if cfg.Store.Driver() == data.DriverSQLite {
		if err := resetSQLite(c, cfg); err != nil {
			return err
		}
	} else {
		if err := cfg.Store.Reset(c.Context); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
	}

	if err := cfg.Store.InsertAudit(c.Context, data.AuditActionReset, "all data cleared"); err != nil {
		slog.Warn("audit entry not recorded", "error", err)
	}

	slog.Info("store reset", "dsn", cfg.Store.DSN())
	fmt.Println("Reset complete.")
	return nil
}

// resetSQLite removes the database file and reopens a fresh store in its
// place. The old file handle is closed first.
func resetSQLite(c *cli.Context, cfg *appConfig) error {
	path := cfg.Store.DSN()

	if err := cfg.Store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting database: %w", err)
	}

	store, err := data.Open(path)
	if err != nil {
		return fmt.Errorf("reopening store: %w", err)
	}
	if err := store.Init(c.Context); err != nil {
		store.Close()
		return fmt.Errorf("re-initializing store: %w", err)
	}

	cfg.Store = store
	return nil
}
