// dbm is a command line entrypoint wiring cobra flag parsing around the
// hand-rolled repl package.
package main

import (
	"fmt"
	"os"

	"github.com/chirst/dbm/db"
	"github.com/chirst/dbm/internal/config"
	"github.com/chirst/dbm/repl"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbFile     string
		memory     bool
		explain    bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "dbm",
		Short: "dbm is a relational database with a SQL front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.Memory = memory
			if dbFile != "" {
				cfg.DBFile = dbFile
			}
			if explain {
				logrus.SetLevel(logrus.DebugLevel)
			}
			database, err := db.NewWithConfig(cfg)
			if err != nil {
				return fmt.Errorf("dbm: %w", err)
			}
			repl.New(database).Run()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbFile, "db", "", "path to the database file (defaults to db.db)")
	cmd.Flags().BoolVar(&memory, "memory", false, "open an in-memory database instead of a file")
	cmd.Flags().BoolVar(&explain, "explain", false, "enable debug level logging of engine internals")
	cmd.Flags().StringVar(&configPath, "config", "dbm.yaml", "path to an optional YAML config file")

	return cmd
}
