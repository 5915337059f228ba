package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/reagent/config"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	var src string
	var direction string
	var steps int

	var cmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				cfg, err := config.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				if cfg.Checkpoint.Backend != "postgres" {
					return fmt.Errorf("migrations require checkpoint.backend=postgres (or DATABASE_URL)")
				}
				dsn = cfg.Checkpoint.Postgres.DSN()
			}

			m, err := migrate.New(src, dsn)
			if err != nil {
				return fmt.Errorf("opening migrations: %w", err)
			}
			defer m.Close()

			switch direction {
			case "up":
				if steps > 0 {
					err = m.Steps(steps)
				} else {
					err = m.Up()
				}
			case "down":
				if steps > 0 {
					err = m.Steps(-steps)
				} else {
					err = m.Down()
				}
			default:
				return fmt.Errorf("direction must be up or down, got %q", direction)
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&src, "source", "file://migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
