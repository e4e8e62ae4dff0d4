package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stacingest/internal/config"
	"stacingest/internal/container"
	"stacingest/internal/migration"
)

func main() {
	var driver, url string

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the session store schema",
		Long: `Run the session store migrations. Connection settings come from the
application configuration unless --driver/--url are given.

Example: migrate --driver sqlite --url ./sessions.db`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Println("No .env file found, using system environment variables")
			}
			dbCfg := config.DatabaseConfig{Driver: driver, URL: url}
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dbCfg = cfg.Database
				if driver != "" {
					dbCfg.Driver = driver
				}
			}
			if dbCfg.Driver == "" {
				dbCfg.Driver = "postgres"
			}
			if dbCfg.URL == "" {
				return fmt.Errorf("no database URL configured")
			}

			db, err := container.OpenDatabase(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			applied, err := runner.Applied(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Printf("Migrations complete on %s; applied versions: %v", dbCfg.Driver, applied)
			return nil
		},
	}

	rootCmd.Flags().StringVar(&driver, "driver", "", "Database driver: postgres or sqlite")
	rootCmd.Flags().StringVar(&url, "url", "", "Database URL (overrides configuration)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
