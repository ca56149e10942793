package main

import (
	"errors"
	"fmt"
	"os"

	"three-tier-lab/internal/database"

	"github.com/spf13/cobra"
)

var (
	runMigrations = database.RunMigrations
	rollbackAll   = database.RollbackAll
)

func newMigrateCmd() *cobra.Command {
	var dbURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the users schema",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")

	resolve := func() (string, error) {
		_ = loadDotEnv()
		if dbURL != "" {
			return dbURL, nil
		}
		if v := os.Getenv("DATABASE_URL"); v != "" {
			return v, nil
		}
		return "", errors.New("環境變數 DATABASE_URL 未設定")
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Create the users table and seed rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := resolve()
			if err != nil {
				return err
			}
			if err := runMigrations(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops the users table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := resolve()
			if err != nil {
				return err
			}
			if err := rollbackAll(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
			return nil
		},
	}
	cmd.AddCommand(up, down)
	return cmd
}
