package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nucleus/internal/moderation/auth"
	"nucleus/internal/node"
	"nucleus/internal/platform/config"
	"nucleus/internal/platform/postgres"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a moderation node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := node.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return n.Run(cmd.Context())
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the restriction store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs the %s store driver, got %q", config.DriverPostgres, cfg.Store.Driver)
			}
			db, err := postgres.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.InfoContext(cmd.Context(), "schema applied")
			return nil
		},
	}
}

// hashKeyCommand prints a bcrypt hash for a moderator entry. Without an
// argument the key is read from stdin unless --generate is set.
func hashKeyCommand() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash a moderator API key for the config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			switch {
			case len(args) == 1:
				key = args[0]
			case generate:
				k, err := auth.GenerateKey()
				if err != nil {
					return err
				}
				key = k
				fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\n", key)
			default:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "generate a random key")
	return cmd
}
