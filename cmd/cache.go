package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the lookup cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired lookup cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cache"); err != nil {
			return err
		}

		cache, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open lookup cache")
		}
		defer cache.Close() //nolint:errcheck

		n, err := cache.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "prune lookup cache")
		}

		zap.L().Info("cache pruned", zap.String("driver", cfg.Store.Driver), zap.Int("deleted", n))
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
