package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codefionn/promethean-bridge/internal/socketutil"
)

var vacateCmd = &cobra.Command{
	Use:   "vacate",
	Short: "Ask the running server to release its port",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result := socketutil.VacateWithRetry(ctx, cfg.Server.Address(), cfg.Server.VacateToken)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cfg.Server.Address(), result)
		if result == socketutil.VacateFailed {
			return fmt.Errorf("server at %s did not vacate", cfg.Server.Address())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vacateCmd)
}
