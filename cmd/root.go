package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grocerpal/salewatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "salewatch",
	Short: "Grocery price checker and sale predictor",
	Long:  "Checks grocery prices across retailer search APIs with a browser-scraping fallback, records price history, and predicts upcoming sales from past discount cycles.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
