package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	predictRetailer string
	predictDays     int
	predictJSON     bool
)

var predictCmd = &cobra.Command{
	Use:   "predict <product>",
	Short: "Predict the next sale for a tracked product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product := strings.TrimSpace(strings.Join(args, " "))
		if product == "" {
			return eris.New("product name is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		pred, err := env.Predictor.ForProduct(cmd.Context(), env.Store, product, predictRetailer, predictDays)
		if err != nil {
			return err
		}

		if predictJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pred)
		}

		if pred.EstimatedNextSale == nil {
			fmt.Printf("%s @ %s: %s\n", product, predictRetailer, pred.Reasoning)
			return nil
		}

		fmt.Printf("%s @ %s\n", product, predictRetailer)
		fmt.Printf("  next sale: %s (confidence %.0f%%)\n",
			pred.EstimatedNextSale.Format("2006-01-02"), pred.Confidence*100)
		if pred.AverageSaleCycle != nil {
			fmt.Printf("  sale cycle: every %.1f days over %d events\n",
				*pred.AverageSaleCycle, pred.Analysis.SaleCount)
		}
		if pred.PredictedSalePrice != nil {
			fmt.Printf("  expected sale price: $%.2f\n", *pred.PredictedSalePrice)
		}
		if pred.EstimatedSavings != nil {
			fmt.Printf("  estimated savings: $%.2f\n", *pred.EstimatedSavings)
		}
		fmt.Printf("  %s\n", pred.Reasoning)
		return nil
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictRetailer, "retailer", "woolworths", "retailer to analyze")
	predictCmd.Flags().IntVar(&predictDays, "days", 60, "days of history to analyze")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the raw JSON prediction")
	rootCmd.AddCommand(predictCmd)
}
