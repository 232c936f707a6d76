package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grocerpal/salewatch/internal/export"
	"github.com/grocerpal/salewatch/internal/model"
	"github.com/grocerpal/salewatch/internal/store"
)

var (
	historyRetailer string
	historyDays     int
	historyProduct  string
	historyYes      bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage recorded price history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked products",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		products, err := env.Store.ListTrackedProducts(cmd.Context())
		if err != nil {
			return err
		}
		if len(products) == 0 {
			fmt.Println("no price history recorded yet")
			return nil
		}

		for _, p := range products {
			line := fmt.Sprintf("%s @ %s: %d record(s)", p.ProductName, p.Retailer, p.RecordCount)
			if p.LastPrice != nil {
				line += fmt.Sprintf(", last $%.2f", *p.LastPrice)
			}
			if p.LastOnSale {
				line += " ON SALE"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <product>",
	Short: "Show recorded prices for a product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product := strings.Join(args, " ")

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Store.QueryHistory(cmd.Context(), product, store.HistoryFilter{
			Retailer: historyRetailer,
			DaysBack: historyDays,
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no history for %q in the last %d days\n", product, historyDays)
			return nil
		}

		for _, rec := range records {
			line := fmt.Sprintf("%s @ %s", rec.DateRecorded.Format("2006-01-02"), rec.Retailer)
			if rec.Price != nil {
				line += fmt.Sprintf(" $%.2f", *rec.Price)
			}
			if rec.OnSale {
				line += " ON SALE"
				if rec.WasPrice != nil {
					line += fmt.Sprintf(" (was $%.2f)", *rec.WasPrice)
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <product>",
	Short: "Delete history for a product",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		product := strings.Join(args, " ")

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		deleted, err := env.Store.DeleteProductHistory(cmd.Context(), product, historyRetailer)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d record(s)\n", deleted)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded history, alternatives and favorites",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !historyYes {
			return eris.New("refusing to clear all data without --yes")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("all history cleared")
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export price history to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		var records []model.PriceRecord
		if historyProduct != "" {
			records, err = env.Store.QueryHistory(cmd.Context(), historyProduct, store.HistoryFilter{
				Retailer: historyRetailer,
				DaysBack: historyDays,
			})
			if err != nil {
				return err
			}
		} else {
			products, err := env.Store.ListTrackedProducts(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range products {
				recs, err := env.Store.QueryHistory(cmd.Context(), p.ProductName, store.HistoryFilter{
					Retailer: p.Retailer,
					DaysBack: historyDays,
				})
				if err != nil {
					zap.L().Warn("skipping product in export",
						zap.String("product", p.ProductName), zap.Error(err))
					continue
				}
				records = append(records, recs...)
			}
		}

		if err := export.WriteHistoryXLSX(args[0], records); err != nil {
			return err
		}
		fmt.Printf("exported %d record(s) to %s\n", len(records), args[0])
		return nil
	},
}

func init() {
	historyShowCmd.Flags().StringVar(&historyRetailer, "retailer", "", "filter by retailer")
	historyShowCmd.Flags().IntVar(&historyDays, "days", 30, "days of history")
	historyDeleteCmd.Flags().StringVar(&historyRetailer, "retailer", "", "only delete records for this retailer")
	historyClearCmd.Flags().BoolVar(&historyYes, "yes", false, "confirm deletion of all data")
	historyExportCmd.Flags().StringVar(&historyProduct, "product", "", "only export this product")
	historyExportCmd.Flags().StringVar(&historyRetailer, "retailer", "", "filter by retailer")
	historyExportCmd.Flags().IntVar(&historyDays, "days", 365, "days of history to export")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
